package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/muurk/cabload/internal/protocol"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/transport"
)

// Transport kinds accepted in a profile
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// DefaultServiceType is the mDNS service browsed by `cabload scan`
const DefaultServiceType = "_cabload._tcp"

// Registry represents the entire user configuration file.
// It stores named connection profiles and application preferences.
type Registry struct {
	Version     int                 `yaml:"version"`
	Default     string              `yaml:"default,omitempty"`  // Profile used when --profile is not given
	Profiles    map[string]*Profile `yaml:"profiles,omitempty"` // Keyed by profile name
	Preferences *Preferences        `yaml:"preferences,omitempty"`

	path string // file the registry was loaded from, empty for the default location
}

// Profile is one saved set of connection and protocol settings.
type Profile struct {
	Transport    string `yaml:"transport"`               // "serial" or "tcp"
	SerialDevice string `yaml:"serial_device,omitempty"` // e.g. /dev/ttyUSB0, COM3
	BaudRate     int    `yaml:"baud_rate,omitempty"`
	Host         string `yaml:"host,omitempty"` // empty, "any" or "server" listens
	Port         int    `yaml:"port,omitempty"`

	Header      string `yaml:"header,omitempty"` // "EMC" or "MCE"
	Address     int    `yaml:"address"`          // Cabinet address 1-6
	LoadAddress uint32 `yaml:"load_address"`
	BlockSize   int    `yaml:"block_size"`
	MaxRetries  int    `yaml:"max_retries"`

	AckTimeoutMs     int `yaml:"ack_timeout_ms,omitempty"`
	PingTimeoutMs    int `yaml:"ping_timeout_ms,omitempty"`
	ConnectTimeoutMs int `yaml:"connect_timeout_ms,omitempty"`
	ReceiveTimeoutMs int `yaml:"receive_timeout_ms,omitempty"`
	SendTimeoutMs    int `yaml:"send_timeout_ms,omitempty"`

	LastUsed time.Time `yaml:"last_used,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DiscoverTimeout int    `yaml:"discover_timeout"` // mDNS discovery timeout in seconds
	ServiceType     string `yaml:"service_type"`     // mDNS service type to browse
	PingBeforeFlash bool   `yaml:"ping_before_flash"`
}

func defaultPreferences() *Preferences {
	return &Preferences{
		DiscoverTimeout: 5,
		ServiceType:     DefaultServiceType,
		PingBeforeFlash: true,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Profiles:    make(map[string]*Profile),
		Preferences: defaultPreferences(),
	}
}

// DefaultProfile returns a profile holding the built-in protocol defaults
// and no connection target.
func DefaultProfile() *Profile {
	return &Profile{
		BaudRate:         transport.DefaultBaudRate,
		Header:           protocol.HeaderEMC.String(),
		Address:          sender.DefaultAddress,
		BlockSize:        sender.DefaultBlockSize,
		MaxRetries:       sender.DefaultMaxRetries,
		AckTimeoutMs:     int(sender.DefaultAckTimeout / time.Millisecond),
		PingTimeoutMs:    int(sender.DefaultPingTimeout / time.Millisecond),
		ConnectTimeoutMs: int(transport.DefaultConnectTimeout / time.Millisecond),
		ReceiveTimeoutMs: int(transport.DefaultReceiveTimeout / time.Millisecond),
		SendTimeoutMs:    int(transport.DefaultSendTimeout / time.Millisecond),
	}
}

// GetProfile retrieves a profile by name.
// Returns nil if the profile doesn't exist in the registry.
func (r *Registry) GetProfile(name string) *Profile {
	return r.Profiles[name]
}

// SetProfile stores a profile under name, replacing any existing entry.
func (r *Registry) SetProfile(name string, p *Profile) {
	if r.Profiles == nil {
		r.Profiles = make(map[string]*Profile)
	}
	r.Profiles[name] = p
}

// RemoveProfile deletes a profile. Removing the default profile clears the default.
func (r *Registry) RemoveProfile(name string) bool {
	if _, ok := r.Profiles[name]; !ok {
		return false
	}
	delete(r.Profiles, name)
	if r.Default == name {
		r.Default = ""
	}
	return true
}

// ProfileNames returns the profile names in sorted order.
func (r *Registry) ProfileNames() []string {
	names := make([]string, 0, len(r.Profiles))
	for name := range r.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarkUsed records that a profile was just used.
func (r *Registry) MarkUsed(name string) {
	if p := r.Profiles[name]; p != nil {
		p.LastUsed = time.Now()
	}
}

// Kind returns the transport kind, inferring it from the fields when unset.
func (p *Profile) Kind() string {
	if p.Transport != "" {
		return strings.ToLower(p.Transport)
	}
	if p.SerialDevice != "" {
		return TransportSerial
	}
	return TransportTCP
}

// Validate checks that the profile describes a usable connection.
func (p *Profile) Validate() error {
	switch p.Kind() {
	case TransportSerial:
		if p.SerialDevice == "" {
			return fmt.Errorf("serial profile needs serial_device")
		}
		if p.BaudRate < 0 {
			return fmt.Errorf("baud_rate %d is negative", p.BaudRate)
		}
	case TransportTCP:
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("tcp profile needs a port between 1 and 65535, got %d", p.Port)
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", p.Transport, TransportSerial, TransportTCP)
	}

	if _, err := protocol.ParseHeader(p.Header); err != nil {
		return err
	}
	if err := protocol.ValidateAddress(p.Address); err != nil {
		return err
	}
	if err := protocol.ValidateBlockSize(p.BlockSize); err != nil {
		return err
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries %d is negative", p.MaxRetries)
	}
	for name, v := range map[string]int{
		"ack_timeout_ms":     p.AckTimeoutMs,
		"ping_timeout_ms":    p.PingTimeoutMs,
		"connect_timeout_ms": p.ConnectTimeoutMs,
		"receive_timeout_ms": p.ReceiveTimeoutMs,
		"send_timeout_ms":    p.SendTimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("%s %d is negative", name, v)
		}
	}
	return nil
}

// TransportConfig converts the profile into transport settings.
// Zero timeouts fall back to the transport defaults.
func (p *Profile) TransportConfig() transport.Config {
	cfg := transport.Config{
		ConnectTimeout: millis(p.ConnectTimeoutMs),
		ReceiveTimeout: millis(p.ReceiveTimeoutMs),
		SendTimeout:    millis(p.SendTimeoutMs),
	}
	if p.Kind() == TransportSerial {
		cfg.SerialDevice = p.SerialDevice
		cfg.BaudRate = p.BaudRate
	} else {
		cfg.Host = p.Host
		cfg.Port = p.Port
	}
	return cfg
}

// SenderOptions converts the profile into sender options.
// Zero timeouts keep the sender defaults.
func (p *Profile) SenderOptions() ([]sender.Option, error) {
	h, err := protocol.ParseHeader(p.Header)
	if err != nil {
		return nil, err
	}
	opts := []sender.Option{
		sender.WithHeader(h),
		sender.WithAddress(p.Address),
		sender.WithBlockSize(p.BlockSize),
		sender.WithMaxRetries(p.MaxRetries),
	}
	if p.AckTimeoutMs > 0 {
		opts = append(opts, sender.WithAckTimeout(millis(p.AckTimeoutMs)))
	}
	if p.PingTimeoutMs > 0 {
		opts = append(opts, sender.WithPingTimeout(millis(p.PingTimeoutMs)))
	}
	return opts, nil
}

// Target returns a short description of the connection target for display.
func (p *Profile) Target() string {
	if p.Kind() == TransportSerial {
		return fmt.Sprintf("%s @ %d baud", p.SerialDevice, p.BaudRate)
	}
	if transport.IsServerHost(p.Host) {
		return fmt.Sprintf("listen :%d", p.Port)
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
