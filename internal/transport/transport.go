package transport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transport is a bidirectional byte stream to the controller.
//
// Read, ReadByte and BytesToRead never fail: an empty result means "nothing
// available right now". Write either sends every byte or closes the transport
// and returns an *Error of kind KindIO.
type Transport interface {
	// Open establishes the channel. It is a no-op when already open.
	Open(ctx context.Context) error
	// Close releases the channel. Safe to call more than once.
	Close() error
	// IsOpen reports whether bytes can currently flow.
	IsOpen() bool
	// State returns the lifecycle state.
	State() State
	// BytesToRead returns the number of bytes available without waiting.
	BytesToRead() int
	// Read copies up to len(p) available bytes into p and returns the count.
	Read(p []byte) int
	// ReadByte returns the next byte and true, or false when none is available.
	ReadByte() (byte, bool)
	// Write sends all of p.
	Write(p []byte) error
	// DiscardInBuffer drops any unread input.
	DiscardInBuffer()
	// DiscardOutBuffer drops any unsent output.
	DiscardOutBuffer()
}

// State is the transport lifecycle state
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Default timing values
const (
	DefaultBaudRate          = 115200
	DefaultConnectTimeout    = 5 * time.Second
	DefaultReceiveTimeout    = 20 * time.Millisecond
	DefaultSendTimeout       = 2 * time.Second
	DefaultConnectAttempts   = 3
	DefaultConnectRetryDelay = 1 * time.Second
	DefaultKeepAliveIdle     = 5 * time.Second
	DefaultKeepAliveInterval = 2 * time.Second

	// probeTimeout bounds the read BytesToRead issues to see what has arrived
	probeTimeout = time.Millisecond
	// readChunk is the size of a single read from the underlying channel
	readChunk = 4096
)

// Config holds the connection settings. Zero durations and counts are replaced
// by the defaults above.
type Config struct {
	// SerialDevice selects the serial transport when non-empty (e.g. /dev/ttyUSB0, COM3)
	SerialDevice string
	BaudRate     int

	// Host and Port select the TCP transport. See IsServerHost for the role.
	Host string
	Port int

	// ConnectTimeout bounds a single dial and, in server role, the wait for
	// the first client. A negative value waits until the context is done.
	ConnectTimeout time.Duration
	// ReceiveTimeout bounds a single Read or ReadByte call
	ReceiveTimeout time.Duration
	// SendTimeout bounds a single Write call
	SendTimeout time.Duration

	ConnectAttempts   int
	ConnectRetryDelay time.Duration
	KeepAliveIdle     time.Duration
	KeepAliveInterval time.Duration
}

// DefaultConfig returns a Config with every timing field set to its default
func DefaultConfig() Config {
	return Config{
		BaudRate:          DefaultBaudRate,
		ConnectTimeout:    DefaultConnectTimeout,
		ReceiveTimeout:    DefaultReceiveTimeout,
		SendTimeout:       DefaultSendTimeout,
		ConnectAttempts:   DefaultConnectAttempts,
		ConnectRetryDelay: DefaultConnectRetryDelay,
		KeepAliveIdle:     DefaultKeepAliveIdle,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

// withDefaults fills unset fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaudRate <= 0 {
		c.BaudRate = d.BaudRate
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = d.ConnectAttempts
	}
	if c.ConnectRetryDelay <= 0 {
		c.ConnectRetryDelay = d.ConnectRetryDelay
	}
	if c.KeepAliveIdle <= 0 {
		c.KeepAliveIdle = d.KeepAliveIdle
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = d.KeepAliveInterval
	}
	return c
}

// New builds the transport described by cfg without opening it.
// A serial device takes precedence over a TCP endpoint.
func New(cfg Config) (Transport, error) {
	switch {
	case cfg.SerialDevice != "":
		return NewSerial(cfg.SerialDevice, cfg), nil
	case cfg.Port > 0 && cfg.Port <= 65535:
		return NewTCP(cfg.Host, cfg.Port, cfg), nil
	case cfg.Port != 0:
		return nil, fmt.Errorf("invalid TCP port %d", cfg.Port)
	default:
		return nil, fmt.Errorf("no serial device or TCP port configured")
	}
}

// IsServerHost reports whether host selects the listening role.
// Empty, "0.0.0.0", "*", "Any" and "Server" listen; matching ignores case.
func IsServerHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "", "0.0.0.0", "*", "any", "server":
		return true
	}
	return false
}

// takePending moves up to len(p) bytes out of the read-ahead buffer
func takePending(pending []byte, p []byte) ([]byte, int) {
	n := copy(p, pending)
	rest := copy(pending, pending[n:])
	return pending[:rest], n
}
