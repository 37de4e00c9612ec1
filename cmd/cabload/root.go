package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/config"
	"github.com/muurk/cabload/internal/logging"
	"github.com/muurk/cabload/internal/ui"
)

// Global flags
var (
	configPath  string
	profileName string
	logLevel    string
	verbose     bool
	quiet       bool
	plain       bool

	serialDevice   string
	baudRate       int
	host           string
	port           int
	header         string
	address        int
	blockSize      int
	maxRetries     int
	ackTimeout     time.Duration
	pingTimeout    time.Duration
	connectTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "cabload",
	Short: "Cabinet controller firmware loader",
	Long: `Flash firmware images into cabinet controllers over a serial line or
a raw TCP link.

Connection settings come from the selected profile (--profile, or the
default profile in the config file). Any connection flag given on the
command line overrides the profile for that run.

A TCP host of "", "any" or "server" listens on the port and waits for the
controller to dial in; any other host is dialled as a client.`,
	Example: `  # Check the controller answers
  cabload ping --device /dev/ttyUSB0 --address 3

  # Flash using a saved profile
  cabload flash build/app.bin --profile line-2

  # Re-flash whenever the build output changes
  cabload watch build/app.bin`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent unless --log-level or CABLOAD_LOG_LEVEL is set
		return logging.Initialize(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: OS config dir)")
	pf.StringVarP(&profileName, "profile", "p", "", "Connection profile to use")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $"+logging.LogLevelEnvVar+")")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show the protocol log after a failure")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Print progress only, no protocol events")
	pf.BoolVar(&plain, "plain", false, "Plain line output even on a terminal")

	pf.StringVar(&serialDevice, "device", "", "Serial device (e.g. /dev/ttyUSB0, COM3)")
	pf.IntVar(&baudRate, "baud", 0, "Serial baud rate")
	pf.StringVar(&host, "host", "", `TCP host to dial; "", "any" or "server" listens`)
	pf.IntVar(&port, "port", 0, "TCP port")
	pf.StringVar(&header, "header", "", "Frame header variant: EMC or MCE")
	pf.IntVarP(&address, "address", "a", 0, "Cabinet address (1-6)")
	pf.IntVar(&blockSize, "block-size", 0, "Data block size in bytes (1-512)")
	pf.IntVar(&maxRetries, "retries", 0, "Retries per frame after the first attempt")
	pf.DurationVar(&ackTimeout, "ack-timeout", 0, "Time to wait for each acknowledgement")
	pf.DurationVar(&pingTimeout, "ping-timeout", 0, "Time to wait for each ping echo")
	pf.DurationVar(&connectTimeout, "connect-timeout", 0, "Time to connect, or to wait for a controller in listen mode")

	rootCmd.AddCommand(versionCmd)
}

// loadRegistry returns the registry named by --config, or the global one.
func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadRegistryFrom(configPath)
	}
	return config.LoadRegistry()
}

// resolveProfile picks the profile for this run and applies flag overrides.
// The returned name is empty when no stored profile was used.
func resolveProfile(cmd *cobra.Command, reg *config.Registry) (string, *config.Profile, error) {
	name := profileName
	if name == "" {
		name = reg.Default
	}

	p := *config.DefaultProfile()
	if name != "" {
		stored := reg.GetProfile(name)
		switch {
		case stored != nil:
			p = *stored
		case profileName != "":
			return "", nil, fmt.Errorf("profile %q not found (see: cabload profile list)", name)
		default:
			logging.Warn("Default profile missing, using built-in defaults")
			name = ""
		}
	}

	if err := applyFlags(cmd, &p); err != nil {
		return "", nil, err
	}
	if err := p.Validate(); err != nil {
		if name != "" {
			return "", nil, fmt.Errorf("profile %s: %w", name, err)
		}
		return "", nil, err
	}
	return name, &p, nil
}

// applyFlags copies every connection flag the user set onto p.
func applyFlags(cmd *cobra.Command, p *config.Profile) error {
	f := cmd.Flags()

	if f.Changed("device") {
		p.Transport = config.TransportSerial
		p.SerialDevice = serialDevice
	}
	if f.Changed("baud") {
		p.BaudRate = baudRate
	}
	if (f.Changed("host") || f.Changed("port")) && !f.Changed("device") {
		p.Transport = config.TransportTCP
	}
	if f.Changed("host") {
		p.Host = host
	}
	if f.Changed("port") {
		p.Port = port
	}
	if f.Changed("header") {
		p.Header = header
	}
	if f.Changed("address") {
		p.Address = address
	}
	if f.Changed("block-size") {
		p.BlockSize = blockSize
	}
	if f.Changed("retries") {
		p.MaxRetries = maxRetries
	}
	if f.Changed("ack-timeout") {
		p.AckTimeoutMs = int(ackTimeout / time.Millisecond)
	}
	if f.Changed("ping-timeout") {
		p.PingTimeoutMs = int(pingTimeout / time.Millisecond)
	}
	if f.Changed("connect-timeout") {
		p.ConnectTimeoutMs = int(connectTimeout / time.Millisecond)
	}
	if f.Changed("load-address") {
		v, err := parseUint(loadAddress, 32)
		if err != nil {
			return fmt.Errorf("invalid --load-address %q: %w", loadAddress, err)
		}
		p.LoadAddress = uint32(v)
	}
	return nil
}

// parseUint accepts decimal or 0x-prefixed hex
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, bits)
}

// profileParams summarizes a profile for command headers
func profileParams(name string, p *config.Profile) map[string]string {
	if name == "" {
		name = "(flags)"
	}
	return map[string]string{
		"Profile": name,
		"Target":  p.Target(),
		"Cabinet": fmt.Sprintf("%d (%s header)", p.Address, strings.ToUpper(p.Header)),
	}
}

func isInteractive(cmd *cobra.Command) bool {
	return !plain && ui.IsTerminal(cmd.OutOrStdout())
}

func newRunner(cmd *cobra.Command, title string, params map[string]string) *ui.Runner {
	return ui.NewRunner(ui.RunnerConfig{
		Title:       title,
		Command:     cmd.CommandPath(),
		Params:      params,
		Output:      cmd.OutOrStdout(),
		Input:       cmd.InOrStdin(),
		Interactive: isInteractive(cmd),
		Verbose:     verbose,
		Quiet:       quiet,
	})
}

// markUsed stamps the profile's last-used time. Failing to save is not
// worth failing the command over.
func markUsed(reg *config.Registry, name string) {
	if name == "" {
		return
	}
	reg.MarkUsed(name)
	if err := reg.Save(); err != nil {
		logging.Warn("Could not record profile use", zap.String("profile", name), zap.Error(err))
	}
}
