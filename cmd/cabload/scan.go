package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/cabload/internal/config"
	"github.com/muurk/cabload/internal/discovery"
	"github.com/muurk/cabload/internal/protocol"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/ui"
)

// Scan command flags
var (
	scanTimeout time.Duration
	scanService string
	scanSave    string
	scanPick    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find network-attached controllers and serial bridges",
	Long: `Browse the local network over mDNS for controllers and serial bridges
that advertise a raw TCP frame port.

With --save the single endpoint found is stored as a TCP profile, taking
the cabinet address and header variant from its TXT record when present.
With --pick the endpoints are shown in an interactive list and the one
selected is the one saved.`,
	Example: `  cabload scan
  cabload scan --timeout 10s --service _serial._tcp
  cabload scan --save line-3
  cabload scan --pick --save line-3`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "How long to listen (default: discover_timeout preference)")
	scanCmd.Flags().StringVar(&scanService, "service", "", "mDNS service type (default: service_type preference)")
	scanCmd.Flags().StringVar(&scanSave, "save", "", "Save the endpoint found as a profile with this name")
	scanCmd.Flags().BoolVar(&scanPick, "pick", false, "Choose an endpoint from an interactive list")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	scanner := discovery.NewScanner(scanService)
	if scanService == "" && reg.Preferences != nil {
		scanner = discovery.NewScanner(reg.Preferences.ServiceType)
	}
	switch {
	case scanTimeout > 0:
		scanner.Timeout = scanTimeout
	case reg.Preferences != nil && reg.Preferences.DiscoverTimeout > 0:
		scanner.Timeout = time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
	}

	if scanPick {
		return runPick(cmd, reg, scanner)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintHeader("Scan", cmd.CommandPath(), map[string]string{
		"Service": scanner.Service,
		"Timeout": scanner.Timeout.String(),
	})

	endpoints, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	rows := make([][]string, 0, len(endpoints))
	for _, ep := range endpoints {
		cabinet := "-"
		if n := ep.CabinetAddress(); n > 0 {
			cabinet = strconv.Itoa(n)
		}
		rows = append(rows, []string{ep.Instance, ep.Address(), ep.Hostname, cabinet, orDash(ep.GetMetadata("header"))})
	}
	printer.PrintTable([]string{"INSTANCE", "ADDRESS", "HOST", "CABINET", "HEADER"}, rows,
		"No endpoints found. Check multicast is allowed and try a longer --timeout.")

	if scanSave == "" {
		return nil
	}
	if len(endpoints) != 1 {
		return fmt.Errorf("--save needs exactly one endpoint, found %d", len(endpoints))
	}

	printer.Newline()
	return saveEndpoint(printer, reg, endpoints[0])
}

// runPick lets the user choose one endpoint on the terminal
func runPick(cmd *cobra.Command, reg *config.Registry, scanner *discovery.Scanner) error {
	if !isInteractive(cmd) {
		return fmt.Errorf("--pick needs a terminal (drop --plain, or use --save with a single endpoint)")
	}

	ep, err := ui.PickEndpoint(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), scanner.Scan)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if ep == nil {
		return fmt.Errorf("no endpoint selected: %w", sender.ErrCancelled)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if scanSave == "" {
		printer.PrintResult(ui.NewSuccessResult("Endpoint selected", map[string]string{
			"Instance": ep.Instance,
			"Target":   ep.Address(),
		}))
		return nil
	}
	return saveEndpoint(printer, reg, ep)
}

// saveEndpoint stores ep as the --save profile
func saveEndpoint(printer *ui.Printer, reg *config.Registry, ep *discovery.Endpoint) error {
	reg.SetProfile(scanSave, endpointProfile(ep))
	if err := reg.Save(); err != nil {
		return err
	}
	printer.PrintResult(ui.NewSuccessResult("Profile saved", map[string]string{
		"Name":   scanSave,
		"Target": ep.Address(),
	}))
	return nil
}

// endpointProfile builds a TCP client profile for ep
func endpointProfile(ep *discovery.Endpoint) *config.Profile {
	p := config.DefaultProfile()
	p.Transport = config.TransportTCP
	p.Host = ep.IP
	p.Port = ep.Port
	if n := ep.CabinetAddress(); protocol.ValidateAddress(n) == nil {
		p.Address = n
	}
	if h, err := protocol.ParseHeader(ep.GetMetadata("header")); err == nil {
		p.Header = h.String()
	}
	return p
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
