package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/cabload/internal/sender"
)

var pingData string

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a controller answers",
	Long: `Send a Ping frame and wait for the controller to echo it back.

The ping is retried like any other frame. A missing echo usually means the
header variant or cabinet address does not match the controller.`,
	Example: `  cabload ping --device /dev/ttyUSB0 --address 2
  cabload ping --host 192.168.1.40 --port 4001 --header MCE
  cabload ping --profile line-2 --data 0x55`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().StringVar(&pingData, "data", fmt.Sprintf("0x%02X", defaultPingData), "Byte to send and expect echoed")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	v, err := parseUint(pingData, 8)
	if err != nil {
		return fmt.Errorf("invalid --data %q: %w", pingData, err)
	}
	data := byte(v)

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	name, p, err := resolveProfile(cmd, reg)
	if err != nil {
		return err
	}

	runner := newRunner(cmd, "Ping", profileParams(name, p))
	err = runner.Run(cmd.Context(), fmt.Sprintf("Pinging cabinet %d", p.Address), func(ctx context.Context, sink sender.Sink) (map[string]string, error) {
		t, err := openTransport(ctx, p)
		if err != nil {
			return nil, err
		}
		defer t.Close()

		s, err := newSender(t, p, sink)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		if err := s.Ping(ctx, data); err != nil {
			return nil, err
		}
		return map[string]string{
			"Echo":       fmt.Sprintf("0x%02X", data),
			"Round trip": time.Since(start).Round(time.Millisecond).String(),
		}, nil
	})
	if err == nil {
		markUsed(reg, name)
	}
	return err
}
