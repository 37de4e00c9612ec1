package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/cabload/internal/transport"
	"github.com/muurk/cabload/internal/ui"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ports, err := transport.ListPorts()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		rows := make([][]string, 0, len(ports))
		for _, name := range ports {
			rows = append(rows, []string{name})
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintTable([]string{"DEVICE"}, rows, "No serial devices found.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
