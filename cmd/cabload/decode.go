package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/cabload/internal/firmware"
	"github.com/muurk/cabload/internal/protocol"
	"github.com/muurk/cabload/internal/ui"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <capture>",
	Short: "Decode loader frames from a captured byte stream",
	Long: `Decode every loader frame found in a capture of the serial or TCP
traffic. The capture is either the raw bytes or a hex dump; hex dumps may
contain whitespace, 0x prefixes and '#' comments.

Bytes that do not belong to a frame with a valid checksum are counted as
skipped. Use --header MCE for controllers on the alternate header.`,
	Example: `  cabload decode capture.bin
  cabload decode --header MCE session.hex`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		h, err := protocol.ParseHeader(header)
		if err != nil {
			return err
		}

		img, err := firmware.Load(args[0])
		if err != nil {
			return err
		}
		data := img.Data
		if img.Text {
			if data, err = protocol.ParseHexCapture(string(img.Data)); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
		}

		frames, skipped := protocol.DecodeCapture(data, h)

		rows := make([][]string, 0, len(frames))
		for i, f := range frames {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				fmt.Sprintf("0x%02X", f.Command),
				strconv.Itoa(int(f.Length)),
				protocol.Describe(f),
			})
		}

		pr := ui.NewPrinter(cmd.OutOrStdout())
		pr.PrintTable([]string{"#", "CMD", "LEN", "DETAIL"}, rows, "No "+h.String()+" frames found.")
		pr.Newline()
		pr.Println(fmt.Sprintf("  %d frame(s), %d of %d bytes skipped", len(frames), skipped, len(data)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
