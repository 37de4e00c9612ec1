package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/muurk/cabload/internal/config"
	"github.com/muurk/cabload/internal/firmware"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/ui"
)

// Flash command flags
var (
	loadAddress string
	assumeYes   bool
	skipPing    bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <image>",
	Short: "Flash a firmware image into a controller",
	Long: `Transfer a binary firmware image to a cabinet controller.

The controller is pinged first (unless --no-ping or the ping_before_flash
preference is off), then sent an Init frame describing the image, then one
Data frame per block. Each frame must be acknowledged before the next is
sent; a frame that is never acknowledged aborts the transfer.

On a terminal you are asked to confirm before anything is written.`,
	Example: `  # Flash with the default profile
  cabload flash build/app.bin

  # Flash over TCP, no prompt, loading at 0x08004000
  cabload flash app.bin --host 192.168.1.40 --port 4001 --load-address 0x08004000 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	addImageFlags(flashCmd)
	flashCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(flashCmd)
}

// addImageFlags registers the flags shared by flash and watch
func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&loadAddress, "load-address", "", "Load address, decimal or 0x hex (default: profile)")
	cmd.Flags().BoolVar(&skipPing, "no-ping", false, "Skip the ping before flashing")
}

func pingBeforeFlash(reg *config.Registry) bool {
	return !skipPing && (reg.Preferences == nil || reg.Preferences.PingBeforeFlash)
}

func runFlash(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	name, p, err := resolveProfile(cmd, reg)
	if err != nil {
		return err
	}
	img, err := firmware.Load(args[0])
	if err != nil {
		return err
	}

	if isInteractive(cmd) && !assumeYes {
		if !ui.FlashConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), p.Target(), p.Address, img.Size()) {
			return fmt.Errorf("%w: not confirmed", sender.ErrCancelled)
		}
	}

	params := profileParams(name, p)
	params["Image"] = fmt.Sprintf("%s (%s)", img.Path, img.MIME)
	pingFirst := pingBeforeFlash(reg)

	label := fmt.Sprintf("Flashing %s, %d bytes", filepath.Base(img.Path), img.Size())
	err = newRunner(cmd, "Flash", params).Run(cmd.Context(), label, func(ctx context.Context, sink sender.Sink) (map[string]string, error) {
		t, err := openTransport(ctx, p)
		if err != nil {
			return nil, err
		}
		defer t.Close()
		return flashImage(ctx, t, p, img, pingFirst, sink)
	})
	if err == nil {
		markUsed(reg, name)
	}
	return err
}
