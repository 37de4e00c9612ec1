package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/firmware"
	"github.com/muurk/cabload/internal/logging"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/transport"
	"github.com/muurk/cabload/internal/ui"
)

// Watch command flags
var (
	debounce     time.Duration
	flashOnStart bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <image>",
	Short: "Re-flash an image every time it is rebuilt",
	Long: `Watch a firmware image and flash it whenever it changes on disk.

Bursts of writes from a build are collapsed into one flash once the file
has been quiet for the debounce interval. The connection is kept open
between flashes and reopened after a link failure. A failed flash is
reported and the watch continues. Press Ctrl+C to stop.`,
	Example: `  cabload watch build/app.bin --profile bench-serial
  cabload watch build/app.bin --now --debounce 1s`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addImageFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounce, "debounce", firmware.DefaultDebounce, "Quiet time after the last write before flashing")
	watchCmd.Flags().BoolVar(&flashOnStart, "now", false, "Flash the current image before waiting for changes")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	name, p, err := resolveProfile(cmd, reg)
	if err != nil {
		return err
	}

	w, err := firmware.NewWatcher(args[0], debounce)
	if err != nil {
		return err
	}
	defer w.Close()

	t, err := transport.New(p.TransportConfig())
	if err != nil {
		return err
	}
	defer t.Close()

	pingFirst := pingBeforeFlash(reg)
	params := profileParams(name, p)
	params["Image"] = w.Path()
	count := 0

	flash := func(img *firmware.Image) {
		count++
		label := fmt.Sprintf("Flash #%d: %s, %d bytes", count, filepath.Base(img.Path), img.Size())
		err := newRunner(cmd, "Flash", params).Run(ctx, label, func(ctx context.Context, sink sender.Sink) (map[string]string, error) {
			if !t.IsOpen() {
				logging.LogTransportEvent(p.Kind(), p.Target(), "opening")
				if err := t.Open(ctx); err != nil {
					return nil, err
				}
			}
			return flashImage(ctx, t, p, img, pingFirst, sink)
		})
		if err != nil {
			logging.Warn("Flash failed, still watching", zap.Int("flash", count), zap.Error(err))
			return
		}
		markUsed(reg, name)
	}

	if flashOnStart {
		img, err := firmware.Load(w.Path())
		if err != nil {
			return err
		}
		flash(img)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Newline()
	printer.Println(ui.LabelStyle.Render(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", w.Path())))

	if err := w.Run(ctx, flash); err != nil && ctx.Err() == nil {
		return err
	}
	printer.Println(ui.LogLineStyle.Render(fmt.Sprintf("Stopped after %d flash(es)", count)))
	return nil
}
