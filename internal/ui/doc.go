// Package ui renders terminal output for the cabload CLI.
//
// It uses Bubble Tea and Lipgloss. Commands get a header banner, a live
// progress view (or plain progress lines when output is not a terminal)
// and a result box with troubleshooting hints on failure.
//
// # Components
//
//   - Header: command banner showing the operation and its target
//   - TransferModel: Bubble Tea progress bar plus the latest protocol log lines
//   - ConsoleSink: plain line output for pipes and CI logs
//   - Transcript: ring of recent protocol log lines, shown with --verbose
//   - Result: success, failure and warning boxes
//   - Printer: tables for listing commands
//   - EndpointPicker: interactive list of mDNS endpoints for scan --pick
//
// # Usage Pattern
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:       "Flash",
//	    Command:     "cabload flash app.bin",
//	    Params:      map[string]string{"Target": "/dev/ttyUSB0 @ 115200 baud"},
//	    Interactive: ui.IsTerminal(os.Stdout),
//	})
//
//	err := runner.Run(ctx, "Flashing 12288 bytes", func(ctx context.Context, sink sender.Sink) (map[string]string, error) {
//	    s := sender.New(t, sender.WithSink(sink))
//	    return nil, s.Transfer(ctx, image, loadAddress)
//	})
//
// # Logging Integration
//
// zap logging is silent unless CABLOAD_LOG_LEVEL is set, so the curated UI
// output is displayed cleanly. Protocol events reach the UI through the
// sender.Sink and are mirrored to zap separately.
package ui
