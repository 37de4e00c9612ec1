package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
	"github.com/muurk/cabload/internal/sender"
)

// RunnerConfig holds configuration for one command execution
type RunnerConfig struct {
	Title   string            // e.g., "Flash"
	Command string            // e.g., "cabload flash app.bin"
	Params  map[string]string // shown in the header
	Output  io.Writer         // default: os.Stdout
	Input   io.Reader         // keyboard for the live view, default: os.Stdin

	// Interactive selects the live Bubble Tea view instead of plain lines.
	// Callers normally set it to IsTerminal(Output).
	Interactive bool

	Verbose bool // show the protocol log after a failure
	Quiet   bool // plain mode: print progress but no protocol log lines
}

// Operation is the work a Runner drives. It reports through sink and may
// return details for the success box.
type Operation func(ctx context.Context, sink sender.Sink) (map[string]string, error)

// Runner manages the header, progress and result flow around an operation.
type Runner struct {
	cfg   RunnerConfig
	width int
}

// NewRunner creates a new runner
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	return &Runner{cfg: cfg, width: TerminalWidth(cfg.Output)}
}

// Run prints the header, executes op with a sink suited to the output and
// prints a result box. It returns op's error unchanged.
func (r *Runner) Run(ctx context.Context, label string, op Operation) error {
	start := time.Now()
	out := r.cfg.Output

	_, _ = fmt.Fprintln(out, NewHeader(r.cfg.Title, r.cfg.Command, r.cfg.Params).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(out)

	transcript := NewTranscript(0)
	var (
		details map[string]string
		err     error
	)
	if r.cfg.Interactive {
		details, err = r.runInteractive(ctx, label, op, transcript)
	} else {
		_, _ = fmt.Fprintln(out, LabelStyle.Render(label))
		details, err = op(ctx, sender.MultiSink(NewConsoleSink(out, r.cfg.Quiet), transcript))
	}

	r.printResult(details, err, time.Since(start), transcript)
	return err
}

func (r *Runner) runInteractive(ctx context.Context, label string, op Operation, transcript *Transcript) (map[string]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewTransferModel(label, r.width, cancel)
	p := tea.NewProgram(model, tea.WithOutput(r.cfg.Output), tea.WithInput(r.cfg.Input))

	type result struct {
		details map[string]string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		details, err := op(ctx, sender.MultiSink(NewTeaSink(p), transcript))
		done <- result{details, err}
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		logging.Warn("Progress view stopped", zap.Error(err))
		cancel()
	}
	res := <-done
	return res.details, res.err
}

func (r *Runner) printResult(details map[string]string, err error, elapsed time.Duration, transcript *Transcript) {
	out := r.cfg.Output
	duration := elapsed.Round(time.Millisecond).String()

	var result *Result
	switch sender.OutcomeOf(err) {
	case sender.Success:
		result = NewSuccessResult(r.cfg.Title+" complete", details).AddDetail("Duration", duration)
	case sender.Cancelled:
		result = NewWarningResult(r.cfg.Title+" cancelled", map[string]string{"Duration": duration})
	default:
		result = NewFailureResult(r.cfg.Title+" failed", err, Troubleshooting(err))
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, result.SetWidth(r.width).Render())

	if err != nil && r.cfg.Verbose {
		if box := transcript.Render(r.width); box != "" {
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, box)
		}
	}
}
