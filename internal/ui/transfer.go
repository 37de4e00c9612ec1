package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/cabload/internal/sender"
)

// visibleLogLines is how many protocol log lines the live view shows
const visibleLogLines = 6

type (
	progressMsg sender.ProgressEvent
	logMsg      string
	doneMsg     struct{ err error }
)

// TransferModel is the live progress view shown while a transfer runs on a
// terminal. It quits when the operation reports completion.
type TransferModel struct {
	label       string
	bar         progress.Model
	event       sender.ProgressEvent
	logs        []string
	cancel      context.CancelFunc
	interrupted bool
	done        bool
	err         error
}

// NewTransferModel creates the view. cancel is called once when the user
// presses Ctrl+C or Esc; the view keeps running until the operation
// reports back.
func NewTransferModel(label string, width int, cancel context.CancelFunc) TransferModel {
	return TransferModel{
		label: label,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth(width)),
		),
		cancel: cancel,
	}
}

func barWidth(width int) int {
	// leave room for the percentage and byte counter
	return min(max(width-30, 20), 50)
}

// Init implements tea.Model
func (m TransferModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = barWidth(msg.Width)
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if !m.interrupted && m.cancel != nil {
				m.cancel()
			}
			m.interrupted = true
		}
	case progressMsg:
		m.event = sender.ProgressEvent(msg)
	case logMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > visibleLogLines {
			m.logs = m.logs[len(m.logs)-visibleLogLines:]
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model
func (m TransferModel) View() string {
	var b strings.Builder
	b.WriteString(LabelStyle.Render(m.label))
	b.WriteString("\n\n")
	b.WriteString(LabelStyle.Render(fmt.Sprintf("%s  %3.0f%%  %d/%d bytes",
		m.bar.ViewAs(m.event.Percent/100), m.event.Percent, m.event.SentBytes, m.event.TotalBytes)))
	b.WriteString("\n\n")
	for _, line := range m.logs {
		b.WriteString(LogLineStyle.Render(LogMarker + " " + line))
		b.WriteString("\n")
	}
	if m.interrupted && !m.done {
		b.WriteString(WarningTitleStyle.PaddingLeft(2).Render("Cancelling..."))
		b.WriteString("\n")
	}
	return b.String()
}

// Progress returns the last progress event received
func (m TransferModel) Progress() sender.ProgressEvent {
	return m.event
}

// Done reports whether the operation has finished
func (m TransferModel) Done() bool {
	return m.done
}

// Err returns the operation's error once Done
func (m TransferModel) Err() error {
	return m.err
}

// messenger is the part of *tea.Program a TeaSink needs
type messenger interface {
	Send(msg tea.Msg)
}

// TeaSink forwards sender events into a running Bubble Tea program.
type TeaSink struct {
	p messenger
}

// NewTeaSink wraps p.
func NewTeaSink(p *tea.Program) TeaSink {
	return TeaSink{p: p}
}

func (s TeaSink) OnLog(message string) {
	s.p.Send(logMsg(message))
}

func (s TeaSink) OnProgress(ev sender.ProgressEvent) {
	s.p.Send(progressMsg(ev))
}
