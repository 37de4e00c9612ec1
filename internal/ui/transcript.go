package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/cabload/internal/sender"
)

// DefaultTranscriptLines is how many protocol log lines a transcript keeps
const DefaultTranscriptLines = 20

// Transcript is a Sink that remembers the most recent protocol log lines,
// shown in verbose mode after a failure.
type Transcript struct {
	mu    sync.Mutex
	limit int
	lines []string
}

// NewTranscript keeps the last n lines. n <= 0 uses DefaultTranscriptLines.
func NewTranscript(n int) *Transcript {
	if n <= 0 {
		n = DefaultTranscriptLines
	}
	return &Transcript{limit: n}
}

func (t *Transcript) OnLog(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, message)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *Transcript) OnProgress(sender.ProgressEvent) {}

// Lines returns a copy of the retained lines, oldest first.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// Render returns the transcript in a muted box, or "" when empty.
func (t *Transcript) Render(width int) string {
	lines := t.Lines()
	if len(lines) == 0 {
		return ""
	}
	title := lipgloss.NewStyle().Foreground(MutedColor).Bold(true).Render("Protocol log")
	body := lipgloss.NewStyle().Foreground(TextColor).Render(strings.Join(lines, "\n"))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(clampWidth(width) - 4).
		Padding(0, 1).
		Render(title + "\n" + body)
}
