package ui

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/muurk/cabload/internal/sender"
)

// ConsoleSink prints protocol events and progress as plain lines. It is
// used when output is not a terminal. Progress is printed at every 10%
// step so long transfers stay readable in CI logs.
type ConsoleSink struct {
	mu     sync.Mutex
	out    io.Writer
	quiet  bool
	decile int
}

// NewConsoleSink writes to out. With quiet set only progress is printed.
func NewConsoleSink(out io.Writer, quiet bool) *ConsoleSink {
	return &ConsoleSink{out: out, quiet: quiet, decile: -1}
}

func (c *ConsoleSink) OnLog(message string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, LogLineStyle.Render(LogMarker+" "+message))
}

func (c *ConsoleSink) OnProgress(ev sender.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := int(math.Floor(ev.Percent / 10))
	if d <= c.decile {
		return
	}
	c.decile = d
	_, _ = fmt.Fprintln(c.out, LabelStyle.Render(progressLine(ev)))
}

// Reset prepares the sink for another transfer.
func (c *ConsoleSink) Reset() {
	c.mu.Lock()
	c.decile = -1
	c.mu.Unlock()
}

func progressLine(ev sender.ProgressEvent) string {
	return fmt.Sprintf("[%3.0f%%] %d/%d bytes", ev.Percent, ev.SentBytes, ev.TotalBytes)
}
