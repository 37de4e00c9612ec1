package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes UI components to a writer. Listing commands use it for
// their tables and result boxes.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: TerminalWidth(w)}
}

// Width returns the width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
	p.Newline()
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}

// PrintTable prints rows under bold column headings, padded to the widest
// cell in each column. An empty table prints empty instead.
func (p *Printer) PrintTable(headings []string, rows [][]string, empty string) {
	if len(rows) == 0 {
		p.Println(LogLineStyle.Render(empty))
		return
	}

	widths := make([]int, len(headings))
	for i, h := range headings {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	headStyle := lipgloss.NewStyle().Foreground(MutedColor).Bold(true)
	p.Println("  " + headStyle.Render(formatRow(headings, widths)))
	for _, row := range rows {
		p.Println("  " + ResultValueStyle.Render(formatRow(row, widths)))
	}
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i := range widths {
		var c string
		if i < len(cells) {
			c = cells[i]
		}
		if i == len(widths)-1 {
			parts[i] = c
			continue
		}
		parts[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
	}
	return strings.Join(parts, "  ")
}
