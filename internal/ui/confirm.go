package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm displays a warning box and asks the user to type phrase to
// proceed. Returns true only if the typed line matches phrase,
// ignoring case and surrounding space.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string, phrase string) bool {
	width := TerminalWidth(out)

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)), ""}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, w := range warnings {
		lines = append(lines, bullet.Render("   • "+w))
	}
	lines = append(lines, "")

	_, _ = fmt.Fprintln(out, boxStyle(WarningColor, width).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(input), phrase) {
		return true
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}

// FlashConfirmation asks before overwriting the firmware of a cabinet.
func FlashConfirmation(in io.Reader, out io.Writer, target string, address int, size int) bool {
	return Confirm(in, out, "FIRMWARE UPDATE",
		[]string{
			fmt.Sprintf("This will overwrite the firmware of cabinet %d via %s", address, target),
			fmt.Sprintf("%d bytes will be written", size),
			"Do not power off the cabinet or disconnect the link once started",
		},
		"yes",
	)
}
