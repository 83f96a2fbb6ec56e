package discovery

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/shuttercam/shuttercam/internal/event"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	uuidStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

const rule = "============================================================"

// PrintSignal writes one notification with hex, decimal and length lines.
func PrintSignal(w io.Writer, n event.Notification) {
	dec := make([]string, len(n.Data))
	for i, b := range n.Data {
		dec[i] = fmt.Sprintf("%3d", b)
	}
	fmt.Fprintf(w, "[%s] %s\n", n.At.Format("15:04:05.000"), uuidStyle.Render(n.Characteristic))
	fmt.Fprintf(w, "           HEX: %s\n", n.Hex())
	fmt.Fprintf(w, "           DEC: %s\n", strings.Join(dec, " "))
	fmt.Fprintf(w, "           LEN: %d bytes\n\n", len(n.Data))
}

// PrintSummary writes the frequency table grouped by characteristic.
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, titleStyle.Render("SIGNAL SUMMARY"))
	fmt.Fprintln(w, rule)

	if s.Total == 0 {
		fmt.Fprintln(w, dimStyle.Render("No signals received."))
		return
	}

	current := ""
	for _, e := range s.Entries {
		if e.Characteristic != current {
			current = e.Characteristic
			fmt.Fprintf(w, "\n%s:\n", uuidStyle.Render(current))
		}
		fmt.Fprintf(w, "  %-20s (received %d time(s))\n", e.Hex(), e.Count)
	}
	fmt.Fprintf(w, "\n%d signal(s), %d distinct, over %s\n",
		s.Total, len(s.Entries), s.End.Sub(s.Start).Round(100*time.Millisecond))
}

// PrintDefinitions lists definitions that would be added to a profile.
func PrintDefinitions(w io.Writer, defs []event.Definition) {
	for _, d := range defs {
		mark := "capture"
		if !d.Capture {
			mark = dimStyle.Render("no capture")
		}
		fmt.Fprintf(w, "  + %s %s (%s)\n", d.Characteristic, event.FormatPattern(d.Pattern), mark)
	}
}
