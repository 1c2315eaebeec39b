package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/exitprobe/internal/model"
)

// SimpleWriter outputs a human-readable text report for the terminal.
// Plain ASCII, no ANSI colors, so output pipes cleanly into files and
// other tools.
type SimpleWriter struct {
	baseWriter

	// verbose includes per-run output sizes and timing detail.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-run detail in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report as formatted text.
func (w *SimpleWriter) Write(report *model.ProbeReport) (int, error) {
	var b strings.Builder

	b.WriteString("exitprobe session report\n")
	b.WriteString("========================\n\n")
	fmt.Fprintf(&b, "Proxy:        %s\n", report.ProxyAddress)
	fmt.Fprintf(&b, "Started:      %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Runs:         %d (%d timed out, %d failed)\n",
		len(report.Results), report.TimedOutRuns(), report.FailedRuns())
	fmt.Fprintf(&b, "Correlations: %d\n\n", report.TotalCorrelations())

	for _, run := range report.Results {
		fmt.Fprintf(&b, "circuit %s: %s\n", run.CircuitID, strings.Join(run.Command, " "))
		fmt.Fprintf(&b, "  status: %s\n", w.statusText(run))
		for _, c := range run.Correlations {
			fmt.Fprintf(&b, "  source port %d observed at %s\n",
				c.Port, c.ObservedAt.Format("15:04:05.000"))
		}
		if w.verbose {
			fmt.Fprintf(&b, "  duration: %s, output: %d bytes\n",
				run.Duration().Round(0), len(run.Output))
		}
		b.WriteString("\n")
	}

	return io.WriteString(w.output, b.String())
}

// statusText summarizes a run's outcome in one word.
func (w *SimpleWriter) statusText(run *model.RunResult) string {
	switch {
	case run.Error != "":
		return "failed - " + run.Error
	case run.TimedOut:
		return "timed out (partial output)"
	default:
		return "complete"
	}
}
