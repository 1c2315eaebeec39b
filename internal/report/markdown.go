package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/nao1215/exitprobe/internal/model"
)

// MarkdownWriter outputs reports as GitHub Flavored Markdown, suitable
// for measurement write-ups and issue attachments.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ProbeReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Exitprobe Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Proxy", "`" + report.ProxyAddress + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Runs", strconv.Itoa(len(report.Results))},
			{"Timed out", strconv.Itoa(report.TimedOutRuns())},
			{"Failed", strconv.Itoa(report.FailedRuns())},
			{"Correlations", strconv.Itoa(report.TotalCorrelations())},
		},
	})
	md.PlainText("")

	w.writeRuns(md, report)
	w.writeCorrelations(md, report)

	return len(md.String()), md.Build()
}

// writeRuns renders the per-run outcome table.
func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, report *model.ProbeReport) {
	md.H2("Runs")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Results))
	for _, run := range report.Results {
		rows = append(rows, []string{
			run.CircuitID,
			"`" + strings.Join(run.Command, " ") + "`",
			w.statusText(run),
			run.Duration().String(),
			strconv.Itoa(len(run.Correlations)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Circuit", "Command", "Status", "Duration", "Correlations"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeCorrelations renders one table of all correlation events.
func (w *MarkdownWriter) writeCorrelations(md *markdown.Markdown, report *model.ProbeReport) {
	md.H2("Correlation Events")
	md.PlainText("")

	var rows [][]string
	for _, run := range report.Results {
		for _, c := range run.Correlations {
			rows = append(rows, []string{
				c.CircuitID,
				c.Host,
				strconv.Itoa(c.Port),
				c.ObservedAt.Format("15:04:05.000"),
			})
		}
	}
	if len(rows) == 0 {
		md.PlainText("No source-port disclosures were observed.")
		md.PlainText("")
		return
	}
	md.Table(markdown.TableSet{
		Header: []string{"Circuit", "Host", "Port", "Observed"},
		Rows:   rows,
	})
	md.PlainText("")
}

// statusText summarizes a run's outcome for the table.
func (w *MarkdownWriter) statusText(run *model.RunResult) string {
	switch {
	case run.Error != "":
		return "failed"
	case run.TimedOut:
		return "timed out"
	default:
		return "complete"
	}
}
