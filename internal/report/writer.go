package report

import (
	"io"

	"github.com/nao1215/exitprobe/internal/model"
)

// Writer renders a probe report to a configured destination.
type Writer interface {
	// Write outputs the report. It returns the number of bytes written
	// and any error encountered.
	Write(report *model.ProbeReport) (int, error)
}

// baseWriter provides the shared output destination for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
