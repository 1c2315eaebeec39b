package model

import "time"

// Correlation records one observed outbound connection attributed to a
// circuit. Only the port is authoritative; the host is the source host
// reported by the disclosing layer (normally loopback) and is retained
// for completeness, not trusted as a peer address.
type Correlation struct {
	// CircuitID is the circuit the connection was attributed to.
	CircuitID string `json:"circuit_id"`

	// Host is the reported source host of the connection.
	Host string `json:"host"`

	// Port is the ephemeral source port of the connection.
	Port int `json:"port"`

	// ObservedAt is when the disclosure was observed.
	ObservedAt time.Time `json:"observed_at"`
}

// RunResult captures the outcome of one probe command execution.
type RunResult struct {
	// CircuitID is the circuit the command was routed through.
	CircuitID string `json:"circuit_id"`

	// Command is the argument vector that was executed, without the
	// torsocks wrapper prefix.
	Command []string `json:"command"`

	// StartedAt is when the command was spawned.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the command finished or was killed.
	FinishedAt time.Time `json:"finished_at"`

	// TimedOut reports whether the command was killed after exceeding
	// its wall-clock budget. A timed-out run is a defined outcome, not
	// an error; Output still holds whatever was captured.
	TimedOut bool `json:"timed_out"`

	// Output is the merged stdout/stderr captured from the command.
	Output []byte `json:"output,omitempty"`

	// Correlations holds the source-port disclosures observed during
	// this run, in the order the output lines were read.
	Correlations []Correlation `json:"correlations,omitempty"`

	// Error holds a spawn or orchestration failure message, empty on
	// success. Non-zero command exits are not recorded here.
	Error string `json:"error,omitempty"`
}

// Duration returns the wall-clock time the run took.
func (r *RunResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProbeReport aggregates the results of one probe session.
type ProbeReport struct {
	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last run completed.
	FinishedAt time.Time `json:"finished_at"`

	// ProxyAddress is the SOCKS listener the probes were routed through.
	ProxyAddress string `json:"proxy_address"`

	// Results holds one entry per executed probe command.
	Results []*RunResult `json:"results"`
}

// NewProbeReport creates an empty report stamped with the start time.
func NewProbeReport(proxyAddress string) *ProbeReport {
	return &ProbeReport{
		StartedAt:    time.Now(),
		ProxyAddress: proxyAddress,
	}
}

// TotalCorrelations returns the number of correlation events across all runs.
func (p *ProbeReport) TotalCorrelations() int {
	total := 0
	for _, r := range p.Results {
		total += len(r.Correlations)
	}
	return total
}

// TimedOutRuns returns the number of runs that hit their timeout.
func (p *ProbeReport) TimedOutRuns() int {
	n := 0
	for _, r := range p.Results {
		if r.TimedOut {
			n++
		}
	}
	return n
}

// FailedRuns returns the number of runs that recorded a failure.
func (p *ProbeReport) FailedRuns() int {
	n := 0
	for _, r := range p.Results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
