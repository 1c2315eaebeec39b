package probe

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/exitprobe/internal/correlate"
	"github.com/nao1215/exitprobe/internal/database"
	"github.com/nao1215/exitprobe/internal/model"
	"github.com/nao1215/exitprobe/internal/tor"
	"github.com/nao1215/exitprobe/internal/torsocks"
)

// Target is one probe to run: a command attributed to a circuit and
// routed through a SOCKS listener.
type Target struct {
	// CircuitID is the correlation key for this probe.
	CircuitID string

	// Proxy is the SOCKS listener the command is routed through.
	Proxy tor.Endpoint

	// Command is the argument vector, without the torsocks prefix.
	Command []string
}

// Session runs a batch of probe targets and aggregates their results.
type Session struct {
	// timeout is the wall-clock budget per command.
	timeout time.Duration

	// concurrency bounds the number of in-flight probes.
	concurrency int

	// wrapperPath overrides the torsocks executable; empty uses PATH.
	wrapperPath string

	// db persists runs when non-nil.
	db *database.ProbeDB

	logger *slog.Logger

	// mu guards results during concurrent runs.
	mu      sync.Mutex
	results map[int]*model.RunResult
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTimeout sets the per-command wall-clock budget.
func WithTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.timeout = timeout
	}
}

// WithConcurrency bounds the number of probes running at once.
func WithConcurrency(n int) SessionOption {
	return func(s *Session) {
		s.concurrency = n
	}
}

// WithDatabase persists every run and its correlation events.
func WithDatabase(db *database.ProbeDB) SessionOption {
	return func(s *Session) {
		s.db = db
	}
}

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithWrapperPath overrides the torsocks executable for all runners.
func WithWrapperPath(path string) SessionOption {
	return func(s *Session) {
		s.wrapperPath = path
	}
}

// NewSession creates a Session with the given options.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		timeout:     torsocks.DefaultTimeout,
		concurrency: 1,
		results:     make(map[int]*model.RunResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run executes all targets and returns the aggregated report. Results
// appear in target order regardless of completion order. Individual probe
// failures are recorded in their RunResult; Run only returns an error for
// context cancellation or a database failure.
func (s *Session) Run(ctx context.Context, targets []Target) (*model.ProbeReport, error) {
	report := model.NewProbeReport(proxySummary(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			result := s.runOne(ctx, target)

			if s.db != nil {
				if _, err := s.db.SaveRun(ctx, result); err != nil {
					return err
				}
			}

			s.mu.Lock()
			s.results[i] = result
			s.mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	report.FinishedAt = time.Now()
	for i := range targets {
		if result, ok := s.results[i]; ok {
			report.Results = append(report.Results, result)
		}
	}
	return report, err
}

// runOne executes a single target and drains its correlation events.
func (s *Session) runOne(ctx context.Context, target Target) *model.RunResult {
	result := &model.RunResult{
		CircuitID: target.CircuitID,
		Command:   target.Command,
		StartedAt: time.Now(),
	}

	queue := correlate.NewQueue()
	opts := []torsocks.RunnerOption{torsocks.WithLogger(s.logger)}
	if s.wrapperPath != "" {
		opts = append(opts, torsocks.WithWrapperPath(s.wrapperPath))
	}
	runner := torsocks.NewRunner(target.CircuitID, target.Proxy, queue, opts...)

	s.logger.Info("running probe",
		"circuit", target.CircuitID,
		"proxy", target.Proxy.Addr(),
		"command", strings.Join(target.Command, " "),
	)

	stdout, _, err := runner.Execute(ctx, target.Command, torsocks.WithTimeout(s.timeout))
	result.FinishedAt = time.Now()
	result.Output = stdout
	result.TimedOut = runner.TimedOut()
	if err != nil {
		result.Error = err.Error()
		s.logger.Error("probe failed",
			"circuit", target.CircuitID,
			"error", err,
		)
	}

	// The runner has finished, so every disclosed port is already
	// queued; drain without blocking.
	queue.Close()
	for {
		ev, ok, _ := queue.TryNext()
		if !ok {
			break
		}
		result.Correlations = append(result.Correlations, model.Correlation{
			CircuitID:  ev.CircuitID,
			Host:       ev.Host,
			Port:       ev.Port,
			ObservedAt: ev.ObservedAt,
		})
	}

	s.logger.Debug("probe finished",
		"circuit", target.CircuitID,
		"timedOut", result.TimedOut,
		"correlations", len(result.Correlations),
	)
	return result
}

// proxySummary renders the distinct proxy addresses of the targets.
func proxySummary(targets []Target) string {
	seen := make(map[string]bool)
	var addrs []string
	for _, t := range targets {
		addr := t.Proxy.Addr()
		if !seen[addr] {
			seen[addr] = true
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}
