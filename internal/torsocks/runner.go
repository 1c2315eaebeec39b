package torsocks

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/exitprobe/internal/correlate"
	"github.com/nao1215/exitprobe/internal/tor"
)

// DefaultTimeout is the wall-clock budget for one command invocation.
// Probe commands are expected to be short-lived; anything still running
// after this is killed.
const DefaultTimeout = 10 * time.Second

// loopbackHost is the source host recorded for disclosed connections.
// torsocks redirects through the local listener, so the source side is
// always loopback; the host text in the disclosure line is not trusted.
const loopbackHost = "127.0.0.1"

// maxLineSize bounds a single output line. torsocks diagnostics are
// short, but the probe command's own output shares the stream.
const maxLineSize = 1024 * 1024

// LineCallback receives each output line after source-port extraction.
// The kill handle forcibly terminates the process and its children.
// Returning false stops further matching and delivery; the remaining
// output is still drained into the captured buffer.
type LineCallback func(line string, kill func()) bool

// Runner executes commands under torsocks on behalf of one circuit.
//
// Each Execute call spawns an independent child with its own environment
// and configuration file, so Runners for different circuits may run
// concurrently in the same process.
type Runner struct {
	// circuitID is attached to every correlation event this Runner emits.
	circuitID string

	// proxy is the SOCKS listener the wrapper routes through.
	proxy tor.Endpoint

	// queue receives one event per disclosed source port. May be nil,
	// in which case disclosures are parsed but not published.
	queue *correlate.Queue

	// wrapper is the torsocks executable.
	wrapper string

	// timedOut records whether the most recent Execute killed its
	// process on timeout. Execute is not safe for concurrent calls on
	// one Runner; use one Runner per in-flight invocation.
	timedOut bool

	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the Runner's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithWrapperPath overrides the torsocks executable, e.g. for an absolute
// path or a test stand-in.
func WithWrapperPath(path string) RunnerOption {
	return func(r *Runner) {
		r.wrapper = path
	}
}

// NewRunner creates a Runner that attributes the outbound connections of
// executed commands to circuitID and routes them through proxy.
func NewRunner(circuitID string, proxy tor.Endpoint, queue *correlate.Queue, opts ...RunnerOption) *Runner {
	r := &Runner{
		circuitID: circuitID,
		proxy:     proxy,
		queue:     queue,
		wrapper:   DefaultWrapper,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// CircuitID returns the circuit this Runner attributes connections to.
func (r *Runner) CircuitID() string {
	return r.circuitID
}

// TimedOut reports whether the most recent Execute call killed the
// process after its wall-clock budget expired. A timeout is a defined
// outcome, not an error, so it is surfaced here instead of on Execute's
// error return.
func (r *Runner) TimedOut() bool {
	return r.timedOut
}

// executeOptions holds per-invocation settings.
type executeOptions struct {
	timeout  time.Duration
	callback LineCallback
}

// ExecuteOption configures one Execute call.
type ExecuteOption func(*executeOptions)

// WithTimeout sets the wall-clock budget for the invocation.
func WithTimeout(timeout time.Duration) ExecuteOption {
	return func(o *executeOptions) {
		o.timeout = timeout
	}
}

// WithLineCallback registers a per-line callback for the invocation.
func WithLineCallback(callback LineCallback) ExecuteOption {
	return func(o *executeOptions) {
		o.callback = callback
	}
}

// Execute runs argv under the torsocks wrapper and returns the captured
// stdout and stderr.
//
// stderr is merged into stdout at spawn time so disclosure lines from
// both streams are parsed in emission order; the returned stderr slice is
// therefore always empty and kept only for call-site symmetry with the
// usual (stdout, stderr) contract.
//
// A timeout is a defined outcome, not an error: the process group is
// killed and whatever output was captured is returned. A non-zero exit
// is likewise not an error. Spawn failures and context cancellation are
// returned as errors, the latter with the partial output.
func (r *Runner) Execute(ctx context.Context, argv []string, opts ...ExecuteOption) ([]byte, []byte, error) {
	if len(argv) == 0 {
		return nil, nil, ErrEmptyCommand
	}
	r.timedOut = false

	options := executeOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	confPath, err := writeProxyConf(r.proxy)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := os.Remove(confPath); err != nil {
			r.logger.Debug("failed to remove torsocks config", "path", confPath, "error", err)
		}
	}()

	wrapped := wrapCommand(r.wrapper, argv)
	r.logger.Debug("invoking command",
		"command", strings.Join(wrapped, " "),
		"circuit", r.circuitID,
		"config", confPath,
		"timeout", options.timeout,
	)

	cmd := exec.Command(wrapped[0], wrapped[1:]...)
	// The child gets the proxy configuration on its own environment
	// slice; this process's environment is never mutated.
	cmd.Env = append(os.Environ(), proxyEnv(confPath)...)
	// A fresh process group lets the kill path take down grandchildren
	// spawned by the wrapper as well.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// One pipe carries both streams so lines are parsed in the order
	// the process emitted them.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, nil, fmt.Errorf("failed to start %q: %w", wrapped[0], err)
	}
	// The child holds its own copy of the write end; closing ours makes
	// the read side reach EOF once the child (and its children) exit.
	_ = pw.Close()

	// The blocking read/wait sequence runs on its own goroutine while
	// this one enforces the deadline.
	var output bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.consume(cmd, pr, &output, options.callback)
		_ = cmd.Wait()
		_ = pr.Close()
	}()

	timer := time.NewTimer(options.timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		r.timedOut = true
		r.logger.Debug("killing process after timeout",
			"circuit", r.circuitID,
			"timeout", options.timeout,
		)
		r.killGroup(cmd)
		// The worker exits once the killed process closes the stream.
		// This wait is unbounded but guaranteed to finish: SIGKILL
		// cannot be caught or ignored.
		<-done
	case <-ctx.Done():
		r.killGroup(cmd)
		<-done
		return output.Bytes(), nil, ctx.Err()
	}

	return output.Bytes(), nil, nil
}

// consume reads the merged output stream line by line, publishing
// disclosed source ports and dispatching lines to the callback. A false
// return from the callback stops publication and delivery; the rest of
// the stream is drained into out so the process cannot block on a full
// pipe.
func (r *Runner) consume(cmd *exec.Cmd, pr *os.File, out *bytes.Buffer, callback LineCallback) {
	kill := func() { r.killGroup(cmd) }

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	deliver := true
	for scanner.Scan() {
		line := scanner.Text()
		out.WriteString(line)
		out.WriteByte('\n')

		if !deliver {
			continue
		}

		trimmed := strings.TrimSpace(line)

		// The event is published before the callback sees the line, so
		// a correlator never learns about a port after a callback that
		// already acted on the same line.
		if port, ok := ParseSourcePort(trimmed); ok {
			r.logger.Debug("source port disclosed",
				"circuit", r.circuitID,
				"port", port,
			)
			if r.queue != nil {
				r.queue.Put(r.circuitID, loopbackHost, port)
			}
		}

		if callback != nil && !callback(trimmed, kill) {
			deliver = false
		}
	}

	if err := scanner.Err(); err != nil {
		r.logger.Debug("output stream ended abnormally",
			"circuit", r.circuitID,
			"error", err,
		)
	}
}

// killGroup forcibly terminates the process and every process in its
// group. Kill, not a graceful signal: a hung probe command must release
// the output stream immediately.
func (r *Runner) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Fall back to the single process if the group is already gone.
		_ = cmd.Process.Kill()
	}
}
