// Package launcher runs a pipeline descriptor in the external tool and
// reports how it ended.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/smazurov/stereocap/internal/logging"
	"github.com/smazurov/stereocap/internal/monitor"
	"github.com/smazurov/stereocap/internal/process"
)

// Options configures a Launcher.
type Options struct {
	Descriptor gstreamer.Descriptor
	// RunID names the run in events and logs. Generated when empty.
	RunID string
	// Duration stops the recording with end-of-stream after this long.
	// Zero records until interrupted or until the tool exits by itself.
	Duration time.Duration
	// GracefulTimeout bounds the wait for finalisation after end-of-stream.
	GracefulTimeout time.Duration
	// LockDir holds output lock files. Defaults to os.TempDir().
	LockDir string
	// Dir is the tool's working directory; relative outputs resolve against it.
	Dir             string
	MonitorDebounce time.Duration
	Bus             *events.Bus
	Logger          logging.Logger
	// ToolLogger receives the tool's output. Defaults to Logger.
	ToolLogger logging.Logger
}

// Result describes a finished run.
type Result struct {
	RunID        string
	ExitCode     int
	Err          error
	Command      string
	Output       string
	OutputExists bool
	OutputBytes  int64
	StartedAt    time.Time
	Duration     time.Duration
}

// Success reports whether the tool ran and exited 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// Event converts the result into the event published on the bus.
func (r *Result) Event() events.RunFinishedEvent {
	ev := events.RunFinishedEvent{
		RunID:           r.RunID,
		ExitCode:        r.ExitCode,
		Output:          r.Output,
		OutputExists:    r.OutputExists,
		OutputBytes:     r.OutputBytes,
		DurationSeconds: r.Duration.Seconds(),
		Timestamp:       r.StartedAt.Add(r.Duration).UTC().Format(time.RFC3339),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// Launcher runs one descriptor once.
type Launcher struct {
	opts   Options
	logger logging.Logger

	mu  sync.Mutex
	ran bool
}

// New creates a launcher for opts.
func New(opts Options) *Launcher {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("launcher")
	}
	if opts.ToolLogger == nil {
		opts.ToolLogger = opts.Logger
	}
	return &Launcher{opts: opts, logger: opts.Logger}
}

// OutputPath returns the absolute path the tool writes to.
func (l *Launcher) OutputPath() string {
	out := l.opts.Descriptor.Output()
	if filepath.IsAbs(out) {
		return filepath.Clean(out)
	}
	base := l.opts.Dir
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, out)
}

// Run executes the descriptor and blocks until the tool exits. The returned
// exit code is the tool's own status, 128+signal when it died from a signal,
// 127 when the tool is missing, and 1 for other launcher failures.
func (l *Launcher) Run(ctx context.Context) *Result {
	l.mu.Lock()
	if l.ran {
		l.mu.Unlock()
		return &Result{ExitCode: process.ExitStartFailed, Err: ErrAlreadyRun}
	}
	l.ran = true
	l.mu.Unlock()

	desc := l.opts.Descriptor
	runID := l.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := &Result{
		RunID:     runID,
		Command:   desc.Command(),
		Output:    l.OutputPath(),
		StartedAt: time.Now(),
	}
	logger := l.logger

	tool, err := exec.LookPath(desc.Tool())
	if err != nil {
		logger.Error("Pipeline tool not found", "tool", desc.Tool(), "error", err)
		res.ExitCode = process.ExitNotFound
		res.Err = fmt.Errorf("%w: %s", ErrToolNotFound, desc.Tool())
		return l.finish(res)
	}

	lock := newOutputLock(l.opts.LockDir, res.Output)
	locked, err := lock.TryLock()
	if err != nil {
		res.ExitCode = process.ExitStartFailed
		res.Err = fmt.Errorf("acquire output lock: %w", err)
		return l.finish(res)
	}
	if !locked {
		logger.Error("Output is locked by another run", "output", res.Output, "lock", lock.Path())
		res.ExitCode = process.ExitStartFailed
		res.Err = fmt.Errorf("%w: %s", ErrOutputBusy, res.Output)
		return l.finish(res)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Warn("Failed to release output lock", "error", unlockErr)
		}
	}()

	mon := monitor.New(res.Output, l.opts.Bus, logger, monitor.WithDebounce(l.opts.MonitorDebounce))
	if startErr := mon.Start(); startErr != nil {
		logger.Warn("Output monitor unavailable", "error", startErr)
	}

	runCtx := ctx
	if l.opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, l.opts.Duration, errDurationElapsed)
		defer cancel()
	}

	args := append([]string{tool}, desc.Args()...)
	proc := process.NewProcessWithOutput(res.RunID, args, logger, &progressHandler{runID: res.RunID, bus: l.opts.Bus})
	proc.SetLogParser(l.opts.ToolLogger, gstreamer.ParseLogLevel)
	proc.SetGracefulTimeout(l.opts.GracefulTimeout)
	proc.SetDir(l.opts.Dir)
	proc.SetStartHook(func(info process.Info) {
		logger.Info("Recording started", "run_id", res.RunID, "pid", info.PID, "output", res.Output)
		l.publish(events.RunStartedEvent{
			RunID:     res.RunID,
			Command:   res.Command,
			Output:    res.Output,
			PID:       info.PID,
			Timestamp: info.StartedAt.UTC().Format(time.RFC3339),
		})
	})

	res.ExitCode = proc.Run(runCtx)
	res.Err = proc.Info().LastError

	if stopErr := mon.Stop(); stopErr != nil {
		logger.Debug("Output monitor stop", "error", stopErr)
	}
	return l.finish(res)
}

// finish stats the output, logs and publishes the outcome.
func (l *Launcher) finish(res *Result) *Result {
	res.Duration = time.Since(res.StartedAt)
	if info, err := os.Stat(res.Output); err == nil {
		res.OutputExists = true
		res.OutputBytes = info.Size()
	}

	attrs := []any{
		"run_id", res.RunID,
		"exit_code", res.ExitCode,
		"output", res.Output,
		"output_exists", res.OutputExists,
		"output_bytes", res.OutputBytes,
		"duration", res.Duration.Round(time.Millisecond),
	}
	switch {
	case res.Err != nil:
		l.logger.Error("Recording failed", append(attrs, "error", res.Err)...)
	case res.ExitCode != 0:
		l.logger.Warn("Recording ended with non-zero status", attrs...)
	default:
		l.logger.Info("Recording finished", attrs...)
	}

	l.publish(res.Event())
	return res
}

func (l *Launcher) publish(ev events.Event) {
	if l.opts.Bus != nil {
		l.opts.Bus.Publish(ev)
	}
}
