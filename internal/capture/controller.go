// Package capture drives repeated recordings for the HTTP control surface.
// At most one run is active; each run gets a fresh Launcher.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/smazurov/stereocap/internal/launcher"
	"github.com/smazurov/stereocap/internal/logging"
)

// State of the controller.
type State string

// Controller states.
const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
)

var (
	// ErrRecording is returned by Start while a run is active.
	ErrRecording = errors.New("capture already running")
	// ErrNotRecording is returned by Stop when there is nothing to stop.
	ErrNotRecording = errors.New("no capture running")
)

// Status is a snapshot of the controller.
type Status struct {
	State     State
	RunID     string
	Output    string
	StartedAt time.Time
	// LastRun is the outcome of the most recent finished run, if any.
	LastRun *events.RunFinishedEvent
}

// Options configures a Controller.
type Options struct {
	// Build returns the descriptor for a run starting at now.
	Build func(now time.Time) (gstreamer.Descriptor, error)
	// Launcher is the template for every run. Descriptor and RunID are
	// filled in per run.
	Launcher launcher.Options
	// OnFinish is called with every finished run.
	OnFinish func(*launcher.Result)
	Logger   logging.Logger
}

// Controller starts and stops recordings on request.
type Controller struct {
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
	lastOut string
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("capture")
	}
	return &Controller{
		opts:   opts,
		logger: opts.Logger,
		status: Status{State: StateIdle},
	}
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastOutput returns the output path of the most recent finished run.
func (c *Controller) LastOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOut
}

// Start begins a new run. The run outlives the caller's request; it ends
// when the tool exits or Stop is called.
func (c *Controller) Start() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() (Status, error) {
	if c.status.State != StateIdle {
		return c.status, ErrRecording
	}

	now := time.Now()
	desc, err := c.opts.Build(now)
	if err != nil {
		return c.status, err
	}

	lopts := c.opts.Launcher
	lopts.Descriptor = desc
	lopts.RunID = uuid.NewString()
	l := launcher.New(lopts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.status = Status{
		State:     StateRecording,
		RunID:     lopts.RunID,
		Output:    l.OutputPath(),
		StartedAt: now,
		LastRun:   c.status.LastRun,
	}
	c.logger.Info("Capture requested", "run_id", lopts.RunID, "output", c.status.Output)

	go c.run(ctx, l, done)
	return c.status, nil
}

func (c *Controller) run(ctx context.Context, l *launcher.Launcher, done chan struct{}) {
	defer close(done)
	res := l.Run(ctx)

	last := res.Event()
	c.mu.Lock()
	c.cancel()
	c.cancel = nil
	c.lastOut = res.Output
	c.status = Status{State: StateIdle, LastRun: &last}
	c.mu.Unlock()

	if c.opts.OnFinish != nil {
		c.opts.OnFinish(res)
	}
}

// Stop ends the active run with end-of-stream and returns without waiting
// for the tool to finalise the file.
func (c *Controller) Stop() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() (Status, error) {
	if c.status.State != StateRecording {
		return c.status, ErrNotRecording
	}
	c.status.State = StateStopping
	c.logger.Info("Stop requested", "run_id", c.status.RunID)
	c.cancel()
	return c.status, nil
}

// Toggle starts a run when idle and stops it when recording. While a run
// is stopping it only reports the status.
func (c *Controller) Toggle() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status.State {
	case StateIdle:
		return c.startLocked()
	case StateRecording:
		return c.stopLocked()
	default:
		return c.status, nil
	}
}

// Wait blocks until the active run, if any, has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the active run and waits for it.
func (c *Controller) Shutdown(ctx context.Context) error {
	if _, err := c.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		return err
	}
	return c.Wait(ctx)
}
