package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/logging"
)

// DefaultDebounce is the quiet period before a size report is published.
const DefaultDebounce = time.Second

// Monitor watches the directory holding an output file and publishes
// OutputGrowthEvent when the file is written. The directory is watched
// rather than the file because the file usually does not exist yet.
type Monitor struct {
	path     string
	dir      string
	debounce time.Duration
	bus      *events.Bus
	logger   logging.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	last    int64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce sets the debounce duration. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// New creates a monitor for path. Nothing is watched until Start.
func New(path string, bus *events.Bus, logger logging.Logger, opts ...Option) *Monitor {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m := &Monitor{
		path:     abs,
		dir:      filepath.Dir(abs),
		debounce: DefaultDebounce,
		bus:      bus,
		logger:   logger,
		last:     -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the absolute path being monitored.
func (m *Monitor) Path() string {
	return m.path
}

// Start begins watching. It fails when the directory cannot be watched.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if addErr := watcher.Add(m.dir); addErr != nil {
		watcher.Close()
		return addErr
	}

	m.watcher = watcher
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})

	m.logger.Debug("Output monitor started", "path", m.path, "debounce", m.debounce)
	go m.watch(m.ctx, watcher)
	return nil
}

// Stop stops watching and publishes a last size report if the file changed
// since the previous one. Safe to call more than once.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher == nil {
		return nil
	}
	m.cancel()
	err := watcher.Close()
	<-m.done
	m.report()
	return err
}

func (m *Monitor) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(m.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(m.debounce)
			timerC = timer.C

		case <-timerC:
			m.report()
			timerC = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Output monitor error", "error", err)
		}
	}
}

// report publishes the current size when it differs from the last report.
func (m *Monitor) report() {
	info, err := os.Stat(m.path)
	if err != nil {
		return
	}
	size := info.Size()

	m.mu.Lock()
	changed := size != m.last
	m.last = size
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Debug("Output file grew", "path", m.path, "bytes", size)
	if m.bus != nil {
		m.bus.Publish(events.OutputGrowthEvent{
			Path:      m.path,
			Bytes:     size,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
