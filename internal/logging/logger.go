package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{} // default level
	isInitialized   bool
	output          io.Writer = os.Stdout
	mutex           sync.RWMutex
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	// Journal enables the journald handler when the journal socket exists.
	Journal bool `toml:"journal"`
}

// ErrInvalidConfig is returned by Validate for unknown levels or formats.
var ErrInvalidConfig = errors.New("invalid logging config")

// Validate rejects levels and formats that Initialize would otherwise
// replace with defaults. Empty values are allowed.
func (c Config) Validate() error {
	if c.Level != "" && parseLevel(c.Level) == nil {
		return fmt.Errorf("%w: level %q", ErrInvalidConfig, c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidConfig, c.Format)
	}
	for module, level := range c.Modules {
		if parseLevel(level) == nil {
			return fmt.Errorf("%w: %s level %q", ErrInvalidConfig, module, level)
		}
	}
	return nil
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevel := levelOrDefault(config.Level, slog.LevelInfo)
	globalLevelVar.Set(globalLevel)

	// Existing module loggers get their level updated and a handler in the
	// configured format.
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(config, module, globalLevel))
		moduleLoggers[module] = slog.New(createHandler(config, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config, globalLevelVar)))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	// Each module gets a LevelVar so Initialize can change it later.
	levelVar := &slog.LevelVar{}
	cfg := Config{Format: "text"}
	if isInitialized {
		cfg = globalConfig
		levelVar.Set(moduleLevel(cfg, module, levelOrDefault(cfg.Level, slog.LevelInfo)))
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	logger := slog.New(createHandler(cfg, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// SetOutput redirects text/JSON output. Used by tests and by commands that
// keep stdout for data.
func SetOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	output = w
}

// createHandler creates a slog handler with the configured format and level.
// Logs to the output writer and, when enabled and available, to the journal.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var writerHandler slog.Handler
	if config.Format == "json" {
		writerHandler = slog.NewJSONHandler(output, opts)
	} else {
		writerHandler = slog.NewTextHandler(output, opts)
	}

	var journalHandler slog.Handler
	if config.Journal && IsJournalAvailable() {
		journalHandler = NewJournalHandler(level)
	}

	if journalHandler != nil && !isWriterAvailable(output) {
		return journalHandler
	}
	return NewMultiHandler(writerHandler, journalHandler)
}

// isWriterAvailable reports whether w is worth writing to. Files count only
// when connected to a terminal, pipe, socket, or regular file (not /dev/null).
func isWriterAvailable(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return w != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func moduleLevel(config Config, module string, fallback slog.Level) slog.Level {
	if levelStr, exists := config.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			return *parsed
		}
	}
	return fallback
}

func levelOrDefault(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
