package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "stereocap"

type journalSender func(message string, priority journal.Priority, fields map[string]string) error

// JournalHandler is a slog.Handler that sends logs to systemd journal.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // attrs flattened under the groups active when added
	groups []string
	send   journalSender
	warn   *sync.Once
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return newJournalHandler(level, journal.Send)
}

func newJournalHandler(level slog.Leveler, send journalSender) *JournalHandler {
	return &JournalHandler{level: level, send: send, warn: &sync.Once{}}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the record with SYSLOG_IDENTIFIER set. Only the first send
// failure is reported on stderr.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	maps.Copy(fields, h.fields)
	fields["SYSLOG_IDENTIFIER"] = syslogIdentifier
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.groups)
		return true
	})

	err := h.send(r.Message, mapLevelToPriority(r.Level), fields)
	if err != nil {
		h.warn.Do(func() {
			fmt.Fprintf(os.Stderr, "journal logging failed: %v\n", err)
		})
	}
	return err
}

func (h *JournalHandler) clone() *JournalHandler {
	c := *h
	return &c
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.fields = maps.Clone(h.fields)
	if c.fields == nil {
		c.fields = make(map[string]string, len(attrs))
	}
	for _, attr := range attrs {
		addAttrToFields(c.fields, attr, h.groups)
	}
	return c
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(append([]string(nil), h.groups...), name)
	return c
}

// mapLevelToPriority maps slog levels to journal priorities.
func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields adds an slog attribute to journal fields.
// Keys are upper-cased, group-prefixed and limited to [A-Z0-9_].
func addAttrToFields(fields map[string]string, attr slog.Attr, groups []string) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := journalKey(append(append([]string(nil), groups...), attr.Key))

	switch attr.Value.Kind() {
	case slog.KindGroup:
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, a, nested)
		}
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(attr.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(attr.Value.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(attr.Value.Bool())
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = attr.Value.String()
	}
}

func journalKey(parts []string) string {
	key := strings.ToUpper(strings.Join(parts, "_"))
	key = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, key)
	// Leading underscores are reserved for trusted journal fields.
	return strings.TrimLeft(key, "_")
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
