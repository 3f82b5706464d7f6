package gstreamer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseLogLevel extracts a log level from gst-launch output.
// gst-launch prints "ERROR: ..." and "WARNING: ..." for pipeline errors,
// "/GstPipeline:..." notifications in verbose mode, GLib criticals as
// "(prog:pid): Domain-CRITICAL **: ...", and GST_DEBUG records as
// "0:00:00.012345678 1234 0x55d0 WARN category file:line:func: message".
func ParseLogLevel(line string) (level, msg string) {
	switch {
	case strings.HasPrefix(line, "ERROR: "):
		return "error", line[len("ERROR: "):]
	case strings.HasPrefix(line, "WARNING: "):
		return "warning", line[len("WARNING: "):]
	case strings.HasPrefix(line, "/GstPipeline:"):
		return "debug", line
	case strings.Contains(line, "-CRITICAL **"), strings.Contains(line, "-ERROR **"):
		return "error", line
	case strings.Contains(line, "-WARNING **"):
		return "warning", line
	}

	if level, msg, ok := parseDebugRecord(line); ok {
		return level, msg
	}
	return "info", line
}

func parseDebugRecord(line string) (level, msg string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 || !isDebugTimestamp(fields[0]) {
		return "", "", false
	}

	switch fields[3] {
	case "ERROR":
		level = "error"
	case "WARN", "FIXME":
		level = "warning"
	case "INFO":
		level = "info"
	case "DEBUG", "LOG", "TRACE", "MEMDUMP":
		level = "debug"
	default:
		return "", "", false
	}
	return level, strings.Join(fields[4:], " "), true
}

// isDebugTimestamp matches the GST_DEBUG running time, e.g. "0:00:01.234567890".
func isDebugTimestamp(s string) bool {
	colon := strings.IndexByte(s, ':')
	dot := strings.IndexByte(s, '.')
	if colon <= 0 || dot < colon {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != ':' && r != '.' {
			return false
		}
	}
	return true
}

// Progress is one progressreport update.
type Progress struct {
	Element  string        // element name, e.g. progressreport0
	Elapsed  time.Duration // wall time since the element started reporting
	Position int64         // current position in Unit
	Total    int64         // total in Unit, 0 when unknown (live sources)
	Unit     string        // seconds, bytes, buffers, ...
}

// progressreport prints "name (hh:mm:ss): pos / total unit (pct %)" or,
// when the total is unknown, "name (hh:mm:ss): pos unit".
var progressPattern = regexp.MustCompile(`^(\S+) \((\d+):(\d{2}):(\d{2})\): (\d+)(?: / (\d+))? (\w+)`)

// ParseProgress parses a progressreport line.
func ParseProgress(line string) (Progress, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Progress{}, false
	}

	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	seconds, _ := strconv.Atoi(m[4])
	position, err := strconv.ParseInt(m[5], 10, 64)
	if err != nil {
		return Progress{}, false
	}

	p := Progress{
		Element:  m[1],
		Elapsed:  time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second,
		Position: position,
		Unit:     m[7],
	}
	if m[6] != "" {
		if total, totalErr := strconv.ParseInt(m[6], 10, 64); totalErr == nil {
			p.Total = total
		}
	}
	return p, true
}
