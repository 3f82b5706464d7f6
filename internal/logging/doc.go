// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package. Records go to stdout (or the
// writer set with SetOutput) in text or JSON format, and additionally to the
// systemd journal when Config.Journal is set and journald is reachable.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"gstreamer": "warn",  // Per-module overrides
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("launcher")
//	logger.Info("Recording", "output", path)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("launcher").With("run_id", id)
//
// # Modules
//
//	record    - command setup and pipeline
//	launcher  - run lifecycle, lock, child process, output growth
//	gstreamer - gst-launch output, levels parsed from its messages
//	metrics   - textfile export
//	systemd   - sd_notify
//
// # Viewing Logs
//
// With journal output enabled:
//
//	journalctl -t stereocap
//	journalctl -t stereocap MODULE=gstreamer -p warning
//	journalctl -t stereocap RUN_ID=<uuid>
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	gstreamer = "warn"
package logging
