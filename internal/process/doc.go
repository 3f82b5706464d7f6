// Package process provides subprocess lifecycle management.
//
// Process wraps os/exec for a single long-running media subprocess:
//   - Own process group, so terminal signals reach only the wrapper
//   - Graceful stop with SIGINT (gst-launch -e turns it into end-of-stream)
//   - Force kill of the process group if the graceful timeout expires or a
//     second shutdown signal arrives
//   - Output streaming with pluggable log parsing and line handlers; every
//     line is read before the exit status is reported
//   - Shell-style exit codes: child status, 128+signal, 126/127 on start failure
//
// Example usage:
//
//	proc := process.NewProcessWithOutput("capture", []string{"gst-launch-1.0", "-e", "videotestsrc", "!", "fakesink"}, logger, nil)
//	proc.SetLogParser(logging.GetLogger("gstreamer"), gstreamer.ParseLogLevel)
//	exitCode := proc.Run(ctx)
package process
