package process

import "time"

// State represents the current state of a subprocess.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // Not started
	StateStarting State = "starting" // Being started
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // SIGINT sent, waiting for end-of-stream
	StateExited   State = "exited"   // Finished, ExitCode is valid
	StateError    State = "error"    // Failed to start
)

// Info contains information about a subprocess.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	ExitedAt  time.Time
	ExitCode  int
	LastError error
}
