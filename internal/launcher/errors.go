package launcher

import "errors"

var (
	// ErrAlreadyRun is returned when Run is called on a launcher that has
	// already run.
	ErrAlreadyRun = errors.New("launcher already run")
	// ErrToolNotFound is returned when the pipeline tool is not on PATH.
	ErrToolNotFound = errors.New("pipeline tool not found")
	// ErrOutputBusy is returned when another run holds the output lock.
	ErrOutputBusy = errors.New("output file is being recorded by another run")
	// errDurationElapsed is the cancel cause when the configured duration ends.
	errDurationElapsed = errors.New("recording duration elapsed")
)
