package events

// Event type constants for kelindar/event.
const (
	TypeRunStarted uint32 = iota + 1
	TypePipelineProgress
	TypeOutputGrowth
	TypeRunFinished
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RunStartedEvent is published once the capture process is running.
type RunStartedEvent struct {
	RunID     string `json:"run_id"`
	Command   string `json:"command"`
	Output    string `json:"output"`
	PID       int    `json:"pid"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for RunStartedEvent.
func (e RunStartedEvent) Type() uint32 { return TypeRunStarted }

// PipelineProgressEvent carries one progressreport update from the pipeline.
type PipelineProgressEvent struct {
	RunID          string  `json:"run_id"`
	Element        string  `json:"element"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Position       int64   `json:"position"`
	Total          int64   `json:"total,omitempty"`
	Unit           string  `json:"unit"`
}

// Type returns the event type identifier for PipelineProgressEvent.
func (e PipelineProgressEvent) Type() uint32 { return TypePipelineProgress }

// OutputGrowthEvent reports the current size of the output file.
type OutputGrowthEvent struct {
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for OutputGrowthEvent.
func (e OutputGrowthEvent) Type() uint32 { return TypeOutputGrowth }

// RunFinishedEvent is published when a run ends, successfully or not.
type RunFinishedEvent struct {
	RunID           string  `json:"run_id"`
	ExitCode        int     `json:"exit_code"`
	Error           string  `json:"error,omitempty"`
	Output          string  `json:"output"`
	OutputExists    bool    `json:"output_exists"`
	OutputBytes     int64   `json:"output_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	Timestamp       string  `json:"timestamp"`
}

// Type returns the event type identifier for RunFinishedEvent.
func (e RunFinishedEvent) Type() uint32 { return TypeRunFinished }
