package api

import (
	"time"

	"github.com/smazurov/stereocap/internal/capture"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/version"
)

// CaptureStatus describes the controller state.
type CaptureStatus struct {
	State     string                   `json:"state" enum:"idle,recording,stopping" example:"recording" doc:"Capture state"`
	RunID     string                   `json:"run_id,omitempty" doc:"Identifier of the active run"`
	Output    string                   `json:"output,omitempty" example:"/data/output.mp4" doc:"File the active run writes"`
	StartedAt string                   `json:"started_at,omitempty" format:"date-time" doc:"Start time of the active run"`
	LastRun   *events.RunFinishedEvent `json:"last_run,omitempty" doc:"Outcome of the most recent finished run"`
}

// CaptureStatusResponse is returned by every capture operation.
type CaptureStatusResponse struct {
	Body CaptureStatus
}

// VersionResponse carries build metadata.
type VersionResponse struct {
	Body version.Info
}

func toCaptureStatus(st capture.Status) CaptureStatus {
	out := CaptureStatus{
		State:   string(st.State),
		RunID:   st.RunID,
		Output:  st.Output,
		LastRun: st.LastRun,
	}
	if !st.StartedAt.IsZero() {
		out.StartedAt = st.StartedAt.UTC().Format(time.RFC3339)
	}
	return out
}
