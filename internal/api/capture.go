package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/stereocap/internal/capture"
)

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-capture",
		Method:      http.MethodGet,
		Path:        "/api/capture",
		Summary:     "Capture status",
		Description: "Current capture state and the outcome of the last run",
		Tags:        []string{"capture"},
	}, func(_ context.Context, _ *struct{}) (*CaptureStatusResponse, error) {
		return &CaptureStatusResponse{Body: toCaptureStatus(s.controller.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-capture",
		Method:      http.MethodPost,
		Path:        "/api/capture",
		Summary:     "Toggle capture",
		Description: "Start a capture when idle, stop it with end-of-stream when recording",
		Tags:        []string{"capture"},
		Errors:      []int{500},
	}, func(_ context.Context, _ *struct{}) (*CaptureStatusResponse, error) {
		return s.captureResponse(s.controller.Toggle())
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-capture",
		Method:      http.MethodPost,
		Path:        "/api/capture/start",
		Summary:     "Start capture",
		Description: "Start a new capture run",
		Tags:        []string{"capture"},
		Errors:      []int{409, 500},
	}, func(_ context.Context, _ *struct{}) (*CaptureStatusResponse, error) {
		return s.captureResponse(s.controller.Start())
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-capture",
		Method:      http.MethodPost,
		Path:        "/api/capture/stop",
		Summary:     "Stop capture",
		Description: "Send end-of-stream to the active run. The file is final once state returns to idle",
		Tags:        []string{"capture"},
		Errors:      []int{409},
	}, func(_ context.Context, _ *struct{}) (*CaptureStatusResponse, error) {
		return s.captureResponse(s.controller.Stop())
	})
}

func (s *Server) captureResponse(st capture.Status, err error) (*CaptureStatusResponse, error) {
	switch {
	case err == nil:
		return &CaptureStatusResponse{Body: toCaptureStatus(st)}, nil
	case errors.Is(err, capture.ErrRecording), errors.Is(err, capture.ErrNotRecording):
		return nil, huma.Error409Conflict(err.Error())
	default:
		s.logger.Error("Capture request failed", "error", err)
		return nil, huma.Error500InternalServerError("Failed to start capture", err)
	}
}

// serveOutput sends the file of the last finished run. The file is not
// served while a run is active because mp4mux writes its index last.
func (s *Server) serveOutput(w http.ResponseWriter, r *http.Request) {
	if s.controller.Status().State != capture.StateIdle {
		http.Error(w, "capture in progress", http.StatusConflict)
		return
	}
	path := s.controller.LastOutput()
	if path == "" {
		http.Error(w, "no recording yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		w.Header().Set("Content-Type", "video/mp4")
	}
	http.ServeFile(w, r, path)
}
