package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/stereocap/internal/events"
)

const eventBuffer = 16

// registerEventRoutes registers the run event stream.
func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Capture status on connect, then run lifecycle, progress and output growth events",
		Tags:        []string{"events"},
	}, map[string]any{
		"status":        CaptureStatus{},
		"run-started":   events.RunStartedEvent{},
		"progress":      events.PipelineProgressEvent{},
		"output-growth": events.OutputGrowthEvent{},
		"run-finished":  events.RunFinishedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		started := make(chan events.RunStartedEvent, eventBuffer)
		progress := make(chan events.PipelineProgressEvent, eventBuffer)
		growth := make(chan events.OutputGrowthEvent, eventBuffer)
		finished := make(chan events.RunFinishedEvent, eventBuffer)

		unsubscribers := []func(){
			events.SubscribeToChannel(s.bus, started),
			events.SubscribeToChannel(s.bus, progress),
			events.SubscribeToChannel(s.bus, growth),
			events.SubscribeToChannel(s.bus, finished),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Subscribed before the snapshot, so no transition is missed.
		if err := send.Data(toCaptureStatus(s.controller.Status())); err != nil {
			return
		}

		for {
			var ev any
			select {
			case <-ctx.Done():
				return
			case ev = <-started:
			case ev = <-progress:
			case ev = <-growth:
			case ev = <-finished:
			}
			if err := send.Data(ev); err != nil {
				return
			}
		}
	})
}
