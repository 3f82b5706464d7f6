// Package api serves the HTTP control surface of stereocap serve: capture
// state, start/stop, live run events, the recorded file and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/stereocap/internal/capture"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/logging"
	"github.com/smazurov/stereocap/internal/version"
)

// Controller is the capture control the API drives.
type Controller interface {
	Status() capture.Status
	Start() (capture.Status, error)
	Stop() (capture.Status, error)
	Toggle() (capture.Status, error)
	LastOutput() string
}

// Options configures the server.
type Options struct {
	Controller Controller
	Bus        *events.Bus
	// Metrics is exposed on GET /metrics when set.
	Metrics prometheus.Gatherer
}

// Server is the huma API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	controller Controller
	bus        *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API with all routes registered.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("stereocap API", version.Get().Version)
	config.Info.Description = "Start and stop stereoscopic captures and fetch the recording"
	// Relative server URLs so the docs work behind any host.
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)
	api.UseMiddleware(HTTPLoggingMiddleware)

	s := &Server{
		api:        api,
		mux:        mux,
		controller: opts.Controller,
		bus:        opts.Bus,
		logger:     logging.GetLogger("api"),
	}

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /output", s.serveOutput)
	mux.HandleFunc("GET /output.mp4", s.serveOutput)

	s.registerRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting API server", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")
	s.httpServer = &http.Server{Handler: s.mux}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests. Open event streams are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		// SSE clients never go idle on their own.
		return s.httpServer.Close()
	}
	return err
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	s.registerCaptureRoutes()
	s.registerEventRoutes()
}
