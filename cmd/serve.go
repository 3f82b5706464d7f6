package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/stereocap/internal/api"
	"github.com/smazurov/stereocap/internal/capture"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/smazurov/stereocap/internal/launcher"
	"github.com/smazurov/stereocap/internal/logging"
	"github.com/smazurov/stereocap/internal/metrics"
	"github.com/spf13/cobra"
)

// DefaultListen is the serve address.
const DefaultListen = "0.0.0.0:8080"

func newServeCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP API that starts and stops recordings",
		Long: `serve listens for HTTP requests and records on demand:

  GET  /api/capture        capture state and the last run's outcome
  POST /api/capture        start when idle, stop with end-of-stream when recording
  POST /api/capture/start  start a run
  POST /api/capture/stop   stop the active run
  GET  /api/events         server-sent run events
  GET  /output             the last finished recording (also /output.mp4)
  GET  /metrics            run metrics
  GET  /docs               API documentation

Interrupting serve stops the active run with end-of-stream before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Listen, "listen", "a", DefaultListen, "Address to listen on")
	bindRecordFlags(cmd, opts)
	return cmd
}

func serve(ctx context.Context, opts *Options) error {
	logger := logging.GetLogger("serve")

	// Reject bad parameters now instead of on the first request.
	if _, err := gstreamer.Build(opts.Params(time.Now())); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.New()
	recorder := metrics.NewRecorder(opts.MetricsTextfile, logging.GetLogger("metrics"))
	recorder.Attach(bus)
	defer recorder.Detach()

	ctrl := capture.New(capture.Options{
		Build: func(now time.Time) (gstreamer.Descriptor, error) {
			return gstreamer.Build(opts.Params(now))
		},
		Launcher: launcher.Options{
			Duration:        opts.Duration,
			GracefulTimeout: opts.GracefulTimeout,
			LockDir:         opts.LockDir,
			Bus:             bus,
			Logger:          logging.GetLogger("launcher"),
			ToolLogger:      logging.GetLogger("gstreamer"),
		},
		OnFinish: func(res *launcher.Result) {
			_ = recorder.Finish(res.Event())
			// Finish detaches; the next run reports on the same bus.
			recorder.Attach(bus)
		},
	})

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.Listen, err)
	}
	srv := api.NewServer(api.Options{Controller: ctrl, Bus: bus, Metrics: recorder.Registry()})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", "error", err)
		}
	}

	// The run gets its graceful window plus time to report.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.GracefulTimeout+5*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Error("Capture did not stop in time", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}
