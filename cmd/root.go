// Package cmd implements the stereocap command line.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/smazurov/stereocap/internal/config"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/smazurov/stereocap/internal/launcher"
	"github.com/smazurov/stereocap/internal/logging"
	"github.com/smazurov/stereocap/internal/metrics"
	"github.com/smazurov/stereocap/internal/systemd"
	"github.com/spf13/cobra"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	exitCode := 0
	root := newRootCmd(&exitCode)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func newRootCmd(exitCode *int) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "stereocap",
		Short: "Record a stereoscopic MP4 from two camera sensors",
		Long: `stereocap runs a GStreamer pipeline that captures two camera sensors,
composites them into one top-bottom stereoscopic frame, encodes H.264 and
writes an MP4 file. The launcher's exit status becomes stereocap's.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Record and serve log to stdout; other commands print data there.
			if cmd.Name() == "stereocap" || cmd.Name() == "serve" {
				logging.SetOutput(cmd.OutOrStdout())
			} else {
				logging.SetOutput(cmd.ErrOrStderr())
			}
			logCfg := opts.LoggingConfig()
			if err := logCfg.Validate(); err != nil {
				return fmt.Errorf("load config: %w: %w", config.ErrInvalidValue, err)
			}
			logging.Initialize(logCfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := record(cmd, opts)
			*exitCode = code
			return err
		},
	}

	bindPipelineFlags(root, opts)
	bindRecordFlags(root, opts)

	root.AddCommand(
		newPipelineCmd(opts),
		newServeCmd(opts),
		newCheckCmd(opts, exitCode),
		newVersionCmd(),
	)
	return root
}

// record runs the pipeline once. A launcher result is never a cobra error:
// its exit code is returned as is.
func record(cmd *cobra.Command, opts *Options) (int, error) {
	logger := logging.GetLogger("record")

	desc, err := gstreamer.Build(opts.Params(time.Now()))
	if err != nil {
		return 1, err
	}
	logger.Debug("Pipeline", "command", desc.Command())

	bus := events.New()

	recorder := metrics.NewRecorder(opts.MetricsTextfile, logging.GetLogger("metrics"))
	recorder.Attach(bus)
	defer systemd.NewNotifier(logging.GetLogger("systemd")).Attach(bus)()

	l := launcher.New(launcher.Options{
		Descriptor:      desc,
		Duration:        opts.Duration,
		GracefulTimeout: opts.GracefulTimeout,
		LockDir:         opts.LockDir,
		Bus:             bus,
		Logger:          logging.GetLogger("launcher"),
		ToolLogger:      logging.GetLogger("gstreamer"),
	})
	res := l.Run(cmd.Context())

	// The textfile is best effort; the run's status wins.
	_ = recorder.Finish(res.Event())
	return res.ExitCode, nil
}
