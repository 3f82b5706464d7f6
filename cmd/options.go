package cmd

import (
	"time"

	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/smazurov/stereocap/internal/launcher"
	"github.com/smazurov/stereocap/internal/logging"
	"github.com/spf13/cobra"
)

// DefaultConfigFile is read when present; its absence is not an error.
const DefaultConfigFile = "stereocap.toml"

// Options for the CLI - flat structure with toml mapping.
// Field names map to flags, so GracefulTimeout is --graceful-timeout.
type Options struct {
	Config string

	// Pipeline settings
	Tool        string `toml:"pipeline.tool" env:"TOOL"`
	Verbose     bool   `toml:"pipeline.verbose" env:"VERBOSE"`
	Progress    bool   `toml:"pipeline.progress" env:"PROGRESS"`
	SensorLeft  int    `toml:"cameras.sensor_left" env:"SENSOR_LEFT"`
	SensorRight int    `toml:"cameras.sensor_right" env:"SENSOR_RIGHT"`
	Width       int    `toml:"video.width" env:"WIDTH"`
	Height      int    `toml:"video.height" env:"HEIGHT"`
	Format      string `toml:"video.format" env:"FORMAT"`
	FrameRate   int    `toml:"video.frame_rate" env:"FRAME_RATE"`
	Layout      string `toml:"video.layout" env:"LAYOUT"`
	Encoder     string `toml:"video.encoder" env:"ENCODER"`

	// Recording settings
	Output          string        `toml:"record.output" env:"OUTPUT"`
	Timestamped     bool          `toml:"record.timestamped" env:"TIMESTAMPED"`
	Duration        time.Duration `toml:"record.duration" env:"DURATION"`
	GracefulTimeout time.Duration `toml:"record.graceful_timeout" env:"GRACEFUL_TIMEOUT"`
	LockDir         string        `toml:"record.lock_dir" env:"LOCK_DIR"`
	MetricsTextfile string        `toml:"metrics.textfile" env:"METRICS_TEXTFILE"`

	// Serve settings
	Listen string `toml:"serve.listen" env:"LISTEN"`

	// Logging settings
	LoggingLevel     string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingGstreamer string `toml:"logging.gstreamer" env:"LOGGING_GSTREAMER"`
	LoggingJournal   bool   `toml:"logging.journal" env:"LOGGING_JOURNAL"`
}

// bindPipelineFlags registers the flags shared by every command that builds
// a descriptor.
func bindPipelineFlags(cmd *cobra.Command, opts *Options) {
	defaults := gstreamer.DefaultParams()
	flags := cmd.PersistentFlags()

	flags.StringVarP(&opts.Config, "config", "c", DefaultConfigFile, "Path to configuration file")
	flags.StringVar(&opts.Tool, "tool", defaults.Tool, "Pipeline launcher executable")
	flags.BoolVar(&opts.Verbose, "verbose", defaults.Verbose, "Pass -v to the launcher")
	flags.BoolVar(&opts.Progress, "progress", defaults.Progress, "Insert progressreport before the sink")
	flags.IntVar(&opts.SensorLeft, "sensor-left", defaults.Left.SensorID, "Sensor id of the left camera")
	flags.IntVar(&opts.SensorRight, "sensor-right", defaults.Right.SensorID, "Sensor id of the right camera")
	flags.IntVar(&opts.Width, "width", defaults.Width, "Frame width per eye")
	flags.IntVar(&opts.Height, "height", defaults.Height, "Frame height per eye")
	flags.StringVar(&opts.Format, "format", defaults.Format, "Camera pixel format")
	flags.IntVar(&opts.FrameRate, "frame-rate", defaults.FrameRate, "Frames per second")
	flags.StringVar(&opts.Layout, "layout", defaults.Layout, "Multiview layout of the composited frame")
	flags.StringVar(&opts.Encoder, "encoder", defaults.Encoder, "H.264/H.265 encoder element")
	flags.StringVarP(&opts.Output, "output", "o", defaults.Output, "Output MP4 file")
	flags.BoolVar(&opts.Timestamped, "timestamped", false, "Insert a UTC timestamp into the output name")

	flags.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	flags.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
	flags.StringVar(&opts.LoggingGstreamer, "logging-gstreamer", "", "Logging level for pipeline output (defaults to the global level)")
	flags.BoolVar(&opts.LoggingJournal, "logging-journal", false, "Also log to the systemd journal when available")
}

// bindRecordFlags registers flags only the record command uses.
func bindRecordFlags(cmd *cobra.Command, opts *Options) {
	flags := cmd.Flags()
	flags.DurationVar(&opts.Duration, "duration", 0, "Stop with end-of-stream after this long (0 records until interrupted)")
	flags.DurationVar(&opts.GracefulTimeout, "graceful-timeout", 30*time.Second, "Time allowed to finalise the file after end-of-stream")
	flags.StringVar(&opts.LockDir, "lock-dir", "", "Directory for output lock files (default: system temp dir)")
	flags.StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write run metrics to this node_exporter textfile")
}

// Params converts the options into pipeline parameters. now is used for
// timestamped output names.
func (o *Options) Params(now time.Time) gstreamer.Params {
	p := gstreamer.DefaultParams()
	p.Tool = o.Tool
	p.Verbose = o.Verbose
	p.Progress = o.Progress
	p.Left.SensorID = o.SensorLeft
	p.Right.SensorID = o.SensorRight
	p.Width = o.Width
	p.Height = o.Height
	p.Format = o.Format
	p.FrameRate = o.FrameRate
	p.Layout = o.Layout
	p.Encoder = o.Encoder
	p.Parser = gstreamer.ParserFor(o.Encoder)
	p.Output = o.Output
	if o.Timestamped {
		p.Output = launcher.TimestampedOutput(o.Output, now)
	}
	return p
}

// LoggingConfig returns the logging configuration for the options.
func (o *Options) LoggingConfig() logging.Config {
	cfg := logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Journal: o.LoggingJournal,
		Modules: map[string]string{},
	}
	if o.LoggingGstreamer != "" {
		cfg.Modules["gstreamer"] = o.LoggingGstreamer
	}
	return cfg
}
