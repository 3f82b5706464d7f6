package gstreamer

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

const fixedCommand = "gst-launch-1.0 -v -e " +
	"nvarguscamerasrc sensor_id=0 name=left " +
	"nvarguscamerasrc sensor_id=1 name=right " +
	"glstereomix name=mix " +
	"left. ! 'video/x-raw(memory:NVMM),width=(int)1920,height=(int)1080,format=(string)NV12,framerate=(fraction)30/1' ! nvvidconv ! glupload ! mix. " +
	"right. ! 'video/x-raw(memory:NVMM),width=(int)1920,height=(int)1080,format=(string)NV12,framerate=(fraction)30/1' ! nvvidconv ! glupload ! mix. " +
	"mix. ! 'video/x-raw(memory:GLMemory),multiview-mode=top-bottom' ! glcolorconvert ! gldownload ! queue ! x264enc ! h264parse ! mp4mux ! progressreport ! filesink location=output.mp4"

func TestDefaultCommand(t *testing.T) {
	if got := Default().Command(); got != fixedCommand {
		t.Errorf("Default().Command() mismatch\n got: %s\nwant: %s", got, fixedCommand)
	}
}

func TestDefaultArgs(t *testing.T) {
	d := Default()
	args := d.Args()

	if d.Tool() != "gst-launch-1.0" {
		t.Errorf("Tool() = %q, want gst-launch-1.0", d.Tool())
	}
	if args[0] != "-v" || args[1] != "-e" {
		t.Errorf("expected -v -e first, got %v", args[:2])
	}

	caps := "video/x-raw(memory:NVMM),width=(int)1920,height=(int)1080,format=(string)NV12,framerate=(fraction)30/1"
	count := 0
	for _, a := range args {
		if a == caps {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected source caps as a single argument twice, found %d", count)
	}

	if last := args[len(args)-1]; last != "location=output.mp4" {
		t.Errorf("last argument = %q, want location=output.mp4", last)
	}
}

func TestArgsReturnsCopy(t *testing.T) {
	d := Default()
	first := d.Args()
	first[0] = "mutated"

	if got := d.Args()[0]; got != "-v" {
		t.Errorf("Args() shares backing storage, got %q", got)
	}
}

func TestFactories(t *testing.T) {
	want := []string{
		"nvarguscamerasrc", "glstereomix", "nvvidconv", "glupload", "glcolorconvert",
		"gldownload", "queue", "x264enc", "h264parse", "mp4mux", "progressreport", "filesink",
	}
	if got := Default().Factories(); !slices.Equal(got, want) {
		t.Errorf("Factories() = %v, want %v", got, want)
	}
}

func TestOutput(t *testing.T) {
	p := DefaultParams()
	p.Output = "/tmp/stereo take.mp4"
	d, err := Build(p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := d.Output(); got != p.Output {
		t.Errorf("Output() = %q, want %q", got, p.Output)
	}
	if !strings.HasSuffix(d.Command(), "'location=/tmp/stereo take.mp4'") {
		t.Errorf("expected quoted location in command, got %s", d.Command())
	}
}

func TestBuildCustomParams(t *testing.T) {
	p := DefaultParams()
	p.Verbose = false
	p.Progress = false
	p.Width = 1280
	p.Height = 720
	p.FrameRate = 60
	p.Layout = "side-by-side"
	p.Left = Camera{Name: "cam0", SensorID: 2}
	p.Right = Camera{Name: "cam1", SensorID: 3}

	d, err := Build(p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	cmd := d.Command()
	for _, want := range []string{
		"gst-launch-1.0 -e nvarguscamerasrc sensor_id=2 name=cam0",
		"nvarguscamerasrc sensor_id=3 name=cam1",
		"cam0. ! 'video/x-raw(memory:NVMM),width=(int)1280,height=(int)720,format=(string)NV12,framerate=(fraction)60/1'",
		"multiview-mode=side-by-side",
		"mp4mux ! filesink location=output.mp4",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q\n%s", want, cmd)
		}
	}
	if strings.Contains(cmd, "progressreport") {
		t.Errorf("progressreport should be omitted: %s", cmd)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty tool", func(p *Params) { p.Tool = " " }},
		{"same camera names", func(p *Params) { p.Right.Name = p.Left.Name }},
		{"missing camera name", func(p *Params) { p.Left.Name = "" }},
		{"camera named mix", func(p *Params) { p.Left.Name = "mix" }},
		{"same sensor", func(p *Params) { p.Right.SensorID = p.Left.SensorID }},
		{"negative sensor", func(p *Params) { p.Left.SensorID = -1 }},
		{"zero width", func(p *Params) { p.Width = 0 }},
		{"negative height", func(p *Params) { p.Height = -1080 }},
		{"zero frame rate", func(p *Params) { p.FrameRate = 0 }},
		{"empty format", func(p *Params) { p.Format = "" }},
		{"mono layout", func(p *Params) { p.Layout = "mono" }},
		{"empty encoder", func(p *Params) { p.Encoder = "" }},
		{"empty output", func(p *Params) { p.Output = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			_, err := Build(p)
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestDefaultParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "''"},
		{"plain", "plain"},
		{"mix.", "mix."},
		{"!", "!"},
		{"a b", "'a b'"},
		{"it's", `'it'\''s'`},
		{"caps(x)", "'caps(x)'"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParserFor(t *testing.T) {
	tests := map[string]string{
		"x264enc":       "h264parse",
		"nvv4l2h264enc": "h264parse",
		"x265enc":       "h265parse",
		"nvv4l2h265enc": "h265parse",
		"vaapihevcenc":  "h265parse",
	}
	for enc, want := range tests {
		if got := ParserFor(enc); got != want {
			t.Errorf("ParserFor(%q) = %q, want %q", enc, got, want)
		}
	}
}
