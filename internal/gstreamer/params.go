package gstreamer

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults for the stereo capture pipeline.
const (
	DefaultTool      = "gst-launch-1.0"
	DefaultOutput    = "output.mp4"
	DefaultWidth     = 1920
	DefaultHeight    = 1080
	DefaultFormat    = "NV12"
	DefaultFrameRate = 30
	DefaultEncoder   = "x264enc"
	DefaultParser    = "h264parse"
	DefaultMuxer     = "mp4mux"

	LayoutTopBottom = "top-bottom"
)

// ErrInvalidParams is returned by Validate and Build for unusable parameters.
var ErrInvalidParams = errors.New("invalid pipeline parameters")

// packedLayouts are the multiview modes glstereomix can pack two views into.
var packedLayouts = map[string]bool{
	"side-by-side":          true,
	"side-by-side-quincunx": true,
	"column-interleaved":    true,
	"row-interleaved":       true,
	"top-bottom":            true,
	"checkerboard":          true,
}

// Camera identifies one capture sensor and the element name its branch links from.
type Camera struct {
	Name     string // element name, e.g. "left"
	SensorID int    // nvarguscamerasrc sensor_id
}

// Params holds everything needed to build a capture descriptor.
type Params struct {
	// Launcher
	Tool          string // gst-launch-1.0
	Verbose       bool   // -v, print caps and property notifications
	EOSOnShutdown bool   // -e, turn SIGINT into end-of-stream

	// Sources
	Left      Camera
	Right     Camera
	Width     int    // per eye
	Height    int    // per eye
	Format    string // NV12
	FrameRate int    // frames per second

	// Compositing
	Layout string // multiview-mode, top-bottom

	// Encoding
	Encoder string // x264enc
	Parser  string // h264parse
	Muxer   string // mp4mux

	// Output
	Progress bool   // insert progressreport before the sink
	Output   string // filesink location
}

// DefaultParams returns the parameters of the fixed stereo capture pipeline.
func DefaultParams() Params {
	return Params{
		Tool:          DefaultTool,
		Verbose:       true,
		EOSOnShutdown: true,
		Left:          Camera{Name: "left", SensorID: 0},
		Right:         Camera{Name: "right", SensorID: 1},
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		Format:        DefaultFormat,
		FrameRate:     DefaultFrameRate,
		Layout:        LayoutTopBottom,
		Encoder:       DefaultEncoder,
		Parser:        DefaultParser,
		Muxer:         DefaultMuxer,
		Progress:      true,
		Output:        DefaultOutput,
	}
}

// Validate reports the first problem that would make the descriptor unusable.
func (p Params) Validate() error {
	switch {
	case strings.TrimSpace(p.Tool) == "":
		return fmt.Errorf("%w: tool is empty", ErrInvalidParams)
	case p.Left.Name == "" || p.Right.Name == "":
		return fmt.Errorf("%w: camera names must be set", ErrInvalidParams)
	case p.Left.Name == p.Right.Name:
		return fmt.Errorf("%w: camera names must differ, both are %q", ErrInvalidParams, p.Left.Name)
	case p.Left.Name == mixerName || p.Right.Name == mixerName:
		return fmt.Errorf("%w: camera name %q is reserved for the mixer", ErrInvalidParams, mixerName)
	case p.Left.SensorID < 0 || p.Right.SensorID < 0:
		return fmt.Errorf("%w: sensor ids must not be negative", ErrInvalidParams)
	case p.Left.SensorID == p.Right.SensorID:
		return fmt.Errorf("%w: both cameras use sensor %d", ErrInvalidParams, p.Left.SensorID)
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidParams, p.Width, p.Height)
	case p.FrameRate <= 0:
		return fmt.Errorf("%w: frame rate %d", ErrInvalidParams, p.FrameRate)
	case p.Format == "":
		return fmt.Errorf("%w: pixel format is empty", ErrInvalidParams)
	case !packedLayouts[p.Layout]:
		return fmt.Errorf("%w: unsupported layout %q", ErrInvalidParams, p.Layout)
	case p.Encoder == "" || p.Parser == "" || p.Muxer == "":
		return fmt.Errorf("%w: encoder, parser and muxer must be set", ErrInvalidParams)
	case strings.TrimSpace(p.Output) == "":
		return fmt.Errorf("%w: output location is empty", ErrInvalidParams)
	}
	return nil
}

// ParserFor returns the bitstream parser matching an encoder factory.
func ParserFor(encoder string) string {
	if strings.Contains(encoder, "265") || strings.Contains(encoder, "hevc") {
		return "h265parse"
	}
	return DefaultParser
}

// sourceCaps is the raw frame contract each camera branch negotiates.
func (p Params) sourceCaps() string {
	return fmt.Sprintf("video/x-raw(memory:NVMM),width=(int)%d,height=(int)%d,format=(string)%s,framerate=(fraction)%d/1",
		p.Width, p.Height, p.Format, p.FrameRate)
}

// mixerCaps selects the packed multiview layout on the mixer output.
func (p Params) mixerCaps() string {
	return "video/x-raw(memory:GLMemory),multiview-mode=" + p.Layout
}
