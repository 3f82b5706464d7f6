package gstreamer

import (
	"fmt"
	"strings"
)

const mixerName = "mix"

type stageKind int

const (
	kindElement stageKind = iota
	kindCaps
	kindRef
)

// Property is a name=value element property.
type Property struct {
	Name  string
	Value string
}

// Prop builds a Property, formatting the value with fmt.
func Prop(name string, value any) Property {
	return Property{Name: name, Value: fmt.Sprint(value)}
}

// Stage is one node of a gst-launch chain: an element, a caps filter,
// or a reference to a named element's pads.
type Stage struct {
	kind    stageKind
	factory string
	props   []Property
	caps    string
	ref     string
}

// Element returns an element stage.
func Element(factory string, props ...Property) Stage {
	return Stage{kind: kindElement, factory: factory, props: props}
}

// Caps returns a caps filter stage.
func Caps(caps string) Stage {
	return Stage{kind: kindCaps, caps: caps}
}

// Ref returns a stage that links from or to the element with the given name.
func Ref(name string) Stage {
	return Stage{kind: kindRef, ref: name}
}

func (s Stage) tokens() []string {
	switch s.kind {
	case kindCaps:
		return []string{s.caps}
	case kindRef:
		return []string{s.ref + "."}
	default:
		out := make([]string, 0, len(s.props)+1)
		out = append(out, s.factory)
		for _, p := range s.props {
			out = append(out, p.Name+"="+p.Value)
		}
		return out
	}
}

// Chain is a run of stages joined by links.
// A single-stage chain declares a standalone element.
type Chain []Stage

func (c Chain) tokens() []string {
	var out []string
	for i, s := range c {
		if i > 0 {
			out = append(out, "!")
		}
		out = append(out, s.tokens()...)
	}
	return out
}

// Descriptor is an immutable gst-launch pipeline description.
type Descriptor struct {
	tool   string
	flags  []string
	chains []Chain
}

// Build assembles the stereo capture descriptor from validated params.
func Build(p Params) (Descriptor, error) {
	if err := p.Validate(); err != nil {
		return Descriptor{}, err
	}

	var flags []string
	if p.Verbose {
		flags = append(flags, "-v")
	}
	if p.EOSOnShutdown {
		flags = append(flags, "-e")
	}

	chains := []Chain{
		{Element("nvarguscamerasrc", Prop("sensor_id", p.Left.SensorID), Prop("name", p.Left.Name))},
		{Element("nvarguscamerasrc", Prop("sensor_id", p.Right.SensorID), Prop("name", p.Right.Name))},
		{Element("glstereomix", Prop("name", mixerName))},
		cameraBranch(p, p.Left.Name),
		cameraBranch(p, p.Right.Name),
	}

	out := Chain{
		Ref(mixerName),
		Caps(p.mixerCaps()),
		Element("glcolorconvert"),
		Element("gldownload"),
		Element("queue"),
		Element(p.Encoder),
		Element(p.Parser),
		Element(p.Muxer),
	}
	if p.Progress {
		out = append(out, Element("progressreport"))
	}
	out = append(out, Element("filesink", Prop("location", p.Output)))
	chains = append(chains, out)

	return Descriptor{tool: p.Tool, flags: flags, chains: chains}, nil
}

// cameraBranch uploads one camera's NVMM frames into GL memory for the mixer.
func cameraBranch(p Params, name string) Chain {
	return Chain{
		Ref(name),
		Caps(p.sourceCaps()),
		Element("nvvidconv"),
		Element("glupload"),
		Ref(mixerName),
	}
}

// Default returns the descriptor built from DefaultParams.
func Default() Descriptor {
	d, err := Build(DefaultParams())
	if err != nil {
		panic(fmt.Sprintf("default pipeline params are invalid: %v", err))
	}
	return d
}

// Tool returns the launcher executable name.
func (d Descriptor) Tool() string {
	return d.tool
}

// Args returns the launcher arguments, one token per element, property,
// link or caps. The slice is freshly allocated on every call.
func (d Descriptor) Args() []string {
	args := append([]string(nil), d.flags...)
	for _, c := range d.chains {
		args = append(args, c.tokens()...)
	}
	return args
}

// Factories returns the distinct element factories used, in pipeline order.
func (d Descriptor) Factories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range d.chains {
		for _, s := range c {
			if s.kind != kindElement || seen[s.factory] {
				continue
			}
			seen[s.factory] = true
			out = append(out, s.factory)
		}
	}
	return out
}

// Output returns the filesink location.
func (d Descriptor) Output() string {
	for _, c := range d.chains {
		for _, s := range c {
			if s.kind != kindElement || s.factory != "filesink" {
				continue
			}
			for _, p := range s.props {
				if p.Name == "location" {
					return p.Value
				}
			}
		}
	}
	return ""
}

// Command renders the full invocation as a shell-safe line.
func (d Descriptor) Command() string {
	parts := []string{shellQuote(d.tool)}
	for _, arg := range d.Args() {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return d.Command()
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"()$&;|<>*?[]{}\\`#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
