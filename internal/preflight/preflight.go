// Package preflight checks that the external capture tooling is installed
// and that the output location is usable.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/smazurov/stereocap/internal/gstreamer"
)

// InspectTool is the GStreamer element inspector.
const InspectTool = "gst-inspect-1.0"

const inspectTimeout = 10 * time.Second

// Requirement defines an external binary the recorder relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the outcome of one check.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Failed reports whether a required check did not pass.
func (s Status) Failed() bool {
	return !s.Available && !s.Optional
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Detail = path
		results = append(results, status)
	}
	return results
}

// CheckFactories asks inspect whether each element factory is installed.
// Missing factories are required: the pipeline cannot link without them.
func CheckFactories(ctx context.Context, inspect string, factories []string) []Status {
	results := make([]Status, 0, len(factories))
	for _, factory := range factories {
		status := Status{
			Name:        "element " + factory,
			Command:     inspect + " --exists " + factory,
			Description: "GStreamer element factory",
		}

		checkCtx, cancel := context.WithTimeout(ctx, inspectTimeout)
		err := exec.CommandContext(checkCtx, inspect, "--exists", factory).Run()
		cancel()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			status.Available = true
		case errors.As(err, &exitErr):
			status.Detail = "not installed"
		default:
			status.Detail = err.Error()
		}
		results = append(results, status)
	}
	return results
}

// CheckWritable reports whether a file can be created in dir.
func CheckWritable(dir string) Status {
	status := Status{
		Name:        "output directory",
		Command:     dir,
		Description: "Directory receiving the MP4 file",
	}

	info, err := os.Stat(dir)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	if !info.IsDir() {
		status.Detail = "not a directory"
		return status
	}

	f, err := os.CreateTemp(dir, ".stereocap-check-*")
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	status.Available = true
	return status
}

// Run performs every check for the given descriptor. Element factories are
// only inspected when the inspector is available.
func Run(ctx context.Context, desc gstreamer.Descriptor) []Status {
	results := CheckBinaries([]Requirement{
		{
			Name:        "launcher",
			Command:     desc.Tool(),
			Description: "Runs the capture pipeline",
		},
		{
			Name:        "inspector",
			Command:     InspectTool,
			Description: "Verifies element factories",
			Optional:    true,
		},
	})

	if results[1].Available {
		results = append(results, CheckFactories(ctx, InspectTool, desc.Factories())...)
	}

	dir := filepath.Dir(desc.Output())
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return append(results, CheckWritable(dir))
}

// Failed reports whether any required check in results failed.
func Failed(results []Status) bool {
	for _, s := range results {
		if s.Failed() {
			return true
		}
	}
	return false
}
