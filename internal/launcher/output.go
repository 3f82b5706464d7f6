package launcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/gstreamer"
)

// TimestampLayout is the UTC suffix inserted by TimestampedOutput.
const TimestampLayout = "20060102T150405Z"

// TimestampedOutput inserts a UTC timestamp before the extension:
// output.mp4 becomes output-20250127T103000Z.mp4.
func TimestampedOutput(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "-" + t.UTC().Format(TimestampLayout) + ext
}

// progressHandler turns progressreport lines into progress events.
type progressHandler struct {
	runID string
	bus   *events.Bus
}

func (h *progressHandler) HandleLine(_, line string) {
	p, ok := gstreamer.ParseProgress(line)
	if !ok || h.bus == nil {
		return
	}
	h.bus.Publish(events.PipelineProgressEvent{
		RunID:          h.runID,
		Element:        p.Element,
		ElapsedSeconds: p.Elapsed.Seconds(),
		Position:       p.Position,
		Total:          p.Total,
		Unit:           p.Unit,
	})
}
