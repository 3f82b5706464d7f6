package api

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smazurov/stereocap/internal/capture"
	"github.com/smazurov/stereocap/internal/events"
)

// fakeController follows the capture.Controller state machine without
// running anything.
type fakeController struct {
	mu     sync.Mutex
	status capture.Status
	last   string
}

func newFakeController() *fakeController {
	return &fakeController{status: capture.Status{State: capture.StateIdle}}
}

func (f *fakeController) Status() capture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Start() (capture.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != capture.StateIdle {
		return f.status, capture.ErrRecording
	}
	f.status = capture.Status{
		State:     capture.StateRecording,
		RunID:     "run-1",
		Output:    "/data/output.mp4",
		StartedAt: time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC),
	}
	return f.status, nil
}

func (f *fakeController) Stop() (capture.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != capture.StateRecording {
		return f.status, capture.ErrNotRecording
	}
	f.status.State = capture.StateStopping
	return f.status, nil
}

func (f *fakeController) Toggle() (capture.Status, error) {
	if f.Status().State == capture.StateIdle {
		return f.Start()
	}
	return f.Stop()
}

func (f *fakeController) LastOutput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeController) finish(output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = output
	f.status = capture.Status{
		State:   capture.StateIdle,
		LastRun: &events.RunFinishedEvent{RunID: "run-1", Output: output, OutputExists: true},
	}
}

func newTestServer(ctrl Controller, metrics prometheus.Gatherer) *Server {
	return NewServer(Options{Controller: ctrl, Bus: events.New(), Metrics: metrics})
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) CaptureStatus {
	t.Helper()
	var st CaptureStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return st
}

func TestGetCaptureIdle(t *testing.T) {
	s := newTestServer(newFakeController(), nil)

	w := do(t, s, http.MethodGet, "/api/capture")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if st := decodeStatus(t, w); st.State != "idle" || st.RunID != "" || st.LastRun != nil {
		t.Errorf("unexpected body %+v", st)
	}
}

func TestStartAndStopCapture(t *testing.T) {
	s := newTestServer(newFakeController(), nil)

	w := do(t, s, http.MethodPost, "/api/capture/start")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	st := decodeStatus(t, w)
	if st.State != "recording" || st.RunID != "run-1" || st.StartedAt != "2025-01-27T10:30:00Z" {
		t.Errorf("unexpected start body %+v", st)
	}

	if w := do(t, s, http.MethodPost, "/api/capture/start"); w.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", w.Code)
	}

	w = do(t, s, http.MethodPost, "/api/capture/stop")
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", w.Code, w.Body.String())
	}
	if st := decodeStatus(t, w); st.State != "stopping" {
		t.Errorf("stop state = %s", st.State)
	}
}

func TestStopWhenIdleConflicts(t *testing.T) {
	s := newTestServer(newFakeController(), nil)
	if w := do(t, s, http.MethodPost, "/api/capture/stop"); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestToggleCapture(t *testing.T) {
	s := newTestServer(newFakeController(), nil)

	for _, want := range []string{"recording", "stopping"} {
		w := do(t, s, http.MethodPost, "/api/capture")
		if w.Code != http.StatusOK {
			t.Fatalf("toggle status = %d: %s", w.Code, w.Body.String())
		}
		if st := decodeStatus(t, w); st.State != want {
			t.Errorf("state = %s, want %s", st.State, want)
		}
	}
}

func TestServeOutput(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl, nil)

	if w := do(t, s, http.MethodGet, "/output"); w.Code != http.StatusNotFound {
		t.Errorf("before any run: status = %d, want 404", w.Code)
	}

	if _, err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	if w := do(t, s, http.MethodGet, "/output"); w.Code != http.StatusConflict {
		t.Errorf("while recording: status = %d, want 409", w.Code)
	}

	output := filepath.Join(t.TempDir(), "output.mp4")
	if err := os.WriteFile(output, []byte("mp4 data"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctrl.finish(output)

	w := do(t, s, http.MethodGet, "/output")
	if w.Code != http.StatusOK {
		t.Fatalf("after run: status = %d", w.Code)
	}
	if w.Body.String() != "mp4 data" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", ct)
	}
	if w := do(t, s, http.MethodGet, "/output.mp4"); w.Code != http.StatusOK || w.Body.String() != "mp4 data" {
		t.Errorf("/output.mp4: status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "stereocap_run_exit_code", Help: "test"})
	registry.MustRegister(gauge)
	gauge.Set(5)

	s := newTestServer(newFakeController(), registry)
	w := do(t, s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stereocap_run_exit_code 5") {
		t.Errorf("metrics body:\n%s", w.Body.String())
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	s := newTestServer(newFakeController(), nil)
	if w := do(t, s, http.MethodGet, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(newFakeController(), nil)
	w := do(t, s, http.MethodGet, "/api/version")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"version":"dev"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

// readEvent returns the name and data of the next SSE message.
func readEvent(r *bufio.Reader) (string, string, error) {
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return name, data, nil
		}
	}
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	s := NewServer(Options{Controller: newFakeController(), Bus: bus})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	reader := bufio.NewReader(resp.Body)
	done := make(chan struct{})
	defer close(done)
	type message struct{ name, data string }
	messages := make(chan message, 4)
	go func() {
		for {
			name, data, err := readEvent(reader)
			if err != nil {
				return
			}
			select {
			case messages <- message{name, data}:
			case <-done:
				return
			}
		}
	}()

	next := func() message {
		t.Helper()
		select {
		case m := <-messages:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for event")
			return message{}
		}
	}

	if m := next(); m.name != "status" || !strings.Contains(m.data, `"state":"idle"`) {
		t.Fatalf("first event = %+v, want idle status", m)
	}

	bus.Publish(events.RunFinishedEvent{RunID: "run-7", ExitCode: 0, Output: "/data/output.mp4"})
	if m := next(); m.name != "run-finished" || !strings.Contains(m.data, `"run_id":"run-7"`) {
		t.Errorf("event = %+v, want run-finished for run-7", m)
	}
}
