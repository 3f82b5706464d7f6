package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/stereocap/internal/gstreamer"
)

// execute runs the command line with an isolated config file path.
func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args, "--config", filepath.Join(t.TempDir(), "absent.toml"))
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestPipelineDefault(t *testing.T) {
	code, stdout, _ := execute(t, "pipeline")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got, want := strings.TrimSpace(stdout), gstreamer.Default().Command(); got != want {
		t.Errorf("pipeline output:\n%s\nwant:\n%s", got, want)
	}
}

func TestPipelineFlags(t *testing.T) {
	code, stdout, _ := execute(t, "pipeline", "--width", "1280", "--height", "720",
		"--encoder", "x265enc", "--layout", "side-by-side", "--verbose=false", "-o", "/data/run.mp4")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{
		"width=(int)1280", "height=(int)720", "x265enc ! h265parse",
		"multiview-mode=side-by-side", "location=/data/run.mp4",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, " -v ") {
		t.Errorf("--verbose=false should drop -v:\n%s", stdout)
	}
}

func TestPipelineInvalidParams(t *testing.T) {
	code, _, stderr := execute(t, "pipeline", "--sensor-right", "0")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "invalid pipeline parameters") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestPipelineFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereocap.toml")
	content := "[video]\nwidth = 1280\nframe_rate = 60\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"pipeline", "--config", path, "--frame-rate", "24"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "width=(int)1280") {
		t.Errorf("config width not applied:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "framerate=(fraction)24/1") {
		t.Errorf("CLI frame rate should win over config:\n%s", stdout.String())
	}
}

func TestPipelineFromEnv(t *testing.T) {
	t.Setenv("STEREOCAP_OUTPUT", "/env/out.mp4")
	code, stdout, _ := execute(t, "pipeline")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, "location=/env/out.mp4") {
		t.Errorf("env output not applied:\n%s", stdout)
	}
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("STEREOCAP_WIDTH", "wide")
	code, _, stderr := execute(t, "pipeline")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "STEREOCAP_WIDTH") {
		t.Errorf("stderr does not name the variable:\n%s", stderr)
	}
}

func TestInvalidLoggingLevel(t *testing.T) {
	for _, args := range [][]string{
		{"pipeline", "--logging-level", "verbose"},
		{"pipeline", "--logging-gstreamer", "loud"},
	} {
		code, _, stderr := execute(t, args...)
		if code != 1 {
			t.Errorf("%v: exit code = %d, want 1", args, code)
		}
		if !strings.Contains(stderr, "invalid logging config") {
			t.Errorf("%v: stderr does not explain the failure:\n%s", args, stderr)
		}
	}
}

func TestRecordExitCodes(t *testing.T) {
	binDir := t.TempDir()
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantFile bool
	}{
		{
			name: "success",
			body: `for a in "$@"; do case "$a" in location=*) : > "${a#location=}" ;; esac; done
exit 0`,
			wantCode: 0,
			wantFile: true,
		},
		{name: "failure", body: "exit 1", wantCode: 1},
		{name: "custom status", body: "exit 5", wantCode: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := writeStub(t, binDir, strings.ReplaceAll(tt.name, " ", "-"), tt.body)
			output := filepath.Join(t.TempDir(), "output.mp4")

			code, _, _ := execute(t, "--tool", tool, "-o", output, "--lock-dir", t.TempDir())
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			_, err := os.Stat(output)
			if exists := err == nil; exists != tt.wantFile {
				t.Errorf("output exists = %v, want %v", exists, tt.wantFile)
			}
		})
	}
}

func TestRecordToolMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	output := filepath.Join(t.TempDir(), "output.mp4")

	code, _, _ := execute(t, "-o", output)
	if code != 127 {
		t.Errorf("exit code = %d, want 127", code)
	}
	if _, err := os.Stat(output); err == nil {
		t.Error("output must not exist")
	}
}

func TestRecordWritesMetrics(t *testing.T) {
	tool := writeStub(t, t.TempDir(), "gst", "exit 0")
	textfile := filepath.Join(t.TempDir(), "stereocap.prom")

	code, _, _ := execute(t, "--tool", tool, "-o", filepath.Join(t.TempDir(), "out.mp4"), "--metrics-textfile", textfile)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "stereocap_run_exit_code 0") {
		t.Errorf("unexpected textfile:\n%s", data)
	}
}

func TestRecordRejectsArgs(t *testing.T) {
	if code, _, _ := execute(t, "extra"); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestServeRejectsBadListen(t *testing.T) {
	code, _, stderr := execute(t, "serve", "--listen", "127.0.0.1:notaport")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "listen 127.0.0.1:notaport") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestServeInvalidParams(t *testing.T) {
	code, _, stderr := execute(t, "serve", "--sensor-right", "0")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "invalid pipeline parameters") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestServeReturnsOnCancel(t *testing.T) {
	opts := &Options{}
	cmd := newServeCmd(opts)
	bindPipelineFlags(cmd, opts)
	if opts.Listen != DefaultListen {
		t.Errorf("default listen = %q", opts.Listen)
	}
	opts.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, opts) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestCheck(t *testing.T) {
	binDir := t.TempDir()
	writeStub(t, binDir, "gst-launch-1.0", "exit 0")
	writeStub(t, binDir, "gst-inspect-1.0", "exit 0")
	t.Setenv("PATH", binDir)

	code, stdout, _ := execute(t, "check", "-o", filepath.Join(t.TempDir(), "output.mp4"))
	if code != 0 {
		t.Fatalf("exit code = %d:\n%s", code, stdout)
	}
	for _, want := range []string{"launcher", "element glstereomix", "output directory", "ok"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("check output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCheckFailsWithoutTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	code, stdout, _ := execute(t, "check", "-o", filepath.Join(t.TempDir(), "output.mp4"))
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "missing") {
		t.Errorf("expected missing status:\n%s", stdout)
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := execute(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(stdout, "stereocap dev") {
		t.Errorf("unexpected version output %q", stdout)
	}
}

func TestOptionsParams(t *testing.T) {
	opts := &Options{
		Tool:        "gst-launch-1.0",
		Verbose:     true,
		Progress:    false,
		SensorLeft:  2,
		SensorRight: 3,
		Width:       1280,
		Height:      720,
		Format:      "NV12",
		FrameRate:   60,
		Layout:      gstreamer.LayoutTopBottom,
		Encoder:     "nvv4l2h265enc",
		Output:      "capture.mp4",
		Timestamped: true,
	}

	p := opts.Params(time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC))
	if p.Output != "capture-20250127T103000Z.mp4" {
		t.Errorf("Output = %q", p.Output)
	}
	if p.Parser != "h265parse" {
		t.Errorf("Parser = %q, want h265parse", p.Parser)
	}
	if p.Left.SensorID != 2 || p.Right.SensorID != 3 || p.Left.Name != "left" {
		t.Errorf("cameras = %+v %+v", p.Left, p.Right)
	}
	if p.Progress || !p.EOSOnShutdown {
		t.Errorf("flags: progress %v eos %v", p.Progress, p.EOSOnShutdown)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoggingConfig(t *testing.T) {
	opts := &Options{LoggingLevel: "warn", LoggingFormat: "json"}
	cfg := opts.LoggingConfig()
	if cfg.Level != "warn" || cfg.Format != "json" || len(cfg.Modules) != 0 {
		t.Errorf("unexpected config %+v", cfg)
	}

	opts.LoggingGstreamer = "debug"
	if got := opts.LoggingConfig().Modules["gstreamer"]; got != "debug" {
		t.Errorf("gstreamer level = %q", got)
	}
}
