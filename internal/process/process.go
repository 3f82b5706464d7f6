package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/stereocap/internal/logging"
)

// Exit codes reported when the child never ran, following shell conventions.
const (
	ExitStartFailed   = 1
	ExitNotExecutable = 126
	ExitNotFound      = 127
	ExitKilled        = 137
)

// OutputHandler receives output lines from the subprocess.
// Implementations can parse progress, count frames, etc.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (gstreamer, ffmpeg, etc.)
type LogParser func(line string) (level, msg string)

// Process manages the lifecycle of a subprocess.
type Process struct {
	id              string
	args            []string
	dir             string
	cmd             *exec.Cmd
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	onStart         func(Info)
	gracefulTimeout time.Duration // timeout for end-of-stream before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	mu   sync.RWMutex
	info Info
}

// NewProcessWithOutput creates a new process. args[0] is the executable.
// The handler, when not nil, receives each line of stdout/stderr.
func NewProcessWithOutput(id string, args []string, logger logging.Logger, handler OutputHandler) *Process {
	return &Process{
		id:              id,
		args:            append([]string(nil), args...),
		logger:          logger,
		outputHandler:   handler,
		gracefulTimeout: 30 * time.Second,
		killTimeout:     5 * time.Second,
		info:            Info{ID: id, State: StateIdle},
	}
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="gstreamer").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetGracefulTimeout sets how long to wait after SIGINT before killing.
// mp4mux needs this window to write the moov atom.
func (p *Process) SetGracefulTimeout(d time.Duration) {
	if d > 0 {
		p.gracefulTimeout = d
	}
}

// SetStartHook registers fn to be called once the child is running.
func (p *Process) SetStartHook(fn func(Info)) {
	p.onStart = fn
}

// SetDir sets the working directory of the subprocess.
func (p *Process) SetDir(dir string) {
	p.dir = dir
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

func (p *Process) setState(state State) {
	p.mu.Lock()
	p.info.State = state
	p.mu.Unlock()
}

func (p *Process) finish(exitCode int, err error) int {
	p.mu.Lock()
	p.info.ExitCode = exitCode
	p.info.ExitedAt = time.Now()
	p.info.LastError = err
	if err != nil && p.info.PID == 0 {
		p.info.State = StateError
	} else {
		p.info.State = StateExited
	}
	p.mu.Unlock()
	return exitCode
}

// runningProcess holds channels for monitoring a running subprocess.
type runningProcess struct {
	processDone <-chan error // delivered after all output has been read
}

// startProcess starts the subprocess and returns channels for monitoring.
func (p *Process) startProcess() (*runningProcess, error) {
	if len(p.args) == 0 {
		p.logger.Error("Empty command")
		return nil, errors.New("empty command")
	}

	p.cmd = exec.Command(p.args[0], p.args[1:]...)
	p.cmd.Dir = p.dir
	// Own process group: a terminal Ctrl-C reaches only us and we forward it.
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		p.logger.Error("Failed to create stdout pipe", "error", err)
		return nil, err
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		p.logger.Error("Failed to create stderr pipe", "error", err)
		return nil, err
	}

	if err := p.cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", p.args[0])
		return nil, err
	}

	p.mu.Lock()
	p.info.PID = p.cmd.Process.Pid
	p.info.StartedAt = time.Now()
	p.info.State = StateRunning
	info := p.info
	p.mu.Unlock()

	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "command", p.args[0])
	if p.onStart != nil {
		p.onStart(info)
	}

	// Stream output in separate goroutines
	outputDone := make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	// Wait closes the pipes, so it runs only after both readers hit EOF.
	processDone := make(chan error, 1)
	go func() {
		p.waitOutputDone(outputDone)
		processDone <- p.cmd.Wait()
	}()

	return &runningProcess{processDone: processDone}, nil
}

// waitOutputDone waits for both output streams to complete.
func (p *Process) waitOutputDone(outputDone <-chan struct{}) {
	<-outputDone
	<-outputDone
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError (128+signal when the
// child was killed by a signal), or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// startExitCode maps a start failure to a shell-style exit code.
func startExitCode(err error) int {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, fs.ErrPermission):
		return ExitNotExecutable
	default:
		return ExitStartFailed
	}
}

// handleProcessExit extracts exit code from process error and logs non-ExitError errors.
func (p *Process) handleProcessExit(processErr error) int {
	exitCode := exitCodeFromError(processErr)
	var exitErr *exec.ExitError
	if processErr != nil && !errors.As(processErr, &exitErr) {
		p.logger.Error("Process exited with error", "error", processErr)
	}
	return exitCode
}

// Run starts the subprocess and blocks until it exits.
// When ctx is done or the wrapper receives SIGINT/SIGTERM, the child gets
// SIGINT and is given the graceful timeout to finish before it is killed.
// A second signal during that window kills it at once.
// Returns the exit code of the subprocess.
func (p *Process) Run(ctx context.Context) int {
	if p.Info().State != StateIdle {
		p.logger.Error("Process already started", "id", p.id)
		return ExitStartFailed
	}
	p.setState(StateStarting)

	// Registered before the child exists so no signal falls through to the
	// default handler once the process is running.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	rp, err := p.startProcess()
	if err != nil {
		return p.finish(startExitCode(err), fmt.Errorf("start %s: %w", p.id, err))
	}

	select {
	case <-ctx.Done():
		p.logger.Info("Context done, stopping process", "reason", context.Cause(ctx))
		p.sendStopSignal()
		return p.finish(p.waitForExit(rp.processDone, sigChan, p.gracefulTimeout), nil)
	case sig := <-sigChan:
		p.logger.Info("Received shutdown signal", "signal", sig.String())
		p.sendStopSignal()
		return p.finish(p.waitForExit(rp.processDone, sigChan, p.gracefulTimeout), nil)
	case processErr := <-rp.processDone:
		exitCode := p.handleProcessExit(processErr)
		p.logger.Info("Process exited", "exit_code", exitCode)
		var exitErr *exec.ExitError
		if errors.As(processErr, &exitErr) {
			processErr = nil
		}
		return p.finish(exitCode, processErr)
	}
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.setState(StateStopping)
	p.logger.Info("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the stopping process. It force-kills the process
// group when the timeout passes or another shutdown signal arrives.
func (p *Process) waitForExit(processDone <-chan error, sigChan <-chan os.Signal, timeout time.Duration) int {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-processDone:
		return exitCodeFromError(err)
	case <-timer.C:
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
	case sig := <-sigChan:
		p.logger.Warn("Second shutdown signal, forcing kill", "signal", sig.String())
	}

	p.kill()
	// Wait for process to exit with a secondary timeout to prevent hanging
	select {
	case <-processDone:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return ExitKilled
}

// kill sends SIGKILL to the child's process group so helpers holding the
// output pipes die with it.
func (p *Process) kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		// group already gone; the leader may still need reaping
		err = p.cmd.Process.Kill()
	}
	// "os: process already finished" is OK - process exited between timeout and kill
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "error", err)
	}
}

// streamOutput streams output from the subprocess.
// Uses the configured processLogger (or falls back to default logger).
// Uses the configured LogParser to extract log levels from process output.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	// verbose caps notifications can exceed the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}
