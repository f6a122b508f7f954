// Package runner resolves tool descriptors to executables and spawns
// them, either detached (launch-only) or with output captured to
// per-invocation log files (run-and-capture). Per-tool failures are
// recorded as data, never returned as errors: a batch is expected to
// partially fail without losing the rest of its results.
package runner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/your-org/cmtl/internal/hints"
	"github.com/your-org/cmtl/internal/registry"
)

// Options configures a Runner.
type Options struct {
	// ToolPaths are directories searched for executables before the
	// system search path.
	ToolPaths []string

	// PreviewBytes caps the in-memory stdout preview per invocation.
	// Zero selects DefaultPreviewBytes.
	PreviewBytes int

	Logger *log.Logger
}

// Runner executes one tool at a time. It is stateless per invocation
// and safe for concurrent use by the batch controller's workers.
type Runner struct {
	logsDir      string
	toolPaths    []string
	previewBytes int
	logger       *log.Logger
}

// New creates a runner that writes capture logs under logsDir.
func New(logsDir string, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
		logger.SetLevel(log.ErrorLevel)
	}
	previewBytes := opts.PreviewBytes
	if previewBytes <= 0 {
		previewBytes = DefaultPreviewBytes
	}
	return &Runner{
		logsDir:      logsDir,
		toolPaths:    opts.ToolPaths,
		previewBytes: previewBytes,
		logger:       logger,
	}
}

// Run executes one descriptor against target and returns its record.
// The returned record always has a terminal status; Run never panics or
// errors on per-tool conditions like a missing executable.
func (r *Runner) Run(ctx context.Context, desc registry.ToolDescriptor, target string) ExecutionRecord {
	rec := ExecutionRecord{
		ToolID:    desc.ID,
		StartTime: time.Now(),
	}

	// A batch cancelled before this tool was dispatched still yields a
	// record, so every input descriptor shows up in the report.
	if ctx.Err() != nil {
		return r.finish(rec, StatusCancelled, "batch cancelled before start")
	}

	exePath, err := r.findExecutable(desc.Executable())
	if err != nil {
		rec.InstallHint = hints.For(desc.InstallHints)
		r.logger.Info("tool executable not found", "tool", desc.ID, "executable", desc.Executable())
		return r.finish(rec, StatusNotFound, err.Error())
	}

	argv := desc.Argv(target)
	rec.CommandLine = append([]string{exePath}, argv...)

	if desc.Mode == registry.LaunchOnly {
		return r.runDetached(rec, desc, exePath, argv)
	}
	return r.runCaptured(ctx, rec, desc, exePath, argv)
}

// runDetached spawns a launch-only tool in its own session and returns
// as soon as the spawn succeeds. The tool's lifetime and output are not
// tracked.
func (r *Runner) runDetached(rec ExecutionRecord, desc registry.ToolDescriptor, exePath string, argv []string) ExecutionRecord {
	cmd := exec.Command(exePath, argv...)
	setDetached(cmd)

	if err := cmd.Start(); err != nil {
		return r.spawnFailure(rec, desc, err)
	}

	// Forget the child entirely; waiting on it is someone else's job.
	if err := cmd.Process.Release(); err != nil {
		r.logger.Warn("releasing detached process", "tool", desc.ID, "error", err)
	}

	r.logger.Info("tool launched detached", "tool", desc.ID, "pid", cmd.Process.Pid)
	return r.finish(rec, StatusSuccess, "")
}

// runCaptured spawns the tool with both output streams attached to the
// capture files and waits for exit, timeout, or cancellation.
func (r *Runner) runCaptured(ctx context.Context, rec ExecutionRecord, desc registry.ToolDescriptor, exePath string, argv []string) ExecutionRecord {
	capt, err := newCapture(r.logsDir, desc.ID, rec.StartTime, r.previewBytes)
	if err != nil {
		// Log directory trouble is a filesystem permission problem,
		// not a tool problem, but the batch still moves on.
		r.logger.Error("opening capture logs", "tool", desc.ID, "error", err)
		return r.finish(rec, StatusPermissionDenied, err.Error())
	}
	rec.StdoutLog = capt.stdoutPath
	rec.StderrLog = capt.stderrPath

	cmd := exec.Command(exePath, argv...)
	cmd.Stdout = capt.StdoutWriter()
	cmd.Stderr = capt.StderrWriter()
	// A descendant that inherited the output pipes can hold them open
	// after the tool exits (or after a kill misses it); without a drain
	// bound cmd.Wait would block on the pipe copiers indefinitely.
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		capt.Close()
		return r.spawnFailure(rec, desc, err)
	}

	r.logger.Info("tool running", "tool", desc.ID, "pid", cmd.Process.Pid, "timeout", desc.Timeout)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if desc.Timeout > 0 {
		timer := time.NewTimer(desc.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var status Status
	var message string
	var waitErr error

	select {
	case waitErr = <-done:
		status, message = exitStatus(&rec, cmd, waitErr)

	case <-timeoutCh:
		// A timeout is always reported as timed out, even if the kill
		// itself could not be confirmed.
		if killErr := terminateTree(cmd); killErr != nil {
			r.logger.Warn("terminating timed-out tool", "tool", desc.ID, "error", killErr)
		}
		<-done // reap
		status, message = StatusTimedOut, "exceeded timeout of "+desc.Timeout.String()

	case <-ctx.Done():
		if killErr := terminateTree(cmd); killErr != nil {
			r.logger.Warn("terminating cancelled tool", "tool", desc.ID, "error", killErr)
		}
		<-done
		status, message = StatusCancelled, "batch cancelled"
	}

	if err := capt.Close(); err != nil {
		r.logger.Warn("closing capture logs", "tool", desc.ID, "error", err)
	}
	rec.OutputPreview = capt.Preview()

	return r.finish(rec, status, message)
}

// pipeDrainDelay bounds how long Wait may block on the output pipes
// once the tool itself has exited.
const pipeDrainDelay = 3 * time.Second

// exitStatus classifies a completed cmd.Wait result.
func exitStatus(rec *ExecutionRecord, cmd *exec.Cmd, waitErr error) (Status, string) {
	if waitErr == nil {
		zero := 0
		rec.ExitCode = &zero
		return StatusSuccess, ""
	}

	// The tool exited but something it spawned kept a pipe open past the
	// drain bound. The tool's own exit status is what the record is about.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			rec.ExitCode = &code
		}
		if cmd.ProcessState.Success() {
			return StatusSuccess, ""
		}
		return StatusNonZeroExit, cmd.ProcessState.String()
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			rec.ExitCode = &code
		}
		return StatusNonZeroExit, waitErr.Error()
	}

	// Wait failed without the process reporting an exit code.
	return StatusNonZeroExit, waitErr.Error()
}

// spawnFailure classifies a Start error into a per-tool status.
func (r *Runner) spawnFailure(rec ExecutionRecord, desc registry.ToolDescriptor, err error) ExecutionRecord {
	r.logger.Info("tool failed to start", "tool", desc.ID, "error", err)

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		// The executable vanished between resolution and spawn.
		rec.InstallHint = hints.For(desc.InstallHints)
		return r.finish(rec, StatusNotFound, err.Error())
	}

	// Exec permission failures and everything else the OS refuses land
	// here; the install hint often names the elevation the tool needs.
	rec.InstallHint = hints.For(desc.InstallHints)
	return r.finish(rec, StatusPermissionDenied, err.Error())
}

func (r *Runner) finish(rec ExecutionRecord, status Status, message string) ExecutionRecord {
	rec.Status = status
	rec.ErrorMessage = message
	rec.EndTime = time.Now()
	return rec
}

// findExecutable resolves a command name or path to something runnable:
// explicit paths first, then the configured tool directories, then the
// system search path.
func (r *Runner) findExecutable(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty executable name")
	}

	if strings.ContainsRune(name, os.PathSeparator) {
		if isExecutableFile(name) {
			return name, nil
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}

	for _, dir := range r.toolPaths {
		candidate := filepath.Join(dir, name)
		if isExecutableFile(candidate) {
			return candidate, nil
		}
	}

	return exec.LookPath(name)
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
