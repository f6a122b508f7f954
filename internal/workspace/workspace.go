// Package workspace lays out the per-run output directory: capture logs,
// the record journal, and the committed report all live under one
// timestamped directory so concurrent runs never collide and a run's
// artifacts can be archived or deleted as a unit.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Workspace is the on-disk home of one orchestration run.
type Workspace struct {
	Root string
}

// Create makes a fresh workspace under baseDir, named after the target
// and the current time.
func Create(baseDir, target string) (*Workspace, error) {
	stamp := time.Now().Format("20060102-150405")
	name := fmt.Sprintf("%s-%s", sanitize(target), stamp)
	root := filepath.Join(baseDir, name)

	for _, sub := range []string{"logs", "reports"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("workspace: creating %s: %w", sub, err)
		}
	}

	return &Workspace{Root: root}, nil
}

// LogsDir is where per-invocation capture log pairs go.
func (w *Workspace) LogsDir() string {
	return filepath.Join(w.Root, "logs")
}

// ReportPath is the canonical committed report for this run.
func (w *Workspace) ReportPath() string {
	return filepath.Join(w.Root, "reports", "report.json")
}

// JournalPath is the append-only record journal for this run.
func (w *Workspace) JournalPath() string {
	return filepath.Join(w.Root, "reports", "records.jsonl")
}

// LatestReportPath is the stable location under baseDir that always
// points at the most recently committed report.
func LatestReportPath(baseDir string) string {
	return filepath.Join(baseDir, "latest.json")
}

// Logger builds the run's orchestration logger. It always writes to the
// workspace log file; console output on w additionally when verbose.
func (w *Workspace) Logger(console io.Writer, verbose bool) (*log.Logger, error) {
	f, err := os.OpenFile(filepath.Join(w.LogsDir(), "launcher.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("workspace: opening launcher log: %w", err)
	}

	var out io.Writer = f
	if verbose && console != nil {
		out = io.MultiWriter(console, f)
	}

	logger := log.New(out)
	logger.SetReportTimestamp(true)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	return logger, nil
}

// sanitize keeps target-derived directory names filesystem-safe.
func sanitize(s string) string {
	if s == "" {
		return "run"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(s)
}
