// Package report accumulates execution records into a batch report and
// commits it to durable storage atomically. The aggregator is the only
// writer of the in-memory report; workers hand records to it and never
// touch the report directly.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/your-org/cmtl/internal/runner"
)

// BatchReport is the durable summary of one orchestration run. Records
// are kept in dispatch order regardless of completion order, so reports
// stay reproducible across runs with the same registry.
type BatchReport struct {
	RunID     string                   `json:"run_id"`
	Target    string                   `json:"target"`
	StartedAt time.Time                `json:"started_at"`
	Records   []runner.ExecutionRecord `json:"records"`

	// FinalizedAt is zero until the report is committed; its absence in
	// a stored report signals a crashed or incomplete run.
	FinalizedAt time.Time `json:"finalized_at,omitzero"`
}

// Aggregator collects records for one batch. Appends are serialized
// even when execution is parallel.
type Aggregator struct {
	mu      sync.Mutex
	report  BatchReport
	journal *os.File
	logger  *log.Logger
}

// Options configures an Aggregator.
type Options struct {
	// JournalPath, when set, enables the append-only record journal:
	// each completed record is written as one JSON line as it lands, so
	// partial progress survives a crash even though the canonical
	// report only appears on clean commit.
	JournalPath string

	Logger *log.Logger
}

// New starts an aggregator for a batch of size n against target.
func New(target string, n int, opts Options) (*Aggregator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
		logger.SetLevel(log.ErrorLevel)
	}

	a := &Aggregator{
		report: BatchReport{
			RunID:     uuid.NewString(),
			Target:    target,
			StartedAt: time.Now(),
			Records:   make([]runner.ExecutionRecord, n),
		},
		logger: logger,
	}

	if opts.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.JournalPath), 0755); err != nil {
			return nil, fmt.Errorf("report: creating journal directory: %w", err)
		}
		f, err := os.OpenFile(opts.JournalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("report: opening journal: %w", err)
		}
		a.journal = f
	}

	return a, nil
}

// Record stores the record for dispatch slot i and journals it
// immediately. Each slot is written exactly once; the record is
// treated as terminal from here on.
func (a *Aggregator) Record(i int, rec runner.ExecutionRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i < 0 || i >= len(a.report.Records) {
		a.logger.Error("record index out of range", "index", i, "size", len(a.report.Records))
		return
	}
	a.report.Records[i] = rec

	if a.journal != nil {
		line, err := json.Marshal(rec)
		if err != nil {
			a.logger.Warn("journaling record", "tool", rec.ToolID, "error", err)
			return
		}
		line = append(line, '\n')
		if _, err := a.journal.Write(line); err != nil {
			a.logger.Warn("journaling record", "tool", rec.ToolID, "error", err)
			return
		}
		if err := a.journal.Sync(); err != nil {
			a.logger.Warn("syncing journal", "tool", rec.ToolID, "error", err)
		}
	}
}

// Report returns a copy of the report accumulated so far.
func (a *Aggregator) Report() BatchReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.report
	out.Records = make([]runner.ExecutionRecord, len(a.report.Records))
	copy(out.Records, a.report.Records)
	return out
}

// Commit stamps the report as finalized and writes it to path using
// write-then-rename, so readers never observe a half-written report and
// a failed commit leaves any previous report at path intact.
func (a *Aggregator) Commit(path string) (BatchReport, error) {
	a.mu.Lock()
	a.report.FinalizedAt = time.Now()
	snapshot := a.report
	a.mu.Unlock()

	if err := writeAtomic(path, snapshot); err != nil {
		return snapshot, fmt.Errorf("report: committing %s: %w", path, err)
	}

	a.logger.Info("report committed", "path", path, "records", len(snapshot.Records))
	return snapshot, nil
}

// Close releases the journal file, if any.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.journal == nil {
		return nil
	}
	err := a.journal.Close()
	a.journal = nil
	return err
}

// writeAtomic marshals v and replaces path in one rename. The temp file
// lives in the same directory so the rename stays on one filesystem.
func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadJournal loads records from an append-only journal written by a
// previous (possibly crashed) run. Truncated trailing lines are skipped.
func ReadJournal(path string) ([]runner.ExecutionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []runner.ExecutionRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec runner.ExecutionRecord
		if err := dec.Decode(&rec); err != nil {
			break // partial trailing write
		}
		records = append(records, rec)
	}
	return records, nil
}
