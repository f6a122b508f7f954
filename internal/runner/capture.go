package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPreviewBytes caps how much stdout is kept in memory for the
// record's output preview. Everything else only ever touches the log
// files, so tools that stream indefinitely (packet capture) cannot grow
// launcher memory.
const DefaultPreviewBytes = 512

// capture owns the per-invocation log file pair for a run-and-capture
// tool. Bytes flow from the child's pipes straight into the files; the
// only in-memory copy is the bounded preview buffer.
type capture struct {
	stdoutPath string
	stderrPath string
	stdout     *os.File
	stderr     *os.File
	preview    *previewBuffer
}

// newCapture creates the log file pair under dir, keyed by tool id and
// invocation timestamp so repeated runs in one session never collide.
// The files exist from this point on regardless of how the invocation
// ends.
func newCapture(dir, toolID string, started time.Time, previewLimit int) (*capture, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	stamp := started.Format("20060102-150405.000")
	base := fmt.Sprintf("%s_%s", toolID, stamp)

	c := &capture{
		stdoutPath: filepath.Join(dir, base+".stdout.log"),
		stderrPath: filepath.Join(dir, base+".stderr.log"),
		preview:    &previewBuffer{limit: previewLimit},
	}

	var err error
	if c.stdout, err = os.Create(c.stdoutPath); err != nil {
		return nil, fmt.Errorf("creating stdout log: %w", err)
	}
	if c.stderr, err = os.Create(c.stderrPath); err != nil {
		c.stdout.Close()
		return nil, fmt.Errorf("creating stderr log: %w", err)
	}

	return c, nil
}

// StdoutWriter returns the destination for the child's stdout stream.
func (c *capture) StdoutWriter() io.Writer {
	return io.MultiWriter(c.stdout, c.preview)
}

// StderrWriter returns the destination for the child's stderr stream.
func (c *capture) StderrWriter() io.Writer {
	return c.stderr
}

// Close flushes and closes both log files. Safe to call on every exit
// path, including timeout and cancellation kills.
func (c *capture) Close() error {
	var firstErr error
	for _, f := range []*os.File{c.stdout, c.stderr} {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.stdout, c.stderr = nil, nil
	return firstErr
}

// Preview returns the captured head of stdout.
func (c *capture) Preview() string {
	return c.preview.String()
}

// previewBuffer keeps the first limit bytes written to it and discards
// the rest. Writes never fail so it is safe inside a MultiWriter ahead
// of the log file.
type previewBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (p *previewBuffer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if remaining := p.limit - len(p.buf); remaining > 0 {
		if len(b) > remaining {
			p.buf = append(p.buf, b[:remaining]...)
		} else {
			p.buf = append(p.buf, b...)
		}
	}
	return len(b), nil
}

func (p *previewBuffer) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.buf)
}
