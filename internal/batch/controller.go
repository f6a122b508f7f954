// Package batch drives a set of tool descriptors through the process
// runner, either strictly in registry order or under a bounded worker
// pool. One tool's failure never halts the batch: a run over N tools is
// expected to partially fail without losing the other N-1 results.
package batch

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/your-org/cmtl/internal/registry"
	"github.com/your-org/cmtl/internal/report"
	"github.com/your-org/cmtl/internal/runner"
	"github.com/your-org/cmtl/internal/sysmon"
)

// Mode selects the batch scheduling policy.
type Mode int

const (
	// Sequential runs tools one at a time in registry order.
	Sequential Mode = iota

	// Concurrent runs tools under a bounded worker pool. Completion
	// order is unspecified; record order still follows dispatch order.
	Concurrent
)

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "concurrent"
}

// gateWait bounds how long a worker defers to the resource monitor
// before dispatching anyway.
const gateWait = 30 * time.Second

// Options configures a Controller.
type Options struct {
	// MaxParallel bounds the worker pool in Concurrent mode. Zero or
	// negative selects sysmon.DefaultParallel().
	MaxParallel int

	// Monitor, when set, delays concurrent dispatch while system load
	// is over its ceilings.
	Monitor *sysmon.Monitor

	Logger *log.Logger
}

// Controller schedules process-runner invocations for one batch.
type Controller struct {
	runner      *runner.Runner
	maxParallel int
	monitor     *sysmon.Monitor
	logger      *log.Logger
}

// New creates a batch controller around the given runner.
func New(r *runner.Runner, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
		logger.SetLevel(log.ErrorLevel)
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = sysmon.DefaultParallel()
	}
	return &Controller{
		runner:      r,
		maxParallel: maxParallel,
		monitor:     opts.Monitor,
		logger:      logger,
	}
}

// MaxParallel returns the effective worker pool bound.
func (c *Controller) MaxParallel() int {
	return c.maxParallel
}

// Run executes every descriptor and stores one record per descriptor in
// the aggregator, at the descriptor's dispatch index. Cancelling ctx
// kills in-flight tools and records Cancelled for everything not yet
// finished; no descriptor is ever silently omitted.
func (c *Controller) Run(ctx context.Context, descs []registry.ToolDescriptor, target string, mode Mode, agg *report.Aggregator) {
	c.logger.Info("batch starting",
		"tools", len(descs), "target", target, "mode", mode, "max_parallel", c.maxParallel)

	start := time.Now()
	if mode == Sequential {
		c.runSequential(ctx, descs, target, agg)
	} else {
		c.runConcurrent(ctx, descs, target, agg)
	}
	c.logger.Info("batch finished", "tools", len(descs), "elapsed", time.Since(start).Round(time.Millisecond))
}

func (c *Controller) runSequential(ctx context.Context, descs []registry.ToolDescriptor, target string, agg *report.Aggregator) {
	for i, desc := range descs {
		// The runner short-circuits to a Cancelled record once ctx is
		// done, so a mid-batch abort still yields a record per tool.
		rec := c.runner.Run(ctx, desc, target)
		agg.Record(i, rec)
		c.logRecord(rec)
	}
}

func (c *Controller) runConcurrent(ctx context.Context, descs []registry.ToolDescriptor, target string, agg *report.Aggregator) {
	sem := make(chan struct{}, c.maxParallel)
	var wg sync.WaitGroup

	for i, desc := range descs {
		wg.Add(1)
		go func(i int, desc registry.ToolDescriptor) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				if c.monitor != nil {
					c.monitor.WaitUntilAllowed(ctx, gateWait)
				}
				rec := c.runner.Run(ctx, desc, target)
				agg.Record(i, rec)
				c.logRecord(rec)

			case <-ctx.Done():
				// Never started; still produces its record.
				rec := c.runner.Run(ctx, desc, target)
				agg.Record(i, rec)
				c.logRecord(rec)
			}
		}(i, desc)
	}

	wg.Wait()
}

func (c *Controller) logRecord(rec runner.ExecutionRecord) {
	if rec.Failed() {
		c.logger.Warn("tool did not succeed",
			"tool", rec.ToolID, "status", rec.Status, "elapsed", rec.Duration().Round(time.Millisecond))
		return
	}
	c.logger.Info("tool finished",
		"tool", rec.ToolID, "status", rec.Status, "elapsed", rec.Duration().Round(time.Millisecond))
}
