// Package sysmon samples system load so the batch controller can hold
// back concurrent dispatch while the machine is saturated. Privileged
// capture tools and parallel scans are exactly the workloads that make
// an unbounded fan-out hurt.
package sysmon

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultParallelCeiling bounds the default worker count regardless of
// how many cores the machine has.
const DefaultParallelCeiling = 4

// DefaultParallel returns the default worker pool size: the number of
// logical processing units, capped at the safety ceiling.
func DefaultParallel() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	if n > DefaultParallelCeiling {
		return DefaultParallelCeiling
	}
	if n < 1 {
		return 1
	}
	return n
}

// Monitor gates dispatch on CPU and memory ceilings.
type Monitor struct {
	maxCPUPercent float64
	maxMemPercent float64
	logger        *log.Logger

	mu         sync.Mutex
	lastSample time.Time
	lastCPU    float64
	lastMem    float64
}

// New creates a monitor. Ceilings at or below zero disable that check.
func New(maxCPUPercent, maxMemPercent float64, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr)
		logger.SetLevel(log.ErrorLevel)
	}
	return &Monitor{
		maxCPUPercent: maxCPUPercent,
		maxMemPercent: maxMemPercent,
		logger:        logger,
	}
}

// Allow reports whether current load is under the configured ceilings.
// Samples are cached briefly so a burst of workers does not hammer the
// kernel counters.
func (m *Monitor) Allow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastSample) > time.Second {
		if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
			m.lastCPU = percents[0]
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			m.lastMem = vm.UsedPercent
		}
		m.lastSample = time.Now()
	}

	if m.maxCPUPercent > 0 && m.lastCPU > m.maxCPUPercent {
		m.logger.Debug("dispatch held: cpu over ceiling", "current", m.lastCPU, "max", m.maxCPUPercent)
		return false
	}
	if m.maxMemPercent > 0 && m.lastMem > m.maxMemPercent {
		m.logger.Debug("dispatch held: memory over ceiling", "current", m.lastMem, "max", m.maxMemPercent)
		return false
	}
	return true
}

// WaitUntilAllowed blocks until Allow passes, ctx is done, or maxWait
// elapses. It always returns eventually: resource gating slows a batch
// down, it never deadlocks one.
func (m *Monitor) WaitUntilAllowed(ctx context.Context, maxWait time.Duration) {
	if m.Allow() {
		return
	}

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Allow() || time.Now().After(deadline) {
				return
			}
		}
	}
}
