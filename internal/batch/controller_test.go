package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/your-org/cmtl/internal/registry"
	"github.com/your-org/cmtl/internal/report"
	"github.com/your-org/cmtl/internal/runner"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh and sleep")
	}
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	return runner.New(filepath.Join(t.TempDir(), "logs"), runner.Options{})
}

func captureTool(id, script string) registry.ToolDescriptor {
	return registry.ToolDescriptor{
		ID:      id,
		Command: []string{"sh", "-c", script},
		Mode:    registry.RunAndCapture,
	}
}

func TestSequentialRecordsEveryTool(t *testing.T) {
	skipOnWindows(t)

	descs := []registry.ToolDescriptor{
		captureTool("ok", "echo fine"),
		{ID: "missing", Command: []string{"no-such-tool-abc"}, Mode: registry.RunAndCapture},
		captureTool("bad", "exit 2"),
	}

	agg, err := report.New("x", len(descs), report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	ctrl := New(newTestRunner(t), Options{})
	ctrl.Run(context.Background(), descs, "x", Sequential, agg)

	rep := agg.Report()
	if len(rep.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(rep.Records))
	}

	wantStatus := []runner.Status{runner.StatusSuccess, runner.StatusNotFound, runner.StatusNonZeroExit}
	for i, want := range wantStatus {
		if rep.Records[i].Status != want {
			t.Errorf("record %d (%s): expected %v, got %v",
				i, rep.Records[i].ToolID, want, rep.Records[i].Status)
		}
	}
	if rep.Records[0].ToolID != "ok" || rep.Records[1].ToolID != "missing" || rep.Records[2].ToolID != "bad" {
		t.Errorf("Records out of dispatch order: %s %s %s",
			rep.Records[0].ToolID, rep.Records[1].ToolID, rep.Records[2].ToolID)
	}
}

func TestSequentialFailureDoesNotHaltBatch(t *testing.T) {
	skipOnWindows(t)

	descs := []registry.ToolDescriptor{
		captureTool("first", "exit 1"),
		captureTool("second", "echo still here"),
	}

	agg, err := report.New("x", len(descs), report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	New(newTestRunner(t), Options{}).Run(context.Background(), descs, "x", Sequential, agg)

	rep := agg.Report()
	if rep.Records[1].Status != runner.StatusSuccess {
		t.Errorf("Tool after a failure should still run, got %v", rep.Records[1].Status)
	}
}

func TestConcurrentDispatchOrderPreserved(t *testing.T) {
	skipOnWindows(t)

	// Earlier slots sleep longer, so completion order inverts dispatch
	// order and only slot indexing can keep the report stable.
	descs := []registry.ToolDescriptor{
		captureTool("slowest", "sleep 0.3; echo a"),
		captureTool("middle", "sleep 0.15; echo b"),
		captureTool("fastest", "echo c"),
	}

	agg, err := report.New("x", len(descs), report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	ctrl := New(newTestRunner(t), Options{MaxParallel: 3})
	ctrl.Run(context.Background(), descs, "x", Concurrent, agg)

	rep := agg.Report()
	want := []string{"slowest", "middle", "fastest"}
	for i, id := range want {
		if rep.Records[i].ToolID != id {
			t.Errorf("slot %d: expected %s, got %s", i, id, rep.Records[i].ToolID)
		}
		if rep.Records[i].Status != runner.StatusSuccess {
			t.Errorf("slot %d: expected success, got %v", i, rep.Records[i].Status)
		}
	}
}

func TestConcurrentRespectsParallelBound(t *testing.T) {
	skipOnWindows(t)

	const n = 4
	const sleep = 300 * time.Millisecond

	descs := make([]registry.ToolDescriptor, n)
	for i := range descs {
		descs[i] = captureTool(fmt.Sprintf("sleep-%d", i), "sleep 0.3")
	}

	agg, err := report.New("x", n, report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	ctrl := New(newTestRunner(t), Options{MaxParallel: 2})
	if ctrl.MaxParallel() != 2 {
		t.Fatalf("Expected MaxParallel 2, got %d", ctrl.MaxParallel())
	}

	start := time.Now()
	ctrl.Run(context.Background(), descs, "x", Concurrent, agg)
	elapsed := time.Since(start)

	// Four 300ms sleeps through two workers need at least two waves.
	if elapsed < 2*sleep {
		t.Errorf("Batch finished in %v, bound of 2 was not enforced", elapsed)
	}

	for i, r := range agg.Report().Records {
		if r.Status != runner.StatusSuccess {
			t.Errorf("record %d: expected success, got %v", i, r.Status)
		}
	}
}

func TestConcurrentCancellationRecordsEverything(t *testing.T) {
	skipOnWindows(t)

	const n = 6
	descs := make([]registry.ToolDescriptor, n)
	for i := range descs {
		descs[i] = captureTool(fmt.Sprintf("long-%d", i), "sleep 30")
	}

	agg, err := report.New("x", n, report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	ctrl := New(newTestRunner(t), Options{MaxParallel: 2})

	start := time.Now()
	ctrl.Run(ctx, descs, "x", Concurrent, agg)
	elapsed := time.Since(start)

	if elapsed > 10*time.Second {
		t.Errorf("Cancelled batch took %v", elapsed)
	}

	rep := agg.Report()
	if len(rep.Records) != n {
		t.Fatalf("Expected %d records, got %d", n, len(rep.Records))
	}
	for i, r := range rep.Records {
		if r.ToolID == "" {
			t.Errorf("record %d is missing, every descriptor must yield a record", i)
			continue
		}
		if r.Status != runner.StatusCancelled {
			t.Errorf("record %d (%s): expected cancelled, got %v", i, r.ToolID, r.Status)
		}
	}
}

func TestSequentialCancellationRecordsRemainder(t *testing.T) {
	skipOnWindows(t)

	descs := []registry.ToolDescriptor{
		captureTool("running", "sleep 30"),
		captureTool("queued-1", "echo never"),
		captureTool("queued-2", "echo never"),
	}

	agg, err := report.New("x", len(descs), report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	New(newTestRunner(t), Options{}).Run(ctx, descs, "x", Sequential, agg)

	rep := agg.Report()
	for i, r := range rep.Records {
		if r.Status != runner.StatusCancelled {
			t.Errorf("record %d (%s): expected cancelled, got %v", i, r.ToolID, r.Status)
		}
	}
}

func TestTimeoutThenSuccessSequential(t *testing.T) {
	skipOnWindows(t)

	descs := []registry.ToolDescriptor{
		{
			ID:      "hung",
			Command: []string{"sleep", "30"},
			Mode:    registry.RunAndCapture,
			Timeout: 500 * time.Millisecond,
		},
		captureTool("after", "echo made it"),
	}

	agg, err := report.New("x", len(descs), report.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close()

	New(newTestRunner(t), Options{}).Run(context.Background(), descs, "x", Sequential, agg)

	rep := agg.Report()
	if rep.Records[0].Status != runner.StatusTimedOut {
		t.Errorf("Expected first tool to time out, got %v", rep.Records[0].Status)
	}
	if rep.Records[1].Status != runner.StatusSuccess {
		t.Errorf("Tool after a timeout should still run, got %v", rep.Records[1].Status)
	}
}

func TestDefaultMaxParallel(t *testing.T) {
	ctrl := New(newTestRunner(t), Options{})
	if got := ctrl.MaxParallel(); got < 1 {
		t.Errorf("Default MaxParallel must be at least 1, got %d", got)
	}
}
