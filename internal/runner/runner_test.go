package runner

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/eugenetaranov/rivet/internal/manifest"
	"github.com/eugenetaranov/rivet/internal/output"
	"github.com/eugenetaranov/rivet/pkg/remote"
	"github.com/eugenetaranov/rivet/pkg/remote/remotetest"
)

// testRun executes the given steps against an in-process SSH server
// and returns the run result, the recap output and the server.
func testRun(t *testing.T, r *Runner, steps []*manifest.Step) (*RunResult, string, *remotetest.Server) {
	t.Helper()

	srv, err := remotetest.NewServer()
	if err != nil {
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(srv.Close)

	sh, err := remote.Connect(remote.Identity{User: "root"}, srv.Addr(),
		remote.WithDiagnostics(io.Discard))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { sh.Close() })

	var buf bytes.Buffer
	r.Output = output.New(&buf)
	r.Output.SetColor(false)

	m := &manifest.Manifest{
		Path:   "test.yaml",
		Target: srv.Addr(),
		User:   "root",
		Steps:  steps,
	}
	result, err := r.Run(sh, m)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return result, buf.String(), srv
}

func TestRunSequential(t *testing.T) {
	result, out, _ := testRun(t, New(), []*manifest.Step{
		{Name: "greet", Cmd: "echo hello"},
		{Name: "where", Cmd: "pwd"},
	})

	if !result.Success {
		t.Error("expected successful run")
	}
	if result.Stats.OK != 2 {
		t.Errorf("OK = %d, want 2", result.Stats.OK)
	}
	if result.Stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Stats.Failed)
	}
	if !strings.Contains(out, "ok=2") {
		t.Errorf("expected ok=2 in recap, got %q", out)
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	result, out, srv := testRun(t, New(), []*manifest.Step{
		{Name: "boom", Cmd: "false"},
		{Name: "after", Cmd: "echo never"},
	})

	if result.Success {
		t.Error("expected failed run")
	}
	if result.Stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Stats.Failed)
	}
	if result.Stats.OK != 0 {
		t.Errorf("OK = %d, want 0", result.Stats.OK)
	}
	for _, cmd := range srv.Commands() {
		if strings.Contains(cmd, "echo never") {
			t.Error("step after the failure was still executed")
		}
	}
	if !strings.Contains(out, "✗ boom") {
		t.Errorf("expected failure indicator, got %q", out)
	}
}

func TestRunAllowError(t *testing.T) {
	result, _, srv := testRun(t, New(), []*manifest.Step{
		{Name: "boom", Cmd: "false", AllowError: true},
		{Name: "after", Cmd: "echo still here"},
	})

	if !result.Success {
		t.Error("expected successful run")
	}
	if result.Stats.OK != 2 {
		t.Errorf("OK = %d, want 2", result.Stats.OK)
	}

	ran := false
	for _, cmd := range srv.Commands() {
		if strings.Contains(cmd, "echo still here") {
			ran = true
		}
	}
	if !ran {
		t.Error("step after the allowed failure did not run")
	}
}

func TestRunBackground(t *testing.T) {
	result, out, _ := testRun(t, New(), []*manifest.Step{
		{Name: "slow", Cmd: "sleep 0.2", Background: true},
		{Name: "fast", Cmd: "echo done"},
	})

	if !result.Success {
		t.Error("expected successful run")
	}
	if result.Stats.Spawned != 1 {
		t.Errorf("Spawned = %d, want 1", result.Stats.Spawned)
	}
	if result.Stats.OK != 2 {
		t.Errorf("OK = %d, want 2", result.Stats.OK)
	}
	if !strings.Contains(out, "» slow") {
		t.Errorf("expected spawn indicator, got %q", out)
	}
	if !strings.Contains(out, "spawned=1") {
		t.Errorf("expected spawned=1 in recap, got %q", out)
	}
}

func TestRunBackgroundFailureCollected(t *testing.T) {
	result, _, _ := testRun(t, New(), []*manifest.Step{
		{Name: "bg", Cmd: "exit 3", Background: true},
		{Name: "fg", Cmd: "echo ok"},
	})

	if result.Success {
		t.Error("expected failed run")
	}
	if result.Stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Stats.Failed)
	}
	// the sequential step ran before the background result came in
	if result.Stats.OK != 1 {
		t.Errorf("OK = %d, want 1", result.Stats.OK)
	}
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	result, out, _ := testRun(t, New(), []*manifest.Step{
		{Name: "stuck", Cmd: "sleep 2", Background: true, Timeout: "100ms"},
	})

	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("run waited %s, should have abandoned the command", elapsed)
	}
	if result.Success {
		t.Error("expected failed run")
	}
	if result.Stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Stats.Failed)
	}
	if !strings.Contains(out, "✗ stuck") {
		t.Errorf("expected timeout indicator, got %q", out)
	}
}

func TestRunSequentialTimeout(t *testing.T) {
	result, _, srv := testRun(t, New(), []*manifest.Step{
		{Name: "stuck", Cmd: "sleep 2", Timeout: "100ms"},
		{Name: "after", Cmd: "echo never"},
	})

	if result.Success {
		t.Error("expected failed run")
	}
	for _, cmd := range srv.Commands() {
		if strings.Contains(cmd, "echo never") {
			t.Error("step after the timeout was still executed")
		}
	}
	if result.Stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Stats.Failed)
	}
}

func TestRunDryRun(t *testing.T) {
	r := New()
	r.DryRun = true
	result, _, srv := testRun(t, r, []*manifest.Step{
		{Name: "wipe", Cmd: "echo dangerous"},
	})

	if !result.Success {
		t.Error("expected successful dry run")
	}
	if result.Stats.OK != 1 {
		t.Errorf("OK = %d, want 1", result.Stats.OK)
	}
	if got := srv.Commands(); len(got) != 0 {
		t.Errorf("dry run reached the server: %v", got)
	}
}
