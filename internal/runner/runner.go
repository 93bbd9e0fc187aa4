// Package runner executes manifests against remote hosts.
package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/eugenetaranov/rivet/internal/manifest"
	"github.com/eugenetaranov/rivet/internal/output"
	"github.com/eugenetaranov/rivet/pkg/remote"
)

// Runner runs manifests.
type Runner struct {
	// Output handles formatted output.
	Output *output.Output

	// DryRun only echoes commands without running them.
	DryRun bool
}

// New creates a new runner.
func New() *Runner {
	return &Runner{
		Output: output.New(os.Stdout),
	}
}

// RunResult holds the result of a manifest run.
type RunResult struct {
	// Success is true if no step failed or timed out.
	Success bool

	// Stats holds execution statistics.
	Stats *Stats
}

// Stats holds execution statistics.
type Stats struct {
	Steps     int
	OK        int
	Failed    int
	Spawned   int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the total execution time.
func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// GetOK returns the OK count (implements output.Stats).
func (s *Stats) GetOK() int { return s.OK }

// GetFailed returns the Failed count (implements output.Stats).
func (s *Stats) GetFailed() int { return s.Failed }

// GetSpawned returns the Spawned count (implements output.Stats).
func (s *Stats) GetSpawned() int { return s.Spawned }

// GetDuration returns the duration (implements output.Stats).
func (s *Stats) GetDuration() time.Duration { return s.Duration() }

// pending tracks one background step awaiting collection.
type pending struct {
	step   *manifest.Step
	handle *remote.SpawnHandle
}

// Run executes the manifest's steps on sh, in order.
//
// Sequential steps block until the remote command finishes. Background
// steps are spawned on their own duplicated connections and collected
// after the last sequential step; a background step therefore has no
// ordering relationship with the steps that follow it. The first
// failing sequential step stops the run, but background steps already
// in flight are still collected so their connections are reclaimed.
func (r *Runner) Run(sh *remote.Shell, m *manifest.Manifest) (*RunResult, error) {
	stats := &Stats{
		StartTime: time.Now(),
		Steps:     len(m.Steps),
	}
	result := &RunResult{
		Success: true,
		Stats:   stats,
	}

	sh.SetDryRun(r.DryRun)
	r.Output.ManifestStart(m.Path)

	var background []pending
	for _, step := range m.Steps {
		if step.Background {
			handle, err := sh.Spawn(step.Command())
			if err != nil {
				stats.Failed++
				result.Success = false
				r.Output.StepResult(step.String(), output.StatusFailed, err.Error())
				break
			}
			stats.Spawned++
			r.Output.StepResult(step.String(), output.StatusSpawned, "running in background")
			background = append(background, pending{step: step, handle: handle})
			continue
		}

		if !r.runStep(sh, step, stats) {
			result.Success = false
			break
		}
	}

	for _, p := range background {
		if !r.collect(p, stats) {
			result.Success = false
		}
	}

	stats.EndTime = time.Now()
	r.Output.ManifestEnd(stats)
	return result, nil
}

// runStep runs one sequential step and reports whether the run may
// continue. Steps with a timeout are spawned so that an expired wait
// abandons the command on its own connection instead of wedging sh.
func (r *Runner) runStep(sh *remote.Shell, step *manifest.Step, stats *Stats) bool {
	if d := step.GetTimeout(); d > 0 {
		handle, err := sh.Spawn(step.Command())
		if err != nil {
			stats.Failed++
			r.Output.StepResult(step.String(), output.StatusFailed, err.Error())
			return false
		}
		return r.join(step, handle, d, stats)
	}

	out, err := sh.Execute(step.Command())
	return r.report(step, out, err, stats)
}

// collect joins one background step, honoring its timeout if set.
func (r *Runner) collect(p pending, stats *Stats) bool {
	return r.join(p.step, p.handle, p.step.GetTimeout(), stats)
}

// join waits for a spawned step's result. A zero timeout waits
// forever. On expiry the remote command is abandoned, not killed: the
// goroutine keeps draining it and its connection is closed once the
// command eventually finishes.
func (r *Runner) join(step *manifest.Step, handle *remote.SpawnHandle, timeout time.Duration, stats *Stats) bool {
	type joined struct {
		out *remote.Output
		sh  *remote.Shell
		err error
	}
	done := make(chan joined, 1)
	go func() {
		out, sh, err := handle.Join()
		done <- joined{out, sh, err}
	}()

	if timeout <= 0 {
		j := <-done
		if j.sh != nil {
			j.sh.Close()
		}
		return r.report(step, j.out, j.err, stats)
	}

	select {
	case j := <-done:
		if j.sh != nil {
			j.sh.Close()
		}
		return r.report(step, j.out, j.err, stats)
	case <-time.After(timeout):
		go func() {
			if j := <-done; j.sh != nil {
				j.sh.Close()
			}
		}()
		stats.Failed++
		r.Output.StepResult(step.String(), output.StatusTimeout,
			fmt.Sprintf("no result after %s, command abandoned", timeout))
		return false
	}
}

// report records one finished step and reports whether the run may
// continue.
func (r *Runner) report(step *manifest.Step, out *remote.Output, err error, stats *Stats) bool {
	if err != nil {
		stats.Failed++
		r.Output.StepResult(step.String(), output.StatusFailed, err.Error())
		var cmdErr *remote.CommandError
		if errors.As(err, &cmdErr) {
			r.Output.StepStream("stdout", cmdErr.Stdout)
			r.Output.StepStream("stderr", cmdErr.Stderr)
		}
		return false
	}

	stats.OK++
	msg := ""
	if out.ExitStatus != 0 {
		msg = fmt.Sprintf("exit status %d (allowed)", out.ExitStatus)
	}
	r.Output.StepResult(step.String(), output.StatusOK, msg)
	r.Output.StepStream("stdout", out.Stdout)
	r.Output.StepStream("stderr", out.Stderr)
	return true
}
