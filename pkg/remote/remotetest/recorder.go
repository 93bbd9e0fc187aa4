package remotetest

import (
	"sync"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// RecordingExecutor implements remote.Executor without any network. It
// records every command it is asked to run and answers through the
// Respond function, or with empty success when Respond is nil.
type RecordingExecutor struct {
	// Respond supplies the fake result for a command.
	Respond func(cmd remote.Command) (*remote.Output, error)

	mu   sync.Mutex
	cmds []remote.Command
}

var _ remote.Executor = (*RecordingExecutor)(nil)

// Execute implements remote.Executor.
func (r *RecordingExecutor) Execute(cmd remote.Command) (*remote.Output, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()

	if r.Respond != nil {
		return r.Respond(cmd)
	}
	return &remote.Output{}, nil
}

// Commands returns every executed command in order.
func (r *RecordingExecutor) Commands() []remote.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]remote.Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

// Texts returns the raw text of every executed command in order.
func (r *RecordingExecutor) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cmds))
	for i, c := range r.cmds {
		out[i] = c.String()
	}
	return out
}

// Stdout is a convenience for scripting responses: an Output with the
// given text as stdout and exit status zero.
func Stdout(text string) *remote.Output {
	return &remote.Output{Stdout: []byte(text)}
}
