package remote

import "sync"

// SpawnHandle tracks one spawned command. Join collects the result
// exactly once; a handle that is never joined leaves the command
// running to completion in the background on its own connection.
type SpawnHandle struct {
	shell *Shell
	done  chan spawnResult

	mu     sync.Mutex
	joined bool
}

type spawnResult struct {
	out *Output
	err error
}

// Spawn starts cmd in the background and returns immediately.
//
// The command runs on a duplicate of this shell's connection, so it
// shares no transport state with the caller or with other spawned
// commands. The receiver stays free for further Execute and Spawn
// calls while spawned commands are in flight.
//
// Spawn fails with a ConnectionError when the duplicate connection
// cannot be established; the command is then never started.
func (s *Shell) Spawn(cmd Command) (*SpawnHandle, error) {
	if cmd.empty() {
		return nil, ErrEmptyCommand
	}

	conn, err := s.conn.Duplicate()
	if err != nil {
		return nil, err
	}
	twin := &Shell{
		conn:         conn,
		user:         s.user,
		host:         s.host,
		diag:         s.diag,
		captureLimit: s.captureLimit,
		dialTimeout:  s.dialTimeout,
	}
	twin.banner()

	if s.dryRun {
		cmd = cmd.DryRun(true)
	}

	h := &SpawnHandle{shell: twin, done: make(chan spawnResult, 1)}
	go func() {
		out, err := twin.Execute(cmd)
		h.done <- spawnResult{out: out, err: err}
	}()
	return h, nil
}

// Join blocks until the spawned command finishes and returns its
// result together with the shell that ran it. The returned shell wraps
// the duplicated connection and is ready for further commands; closing
// it is the caller's job. It is returned even when the command itself
// failed with a CommandError, since the connection is still usable.
//
// Join may be called exactly once; every later call returns
// ErrAlreadyJoined without waiting.
func (h *SpawnHandle) Join() (*Output, *Shell, error) {
	h.mu.Lock()
	if h.joined {
		h.mu.Unlock()
		return nil, nil, ErrAlreadyJoined
	}
	h.joined = true
	h.mu.Unlock()

	r := <-h.done
	return r.out, h.shell, r.err
}
