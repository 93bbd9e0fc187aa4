package remote

import (
	"errors"
	"fmt"
)

// ErrAlreadyJoined is returned by SpawnHandle.Join when the handle has
// already been joined once.
var ErrAlreadyJoined = errors.New("spawn handle already joined")

// ErrEmptyCommand is returned by Execute and Spawn when the command
// text is empty or whitespace only.
var ErrEmptyCommand = errors.New("empty command")

// ConnectionError reports a failure to establish or duplicate an SSH
// connection: the endpoint is unreachable, the handshake failed or the
// server rejected authentication.
type ConnectionError struct {
	Op   string // "dial", "handshake", "reconnect"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// KeyError reports a private key that could not be loaded or parsed.
type KeyError struct {
	Path string
	Err  error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("ssh key %s: %v", e.Path, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// CommandError reports a remote command that ran to completion but
// exited non-zero. Both captured streams are retained so callers can
// print a complete postmortem. It is not returned when the command was
// built with AllowError.
type CommandError struct {
	Cmd        string // the text sent on the exec channel
	ExitStatus int
	Stdout     []byte
	Stderr     []byte
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command exited with status %d: %s", e.ExitStatus, e.Cmd)
}

// IOError reports a transport failure while a command was in flight:
// the session could not be opened, the connection dropped mid-command
// or the channel closed without reporting an exit status.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ssh i/o: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
