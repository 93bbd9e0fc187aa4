// Package remote runs commands on hosts over SSH with typed results
// and errors.
//
// A Shell wraps one authenticated connection and runs one command at a
// time on it. Spawn duplicates the connection and runs the command on
// the twin, so several commands can target the same host concurrently
// without sharing any transport state:
//
//	shell, err := remote.ConnectWithDefaultKey("admin", "10.0.0.7:22")
//	if err != nil {
//		return err
//	}
//	defer shell.Close()
//
//	handle, err := shell.Spawn(remote.Cmd("make -j8").Cwd("/build"))
//	if err != nil {
//		return err
//	}
//	out, worker, err := handle.Join()
//
// Execute blocks until the remote command finishes; the package offers
// no cancellation of its own. Callers that need deadlines spawn the
// command and stop waiting on the handle, leaving the spawned goroutine
// to finish on its own connection.
package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultDialTimeout bounds the TCP connect and SSH handshake when no
// WithDialTimeout option is given.
const DefaultDialTimeout = 10 * time.Second

// DefaultCaptureLimit is how many bytes of each output stream a
// command captures unless WithCaptureLimit overrides it.
const DefaultCaptureLimit = 4 << 20

// Executor runs remote commands. Shell implements it; code built on
// top of this package should accept an Executor so tests can swap in
// the fakes from the remotetest package.
type Executor interface {
	Execute(cmd Command) (*Output, error)
}

// Shell runs commands on one remote host over one Connection.
//
// A Shell is safe to share across goroutines only through Spawn, which
// gives each command its own duplicated connection. Calling Execute
// from several goroutines at once is not supported.
type Shell struct {
	conn         *Connection
	user         string
	host         string // endpoint text as given, for diagnostics
	diag         io.Writer
	captureLimit int
	dialTimeout  time.Duration
	dryRun       bool
}

var _ Executor = (*Shell)(nil)

// Option adjusts how a Shell is connected and run.
type Option func(*Shell)

// WithDiagnostics redirects the shell's diagnostic lines (the connect
// banner and the "user@host: cmd" echo per command). The default is
// os.Stdout; pass io.Discard for silence.
func WithDiagnostics(w io.Writer) Option {
	return func(s *Shell) { s.diag = w }
}

// WithCaptureLimit bounds the bytes captured per output stream.
func WithCaptureLimit(n int) Option {
	return func(s *Shell) { s.captureLimit = n }
}

// WithDialTimeout bounds the TCP connect and SSH handshake, both for
// the initial connection and for every duplication.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Shell) { s.dialTimeout = d }
}

// Connect dials addr ("host:port"), authenticates as identity and
// wraps the connection in a Shell.
func Connect(identity Identity, addr string, opts ...Option) (*Shell, error) {
	s := &Shell{
		user:         identity.User,
		host:         addr,
		diag:         os.Stdout,
		captureLimit: DefaultCaptureLimit,
		dialTimeout:  DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	conn, err := dial(identity, addr, s.dialTimeout)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.banner()
	return s, nil
}

// ConnectWithKey connects as user authenticating with the private key
// stored at keyPath.
func ConnectWithKey(user, addr, keyPath string, opts ...Option) (*Shell, error) {
	id, err := KeyIdentity(user, keyPath)
	if err != nil {
		return nil, err
	}
	return Connect(id, addr, opts...)
}

// ConnectWithDefaultKey connects as user authenticating with the
// default key, ~/.ssh/id_rsa.
func ConnectWithDefaultKey(user, addr string, opts ...Option) (*Shell, error) {
	return ConnectWithProvider(DefaultKeyProvider{}, user, addr, opts...)
}

// ConnectWithProvider resolves user through p and connects with the
// resulting identity.
func ConnectWithProvider(p IdentityProvider, user, addr string, opts ...Option) (*Shell, error) {
	id, err := p.Lookup(user)
	if err != nil {
		return nil, err
	}
	return Connect(id, addr, opts...)
}

// banner writes the connect-time diagnostic line, resolving the
// endpoint once so logs show which address a hostname landed on.
func (s *Shell) banner() {
	if ip, port, err := HostIP(s.conn.Addr()); err == nil {
		fmt.Fprintf(s.diag, "%s@%s (%s:%d)\n", s.user, s.host, ip, port)
		return
	}
	fmt.Fprintf(s.diag, "%s@%s\n", s.user, s.host)
}

// Execute runs cmd and blocks until it finishes.
//
// The command text is echoed to the diagnostic writer as
// "user@host: cmd" before anything is sent. Without UseBash the text
// goes verbatim on the exec channel, so shell syntax like pipes is not
// interpreted; with UseBash the text runs under `bash -c` with
// quoting applied. Stdin is closed immediately, stdout and stderr are
// read until the remote side closes them.
//
// A non-zero exit status returns a CommandError carrying the captured
// streams, unless the command was built with AllowError, in which case
// the Output is returned with ExitStatus set. Transport failures
// mid-command return an IOError.
func (s *Shell) Execute(cmd Command) (*Output, error) {
	if cmd.empty() {
		return nil, ErrEmptyCommand
	}
	if s.dryRun {
		cmd = cmd.DryRun(true)
	}

	fmt.Fprintf(s.diag, "%s@%s: %s\n", s.user, s.host, cmd.text)
	if cmd.dryRun {
		return &Output{}, nil
	}

	sess, err := s.conn.session()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	stdout := newCapture(s.captureLimit, cmd.noStdout)
	stderr := newCapture(s.captureLimit, cmd.noStderr)
	sess.Stdout = stdout
	sess.Stderr = stderr

	line := cmd.render()
	exit := 0
	if err := sess.Run(line); err != nil {
		var ee *ssh.ExitError
		if !errors.As(err, &ee) {
			return nil, &IOError{Op: "run " + cmd.text, Err: err}
		}
		exit = ee.ExitStatus()
	}

	out := &Output{ExitStatus: exit, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if exit != 0 && !cmd.allowError {
		return nil, &CommandError{
			Cmd:        line,
			ExitStatus: exit,
			Stdout:     out.Stdout,
			Stderr:     out.Stderr,
		}
	}
	return out, nil
}

// SetDryRun switches the shell into or out of dry-run mode. In dry-run
// mode commands are echoed to the diagnostic writer but nothing is
// sent to the host; Execute returns an empty Output with exit status
// zero. Commands spawned while the mode is on inherit it.
func (s *Shell) SetDryRun(on bool) { s.dryRun = on }

// User returns the username this shell authenticated as.
func (s *Shell) User() string { return s.user }

// Host returns the endpoint text this shell was connected with.
func (s *Shell) Host() string { return s.host }

// Close tears down the shell's connection. Shells returned by
// SpawnHandle.Join own their own connections and are closed
// separately.
func (s *Shell) Close() error { return s.conn.Close() }

// Reconnect waits for the host to accept TCP connections again, then
// redials and reauthenticates, replacing the shell's connection. It
// blocks for as long as the host stays down, probing at half the dial
// timeout; use it after deliberately rebooting a host. Once the host
// answers, a failed handshake or authentication is returned as a
// ConnectionError.
func (s *Shell) Reconnect() error {
	addr := s.conn.Addr()
	wait := s.dialTimeout / 2
	if wait <= 0 {
		wait = DefaultDialTimeout / 2
	}

	for {
		fmt.Fprintf(s.diag, "%s@%s: waiting for host\n", s.user, s.host)
		probe, err := net.DialTimeout("tcp", addr, wait)
		if err == nil {
			probe.Close()
			break
		}
		time.Sleep(wait)
	}

	conn, err := dial(s.conn.identity, addr, s.dialTimeout)
	if err != nil {
		return err
	}
	s.conn.Close()
	s.conn = conn
	s.banner()
	return nil
}
