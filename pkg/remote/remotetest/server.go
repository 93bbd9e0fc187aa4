// Package remotetest provides an in-process SSH server and a scripted
// Executor for testing code that runs commands on remote hosts, with
// no sshd or container required.
package remotetest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const hostname = "remotetest"

// Server is an SSH server on 127.0.0.1 that accepts exec requests and
// interprets a small set of shell builtins: echo, pwd, whoami,
// hostname, uname, cat, true, false, exit, sleep and seq.
//
// An exec line is interpreted the way the remote package renders
// commands: an optional "cd DIR ; " prefix sets the working directory,
// and a "bash -c '...'" wrapper switches on shell behavior. Only in
// bash mode are " ; " sequences, " | " pipelines (tr a-z A-Z, wc -l)
// and $HOME/$USER/$HOSTNAME expansion honored; outside it the text is
// treated as one literal command line.
type Server struct {
	ln  net.Listener
	cfg *ssh.ServerConfig

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	cmds  []string

	wg sync.WaitGroup
}

type serverConfig struct {
	user string
	pass string
	keys []ssh.PublicKey
}

// Option adjusts how the test server authenticates clients.
type Option func(*serverConfig)

// WithPassword makes the server require password authentication with
// the given credentials.
func WithPassword(user, pass string) Option {
	return func(c *serverConfig) {
		c.user = user
		c.pass = pass
	}
}

// WithAuthorizedKey makes the server accept public key authentication
// with the given key. May be repeated.
func WithAuthorizedKey(key ssh.PublicKey) Option {
	return func(c *serverConfig) {
		c.keys = append(c.keys, key)
	}
}

// NewServer starts a test server. With no options every client is
// accepted unauthenticated. Callers must Close it.
func NewServer(opts ...Option) (*Server, error) {
	var sc serverConfig
	for _, opt := range opts {
		opt(&sc)
	}

	cfg := &ssh.ServerConfig{}
	switch {
	case sc.pass == "" && len(sc.keys) == 0:
		cfg.NoClientAuth = true
	default:
		if sc.pass != "" {
			cfg.PasswordCallback = func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
				if meta.User() == sc.user && string(pass) == sc.pass {
					return nil, nil
				}
				return nil, fmt.Errorf("password rejected for %s", meta.User())
			}
		}
		if len(sc.keys) > 0 {
			authorized := make(map[string]bool, len(sc.keys))
			for _, k := range sc.keys {
				authorized[string(k.Marshal())] = true
			}
			cfg.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
				if authorized[string(key.Marshal())] {
					return nil, nil
				}
				return nil, fmt.Errorf("unknown public key for %s", meta.User())
			}
		}
	}

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		return nil, fmt.Errorf("host key signer: %w", err)
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln, cfg: cfg, conns: make(map[net.Conn]struct{})}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns the server's "host:port" endpoint.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Commands returns every exec line received so far, in arrival order,
// exactly as it came over the wire.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

// Close stops accepting connections, drops the live ones and waits for
// the handlers to finish.
func (s *Server) Close() {
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[raw] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, raw)
				s.mu.Unlock()
				raw.Close()
			}()
			s.handleConn(raw)
		}()
	}
}

func (s *Server) handleConn(raw net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(raw, s.cfg)
	if err != nil {
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(conn.User(), ch, requests)
		}()
	}
}

type execMsg struct {
	Command string
}

type exitStatusMsg struct {
	Status uint32
}

func (s *Server) handleSession(user string, ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var msg execMsg
			if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			s.mu.Lock()
			s.cmds = append(s.cmds, msg.Command)
			s.mu.Unlock()

			in := interp{user: user, wd: "/root"}
			status := in.line(msg.Command, ch, ch.Stderr())
			ch.SendRequest("exit-status", false, ssh.Marshal(&exitStatusMsg{Status: uint32(status)}))
			return
		case "env":
			req.Reply(true, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

// interp evaluates one exec line.
type interp struct {
	user string
	wd   string
	bash bool
}

func (in *interp) line(line string, stdout, stderr io.Writer) int {
	if rest, ok := strings.CutPrefix(line, "cd "); ok {
		dir, cmd, found := strings.Cut(rest, " ; ")
		if !found {
			in.wd = strings.TrimSpace(rest)
			return 0
		}
		in.wd = dir
		line = cmd
	}

	if arg, ok := strings.CutPrefix(line, "bash -c "); ok {
		inner, err := unquote(arg)
		if err != nil {
			fmt.Fprintf(stderr, "bash: %v\n", err)
			return 2
		}
		in.bash = true
		line = inner
	}

	stmts := []string{line}
	if in.bash {
		stmts = strings.Split(line, " ; ")
	}

	status := 0
	for _, stmt := range stmts {
		var stop bool
		status, stop = in.stmt(strings.TrimSpace(stmt), stdout, stderr)
		if stop {
			break
		}
	}
	return status
}

func (in *interp) stmt(stmt string, stdout, stderr io.Writer) (int, bool) {
	if !in.bash || !strings.Contains(stmt, " | ") {
		return in.command(stmt, stdout, stderr)
	}

	stages := strings.Split(stmt, " | ")
	var buf bytes.Buffer
	status, stop := in.command(stages[0], &buf, stderr)
	text := buf.String()
	for _, f := range stages[1:] {
		var err error
		text, err = pipeFilter(strings.TrimSpace(f), text)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 127, false
		}
	}
	io.WriteString(stdout, text)
	return status, stop
}

func pipeFilter(f, text string) (string, error) {
	switch f {
	case "tr a-z A-Z":
		return strings.ToUpper(text), nil
	case "wc -l":
		return fmt.Sprintf("%d\n", strings.Count(text, "\n")), nil
	}
	return "", fmt.Errorf("%s: command not found", f)
}

func (in *interp) command(cmd string, stdout, stderr io.Writer) (int, bool) {
	args := strings.Fields(cmd)
	if len(args) == 0 {
		return 0, false
	}
	if in.bash {
		for i, a := range args {
			args[i] = in.expand(a)
		}
	}

	switch args[0] {
	case "echo":
		rest := args[1:]
		out := stdout
		if n := len(rest); n > 0 && rest[n-1] == ">&2" {
			out = stderr
			rest = rest[:n-1]
		}
		fmt.Fprintln(out, strings.Join(rest, " "))
	case "pwd":
		fmt.Fprintln(stdout, in.wd)
	case "whoami":
		fmt.Fprintln(stdout, in.user)
	case "hostname":
		fmt.Fprintln(stdout, hostname)
	case "uname":
		flag := ""
		if len(args) > 1 {
			flag = args[1]
		}
		switch flag {
		case "", "-s":
			fmt.Fprintln(stdout, "Linux")
		case "-m":
			fmt.Fprintln(stdout, "x86_64")
		case "-r":
			fmt.Fprintln(stdout, "6.1.0-remotetest")
		default:
			fmt.Fprintf(stderr, "uname: unknown option %s\n", flag)
			return 1, false
		}
	case "cat":
		if len(args) == 2 && args[1] == "/etc/os-release" {
			io.WriteString(stdout, osRelease)
			return 0, false
		}
		path := strings.Join(args[1:], " ")
		fmt.Fprintf(stderr, "cat: %s: No such file or directory\n", path)
		return 1, false
	case "true":
	case "false":
		return 1, false
	case "exit":
		status := 0
		if len(args) > 1 {
			status, _ = strconv.Atoi(args[1])
		}
		return status, true
	case "sleep":
		if len(args) > 1 {
			if secs, err := strconv.ParseFloat(args[1], 64); err == nil {
				time.Sleep(time.Duration(secs * float64(time.Second)))
			}
		}
	case "seq":
		if len(args) != 3 {
			fmt.Fprintln(stderr, "seq: usage: seq FIRST LAST")
			return 1, false
		}
		first, err1 := strconv.Atoi(args[1])
		last, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			fmt.Fprintln(stderr, "seq: invalid argument")
			return 1, false
		}
		for i := first; i <= last; i++ {
			fmt.Fprintln(stdout, i)
		}
	case "tr":
		// no stdin is wired to standalone commands, so nothing to do
	default:
		fmt.Fprintf(stderr, "%s: command not found\n", args[0])
		return 127, false
	}
	return 0, false
}

// expand substitutes the few variables the interpreter knows about.
// Unknown variables expand to the empty string like a real shell.
func (in *interp) expand(token string) string {
	if !strings.HasPrefix(token, "$") {
		return token
	}
	switch token[1:] {
	case "USER":
		return in.user
	case "HOME":
		if in.user == "root" {
			return "/root"
		}
		return "/home/" + in.user
	case "HOSTNAME":
		return hostname
	}
	return ""
}

// unquote undoes the single-quote wrapping applied by the client: the
// outer quotes are stripped and every '"'"' sequence becomes a bare
// single quote.
func unquote(q string) (string, error) {
	if len(q) < 2 || q[0] != '\'' || q[len(q)-1] != '\'' {
		return "", fmt.Errorf("expected a single-quoted word: %s", q)
	}
	return strings.ReplaceAll(q[1:len(q)-1], `'"'"'`, "'"), nil
}

const osRelease = `PRETTY_NAME="Ubuntu 22.04.3 LTS"
NAME="Ubuntu"
VERSION_ID="22.04"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
`
