package remote

import (
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Connection is one authenticated SSH transport. Every Connection owns
// its own TCP stream, so two Connections never contend on transport
// state and need no locking between them.
type Connection struct {
	client   *ssh.Client
	addr     string
	identity Identity
	timeout  time.Duration
}

// dial opens a TCP stream to addr and runs the SSH handshake and
// authentication over it. timeout bounds both the connect and the
// handshake.
func dial(identity Identity, addr string, timeout time.Duration) (*Connection, error) {
	hostKey := identity.HostKey
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}
	cfg := &ssh.ClientConfig{
		User:            identity.User,
		Auth:            identity.Auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	d := net.Dialer{Timeout: timeout}
	raw, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	if timeout > 0 {
		raw.SetDeadline(time.Now().Add(timeout))
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		return nil, &ConnectionError{Op: "handshake", Addr: addr, Err: err}
	}
	raw.SetDeadline(time.Time{})

	return &Connection{
		client:   ssh.NewClient(conn, chans, reqs),
		addr:     addr,
		identity: identity,
		timeout:  timeout,
	}, nil
}

// Duplicate opens a brand new connection to the same endpoint with the
// same identity: a fresh TCP stream, handshake and authentication. The
// result is fully independent of the receiver.
func (c *Connection) Duplicate() (*Connection, error) {
	return dial(c.identity, c.addr, c.timeout)
}

// Addr returns the endpoint this connection was dialed to.
func (c *Connection) Addr() string { return c.addr }

// Close tears down the transport. Commands in flight on this
// connection fail with an IOError.
func (c *Connection) Close() error {
	return c.client.Close()
}

// session opens an exec channel on the transport.
func (c *Connection) session() (*ssh.Session, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, &IOError{Op: "open session", Err: err}
	}
	return sess, nil
}
