package remote

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// defaultKeySuffix locates the default private key under the user's
// home directory.
const defaultKeySuffix = ".ssh/id_rsa"

// Identity carries everything needed to authenticate an SSH connection.
type Identity struct {
	User string
	Auth []ssh.AuthMethod

	// HostKey verifies the server host key. Nil accepts any host key,
	// which suits the throwaway lab and cluster machines this library
	// targets; pass a knownhosts callback for strict checking.
	HostKey ssh.HostKeyCallback
}

// IdentityProvider resolves a username into a full Identity. The
// default implementation reads ~/.ssh/id_rsa; tests and callers with
// other key material substitute their own.
type IdentityProvider interface {
	Lookup(user string) (Identity, error)
}

// DefaultKeyProvider loads the private key at $HOME/.ssh/id_rsa and,
// when SSH_AUTH_SOCK is set, also offers any keys held by the running
// ssh-agent.
type DefaultKeyProvider struct {
	// Home overrides the home directory the key is looked up under.
	// Empty means os.UserHomeDir.
	Home string
}

var _ IdentityProvider = DefaultKeyProvider{}

// Lookup implements IdentityProvider. It fails with a KeyError when
// the default key file is missing or unparseable.
func (p DefaultKeyProvider) Lookup(user string) (Identity, error) {
	home := p.Home
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return Identity{}, fmt.Errorf("resolve home directory: %w", err)
		}
	}

	id, err := KeyIdentity(user, filepath.Join(home, defaultKeySuffix))
	if err != nil {
		return Identity{}, err
	}
	if auth, ok := agentAuth(); ok {
		id.Auth = append(id.Auth, auth)
	}
	return id, nil
}

// KeyIdentity builds an Identity that authenticates with the private
// key stored at path. The key must not require a passphrase. Callers
// that need host key verification set HostKey on the result before
// connecting.
func KeyIdentity(user, path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, &KeyError{Path: path, Err: err}
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return Identity{}, &KeyError{Path: path, Err: err}
	}
	return Identity{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
	}, nil
}

// agentAuth returns an AuthMethod backed by the ssh-agent named in
// SSH_AUTH_SOCK, if one is reachable.
func agentAuth() (ssh.AuthMethod, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, false
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), true
}
