package remote_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/eugenetaranov/rivet/pkg/remote"
	"github.com/eugenetaranov/rivet/pkg/remote/remotetest"
)

// startServer runs an in-process SSH server for the duration of the
// test.
func startServer(t *testing.T, opts ...remotetest.Option) *remotetest.Server {
	t.Helper()

	srv, err := remotetest.NewServer(opts...)
	if err != nil {
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

// connect opens a shell to the test server as root with diagnostics
// silenced.
func connect(t *testing.T, srv *remotetest.Server, opts ...remote.Option) *remote.Shell {
	t.Helper()

	opts = append([]remote.Option{remote.WithDiagnostics(io.Discard)}, opts...)
	sh, err := remote.Connect(remote.Identity{User: "root"}, srv.Addr(), opts...)
	if err != nil {
		t.Fatalf("connect to test server: %v", err)
	}
	t.Cleanup(func() { sh.Close() })
	return sh
}

// writeFile creates path with the given contents and restrictive mode.
func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

// genKey writes a fresh private key to path and returns the matching
// public key, for wiring up key-based auth against the test server.
func genKey(t *testing.T, path string) ssh.PublicKey {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("ssh public key: %v", err)
	}
	return sshPub
}
