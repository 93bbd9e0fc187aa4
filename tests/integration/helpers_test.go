package integration

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/ssh"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// rootPassword matches the password baked into the sshd image.
const rootPassword = "rivet-test"

// startSSHD builds and starts the sshd container and returns it along
// with the mapped "host:port" endpoint.
func startSSHD(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    filepath.Join(projectRoot, "tests", "integration"),
			Dockerfile: "Dockerfile",
		},
		ExposedPorts: []string{"22/tcp"},
		WaitingFor:   wait.ForListeningPort("22/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start sshd container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "22/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("%s:%s", host, port.Port())
}

// connectRoot opens a shell to the container as root over password
// auth, with diagnostics silenced.
func connectRoot(t *testing.T, addr string) *remote.Shell {
	t.Helper()

	id := remote.Identity{
		User: "root",
		Auth: []ssh.AuthMethod{ssh.Password(rootPassword)},
	}
	sh, err := remote.Connect(id, addr, remote.WithDiagnostics(io.Discard))
	require.NoError(t, err, "connect to sshd container")
	t.Cleanup(func() { sh.Close() })
	return sh
}

// genTestKey writes a fresh private key under dir and returns its path
// together with the authorized_keys line for the matching public key.
func genTestKey(t *testing.T, dir string) (string, string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))

	return keyPath, line
}

// installAuthorizedKey adds an authorized_keys line for root inside
// the container.
func installAuthorizedKey(t *testing.T, ctx context.Context, container testcontainers.Container, line string) {
	t.Helper()

	script := fmt.Sprintf(
		"mkdir -p /root/.ssh && echo '%s' >> /root/.ssh/authorized_keys && chmod 700 /root/.ssh && chmod 600 /root/.ssh/authorized_keys",
		line)
	exitCode, out, err := execInContainer(ctx, container, []string{"sh", "-c", script})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode, "install authorized key: %s", out)
}

// execInContainer runs a command in the container and returns its exit
// code and stdout.
func execInContainer(ctx context.Context, container testcontainers.Container, cmd []string) (int, string, error) {
	exitCode, reader, err := container.Exec(ctx, cmd)
	if err != nil {
		return exitCode, "", err
	}

	// Demux the Docker stream (stdout/stderr are multiplexed)
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, reader)

	return exitCode, stdout.String(), nil
}

// containerFile reads a file from inside the container.
func containerFile(t *testing.T, ctx context.Context, container testcontainers.Container, path string) string {
	t.Helper()

	exitCode, content, err := execInContainer(ctx, container, []string{"cat", path})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode, "failed to read %s", path)
	return content
}
