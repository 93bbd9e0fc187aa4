package admin

import (
	"errors"
	"strings"
	"testing"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// rebootShell fakes the Reconnector surface of a remote.Shell and
// records the order of calls.
type rebootShell struct {
	cmds         []remote.Command
	reconnects   int
	dropOnReboot bool
}

func (s *rebootShell) Execute(cmd remote.Command) (*remote.Output, error) {
	s.cmds = append(s.cmds, cmd)
	if s.dropOnReboot && strings.Contains(cmd.String(), "reboot") {
		return nil, &remote.IOError{Op: "run sudo reboot", Err: errors.New("connection reset")}
	}
	return &remote.Output{Stdout: []byte("deploy\n")}, nil
}

func (s *rebootShell) Reconnect() error {
	s.reconnects++
	return nil
}

func TestReboot(t *testing.T) {
	defer quickReboot()()

	sh := &rebootShell{}
	if err := Reboot(sh); err != nil {
		t.Fatalf("Reboot: %v", err)
	}

	if len(sh.cmds) != 2 {
		t.Fatalf("commands = %d, want reboot then whoami", len(sh.cmds))
	}
	if want := remote.Cmd("sudo reboot").AllowError(); sh.cmds[0] != want {
		t.Errorf("first command = %q, want sudo reboot with AllowError", sh.cmds[0].String())
	}
	if sh.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", sh.reconnects)
	}
	if want := remote.Cmd("whoami"); sh.cmds[1] != want {
		t.Errorf("confirmation command = %q, want whoami", sh.cmds[1].String())
	}
}

func TestRebootToleratesDroppedConnection(t *testing.T) {
	defer quickReboot()()

	sh := &rebootShell{dropOnReboot: true}
	if err := Reboot(sh); err != nil {
		t.Fatalf("Reboot must tolerate the connection dropping: %v", err)
	}
	if sh.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", sh.reconnects)
	}
}

// quickReboot removes the reboot grace period for the test.
func quickReboot() func() {
	old := rebootGrace
	rebootGrace = 0
	return func() { rebootGrace = old }
}
