package admin

import (
	"errors"
	"time"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// rebootGrace is how long Reboot waits after issuing the reboot before
// probing for the host to come back, so the probe does not race the
// shutdown.
var rebootGrace = 10 * time.Second

// Reconnector is the part of remote.Shell that Reboot needs: running
// commands and re-establishing the connection once the host is back.
type Reconnector interface {
	remote.Executor
	Reconnect() error
}

// Reboot restarts the host, blocks until it is reachable again and
// confirms the fresh session with whoami. The reboot command itself is
// allowed to fail: the connection usually drops before an exit status
// arrives, which surfaces as an IOError and is expected here.
func Reboot(sh Reconnector) error {
	if _, err := sh.Execute(remote.Cmd("sudo reboot").AllowError()); err != nil {
		var ioErr *remote.IOError
		if !errors.As(err, &ioErr) {
			return err
		}
	}
	time.Sleep(rebootGrace)

	if err := sh.Reconnect(); err != nil {
		return err
	}
	_, err := sh.Execute(remote.Cmd("whoami"))
	return err
}
