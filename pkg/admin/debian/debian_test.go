package debian

import (
	"testing"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

func TestAptInstall(t *testing.T) {
	if got, want := AptInstall("htop"), remote.Cmd("sudo apt-get -y install htop"); got != want {
		t.Errorf("AptInstall = %q, want %q", got.String(), want.String())
	}
}

func TestDpkgInstall(t *testing.T) {
	if got, want := DpkgInstall("/tmp/htop_3.2.deb"), remote.Cmd("sudo dpkg -i /tmp/htop_3.2.deb"); got != want {
		t.Errorf("DpkgInstall = %q, want %q", got.String(), want.String())
	}
}
