// Package debian builds package management commands for apt-based
// systems.
package debian

import "github.com/eugenetaranov/rivet/pkg/remote"

// AptInstall installs a package from the configured repositories.
func AptInstall(pkg string) remote.Command {
	return remote.Cmdf("sudo apt-get -y install %s", pkg)
}

// DpkgInstall installs a local .deb archive.
func DpkgInstall(path string) remote.Command {
	return remote.Cmdf("sudo dpkg -i %s", path)
}
