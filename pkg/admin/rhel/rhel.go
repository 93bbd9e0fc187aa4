// Package rhel builds package management commands for yum/rpm-based
// systems.
package rhel

import "github.com/eugenetaranov/rivet/pkg/remote"

// YumInstall installs a package from the configured repositories.
func YumInstall(pkg string) remote.Command {
	return remote.Cmdf("sudo yum install -y %s", pkg)
}

// RpmInstall installs a local .rpm archive.
func RpmInstall(path string) remote.Command {
	return remote.Cmdf("sudo rpm -ivh %s", path)
}
