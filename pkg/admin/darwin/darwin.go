// Package darwin builds package management commands for macOS hosts
// with Homebrew.
package darwin

import "github.com/eugenetaranov/rivet/pkg/remote"

// BrewInstall installs a Homebrew formula. Homebrew refuses to run as
// root, so no sudo here.
func BrewInstall(formula string) remote.Command {
	return remote.Cmdf("brew install %s", formula)
}

// BrewUpgrade upgrades an installed formula.
func BrewUpgrade(formula string) remote.Command {
	return remote.Cmdf("brew upgrade %s", formula)
}
