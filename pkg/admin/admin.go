// Package admin builds common system administration commands and runs
// multi-step host chores over a remote.Executor.
//
// The builders return plain remote.Commands, so callers can still
// adjust them (AllowError, DryRun, Cwd) before running. Distribution
// specific package management lives in the debian, rhel and darwin
// subpackages.
package admin

import "github.com/eugenetaranov/rivet/pkg/remote"

// AddUserToGroup appends user to the named group.
func AddUserToGroup(user, group string) remote.Command {
	return remote.Cmdf("sudo usermod -aG %s %s", group, user)
}

// MakeSwap formats the device as swap space.
func MakeSwap(device string) remote.Command {
	return remote.Cmdf("sudo mkswap %s", device)
}

// EnableSwap turns swapping on for the device.
func EnableSwap(device string) remote.Command {
	return remote.Cmdf("sudo swapon %s", device)
}
