// Package facts gathers system information from remote hosts.
package facts

import (
	"strings"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// Gather collects system facts from the host behind ex. Facts that
// cannot be gathered are left out rather than failing the whole call.
func Gather(ex remote.Executor) (map[string]any, error) {
	facts := make(map[string]any)

	osInfo, err := gatherOSInfo(ex)
	if err == nil {
		for k, v := range osInfo {
			facts[k] = v
		}
	}

	if hostname, err := gatherLine(ex, "hostname"); err == nil {
		facts["hostname"] = hostname
	}
	if user, err := gatherLine(ex, "whoami"); err == nil {
		facts["user"] = user
	}

	// Variable expansion needs a shell on the remote side.
	if home, err := gatherExpanded(ex, "$HOME"); err == nil && home != "" {
		facts["home"] = home
	}
	if env := gatherEnv(ex); len(env) > 0 {
		facts["env"] = env
	}

	return facts, nil
}

// DetectFamily reports the OS family of the host behind ex, one of
// "Debian", "RedHat", "Arch", "Alpine", "Suse", "Darwin" or the bare
// kernel name when the distribution is unknown.
func DetectFamily(ex remote.Executor) (string, error) {
	info, err := gatherOSInfo(ex)
	if err != nil {
		return "", err
	}
	if family, ok := info["os_family"].(string); ok {
		return family, nil
	}
	return "", nil
}

// gatherOSInfo gathers operating system information.
func gatherOSInfo(ex remote.Executor) (map[string]any, error) {
	info := make(map[string]any)

	out, err := ex.Execute(remote.Cmd("uname -s"))
	if err != nil {
		return info, err
	}

	osType := strings.TrimSpace(string(out.Stdout))
	info["os_type"] = osType

	switch osType {
	case "Darwin":
		info["os_family"] = "Darwin"
		info["pkg_manager"] = "brew"

		if v, err := gatherLine(ex, "sw_vers -productVersion"); err == nil {
			info["os_version"] = v
		}
		if name, err := gatherLine(ex, "sw_vers -productName"); err == nil {
			info["os_name"] = name
		}

	case "Linux":
		info["os_family"] = "Linux"

		out, err := ex.Execute(remote.Cmd("cat /etc/os-release").AllowError().NoStderr())
		if err == nil && out.ExitStatus == 0 {
			osRelease := parseOSRelease(string(out.Stdout))
			if id, ok := osRelease["ID"]; ok {
				info["distribution"] = id
			}
			if version, ok := osRelease["VERSION_ID"]; ok {
				info["distribution_version"] = version
			}
			if name, ok := osRelease["PRETTY_NAME"]; ok {
				info["os_name"] = name
			}

			switch info["distribution"] {
			case "ubuntu", "debian", "linuxmint", "pop":
				info["pkg_manager"] = "apt"
				info["os_family"] = "Debian"
			case "fedora", "rhel", "centos", "rocky", "almalinux":
				info["pkg_manager"] = "dnf"
				info["os_family"] = "RedHat"
			case "arch", "manjaro":
				info["pkg_manager"] = "pacman"
				info["os_family"] = "Arch"
			case "alpine":
				info["pkg_manager"] = "apk"
				info["os_family"] = "Alpine"
			case "opensuse", "sles":
				info["pkg_manager"] = "zypper"
				info["os_family"] = "Suse"
			}
		}
	}

	if arch, err := gatherLine(ex, "uname -m"); err == nil {
		info["architecture"] = arch

		// Normalize architecture names.
		switch arch {
		case "x86_64", "amd64":
			info["arch"] = "amd64"
		case "aarch64", "arm64":
			info["arch"] = "arm64"
		case "armv7l":
			info["arch"] = "arm"
		default:
			info["arch"] = arch
		}
	}

	if kernel, err := gatherLine(ex, "uname -r"); err == nil {
		info["kernel"] = kernel
	}

	return info, nil
}

// parseOSRelease parses /etc/os-release format.
func parseOSRelease(content string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "="); idx > 0 {
			key := line[:idx]
			value := strings.Trim(line[idx+1:], "\"'")
			result[key] = value
		}
	}
	return result
}

// gatherLine runs a command and returns its first line of output.
func gatherLine(ex remote.Executor, cmd string) (string, error) {
	out, err := ex.Execute(remote.Cmd(cmd))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out.Stdout)), nil
}

// gatherExpanded echoes a shell expression through bash so variables
// are expanded on the remote side.
func gatherExpanded(ex remote.Executor, expr string) (string, error) {
	out, err := ex.Execute(remote.Cmd("echo " + expr).UseBash())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out.Stdout)), nil
}

// gatherEnv gets select environment variables.
func gatherEnv(ex remote.Executor) map[string]string {
	env := make(map[string]string)

	vars := []string{"PATH", "SHELL", "LANG", "LC_ALL", "TERM", "EDITOR"}
	for _, v := range vars {
		value, err := gatherExpanded(ex, "$"+v)
		if err == nil && value != "" {
			env[v] = value
		}
	}

	return env
}
