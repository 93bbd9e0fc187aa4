package admin

import (
	"strings"

	"github.com/eugenetaranov/rivet/pkg/remote"
)

// MountedDevices returns the kernel device names that currently have a
// mountpoint, mapped to where they are mounted.
func MountedDevices(ex remote.Executor) (map[string]string, error) {
	out, err := ex.Execute(remote.Cmd("lsblk --noheadings --raw -o KNAME,MOUNTPOINT"))
	if err != nil {
		return nil, err
	}

	mounts := make(map[string]string)
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			mounts[fields[0]] = fields[1]
		}
	}
	return mounts, nil
}

// UnpartitionedDevices returns devices that have no partitions and no
// mountpoint, the usual candidates for swap or scratch space.
func UnpartitionedDevices(ex remote.Executor) ([]string, error) {
	out, err := ex.Execute(remote.Cmd("lsblk --noheadings --raw -o KNAME,MOUNTPOINT"))
	if err != nil {
		return nil, err
	}

	type device struct {
		name    string
		mounted bool
	}
	var devs []device
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		devs = append(devs, device{name: fields[0], mounted: len(fields) > 1})
	}

	var free []string
	for _, d := range devs {
		if d.mounted {
			continue
		}
		standalone := true
		for _, other := range devs {
			if partitionOf(other.name, d.name) || partitionOf(d.name, other.name) {
				standalone = false
				break
			}
		}
		if standalone {
			free = append(free, d.name)
		}
	}
	return free, nil
}

// partitionOf reports whether name is a partition of dev under the
// kernel naming scheme: a digit suffix (sda1) or a pN suffix for
// devices whose name ends in a digit (nvme0n1p1).
func partitionOf(name, dev string) bool {
	rest, ok := strings.CutPrefix(name, dev)
	if !ok || rest == "" {
		return false
	}
	if rest[0] >= '0' && rest[0] <= '9' {
		return true
	}
	return len(rest) > 1 && rest[0] == 'p' && rest[1] >= '0' && rest[1] <= '9'
}

// DeviceSizes returns the size lsblk reports for each named device,
// e.g. "477G", keyed by device name.
func DeviceSizes(ex remote.Executor, devices []string) (map[string]string, error) {
	sizes := make(map[string]string, len(devices))
	for _, dev := range devices {
		out, err := ex.Execute(remote.Cmdf("lsblk --noheadings -o SIZE /dev/%s", dev))
		if err != nil {
			return nil, err
		}
		sizes[dev] = strings.TrimSpace(string(out.Stdout))
	}
	return sizes, nil
}

// DeviceUUID returns the filesystem UUID blkid reports for the device.
func DeviceUUID(ex remote.Executor, device string) (string, error) {
	out, err := ex.Execute(remote.Cmdf("sudo blkid -s UUID -o value /dev/%s", device))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out.Stdout)), nil
}

// TurnOnSwapDevices formats each named device as swap and enables it.
func TurnOnSwapDevices(ex remote.Executor, devices []string) error {
	for _, dev := range devices {
		if _, err := ex.Execute(MakeSwap("/dev/" + dev)); err != nil {
			return err
		}
		if _, err := ex.Execute(EnableSwap("/dev/" + dev)); err != nil {
			return err
		}
	}
	return nil
}
