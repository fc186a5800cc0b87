//go:build !windows
// +build !windows

package driveprobe

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"kydras/internal/poolmodel"
)

func init() {
	statSpace = statSpaceUnix
}

func statSpaceUnix(root string) (spaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(root, &stat); err != nil {
		return spaceInfo{}, err
	}
	bsize := uint64(stat.Bsize)
	return spaceInfo{
		Total: stat.Blocks * bsize,
		Free:  stat.Bavail * bsize,
	}, nil
}

// platformClass distinguishes SSD from HDD on Linux by reading the block
// device's rotational flag. Any failure (not on Linux, permission denied,
// path isn't a bare block device) falls back to HDD.
func platformClass(rootPath string) poolmodel.DeviceClass {
	dev := blockDeviceName(rootPath)
	if dev == "" {
		return poolmodel.ClassHDD
	}
	if strings.HasPrefix(dev, "nvme") {
		return poolmodel.ClassNVMe
	}

	data, err := os.ReadFile("/sys/block/" + dev + "/queue/rotational")
	if err != nil {
		return poolmodel.ClassHDD
	}
	if strings.TrimSpace(string(data)) == "0" {
		return poolmodel.ClassSSD
	}
	return poolmodel.ClassHDD
}

// blockDeviceName makes a best-effort guess at the bare block device name
// backing rootPath by reading /proc/mounts for the longest matching mount
// point. Returns "" when no match is found (e.g. non-Linux, tmpfs, bind
// mount inside a test sandbox).
func blockDeviceName(rootPath string) string {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	abs, err := filepath.Abs(rootPath)
	if err != nil {
		abs = rootPath
	}

	best := ""
	bestDev := ""
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		dev, mount := fields[0], fields[1]
		if !strings.HasPrefix(dev, "/dev/") {
			continue
		}
		if strings.HasPrefix(abs, mount) && len(mount) > len(best) {
			best = mount
			bestDev = strings.TrimPrefix(dev, "/dev/")
		}
	}

	return stripPartitionSuffix(bestDev)
}

// stripPartitionSuffix reduces a partition device name to its parent disk:
// nvme0n1p1 -> nvme0n1, sda1 -> sda.
func stripPartitionSuffix(dev string) string {
	if idx := strings.LastIndex(dev, "p"); strings.HasPrefix(dev, "nvme") && idx > 0 && isAllDigits(dev[idx+1:]) {
		return dev[:idx]
	}
	i := len(dev)
	for i > 0 && dev[i-1] >= '0' && dev[i-1] <= '9' {
		i--
	}
	return dev[:i]
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
