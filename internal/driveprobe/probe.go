// Package driveprobe captures per-drive size/free/type/tier/health.
// Space probing is platform-specific (statfs on POSIX, GetDiskFreeSpaceEx
// on Windows), split across build-tagged files per platform.
package driveprobe

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"kydras/internal/poolmodel"
)

var logger = log.New(os.Stderr, "[driveprobe] ", log.LstdFlags)

// spaceInfo is the platform-probed total/free byte pair.
type spaceInfo struct {
	Total uint64
	Free  uint64
}

// statSpace is implemented per-platform (probe_unix.go / probe_windows.go).
var statSpace func(root string) (spaceInfo, error)

// Probe refreshes TotalBytes/FreeBytes/LastHealthCheck and derives
// Class/Tier/IOScore for the drive rooted at rootPath. The initial class
// guess is host-specific and only an approximation: UNC-prefixed roots are
// guessed Network, an nvme backing device is NVMe, /sys/block rotational
// data distinguishes SSD from HDD on Linux, and everything else is HDD.
func Probe(rootPath string) (poolmodel.PoolDrive, error) {
	drive := poolmodel.PoolDrive{
		RootPath:   rootPath,
		VolumeRoot: volumeRoot(rootPath),
		ID:         uuid.NewString(),
		Health:     poolmodel.HealthUnknown,
	}

	space, err := statSpace(rootPath)
	if err != nil {
		return drive, fmt.Errorf("probe %s: %w", rootPath, err)
	}
	drive.TotalBytes = space.Total
	drive.FreeBytes = space.Free
	drive.Class = guessClass(rootPath)
	drive.Tier = poolmodel.TierFor(drive.Class)
	drive.IOScore = drive.Class.IOScore()
	drive.LastHealthCheck = time.Now().UTC()

	return drive, nil
}

// Refresh re-probes free/total space for an existing drive in place.
func Refresh(drive *poolmodel.PoolDrive) error {
	space, err := statSpace(drive.RootPath)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", drive.RootPath, err)
	}
	drive.TotalBytes = space.Total
	drive.FreeBytes = space.Free
	drive.LastHealthCheck = time.Now().UTC()
	return nil
}

// CheckDriveHealth probes a root by writing and deleting a uniquely-named
// sentinel file: success means Healthy, any failure or a nonexistent root
// means Warning.
func CheckDriveHealth(rootPath string) poolmodel.HealthState {
	sentinel := filepath.Join(rootPath, fmt.Sprintf(".kydras-health-%s", uuid.NewString()))

	if err := os.WriteFile(sentinel, []byte("kydras"), 0o644); err != nil {
		logger.Printf("health check write failed for %s: %v", rootPath, err)
		return poolmodel.HealthWarning
	}
	if err := os.Remove(sentinel); err != nil {
		logger.Printf("health check cleanup failed for %s: %v", rootPath, err)
		return poolmodel.HealthWarning
	}
	return poolmodel.HealthHealthy
}

// volumeRoot derives the drive's volume root (e.g. "C:\" or "/") from a
// filesystem root path. Display-only.
func volumeRoot(rootPath string) string {
	vol := filepath.VolumeName(rootPath)
	if vol != "" {
		return vol + string(filepath.Separator)
	}
	return string(filepath.Separator)
}

// guessClass makes the host-specific initial class guess: UNC/network-style
// prefixes are classified Network; everything else defers to the
// platform-specific classifier.
func guessClass(rootPath string) poolmodel.DeviceClass {
	if strings.HasPrefix(rootPath, `\\`) || strings.HasPrefix(rootPath, "//") {
		return poolmodel.ClassNetwork
	}
	return platformClass(rootPath)
}
