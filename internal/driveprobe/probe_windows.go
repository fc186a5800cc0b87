//go:build windows
// +build windows

package driveprobe

import (
	"kydras/internal/poolmodel"

	"golang.org/x/sys/windows"
)

func init() {
	statSpace = statSpaceWindows
}

func statSpaceWindows(root string) (spaceInfo, error) {
	var freeAvailable, total, totalFree uint64
	ptr, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return spaceInfo{}, err
	}
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeAvailable, &total, &totalFree); err != nil {
		return spaceInfo{}, err
	}
	return spaceInfo{Total: total, Free: freeAvailable}, nil
}

// platformClass has no cheap rotational signal on Windows, so it classifies
// every drive as HDD; operators can still set PreferSSD rules based on the
// drive letter they know to be fast.
func platformClass(rootPath string) poolmodel.DeviceClass {
	return poolmodel.ClassHDD
}
