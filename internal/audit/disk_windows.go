//go:build windows

package audit

import (
	"golang.org/x/sys/windows"

	"gateport/internal/constants"
)

func (a *Logger) hasEnoughDiskSpace() bool {
	pathPtr, err := windows.UTF16PtrFromString(a.dir)
	if err != nil {
		return true
	}

	var freeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytes, nil, nil); err != nil {
		return true
	}

	return int64(freeBytes) > constants.MinDiskSpaceRequired
}
