//go:build !windows

package audit

import (
	"syscall"

	"gateport/internal/constants"
)

// hasEnoughDiskSpace reports whether the audit volume still has headroom.
// Errors count as enough: losing audit entries beats blocking transitions.
func (a *Logger) hasEnoughDiskSpace() bool {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(a.dir, &stat); err != nil {
		return true
	}

	available := stat.Bavail * uint64(stat.Bsize)
	return int64(available) > constants.MinDiskSpaceRequired
}
