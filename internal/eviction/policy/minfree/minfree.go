package minfree

import (
	"fmt"
	"log/slog"
	"syscall"
)

// Policy triggers eviction when disk free space is below a threshold.
type Policy struct {
	Path         string
	MinFreeBytes int64
}

func (m *Policy) Exceeded(count int, _ uint32) (bool, error) {
	if count == 0 {
		return false, nil
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.Path, &stat); err != nil {
		return false, fmt.Errorf("failed to check disk space: %w", err)
	}

	// Available blocks * block size
	freeSpace := int64(stat.Bavail) * int64(stat.Bsize)

	slog.Debug("Disk space check", "path", m.Path, "free_bytes", freeSpace, "min_required", m.MinFreeBytes)

	return freeSpace < m.MinFreeBytes, nil
}
