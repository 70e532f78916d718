//go:build !linux && !darwin && !freebsd

package fsops

import (
	"fmt"
	"os"
)

// CheckWritable reports an error if dir carries no write permission bits.
func CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0222 == 0 {
		return fmt.Errorf("%s: %w", dir, os.ErrPermission)
	}
	return nil
}

// FreeSpace is not reported on this platform.
func FreeSpace(path string) (free uint64, ok bool, err error) {
	return 0, false, nil
}
