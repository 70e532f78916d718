//go:build linux || darwin || freebsd

package fsops

import "golang.org/x/sys/unix"

// CheckWritable reports an error if the current user cannot write into dir.
func CheckWritable(dir string) error {
	return unix.Access(dir, unix.W_OK)
}

// FreeSpace returns the bytes available to an unprivileged user on the volume
// holding path. ok is false when the platform cannot report it.
func FreeSpace(path string) (free uint64, ok bool, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true, nil
}
