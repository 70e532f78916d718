// Package fsops provides the filesystem primitives the engine mutates files with.
//
// Every move, copy and directory creation performed by the executor, the undo
// log and the backup manager goes through the FS interface so tests can
// substitute failures (disk full, permission denied) at exact points.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Errors returned by move and copy operations.
var (
	ErrDestinationExists = errors.New("destination already exists")
	ErrSourceNotFound    = errors.New("source not found")
	ErrNotRegularFile    = errors.New("not a regular file")
)

// FS is the set of mutations the engine performs on the filesystem.
type FS interface {
	// Stat returns file info following symlinks.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether anything exists at path without following symlinks.
	Exists(path string) (bool, error)

	// MkdirAll creates a directory and all missing parents.
	MkdirAll(path string, perm os.FileMode) error

	// Move relocates a regular file, refusing to overwrite the destination.
	Move(src, dst string) error

	// CopyFile copies a regular file atomically, refusing to overwrite the destination.
	CopyFile(src, dst string) error

	// Remove removes a file or empty directory.
	Remove(path string) error

	// RemoveAll removes a path and everything beneath it.
	RemoveAll(path string) error
}

// RealFS implements FS using OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

// Stat returns file info following symlinks.
func (r *RealFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists reports whether anything exists at path.
func (r *RealFS) Exists(path string) (bool, error) {
	return Exists(path)
}

// MkdirAll creates a directory and all missing parents.
func (r *RealFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Remove removes a file or empty directory.
func (r *RealFS) Remove(path string) error {
	return os.Remove(path)
}

// RemoveAll removes a path and everything beneath it.
func (r *RealFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Move renames src to dst. When the two are on different volumes it falls
// back to an atomic copy followed by removal of the source.
func (r *RealFS) Move(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", src, ErrSourceNotFound)
		}
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", src, ErrNotRegularFile)
	}

	exists, err := Exists(dst)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}
	if exists {
		return fmt.Errorf("%s: %w", dst, ErrDestinationExists)
	}

	err = os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("rename: %w", err)
	}

	if err := r.CopyFile(src, dst); err != nil {
		return fmt.Errorf("cross-device copy: %w", err)
	}
	if err := os.Remove(src); err != nil {
		// Leave the source in place rather than keep two copies around silently
		_ = os.Remove(dst)
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// CopyFile copies src to dst through a temp file in the destination directory,
// syncing before the final rename. Mode and modification time are preserved.
func (r *RealFS) CopyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", src, ErrSourceNotFound)
		}
		return fmt.Errorf("stat source: %w", err)
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", src, ErrNotRegularFile)
	}

	exists, err := Exists(dst)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}
	if exists {
		return fmt.Errorf("%s: %w", dst, ErrDestinationExists)
	}

	return writeAtomic(dst, srcInfo, func(w io.Writer) error {
		in, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer in.Close()

		if _, err := io.Copy(w, in); err != nil {
			return fmt.Errorf("copy contents: %w", err)
		}
		return nil
	})
}

// ReplaceFile copies src over dst atomically, creating dst if needed.
func ReplaceFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	return writeAtomic(dst, srcInfo, func(w io.Writer) error {
		in, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer in.Close()

		_, err = io.Copy(w, in)
		return err
	})
}

// writeAtomic writes through a temp file next to dst and renames it into place.
func writeAtomic(dst string, srcInfo os.FileInfo, fill func(io.Writer) error) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".tidy-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up temp file on error
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	_ = os.Chtimes(tmpPath, srcInfo.ModTime(), srcInfo.ModTime())

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmp = nil
	return nil
}

// Exists reports whether anything exists at path without following symlinks.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// NearestExistingAncestor walks up from path until it finds something that exists.
func NearestExistingAncestor(path string) (string, error) {
	cur := filepath.Clean(path)
	for {
		exists, err := Exists(cur)
		if err != nil {
			return "", err
		}
		if exists {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		cur = parent
	}
}

// CheckCreatable probes whether dir exists as a directory or could be created,
// without creating anything.
func CheckCreatable(dir string) error {
	ancestor, err := NearestExistingAncestor(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(ancestor)
	if err != nil {
		return fmt.Errorf("stat %s: %w", ancestor, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", ancestor)
	}
	if err := CheckWritable(ancestor); err != nil {
		return fmt.Errorf("%s is not writable: %w", ancestor, err)
	}
	return nil
}

// CheckReadable reports an error if path cannot be opened for reading.
func CheckReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// PruneEmptyDirs removes dir and then each of its parents while they are
// empty directories. It stops at stop, which is never removed, and never
// touches anything outside stop.
func PruneEmptyDirs(fsys FS, dir, stop string) {
	dir = filepath.Clean(dir)
	stop = filepath.Clean(stop)
	for dir != stop {
		rel, err := filepath.Rel(stop, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return
		}
		info, err := fsys.Stat(dir)
		if err != nil || !info.IsDir() {
			return
		}
		// Fails on non-empty directories
		if err := fsys.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
