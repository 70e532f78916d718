// Package backup makes batch-scoped safety copies of files before they are
// moved, and can verify or restore them independently of the undo log.
//
// Each backup lives in its own directory:
//
//	<root>/backup_<20060102_150405>_<batch prefix>/<path relative to base>
//
// Files outside the base directory are stored under "_external/" with their
// absolute path preserved. A manifest.json in every backup directory records
// the original location, size and hash of each copy.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kilupskalvis/tidy/internal/fsops"
	"github.com/kilupskalvis/tidy/internal/hash"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/pathsafe"
)

const (
	// ManifestFile is written at the top of every backup directory
	ManifestFile = "manifest.json"

	dirPrefix   = "backup_"
	timeLayout  = "20060102_150405"
	externalDir = "_external"
)

var (
	// ErrBackupFailed wraps every error that aborted backup creation
	ErrBackupFailed = errors.New("backup failed")
	// ErrNoManifest is returned when a directory is not a readable backup
	ErrNoManifest = errors.New("backup manifest not found")
)

// Index persists backup metadata alongside the undo log. It is optional:
// manifests on disk remain authoritative.
type Index interface {
	SaveBackup(entry *models.BackupEntry) error
	ListBackups() ([]*models.BackupEntry, error)
	DeleteBackup(path string) error
}

// Manager creates and maintains backups under one root directory
type Manager struct {
	root   string
	fs     fsops.FS
	index  Index
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager. fs defaults to the real filesystem, index may
// be nil and a nil logger discards output.
func NewManager(root string, fs fsops.FS, index Index, logger *slog.Logger) *Manager {
	if fs == nil {
		fs = fsops.NewRealFS()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		root:   root,
		fs:     fs,
		index:  index,
		logger: logger,
		now:    time.Now,
	}
}

// Root returns the directory backups are created in
func (m *Manager) Root() string {
	return m.root
}

// Create copies every file into a new backup directory for batchID. Paths
// under baseDir keep their relative structure. Either every file is copied
// and hashed, or the partial directory is removed and an error wrapping
// ErrBackupFailed is returned. An empty file list creates nothing.
func (m *Manager) Create(ctx context.Context, batchID, baseDir string, files []string) (*models.BackupEntry, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrBackupFailed)
	}
	if len(files) == 0 {
		return nil, nil
	}

	if err := m.fs.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create backup root: %w", ErrBackupFailed, err)
	}

	created := m.now()
	dir, err := m.allocateDir(created, batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	entry := &models.BackupEntry{
		Path:      dir,
		BatchID:   batchID,
		Timestamp: created,
	}

	fail := func(err error) (*models.BackupEntry, error) {
		if rmErr := m.fs.RemoveAll(dir); rmErr != nil {
			m.logger.Error("failed to remove partial backup", "path", dir, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		f, err := m.copyOne(dir, baseDir, file)
		if err != nil {
			return fail(fmt.Errorf("%s: %w", file, err))
		}
		entry.Files = append(entry.Files, f)
	}

	if err := writeManifest(dir, entry); err != nil {
		return fail(err)
	}

	if m.index != nil {
		if err := m.index.SaveBackup(entry); err != nil {
			m.logger.Warn("failed to index backup", "path", dir, "error", err)
		}
	}

	m.logger.Info("backup created",
		"path", dir,
		"batch_id", batchID,
		"files", entry.FileCount(),
		"bytes", entry.TotalSize(),
	)
	return entry, nil
}

// allocateDir creates a fresh directory for a backup taken at t
func (m *Manager) allocateDir(t time.Time, batchID string) (string, error) {
	name := fmt.Sprintf("%s%s_%s", dirPrefix, t.Format(timeLayout), models.ShortBatchID(batchID))
	dir := filepath.Join(m.root, name)
	for i := 1; ; i++ {
		exists, err := m.fs.Exists(dir)
		if err != nil {
			return "", fmt.Errorf("stat backup dir: %w", err)
		}
		if !exists {
			break
		}
		dir = filepath.Join(m.root, fmt.Sprintf("%s-%d", name, i))
	}
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	return dir, nil
}

// copyOne copies a single file into the backup and checks the copy's hash
func (m *Manager) copyOne(dir, baseDir, file string) (models.BackupFile, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return models.BackupFile{}, fmt.Errorf("resolve path: %w", err)
	}
	rel := relativePath(baseDir, abs)
	dst := filepath.Join(dir, rel)

	srcHash, err := hash.File(abs)
	if err != nil {
		return models.BackupFile{}, fmt.Errorf("hash source: %w", err)
	}
	if err := m.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return models.BackupFile{}, fmt.Errorf("create directory: %w", err)
	}
	if err := m.fs.CopyFile(abs, dst); err != nil {
		return models.BackupFile{}, fmt.Errorf("copy: %w", err)
	}
	dstHash, err := hash.File(dst)
	if err != nil {
		return models.BackupFile{}, fmt.Errorf("hash copy: %w", err)
	}
	if dstHash != srcHash {
		return models.BackupFile{}, fmt.Errorf("copy hash %s does not match source %s", dstHash, srcHash)
	}
	info, err := m.fs.Stat(dst)
	if err != nil {
		return models.BackupFile{}, fmt.Errorf("stat copy: %w", err)
	}

	return models.BackupFile{
		OriginalPath: abs,
		RelativePath: filepath.ToSlash(rel),
		Size:         info.Size(),
		Hash:         srcHash,
	}, nil
}

// relativePath is where abs lives inside a backup directory
func relativePath(baseDir, abs string) string {
	if baseDir != "" {
		if base, err := filepath.Abs(baseDir); err == nil && pathsafe.IsWithin(base, abs) {
			// A file named like the manifest would be overwritten by it
			if rel, err := filepath.Rel(base, abs); err == nil && rel != "." && !strings.EqualFold(rel, ManifestFile) {
				return rel
			}
		}
	}
	trimmed := strings.TrimPrefix(abs, filepath.VolumeName(abs))
	trimmed = strings.TrimLeft(trimmed, `/\`)
	if vol := filepath.VolumeName(abs); vol != "" {
		trimmed = filepath.Join(strings.TrimRight(vol, ":"), trimmed)
	}
	return filepath.Join(externalDir, trimmed)
}

// Verify reports whether every file in the backup still matches its recorded
// hash. When originals are given, each of them must also be present in the
// backup.
func (m *Manager) Verify(path string, originals ...string) bool {
	problems, err := m.Check(path, originals...)
	if err != nil {
		m.logger.Warn("backup verification failed", "path", path, "error", err)
		return false
	}
	for _, p := range problems {
		m.logger.Warn("backup verification problem", "path", path, "problem", p)
	}
	return len(problems) == 0
}

// Check recomputes the hash of every copy and returns a description of each
// mismatch. An error means the manifest itself could not be read.
func (m *Manager) Check(path string, originals ...string) ([]string, error) {
	entry, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	var problems []string
	recorded := make(map[string]bool, len(entry.Files))
	for _, f := range entry.Files {
		recorded[f.OriginalPath] = true
		copyPath := filepath.Join(path, filepath.FromSlash(f.RelativePath))
		got, err := hash.File(copyPath)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.RelativePath, err))
			continue
		}
		if got != f.Hash {
			problems = append(problems, fmt.Sprintf("%s: hash mismatch (expected %s, got %s)", f.RelativePath, f.Hash, got))
		}
	}

	for _, orig := range originals {
		abs, err := filepath.Abs(orig)
		if err != nil {
			abs = orig
		}
		if !recorded[abs] {
			problems = append(problems, fmt.Sprintf("%s: not in backup", orig))
		}
	}
	return problems, nil
}

// Restore copies every backed-up file over its recorded original location,
// creating parent directories as needed. Originals that already match the
// backup are left alone. It keeps going past individual
// failures and returns how many files were restored along with the joined
// errors.
func (m *Manager) Restore(path string) (int, error) {
	entry, err := ReadManifest(path)
	if err != nil {
		return 0, err
	}

	var errs []error
	restored := 0
	for _, f := range entry.Files {
		copyPath := filepath.Join(path, filepath.FromSlash(f.RelativePath))
		if current, err := hash.File(f.OriginalPath); err == nil && current == f.Hash {
			// Already identical
			restored++
			continue
		}
		if err := m.fs.MkdirAll(filepath.Dir(f.OriginalPath), 0755); err != nil {
			errs = append(errs, fmt.Errorf("%s: create directory: %w", f.OriginalPath, err))
			continue
		}
		if err := fsops.ReplaceFile(copyPath, f.OriginalPath); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.OriginalPath, err))
			continue
		}
		restored++
	}

	m.logger.Info("backup restored", "path", path, "restored", restored, "failed", len(errs))
	return restored, errors.Join(errs...)
}

// Cleanup deletes backups older than retentionDays. It is best effort:
// failures are logged and skipped. A non-positive retention keeps everything.
func (m *Manager) Cleanup(retentionDays int) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := m.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	dirs, err := m.backupDirs()
	if err != nil {
		m.logger.Warn("failed to list backups", "root", m.root, "error", err)
		return 0
	}

	removed := 0
	for _, dir := range dirs {
		created, ok := m.createdAt(dir)
		if !ok || !created.Before(cutoff) {
			continue
		}
		if err := m.fs.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove old backup", "path", dir, "error", err)
			continue
		}
		if m.index != nil {
			if err := m.index.DeleteBackup(dir); err != nil {
				m.logger.Warn("failed to unindex backup", "path", dir, "error", err)
			}
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("old backups removed", "removed", removed, "retention_days", retentionDays)
	}
	return removed
}

// createdAt prefers the manifest timestamp and falls back to the directory mtime
func (m *Manager) createdAt(dir string) (time.Time, bool) {
	if entry, err := ReadManifest(dir); err == nil && !entry.Timestamp.IsZero() {
		return entry.Timestamp, true
	}
	info, err := m.fs.Stat(dir)
	if err != nil {
		m.logger.Warn("cannot date backup", "path", dir, "error", err)
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// List returns the metadata of every readable backup, newest first.
// Directories without a manifest are skipped.
func (m *Manager) List() ([]*models.BackupEntry, error) {
	dirs, err := m.backupDirs()
	if err != nil {
		return nil, err
	}
	var entries []*models.BackupEntry
	for _, dir := range dirs {
		entry, err := ReadManifest(dir)
		if err != nil {
			m.logger.Debug("skipping unreadable backup", "path", dir, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// ForBatch returns the newest backup taken for batchID, or nil if none exists.
// The index is consulted first, then the directories on disk.
func (m *Manager) ForBatch(batchID string) (*models.BackupEntry, error) {
	if m.index != nil {
		indexed, err := m.index.ListBackups()
		if err == nil {
			for _, e := range indexed {
				if e.BatchID != batchID {
					continue
				}
				if exists, _ := m.fs.Exists(e.Path); exists {
					return e, nil
				}
			}
		} else {
			m.logger.Warn("backup index unavailable", "error", err)
		}
	}

	entries, err := m.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.BatchID == batchID {
			return e, nil
		}
	}
	return nil, nil
}

// backupDirs lists the backup directories directly under the root
func (m *Manager) backupDirs() ([]string, error) {
	des, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup root: %w", err)
	}
	var dirs []string
	for _, de := range des {
		if de.IsDir() && strings.HasPrefix(de.Name(), dirPrefix) {
			dirs = append(dirs, filepath.Join(m.root, de.Name()))
		}
	}
	return dirs, nil
}

// ReadManifest loads the manifest of the backup at dir
func ReadManifest(dir string) (*models.BackupEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNoManifest)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entry models.BackupEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	// The directory may have been moved since it was written
	entry.Path = dir
	return &entry, nil
}

func writeManifest(dir string, entry *models.BackupEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
