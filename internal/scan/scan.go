// Package scan lists the candidate files under a root directory.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kilupskalvis/tidy/internal/models"
)

// Options control which files are reported
type Options struct {
	// Recursive descends into subdirectories
	Recursive bool
	// Ignore holds doublestar patterns matched against slash-separated
	// paths relative to the root
	Ignore []string
	// IncludeHidden reports dotfiles and descends into dot directories
	IncludeHidden bool
}

// Files returns every regular file under root in lexical order. Symlinks and
// other special files are never reported.
func Files(ctx context.Context, root string, opts Options, logger *slog.Logger) ([]models.FileInfo, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var files []models.FileInfo
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == abs {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !opts.Recursive || (!opts.IncludeHidden && isHidden(d.Name())) || ignoredDir(opts.Ignore, rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !opts.IncludeHidden && isHidden(d.Name()) {
			return nil
		}
		if ignored(opts.Ignore, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		files = append(files, models.FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}

	logger.Debug("scan complete", "root", abs, "files", len(files))
	return files, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func ignored(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// ignoredDir reports whether every path under dir would be ignored
func ignoredDir(patterns []string, dir string) bool {
	return ignored(patterns, dir) || ignored(patterns, dir+"/")
}
