package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kilupskalvis/tidy/internal/fsops"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/pathsafe"
)

// ValidatorOptions control pre-flight checks
type ValidatorOptions struct {
	// ProtectedPaths are doublestar patterns matched against slash-separated
	// absolute destinations.
	ProtectedPaths []string
	// FreeSpaceMargin is the fraction added on top of the summed source sizes.
	FreeSpaceMargin float64
	// MaxFilenameLength caps destination file names in bytes; non-positive
	// means 255.
	MaxFilenameLength int
}

// Validator checks a plan against the live filesystem without mutating it
type Validator struct {
	opts ValidatorOptions
	// freeSpace is swappable so tests can simulate a full volume
	freeSpace func(path string) (uint64, bool, error)
}

// NewValidator creates a Validator
func NewValidator(opts ValidatorOptions) *Validator {
	if opts.MaxFilenameLength <= 0 {
		opts.MaxFilenameLength = DefaultOptions().MaxFilenameLength
	}
	return &Validator{opts: opts, freeSpace: fsops.FreeSpace}
}

// Validate returns every problem found with the plan. An empty result means
// the plan may be executed.
func (v *Validator) Validate(plan *models.Plan) []string {
	var errs []string

	errs = append(errs, destinationCollisions(plan)...)

	var totalSize int64
	for i, op := range plan.Operations {
		n := i + 1

		if !pathsafe.ValidateSafePath(plan.BaseDirectory, op.DestinationPath) {
			errs = append(errs, fmt.Sprintf("operation #%d: destination %s escapes base directory %s", n, op.DestinationPath, plan.BaseDirectory))
		}

		if name := filepath.Base(op.DestinationPath); len(name) > v.opts.MaxFilenameLength {
			errs = append(errs, fmt.Sprintf("operation #%d: destination name is %d bytes, limit is %d: %s", n, len(name), v.opts.MaxFilenameLength, op.DestinationPath))
		}

		if pattern, ok := ProtectedMatch(v.opts.ProtectedPaths, op.DestinationPath); ok {
			errs = append(errs, fmt.Sprintf("operation #%d: destination %s is inside protected location %q", n, op.DestinationPath, pattern))
		}

		info, err := os.Stat(op.SourcePath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			errs = append(errs, fmt.Sprintf("operation #%d: source does not exist: %s", n, op.SourcePath))
		case err != nil:
			errs = append(errs, fmt.Sprintf("operation #%d: cannot stat source %s: %v", n, op.SourcePath, err))
		case !info.Mode().IsRegular():
			errs = append(errs, fmt.Sprintf("operation #%d: source is not a regular file: %s", n, op.SourcePath))
		default:
			totalSize += info.Size()
			if err := fsops.CheckReadable(op.SourcePath); err != nil {
				errs = append(errs, fmt.Sprintf("operation #%d: source is not readable: %v", n, err))
			}
		}

		if err := fsops.CheckCreatable(filepath.Dir(op.DestinationPath)); err != nil {
			errs = append(errs, fmt.Sprintf("operation #%d: destination directory cannot be written: %v", n, err))
		}
	}

	if msg := v.checkFreeSpace(plan.BaseDirectory, totalSize); msg != "" {
		errs = append(errs, msg)
	}

	return errs
}

func (v *Validator) checkFreeSpace(base string, total int64) string {
	if total == 0 {
		return ""
	}
	probe, err := fsops.NearestExistingAncestor(base)
	if err != nil {
		return fmt.Sprintf("cannot determine destination volume: %v", err)
	}
	free, ok, err := v.freeSpace(probe)
	if err != nil {
		return fmt.Sprintf("cannot query free space on %s: %v", probe, err)
	}
	if !ok {
		return ""
	}
	required := uint64(float64(total) * (1 + v.opts.FreeSpaceMargin))
	if free < required {
		return fmt.Sprintf("insufficient free space on %s: need %d bytes, have %d", probe, required, free)
	}
	return ""
}

// destinationCollisions reports every pair of operations sharing a destination
func destinationCollisions(plan *models.Plan) []string {
	first := make(map[string]int)
	var errs []string
	for i, op := range plan.Operations {
		key := NormalizeKey(op.DestinationPath)
		if j, ok := first[key]; ok {
			errs = append(errs, fmt.Sprintf("operations #%d and #%d both target %s", j+1, i+1, op.DestinationPath))
			continue
		}
		first[key] = i
	}
	return errs
}

// ProtectedMatch reports the first protected pattern matching path, checking
// both the lexical and the symlink-resolved form.
func ProtectedMatch(patterns []string, path string) (string, bool) {
	candidates := []string{filepath.ToSlash(filepath.Clean(path))}
	if canon, err := pathsafe.Canonical(path); err == nil {
		candidates = append(candidates, filepath.ToSlash(canon))
	}
	for _, pattern := range patterns {
		for _, c := range candidates {
			if matchPattern(pattern, c) {
				return pattern, true
			}
		}
	}
	return "", false
}

func matchPattern(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err == nil && ok {
		return true
	}
	// Windows volumes compare case-insensitively
	if len(pattern) > 1 && pattern[1] == ':' {
		ok, err = doublestar.Match(strings.ToLower(pattern), strings.ToLower(path))
		return err == nil && ok
	}
	return false
}
