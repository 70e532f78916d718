package planner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/tidy/internal/fsops"
	"github.com/kilupskalvis/tidy/internal/models"
)

// maxSuffix bounds the counter search for a free name
const maxSuffix = 10000

// ResolveConflicts returns a plan whose destinations are pairwise distinct and
// free at the moment each operation runs.
//
// Within each group of operations sharing a destination the first keeps it
// and the rest become "name (1).ext", "name (2).ext", ... A destination
// occupied on disk is only kept when an earlier operation of the batch moves
// that file away; otherwise every member of the group is renamed. Suffixed
// names are shortened to fit maxNameLength bytes (non-positive means 255).
// A conflict-free plan comes back unchanged.
func ResolveConflicts(plan *models.Plan, fs fsops.FS, maxNameLength int) *models.Plan {
	if fs == nil {
		fs = fsops.NewRealFS()
	}
	if maxNameLength <= 0 {
		maxNameLength = DefaultOptions().MaxFilenameLength
	}

	occupied := func(path string) bool {
		exists, err := fs.Exists(path)
		// Unknown state counts as occupied
		return err != nil || exists
	}

	// First pass: decide which operations keep their destination
	keep := make([]bool, len(plan.Operations))
	reserved := make(map[string]bool)
	vacated := make(map[string]bool)
	for i, op := range plan.Operations {
		key := NormalizeKey(op.DestinationPath)
		if !reserved[key] && (vacated[key] || !occupied(op.DestinationPath)) {
			keep[i] = true
			reserved[key] = true
		}
		vacated[NormalizeKey(op.SourcePath)] = true
	}

	// Second pass: give every other operation the next free suffix
	ops := make([]models.Operation, len(plan.Operations))
	for i, op := range plan.Operations {
		ops[i] = op
		if keep[i] {
			continue
		}
		for n := 1; n <= maxSuffix; n++ {
			candidate := suffixedPath(op.DestinationPath, n, maxNameLength)
			key := NormalizeKey(candidate)
			if reserved[key] || occupied(candidate) {
				continue
			}
			ops[i].DestinationPath = candidate
			reserved[key] = true
			break
		}
	}

	return plan.WithOperations(ops)
}

// HasCollisions reports whether any two operations share a destination
func HasCollisions(plan *models.Plan) bool {
	return len(destinationCollisions(plan)) > 0
}

// suffixedPath inserts " (n)" before the extension of path's file name,
// cutting the stem so the name stays within max bytes
func suffixedPath(path string, n, max int) string {
	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		// Dotfiles like ".env" have no stem worth keeping separate
		stem, ext = name, ""
	}
	suffix := fmt.Sprintf(" (%d)", n)
	room := max - len(suffix) - len(ext)
	if room < 1 {
		stem, ext = stem+ext, ""
		room = max - len(suffix)
	}
	if len(stem) > room {
		stem = strings.TrimRight(truncateUTF8(stem, room), ". ")
		if stem == "" {
			stem = "_"
		}
	}
	return filepath.Join(dir, stem+suffix+ext)
}
