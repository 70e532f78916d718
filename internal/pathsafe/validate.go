package pathsafe

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Canonical returns the absolute, cleaned form of path with symlinks resolved
// for the deepest ancestor that exists. Components that do not exist yet are
// appended unchanged.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	cur := abs
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, reverse(missing)...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

// IsWithin reports whether target is base or lexically beneath it.
// Both paths must already be absolute and clean.
func IsWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// ValidateSafePath reports whether target, once canonicalized, is a strict
// descendant of base. The base itself and any resolution failure yield false.
func ValidateSafePath(base, target string) bool {
	if base == "" || target == "" {
		return false
	}
	canonBase, err := Canonical(base)
	if err != nil {
		return false
	}
	canonTarget, err := Canonical(target)
	if err != nil {
		return false
	}
	if canonTarget == canonBase {
		return false
	}
	return IsWithin(canonBase, canonTarget)
}

func reverse(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
