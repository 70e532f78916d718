package planner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestValidator returns a validator that reports plenty of free space
func newTestValidator(opts ValidatorOptions) *Validator {
	v := NewValidator(opts)
	v.freeSpace = func(string) (uint64, bool, error) { return 1 << 40, true, nil }
	return v
}

func containsMessage(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidate_CleanPlan(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt", "b.txt")
	plan := planWith(base,
		move(files[0].Path, filepath.Join(base, "Docs", "a.txt")),
		move(files[1].Path, filepath.Join(base, "Docs", "Deep", "b.txt")),
	)

	assert.Empty(t, newTestValidator(ValidatorOptions{}).Validate(plan))
}

func TestValidate_EmptyPlan(t *testing.T) {
	assert.Empty(t, newTestValidator(ValidatorOptions{}).Validate(models.NewPlan(t.TempDir())))
}

func TestValidate_Collision(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt", "b.txt")
	dest := filepath.Join(base, "Docs", "same.txt")
	plan := planWith(base, move(files[0].Path, dest), move(files[1].Path, dest))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "operations #1 and #2 both target")
}

func TestValidate_MissingSource(t *testing.T) {
	base := t.TempDir()
	plan := planWith(base, move(filepath.Join(base, "ghost.txt"), filepath.Join(base, "Docs", "ghost.txt")))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "operation #1: source does not exist"), "got %v", errs)
}

func TestValidate_SourceIsDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "folder")
	require.NoError(t, os.Mkdir(dir, 0755))
	plan := planWith(base, move(dir, filepath.Join(base, "Docs", "folder")))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "not a regular file"), "got %v", errs)
}

func TestValidate_EscapingDestination(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	plan := planWith(base, move(files[0].Path, filepath.Join(outside, "a.txt")))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "escapes base directory"), "got %v", errs)
}

func TestValidate_SymlinkEscape(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	require.NoError(t, os.Symlink(outside, filepath.Join(base, "link")))
	plan := planWith(base, move(files[0].Path, filepath.Join(base, "link", "a.txt")))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "escapes base directory"), "got %v", errs)
}

func TestValidate_ProtectedDestination(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	pattern := filepath.ToSlash(filepath.Join(base, "Vault")) + "/**"
	plan := planWith(base, move(files[0].Path, filepath.Join(base, "Vault", "a.txt")))

	errs := newTestValidator(ValidatorOptions{ProtectedPaths: []string{pattern}}).Validate(plan)
	assert.True(t, containsMessage(errs, "protected location"), "got %v", errs)
}

func TestValidate_ProtectedDefaultsCoverMetadata(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	plan := planWith(base, move(files[0].Path, filepath.Join(base, ".git", "objects", "a.txt")))

	errs := newTestValidator(ValidatorOptions{ProtectedPaths: []string{"**/.git/**"}}).Validate(plan)
	assert.True(t, containsMessage(errs, "protected location"), "got %v", errs)
}

func TestValidate_InsufficientFreeSpace(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt", "b.txt")
	plan := planWith(base,
		move(files[0].Path, filepath.Join(base, "Docs", "a.txt")),
		move(files[1].Path, filepath.Join(base, "Docs", "b.txt")),
	)

	v := NewValidator(ValidatorOptions{FreeSpaceMargin: 0.5})
	total := uint64(files[0].Size + files[1].Size)
	// Enough for the raw bytes but not the margin
	v.freeSpace = func(string) (uint64, bool, error) { return total, true, nil }

	errs := v.Validate(plan)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "insufficient free space")
}

func TestValidate_FreeSpaceUnknown(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	plan := planWith(base, move(files[0].Path, filepath.Join(base, "Docs", "a.txt")))

	v := NewValidator(ValidatorOptions{})
	v.freeSpace = func(string) (uint64, bool, error) { return 0, false, nil }
	assert.Empty(t, v.Validate(plan))

	v.freeSpace = func(string) (uint64, bool, error) { return 0, false, errors.New("statfs failed") }
	errs := v.Validate(plan)
	assert.True(t, containsMessage(errs, "cannot query free space"), "got %v", errs)
}

func TestValidate_DestinationParentIsFile(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt", "Docs")
	plan := planWith(base, move(files[0].Path, filepath.Join(base, "Docs", "a.txt")))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "destination directory cannot be written"), "got %v", errs)
}

func TestValidate_ReadOnlyDestination(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	locked := filepath.Join(base, "Locked")
	require.NoError(t, os.Mkdir(locked, 0555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	plan := planWith(base, move(files[0].Path, filepath.Join(locked, "a.txt")))
	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "destination directory cannot be written"), "got %v", errs)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	plan := planWith(base,
		move(files[0].Path, filepath.Join(outside, "a.txt")),
		move(filepath.Join(base, "ghost.txt"), filepath.Join(base, "Docs", "ghost.txt")),
	)

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "operation #1"))
	assert.True(t, containsMessage(errs, "operation #2"))
}

func TestValidate_DoesNotMutate(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	plan := planWith(base, move(files[0].Path, filepath.Join(base, "New", "Deep", "a.txt")))

	newTestValidator(ValidatorOptions{}).Validate(plan)

	_, err := os.Stat(filepath.Join(base, "New"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(files[0].Path)
	assert.NoError(t, err)
}

func TestProtectedMatch(t *testing.T) {
	patterns := []string{"/etc/**", "**/.tidy/**"}

	pattern, ok := ProtectedMatch(patterns, "/etc/passwd")
	assert.True(t, ok)
	assert.Equal(t, "/etc/**", pattern)

	_, ok = ProtectedMatch(patterns, "/home/user/.tidy/tidy.db")
	assert.True(t, ok)

	_, ok = ProtectedMatch(patterns, "/home/user/Documents/a.txt")
	assert.False(t, ok)
}

func TestValidate_NameTooLong(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt", "b.txt")
	plan := planWith(base,
		move(files[0].Path, filepath.Join(base, "Docs", strings.Repeat("x", 255)+".txt")),
		move(files[1].Path, filepath.Join(base, "Docs", strings.Repeat("y", 20)+".txt")),
	)

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "operation #1: destination name is 259 bytes, limit is 255")

	errs = newTestValidator(ValidatorOptions{MaxFilenameLength: 16}).Validate(plan)
	assert.True(t, containsMessage(errs, "operation #2: destination name is 24 bytes, limit is 16"), errs)
}

func TestValidate_DestinationIsBase(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt")
	plan := planWith(base, move(files[0].Path, base))

	errs := newTestValidator(ValidatorOptions{}).Validate(plan)
	assert.True(t, containsMessage(errs, "escapes base directory"), errs)
}
