package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{
		"b.txt",
		"a.pdf",
		".hidden",
		"sub/c.jpg",
		"sub/deeper/d.md",
		"build/out.bin",
		".tidy/tidy.db",
		".DS_Store",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
	}
	return root
}

func relPaths(t *testing.T, root string, opts Options) []string {
	t.Helper()
	files, err := Files(context.Background(), root, opts, nil)
	require.NoError(t, err)
	var out []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestFiles_TopLevelOnly(t *testing.T) {
	root := setupTree(t)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, relPaths(t, root, Options{}))
}

func TestFiles_Recursive(t *testing.T) {
	root := setupTree(t)
	got := relPaths(t, root, Options{Recursive: true, Ignore: []string{"build/**"}})
	assert.Equal(t, []string{"a.pdf", "b.txt", "sub/c.jpg", "sub/deeper/d.md"}, got)
}

func TestFiles_IncludeHiddenStillHonorsIgnore(t *testing.T) {
	root := setupTree(t)
	got := relPaths(t, root, Options{IncludeHidden: true, Ignore: []string{".tidy/**", "**/.DS_Store"}})
	assert.Equal(t, []string{".hidden", "a.pdf", "b.txt"}, got)
}

func TestFiles_ReportsSizeAndTime(t *testing.T) {
	root := setupTree(t)
	files, err := Files(context.Background(), root, Options{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, int64(len("a.pdf")), files[0].Size)
	assert.False(t, files[0].ModTime.IsZero())
	assert.True(t, filepath.IsAbs(files[0].Path))
}

func TestFiles_SkipsSymlinks(t *testing.T) {
	root := setupTree(t)
	require.NoError(t, os.Symlink(filepath.Join(root, "b.txt"), filepath.Join(root, "link.txt")))
	assert.NotContains(t, relPaths(t, root, Options{}), "link.txt")
}

func TestFiles_MissingRoot(t *testing.T) {
	_, err := Files(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{}, nil)
	assert.Error(t, err)
}

func TestFiles_Cancelled(t *testing.T) {
	root := setupTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Files(ctx, root, Options{Recursive: true}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
