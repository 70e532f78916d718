package pathsafe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Finance", "Finance"},
		{"traversal", "../../../etc", "etc"},
		{"absolute", "/etc/passwd", "etc_passwd"},
		{"backslashes", `..\..\Windows\System32`, "Windows_System32"},
		{"nested separators", "a/b\\c", "a_b_c"},
		{"reserved chars", `bad<name>?.txt`, "bad_name__.txt"},
		{"control chars", "tab\there", "tab_here"},
		{"nul byte", "a\x00b", "ab"},
		{"double dots inside", "report..pdf", "report.pdf"},
		{"leading trailing dots and spaces", "  .hidden. ", "hidden"},
		{"collapses whitespace", "Tax   Returns \t 2024", "Tax Returns _ 2024"},
		{"only dots", "...", FallbackName},
		{"only separators", "///", FallbackName},
		{"empty", "", FallbackName},
		{"device name", "CON", "_CON"},
		{"device name with extension", "nul.txt", "_nul.txt"},
		{"unicode kept", "Fotos – Urlaub", "Fotos – Urlaub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeComponent(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, `\`)
			assert.NotContains(t, got, "..")
		})
	}
}

func TestSanitizeComponent_NeverEscapes(t *testing.T) {
	base := t.TempDir()
	inputs := []string{
		"../../../etc", "..", "/", "/etc", `C:\Windows`, "....//", "./.",
		"a/../../b", "\x00", " .. ", "%2e%2e", "~/secrets",
	}
	for _, raw := range inputs {
		dest := filepath.Join(base, SanitizeComponent(raw), SanitizeComponent(raw))
		assert.True(t, ValidateSafePath(base, dest), "input %q produced %q", raw, dest)
	}
}

func TestValidateSafePath(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "Finance"), 0755))

	assert.True(t, ValidateSafePath(base, filepath.Join(base, "Finance", "report.pdf")))
	assert.True(t, ValidateSafePath(base, filepath.Join(base, "New", "Deep", "file.txt")))
	assert.False(t, ValidateSafePath(base, base))
	assert.False(t, ValidateSafePath(base, filepath.Join(base, "Finance", "..")))

	assert.False(t, ValidateSafePath(base, filepath.Join(base, "..", "outside.txt")))
	assert.False(t, ValidateSafePath(base, filepath.Join(base, "..", "..", "..", "etc", "passwd")))
	assert.False(t, ValidateSafePath(base, filepath.Dir(base)))
	assert.False(t, ValidateSafePath(base, ""))
	assert.False(t, ValidateSafePath("", filepath.Join(base, "x")))
}

func TestValidateSafePath_SiblingPrefix(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "docs")
	sibling := filepath.Join(root, "docs-evil", "file.txt")
	require.NoError(t, os.MkdirAll(base, 0755))

	assert.False(t, ValidateSafePath(base, sibling))
}

func TestValidateSafePath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "base")
	outside := filepath.Join(root, "outside")
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.MkdirAll(outside, 0755))

	link := filepath.Join(base, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	assert.False(t, ValidateSafePath(base, filepath.Join(link, "file.txt")))
}

func TestCanonical_MissingTail(t *testing.T) {
	base := t.TempDir()
	got, err := Canonical(filepath.Join(base, "a", "b", "c.txt"))
	require.NoError(t, err)

	resolvedBase, err := filepath.EvalSymlinks(base)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, resolvedBase))
	assert.Equal(t, "c.txt", filepath.Base(got))
}
