package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/pathsafe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files under dir and returns their scanner view in order
func writeFiles(t *testing.T, dir string, names ...string) []models.FileInfo {
	t.Helper()
	var files []models.FileInfo
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0644))
		files = append(files, models.FileInfo{Path: path, Size: int64(len("content of " + name))})
	}
	return files
}

func TestCreatePlan_Basic(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "scan001.pdf", "IMG_1234.jpg")

	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Finance", SuggestedName: "tax-return-2024", Confidence: 0.9, Reasoning: "looks like a tax form"},
		files[1].Path: {Category: "Photos", SuggestedName: "", Confidence: 0.8},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 2)

	assert.NotEmpty(t, plan.BatchID)
	assert.Equal(t, filepath.Join(base, "Finance", "tax-return-2024.pdf"), plan.Operations[0].DestinationPath)
	assert.Equal(t, models.OperationMove, plan.Operations[0].Type)
	assert.Equal(t, "looks like a tax form", plan.Operations[0].Reasoning)
	assert.Equal(t, 0.9, plan.Operations[0].Confidence)

	// Empty suggested name keeps the original file name
	assert.Equal(t, filepath.Join(base, "Photos", "IMG_1234.jpg"), plan.Operations[1].DestinationPath)
}

func TestCreatePlan_PreservesInputOrder(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "c.txt", "a.txt", "b.txt")
	suggestions := map[string]models.Suggestion{}
	for _, f := range files {
		suggestions[f.Path] = models.Suggestion{Category: "Docs", Confidence: 1}
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 3)
	for i, f := range files {
		assert.Equal(t, f.Path, plan.Operations[i].SourcePath)
	}
}

func TestCreatePlan_UniqueBatchIDs(t *testing.T) {
	base := t.TempDir()
	p := New(DefaultOptions(), nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		plan, err := p.CreatePlan(nil, nil, base)
		require.NoError(t, err)
		assert.False(t, seen[plan.BatchID], "duplicate batch id %s", plan.BatchID)
		seen[plan.BatchID] = true
	}
}

func TestCreatePlan_ConfidenceThreshold(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "low.txt", "high.txt", "edge.txt")
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Docs", Confidence: 0.2},
		files[1].Path: {Category: "Docs", Confidence: 0.9},
		files[2].Path: {Category: "Docs", Confidence: 0.5},
	}

	plan, err := New(Options{ConfidenceThreshold: 0.5}, nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 2)
	assert.Equal(t, files[1].Path, plan.Operations[0].SourcePath)
	assert.Equal(t, files[2].Path, plan.Operations[1].SourcePath)
}

func TestCreatePlan_SkipsFilesWithoutSuggestion(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "a.txt", "b.txt")
	suggestions := map[string]models.Suggestion{
		files[1].Path: {Category: "Docs", Confidence: 1},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, files[1].Path, plan.Operations[0].SourcePath)
}

func TestCreatePlan_TraversalStaysInsideBase(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "innocent.txt")
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "../../../etc", SuggestedName: "passwd", Confidence: 1},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)

	dest := plan.Operations[0].DestinationPath
	assert.True(t, pathsafe.ValidateSafePath(base, dest), "destination %s escaped %s", dest, base)
	assert.NotEqual(t, "/etc/passwd", dest)
	assert.Equal(t, filepath.Join(base, "etc", "passwd.txt"), dest)
}

func TestCreatePlan_AbsoluteNameStaysInsideBase(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "x.log")
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "/", SuggestedName: "/var/log/../../root/.ssh/authorized_keys", Confidence: 1},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.True(t, pathsafe.ValidateSafePath(base, plan.Operations[0].DestinationPath))
	assert.Equal(t, filepath.Join(base, pathsafe.FallbackName), filepath.Dir(plan.Operations[0].DestinationPath))
}

func TestCreatePlan_Extensions(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "report.pdf", "notes.txt", "archive.tar.gz")
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Docs", SuggestedName: "Quarterly Report", Confidence: 1},
		files[1].Path: {Category: "Docs", SuggestedName: "meeting.md", Confidence: 1},
		files[2].Path: {Category: "Docs", SuggestedName: "backup", Confidence: 1},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report.pdf", filepath.Base(plan.Operations[0].DestinationPath))
	assert.Equal(t, "meeting.md", filepath.Base(plan.Operations[1].DestinationPath))
	assert.Equal(t, "backup.gz", filepath.Base(plan.Operations[2].DestinationPath))

	forced, err := New(Options{MaxFilenameLength: 255, ForceExtension: true}, nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	assert.Equal(t, "meeting.md.txt", filepath.Base(forced.Operations[1].DestinationPath))
	assert.Equal(t, "Quarterly Report.pdf", filepath.Base(forced.Operations[0].DestinationPath))
}

func TestCreatePlan_ForceExtensionDoesNotDouble(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "photo.JPG")
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Photos", SuggestedName: "beach.jpg", Confidence: 1},
	}

	plan, err := New(Options{MaxFilenameLength: 255, ForceExtension: true}, nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	assert.Equal(t, "beach.jpg", filepath.Base(plan.Operations[0].DestinationPath))
}

func TestCreatePlan_TruncatesKeepingExtension(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, "long.pdf")
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Docs", SuggestedName: strings.Repeat("a", 300), Confidence: 1},
	}

	plan, err := New(Options{MaxFilenameLength: 40}, nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	name := filepath.Base(plan.Operations[0].DestinationPath)
	assert.Len(t, name, 40)
	assert.True(t, strings.HasSuffix(name, ".pdf"))
}

func TestCreatePlan_RenameInSameDirectory(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, filepath.Join("Docs", "draft.txt"))
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Docs", SuggestedName: "final", Confidence: 1},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, models.OperationRename, plan.Operations[0].Type)
	assert.Equal(t, filepath.Join(base, "Docs", "final.txt"), plan.Operations[0].DestinationPath)
}

func TestCreatePlan_SkipsAlreadyOrganized(t *testing.T) {
	base := t.TempDir()
	files := writeFiles(t, base, filepath.Join("Docs", "done.txt"))
	suggestions := map[string]models.Suggestion{
		files[0].Path: {Category: "Docs", SuggestedName: "done.txt", Confidence: 1},
	}

	plan, err := New(DefaultOptions(), nil).CreatePlan(files, suggestions, base)
	require.NoError(t, err)
	assert.Empty(t, plan.Operations)
}

func TestCreatePlan_RequiresBase(t *testing.T) {
	_, err := New(DefaultOptions(), nil).CreatePlan(nil, nil, "")
	assert.ErrorIs(t, err, ErrNoBaseDirectory)
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "short.txt", truncateName("short.txt", 20))
	assert.Equal(t, "abcdef.txt", truncateName("abcdefghij.txt", 10))

	// Multi-byte runes are never split
	got := truncateName(strings.Repeat("é", 20)+".md", 12)
	assert.LessOrEqual(t, len(got), 12)
	assert.True(t, strings.HasSuffix(got, ".md"))
	assert.Equal(t, strings.Repeat("é", 4)+".md", got)

	// An extension longer than the limit is dropped rather than kept whole
	got = truncateName("a."+strings.Repeat("x", 30), 10)
	assert.Len(t, got, 10)
}
