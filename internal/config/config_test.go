package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_CreatesLayout(t *testing.T) {
	root := t.TempDir()

	cfg, err := Initialize(root)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(root, TidyDir))
	assert.DirExists(t, cfg.BackupsPath())
	assert.FileExists(t, filepath.Join(root, TidyDir, ConfigFile))
	assert.Equal(t, filepath.Join(root, TidyDir, DatabaseFile), cfg.DatabasePath())
	assert.Equal(t, root, cfg.RootPath())
}

func TestInitialize_AlreadyExists(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root)
	require.NoError(t, err)

	_, err = Initialize(root)
	assert.Error(t, err)
}

func TestLoad_WalksUp(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root)
	require.NoError(t, err)

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, err := Load(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, TidyDir), cfg.TidyPath())
}

func TestLoad_NotInitialized(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	root := t.TempDir()
	tidyPath := filepath.Join(root, TidyDir)
	require.NoError(t, os.MkdirAll(tidyPath, 0755))

	content := `
[organize]
confidence_threshold = 0.6

[backup]
enabled = false

[storage]
driver = "sqlite"
`
	require.NoError(t, os.WriteFile(filepath.Join(tidyPath, ConfigFile), []byte(content), 0644))

	cfg, err := LoadFrom(tidyPath)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Organize.ConfidenceThreshold)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)

	// Untouched values keep their defaults
	assert.Equal(t, 255, cfg.Organize.MaxFilenameLength)
	assert.True(t, cfg.Safety.VerifyHashes)
	assert.Equal(t, "undone", cfg.History.ClearPolicy)
	assert.NotEmpty(t, cfg.Safety.ProtectedPaths)
}

func TestSave_RoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg, err := Initialize(root)
	require.NoError(t, err)

	cfg.Organize.ForceExtension = true
	cfg.Backup.RetentionDays = 7
	require.NoError(t, cfg.Save())

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.True(t, loaded.Organize.ForceExtension)
	assert.Equal(t, 7, loaded.Backup.RetentionDays)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Organize.ConfidenceThreshold = 1.5 }},
		{"threshold negative", func(c *Config) { c.Organize.ConfidenceThreshold = -0.1 }},
		{"short filename limit", func(c *Config) { c.Organize.MaxFilenameLength = 4 }},
		{"negative margin", func(c *Config) { c.Safety.FreeSpaceMargin = -1 }},
		{"bad pattern", func(c *Config) { c.Safety.ProtectedPaths = []string{"[unclosed"} }},
		{"unknown policy", func(c *Config) { c.History.ClearPolicy = "everything" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
	}

	assert.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBackupsPath(t *testing.T) {
	cfg := Default()
	cfg.path = "/data/.tidy"
	assert.Equal(t, filepath.Join("/data/.tidy", BackupsDir), cfg.BackupsPath())

	cfg.Backup.Dir = "snapshots"
	assert.Equal(t, filepath.Join("/data/.tidy", "snapshots"), cfg.BackupsPath())

	abs := filepath.Join(t.TempDir(), "elsewhere")
	cfg.Backup.Dir = abs
	assert.Equal(t, abs, cfg.BackupsPath())
}
