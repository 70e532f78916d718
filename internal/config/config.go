// Package config manages tidy configuration and the .tidy directory structure.
// It handles loading, saving, and initializing the per-root configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

const (
	TidyDir      = ".tidy"
	ConfigFile   = "config"
	DatabaseFile = "tidy.db"
	BackupsDir   = "backups"
)

// Storage drivers
const (
	DriverBolt   = "bbolt"
	DriverSQLite = "sqlite"
)

// ErrNotInitialized is returned when no .tidy directory can be found
var ErrNotInitialized = errors.New("not a tidy root (or any parent up to /)")

// Config represents the tidy configuration
type Config struct {
	Organize OrganizeConfig `toml:"organize"`
	Safety   SafetyConfig   `toml:"safety"`
	Backup   BackupConfig   `toml:"backup"`
	History  HistoryConfig  `toml:"history"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Scan     ScanConfig     `toml:"scan"`
	path     string         // path to .tidy directory
}

// OrganizeConfig controls how plans are built
type OrganizeConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	MaxFilenameLength   int     `toml:"max_filename_length"`
	ForceExtension      bool    `toml:"force_extension"`
}

// SafetyConfig controls pre-flight validation and execution guards
type SafetyConfig struct {
	ProtectedPaths  []string `toml:"protected_paths"` // doublestar patterns
	FreeSpaceMargin float64  `toml:"free_space_margin"`
	VerifyHashes    bool     `toml:"verify_hashes"`
}

// BackupConfig controls safety copies taken before a batch runs
type BackupConfig struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"` // empty means .tidy/backups
	RetentionDays int    `toml:"retention_days"`
}

// HistoryConfig controls undo log retention
type HistoryConfig struct {
	RetentionDays int    `toml:"retention_days"`
	ClearPolicy   string `toml:"clear_policy"` // "undone" or "all"
}

// StorageConfig selects the undo log backend
type StorageConfig struct {
	Driver string `toml:"driver"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// ScanConfig controls which files the scanner reports
type ScanConfig struct {
	Recursive bool     `toml:"recursive"`
	Ignore    []string `toml:"ignore"` // doublestar patterns relative to the root
}

// DefaultProtectedPaths are system locations no plan may write into
var DefaultProtectedPaths = []string{
	"/bin/**", "/boot/**", "/dev/**", "/etc/**", "/lib/**", "/lib64/**",
	"/proc/**", "/root/.ssh/**", "/sbin/**", "/sys/**", "/usr/**", "/var/lib/**",
	"/System/**", "/Library/**", "/private/etc/**",
	"C:/Windows/**", "C:/Program Files/**", "C:/Program Files (x86)/**",
	"**/.git/**", "**/.tidy/**", "**/.ssh/**",
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Organize: OrganizeConfig{
			ConfidenceThreshold: 0,
			MaxFilenameLength:   255,
			ForceExtension:      false,
		},
		Safety: SafetyConfig{
			ProtectedPaths:  append([]string(nil), DefaultProtectedPaths...),
			FreeSpaceMargin: 0.1,
			VerifyHashes:    true,
		},
		Backup: BackupConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		History: HistoryConfig{
			RetentionDays: 90,
			ClearPolicy:   "undone",
		},
		Storage: StorageConfig{Driver: DriverBolt},
		Log:     LogConfig{Level: "info", Format: "text"},
		Scan: ScanConfig{
			Recursive: false,
			Ignore:    []string{".tidy/**", "**/.DS_Store", "**/Thumbs.db"},
		},
	}
}

// FindTidyRoot finds the .tidy directory by walking up from dir
func FindTidyRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		tidyPath := filepath.Join(dir, TidyDir)
		if info, err := os.Stat(tidyPath); err == nil && info.IsDir() {
			return tidyPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// Load loads the configuration for the root containing dir
func Load(dir string) (*Config, error) {
	tidyPath, err := FindTidyRoot(dir)
	if err != nil {
		return nil, err
	}
	return LoadFrom(tidyPath)
}

// LoadFrom loads the configuration stored in the given .tidy directory.
// Values missing from the file keep their defaults.
func LoadFrom(tidyPath string) (*Config, error) {
	cfg := Default()
	cfg.path = tidyPath

	data, err := os.ReadFile(filepath.Join(tidyPath, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot operate with
func (c *Config) Validate() error {
	if c.Organize.ConfidenceThreshold < 0 || c.Organize.ConfidenceThreshold > 1 {
		return fmt.Errorf("organize.confidence_threshold must be within [0,1], got %v", c.Organize.ConfidenceThreshold)
	}
	if c.Organize.MaxFilenameLength < 16 {
		return fmt.Errorf("organize.max_filename_length must be at least 16, got %d", c.Organize.MaxFilenameLength)
	}
	if c.Safety.FreeSpaceMargin < 0 {
		return fmt.Errorf("safety.free_space_margin must not be negative")
	}
	for _, p := range c.Safety.ProtectedPaths {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("safety.protected_paths: invalid pattern %q", p)
		}
	}
	for _, p := range c.Scan.Ignore {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("scan.ignore: invalid pattern %q", p)
		}
	}
	if c.Backup.RetentionDays < 0 || c.History.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	switch c.History.ClearPolicy {
	case "undone", "all":
	default:
		return fmt.Errorf("history.clear_policy must be \"undone\" or \"all\", got %q", c.History.ClearPolicy)
	}
	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverBolt, DriverSQLite, c.Storage.Driver)
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// TidyPath returns the path to the .tidy directory
func (c *Config) TidyPath() string {
	return c.path
}

// RootPath returns the directory being organized
func (c *Config) RootPath() string {
	return filepath.Dir(c.path)
}

// DatabasePath returns the path to the undo log database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// BackupsPath returns the directory backups are written under
func (c *Config) BackupsPath() string {
	if c.Backup.Dir == "" {
		return filepath.Join(c.path, BackupsDir)
	}
	if filepath.IsAbs(c.Backup.Dir) {
		return c.Backup.Dir
	}
	return filepath.Join(c.path, c.Backup.Dir)
}

// Initialize creates a new .tidy directory in root with default configuration
func Initialize(root string) (*Config, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	tidyPath := filepath.Join(root, TidyDir)

	// Check if already initialized
	if _, err := os.Stat(tidyPath); err == nil {
		return nil, fmt.Errorf("tidy root already exists at %s", tidyPath)
	}

	if err := os.MkdirAll(filepath.Join(tidyPath, BackupsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create .tidy directory: %w", err)
	}

	cfg := Default()
	cfg.path = tidyPath

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(tidyPath)
		return nil, err
	}

	return cfg, nil
}
