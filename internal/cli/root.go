// Package cli implements the command-line interface for tidy.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kilupskalvis/tidy/internal/backup"
	"github.com/kilupskalvis/tidy/internal/config"
	"github.com/kilupskalvis/tidy/internal/executor"
	"github.com/kilupskalvis/tidy/internal/fsops"
	"github.com/kilupskalvis/tidy/internal/store"
	"github.com/kilupskalvis/tidy/internal/store/sqlite"
	"github.com/kilupskalvis/tidy/internal/undo"
	"github.com/spf13/cobra"
)

// recordStore is what every storage driver provides
type recordStore interface {
	undo.RecordStore
	backup.Index
	Close() error
}

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Store   recordStore
	FS      fsops.FS
	Log     *undo.Log
	Backups *backup.Manager
	Logger  *slog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// Executor builds an executor from the loaded configuration
func (c *cmdContext) Executor() *executor.Executor {
	return executor.New(c.FS, c.Backups, c.Log, executor.Options{
		ProtectedPaths: c.Config.Safety.ProtectedPaths,
		VerifyHashes:   c.Config.Safety.VerifyHashes,
	}, c.Logger)
}

// initContext loads the config of the enclosing tidy root and opens its store
func initContext() *cmdContext {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		exitError("%v", err)
	}

	logger := newLogger(os.Stderr, logLevelOverride(cfg.Log.Level), cfg.Log.Format)

	st, err := openStore(cfg.Storage.Driver, cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	fs := fsops.NewRealFS()
	return &cmdContext{
		Config:  cfg,
		Store:   st,
		FS:      fs,
		Log:     undo.New(st, fs, logger),
		Backups: backup.NewManager(cfg.BackupsPath(), fs, st, logger),
		Logger:  logger,
	}
}

// openStore opens the undo log backend named by driver
func openStore(driver, dbPath string) (recordStore, error) {
	switch driver {
	case config.DriverBolt, "":
		st, err := store.New(dbPath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.New(dbPath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// newLogger builds the structured logger. Diagnostics go to stderr so they
// never mix with command output.
func newLogger(w io.Writer, levelName, format string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

var (
	verbose  bool
	logLevel string
)

// logLevelOverride applies --verbose and --log-level on top of the config
func logLevelOverride(configured string) string {
	if logLevel != "" {
		return logLevel
	}
	if verbose {
		return "debug"
	}
	return configured
}

var rootCmd = &cobra.Command{
	Use:   "tidy",
	Short: "Safe, reversible file organization",
	Long: `tidy moves and renames files according to categorization suggestions.
Every batch is validated before it runs, optionally backed up, and recorded
so it can be undone later.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
