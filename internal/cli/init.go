package cli

import (
	"fmt"
	"os"

	"github.com/kilupskalvis/tidy/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize tidy in the current directory",
	Long: `Initialize tidy in the current directory.
This creates a .tidy directory holding the configuration, the undo log
and backups. The current directory becomes the root every plan is
confined to.`,
	Run: runInit,
}

var initDriver string

func init() {
	initCmd.Flags().StringVar(&initDriver, "driver", config.DriverBolt, "Undo log storage driver (bbolt, sqlite)")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	if root, err := config.FindTidyRoot(cwd); err == nil {
		exitError("tidy is already initialized at %s", root)
	}

	cfg, err := config.Initialize(cwd)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	if initDriver != cfg.Storage.Driver {
		cfg.Storage.Driver = initDriver
		if err := cfg.Validate(); err != nil {
			os.RemoveAll(cfg.TidyPath())
			exitError("%v", err)
		}
		if err := cfg.Save(); err != nil {
			exitError("failed to save config: %v", err)
		}
	}

	st, err := openStore(cfg.Storage.Driver, cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	fmt.Printf("Initialized tidy in %s\n", cfg.TidyPath())
	fmt.Printf("Undo log: %s (%s)\n", cfg.DatabasePath(), cfg.Storage.Driver)
	fmt.Printf("\nRun 'tidy scan > suggestions.yaml' to list candidate files.\n")
}
