package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/scan"
	"github.com/kilupskalvis/tidy/internal/suggest"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List candidate files as a suggestions template",
	Long: `Scan the tidy root and write a suggestions template with one entry per
candidate file. Fill in category, suggested_name and confidence, then pass
the file to 'tidy plan' or 'tidy apply'.`,
	Run: runScan,
}

var (
	scanOutput    string
	scanRecursive bool
	scanHidden    bool
)

func init() {
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Write the template to a file instead of stdout")
	scanCmd.Flags().BoolVarP(&scanRecursive, "recursive", "r", false, "Descend into subdirectories (overrides scan.recursive)")
	scanCmd.Flags().BoolVar(&scanHidden, "hidden", false, "Include dotfiles")
}

func runScan(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	files, err := scanRoot(cmd.Context(), c, cmd.Flags().Changed("recursive"))
	if err != nil {
		exitError("%v", err)
	}

	var w io.Writer = os.Stdout
	if scanOutput != "" {
		files = excludePath(files, scanOutput)
		f, err := os.Create(scanOutput)
		if err != nil {
			exitError("failed to create %s: %v", scanOutput, err)
		}
		defer f.Close()
		w = f
	}

	if err := suggest.WriteTemplate(w, files, c.Config.RootPath()); err != nil {
		exitError("%v", err)
	}
	if scanOutput != "" {
		fmt.Printf("Wrote %d file(s) to %s\n", len(files), scanOutput)
	}
}

// scanRoot lists the candidate files under the tidy root
func scanRoot(ctx context.Context, c *cmdContext, recursiveSet bool) ([]models.FileInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := scan.Options{
		Recursive:     c.Config.Scan.Recursive,
		Ignore:        c.Config.Scan.Ignore,
		IncludeHidden: scanHidden,
	}
	if recursiveSet {
		opts.Recursive = scanRecursive
	}
	return scan.Files(ctx, c.Config.RootPath(), opts, c.Logger)
}

// excludePath drops path from files so tidy never plans a move of its own
// input
func excludePath(files []models.FileInfo, path string) []models.FileInfo {
	abs, err := filepath.Abs(path)
	if err != nil {
		return files
	}
	out := files[:0:0]
	for _, f := range files {
		if filepath.Clean(f.Path) != abs {
			out = append(out, f)
		}
	}
	return out
}
