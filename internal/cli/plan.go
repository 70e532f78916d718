package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/planner"
	"github.com/kilupskalvis/tidy/internal/suggest"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a suggestions file would do",
	Long: `Build a plan from a suggestions file, resolve conflicting destinations
and validate it against the filesystem. Nothing is moved.`,
	Run: runPlan,
}

var (
	planSuggestions string
	planThreshold   float64
)

func init() {
	for _, cmd := range []*cobra.Command{planCmd, applyCmd} {
		cmd.Flags().StringVarP(&planSuggestions, "suggestions", "s", "suggestions.yaml", "Suggestions file (YAML or JSON)")
		cmd.Flags().Float64Var(&planThreshold, "threshold", 0, "Minimum confidence (overrides organize.confidence_threshold)")
		cmd.Flags().BoolVarP(&scanRecursive, "recursive", "r", false, "Descend into subdirectories (overrides scan.recursive)")
		cmd.Flags().BoolVar(&scanHidden, "hidden", false, "Include dotfiles")
	}
}

func runPlan(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	plan, problems := buildPlan(cmd, c)
	printPlan(c, plan)

	if len(problems) > 0 {
		printProblems(problems)
		exitError("plan has %d problem(s)", len(problems))
	}
	if len(plan.Operations) > 0 {
		fmt.Printf("\nRun 'tidy apply -s %s' to execute.\n", planSuggestions)
	}
}

// buildPlan runs scan, plan, conflict resolution and validation. The
// returned plan is always non-nil; problems lists every validation error.
func buildPlan(cmd *cobra.Command, c *cmdContext) (*models.Plan, []string) {
	root := c.Config.RootPath()

	files, err := scanRoot(cmd.Context(), c, cmd.Flags().Changed("recursive"))
	if err != nil {
		exitError("%v", err)
	}

	files = excludePath(files, planSuggestions)

	suggestions, err := suggest.LoadFile(planSuggestions, root)
	if err != nil {
		exitError("%v", err)
	}

	opts := planner.Options{
		ConfidenceThreshold: c.Config.Organize.ConfidenceThreshold,
		MaxFilenameLength:   c.Config.Organize.MaxFilenameLength,
		ForceExtension:      c.Config.Organize.ForceExtension,
	}
	if cmd.Flags().Changed("threshold") {
		opts.ConfidenceThreshold = planThreshold
	}

	plan, err := planner.New(opts, c.Logger).CreatePlan(files, suggestions, root)
	if err != nil {
		exitError("failed to create plan: %v", err)
	}
	plan = planner.ResolveConflicts(plan, c.FS, opts.MaxFilenameLength)

	validator := planner.NewValidator(planner.ValidatorOptions{
		ProtectedPaths:    c.Config.Safety.ProtectedPaths,
		FreeSpaceMargin:   c.Config.Safety.FreeSpaceMargin,
		MaxFilenameLength: opts.MaxFilenameLength,
	})
	return plan, validator.Validate(plan)
}

func printPlan(c *cmdContext, plan *models.Plan) {
	if len(plan.Operations) == 0 {
		fmt.Println("Nothing to organize")
		return
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	yellow.Printf("Batch %s\n", models.ShortBatchID(plan.BatchID))
	for _, op := range plan.Operations {
		fmt.Printf("  %-6s %s\n", op.Type, displayPath(c, op.SourcePath))
		cyan.Printf("      -> %s\n", displayPath(c, op.DestinationPath))
	}
	fmt.Printf("\n%d operation(s)\n", len(plan.Operations))
}

func printProblems(problems []string) {
	red := color.New(color.FgRed)
	fmt.Println()
	red.Println("Validation failed:")
	for _, p := range problems {
		red.Printf("  - %s\n", p)
	}
}

// displayPath shortens paths under the tidy root
func displayPath(c *cmdContext, path string) string {
	if rel, err := filepath.Rel(c.Config.RootPath(), path); err == nil && filepath.IsLocal(rel) {
		return rel
	}
	return path
}
