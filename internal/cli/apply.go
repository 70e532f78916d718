package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/tidy/internal/executor"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/undo"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute a suggestions file",
	Long: `Build and validate a plan from a suggestions file, then move the files.
A backup of every source is taken first unless --no-backup is given or
backups are disabled in the config. Interrupting the command stops the
batch after the current file; completed moves stay recorded and can be
undone.`,
	Run: runApply,
}

var (
	applyDryRun   bool
	applyNoBackup bool
)

func init() {
	applyCmd.Flags().BoolVarP(&applyDryRun, "dry-run", "n", false, "Check every operation without moving anything")
	applyCmd.Flags().BoolVar(&applyNoBackup, "no-backup", false, "Skip the safety copy")
}

func runApply(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	plan, problems := buildPlan(cmd, c)
	if len(plan.Operations) == 0 {
		fmt.Println("Nothing to organize")
		return
	}
	if len(problems) > 0 {
		printProblems(problems)
		exitError("refusing to apply a plan with %d problem(s)", len(problems))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if applyDryRun {
		yellow.Printf("Dry run of batch %s\n", models.ShortBatchID(plan.BatchID))
	} else {
		fmt.Printf("Applying batch %s\n", models.ShortBatchID(plan.BatchID))
	}

	result := c.Executor().Execute(ctx, plan, executor.ExecuteOptions{
		DryRun: applyDryRun,
		Backup: c.Config.Backup.Enabled && !applyNoBackup,
		Progress: func(p models.Progress) {
			prefix := fmt.Sprintf("[%d/%d]", p.Index+1, p.Total)
			if p.Err != nil {
				red.Printf("%s failed %s: %v\n", prefix, displayPath(c, p.Operation.SourcePath), p.Err)
				return
			}
			fmt.Printf("%s %s -> %s\n", prefix, displayPath(c, p.Operation.SourcePath), displayPath(c, p.Operation.DestinationPath))
		},
	})
	stop()

	printResult(result)

	if !applyDryRun {
		pruneRetention(c)
	}
	if !result.Success() {
		c.Close()
		os.Exit(1)
	}
}

func printResult(result *models.ExecutionResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	switch result.Status {
	case models.ExecutionCompleted:
		green.Printf("%s: %d operation(s)\n", result.Status, result.Completed)
	case models.ExecutionPartial, models.ExecutionCancelled:
		yellow.Printf("%s: %d completed, %d failed\n", result.Status, result.Completed, result.Failed)
	default:
		red.Printf("%s: %d completed, %d failed\n", result.Status, result.Completed, result.Failed)
	}

	for _, e := range result.Errors() {
		red.Printf("  - %s\n", e)
	}
	if result.BackupPath != "" {
		fmt.Printf("Backup: %s\n", result.BackupPath)
	}
	if result.Undoable() {
		fmt.Printf("\nRun 'tidy undo %s' to reverse this batch.\n", models.ShortBatchID(result.BatchID))
	}
}

// pruneRetention drops expired backups and history. Failures are logged only;
// the batch itself already succeeded or failed on its own terms.
func pruneRetention(c *cmdContext) {
	if n := c.Backups.Cleanup(c.Config.Backup.RetentionDays); n > 0 {
		c.Logger.Info("removed expired backups", "count", n)
	}

	if c.Config.History.RetentionDays <= 0 {
		return
	}
	policy, err := undo.ParseClearPolicy(c.Config.History.ClearPolicy)
	if err != nil {
		c.Logger.Warn("skipping history pruning", "error", err)
		return
	}
	age := time.Duration(c.Config.History.RetentionDays) * 24 * time.Hour
	n, err := c.Log.ClearHistory(age, policy)
	if err != nil {
		c.Logger.Warn("failed to prune history", "error", err)
		return
	}
	if n > 0 {
		c.Logger.Info("pruned history", "records", n)
	}
}
