package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/undo"
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo [batch]",
	Short: "Reverse a batch",
	Long: `Move every file of a batch back to where it came from, newest first.
The batch may be given by ID or any unique prefix of it. Without an
argument the most recent batch with pending operations is reversed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runUndo,
}

var undoCheck bool

func init() {
	undoCmd.Flags().BoolVar(&undoCheck, "check", false, "Only report whether the batch can be reversed")
}

func runUndo(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	var batchID string
	if len(args) == 1 {
		summaries, err := c.Log.Batches(0)
		if err != nil {
			exitError("failed to read history: %v", err)
		}
		batchID, err = matchBatch(summaries, args[0])
		if err != nil {
			exitError("%v", err)
		}
	} else {
		latest, err := c.Log.LatestBatch()
		if err != nil {
			exitError("%v", err)
		}
		if latest == "" {
			fmt.Println("Nothing to undo")
			return
		}
		batchID = latest
	}

	ok, missing, err := c.Log.VerifyUndoPossible(batchID)
	if err != nil {
		exitError("%v", err)
	}
	if !ok {
		yellow.Println("Some files can no longer be restored:")
		for _, m := range missing {
			yellow.Printf("  - %s\n", m)
		}
	}
	if undoCheck {
		if ok {
			green.Printf("Batch %s can be fully reversed\n", models.ShortBatchID(batchID))
			return
		}
		c.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := c.Log.UndoBatch(ctx, batchID)
	switch result.Status {
	case models.UndoNoop:
		fmt.Printf("Batch %s has nothing left to undo\n", models.ShortBatchID(batchID))
	case models.UndoCompleted:
		green.Printf("Reversed %d operation(s) of batch %s\n", result.Undone, models.ShortBatchID(batchID))
	default:
		red.Printf("%s: %d operation(s) reversed, %d failed\n", result.Status, result.Undone, len(result.Failures))
		for _, e := range result.Errors() {
			red.Printf("  - %s\n", e)
		}
	}

	if !result.Success() {
		c.Close()
		os.Exit(1)
	}
}

// matchBatch resolves a batch ID or unique prefix against the history
func matchBatch(summaries []*models.BatchSummary, prefix string) (string, error) {
	if prefix == "" {
		return "", undo.ErrNoBatch
	}
	var matches []string
	for _, s := range summaries {
		if s.BatchID == prefix {
			return s.BatchID, nil
		}
		if strings.HasPrefix(s.BatchID, prefix) {
			matches = append(matches, s.BatchID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", undo.ErrNoBatch, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous batch prefix %s matches %s", prefix, strings.Join(matches, ", "))
	}
}
