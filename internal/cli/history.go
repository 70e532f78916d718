package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/undo"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show executed batches",
	Long:  `Display the batches recorded in the undo log, newest first.`,
	Run:   runHistory,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete old history records",
	Long: `Delete history records older than the given age. By default only
records that were already undone are removed; --all also removes records
that could still be undone.`,
	Run: runHistoryClear,
}

var (
	historyLimit     int
	historyRecords   bool
	historyOlderThan int
	historyAll       bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "n", "n", 20, "Limit the number of entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyRecords, "records", false, "Show individual operations instead of batches")

	historyClearCmd.Flags().IntVar(&historyOlderThan, "older-than", 0, "Only delete records older than this many days")
	historyClearCmd.Flags().BoolVar(&historyAll, "all", false, "Also delete records that have not been undone")

	historyCmd.AddCommand(historyClearCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	if historyRecords {
		records, err := c.Log.History(historyLimit)
		if err != nil {
			exitError("failed to read history: %v", err)
		}
		if len(records) == 0 {
			fmt.Println("No history yet")
			return
		}
		for _, r := range records {
			yellow.Printf("%s ", models.ShortBatchID(r.BatchID))
			fmt.Printf("%s %-6s %s -> %s", r.Timestamp.Local().Format(time.DateTime), r.Type,
				displayPath(c, r.SourcePath), displayPath(c, r.TargetPath))
			if r.Undone {
				faint.Print(" (undone)")
			}
			fmt.Println()
		}
		return
	}

	batches, err := c.Log.Batches(historyLimit)
	if err != nil {
		exitError("failed to read history: %v", err)
	}
	if len(batches) == 0 {
		fmt.Println("No history yet")
		return
	}
	for _, b := range batches {
		yellow.Printf("%s ", models.ShortBatchID(b.BatchID))
		fmt.Printf("%s  %d operation(s)", b.Last.Local().Format(time.DateTime), b.Total)
		switch {
		case b.Pending == 0:
			faint.Print(" (undone)")
		case b.Pending < b.Total:
			faint.Printf(" (%d pending)", b.Pending)
		}
		fmt.Println()
	}
}

func runHistoryClear(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	policy, err := undo.ParseClearPolicy(c.Config.History.ClearPolicy)
	if err != nil {
		exitError("%v", err)
	}
	if historyAll {
		policy = undo.ClearAll
	}

	age := time.Duration(historyOlderThan) * 24 * time.Hour
	n, err := c.Log.ClearHistory(age, policy)
	if err != nil {
		exitError("failed to clear history: %v", err)
	}
	fmt.Printf("Deleted %d record(s)\n", n)
}
