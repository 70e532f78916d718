package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kilupskalvis/tidy/internal/backup"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage batch backups",
	Long:  `List, verify, restore and clean up the safety copies taken before batches.`,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Run:   runBackupList,
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <batch|path>",
	Short: "Check every copy in a backup against its recorded hash",
	Args:  cobra.ExactArgs(1),
	Run:   runBackupVerify,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <batch|path>",
	Short: "Copy the files of a backup back to their original locations",
	Long: `Copy every file of a backup back to where it was when the backup was
taken. Files that already match the backup are left alone. Prefer
'tidy undo' for reversing a batch; restore is for recovering content.`,
	Args: cobra.ExactArgs(1),
	Run:  runBackupRestore,
}

var backupCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete backups older than the retention period",
	Run:   runBackupClean,
}

var backupCleanDays int

func init() {
	backupCleanCmd.Flags().IntVar(&backupCleanDays, "days", 0, "Retention in days (overrides backup.retention_days)")

	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupCleanCmd)
}

func runBackupList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	entries, err := c.Backups.List()
	if err != nil {
		exitError("failed to list backups: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No backups")
		return
	}

	yellow := color.New(color.FgYellow)
	for _, e := range entries {
		yellow.Printf("%s ", models.ShortBatchID(e.BatchID))
		fmt.Printf("%s  %d file(s), %s  %s\n", e.Timestamp.Local().Format(time.DateTime),
			e.FileCount(), humanize.IBytes(uint64(e.TotalSize())), e.Path)
	}
}

func runBackupVerify(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	entry := resolveBackup(c, args[0])
	problems, err := c.Backups.Check(entry.Path)
	if err != nil {
		exitError("%v", err)
	}
	if len(problems) > 0 {
		red := color.New(color.FgRed)
		red.Printf("Backup %s is damaged:\n", entry.Path)
		for _, p := range problems {
			red.Printf("  - %s\n", p)
		}
		c.Close()
		os.Exit(1)
	}
	color.New(color.FgGreen).Printf("Backup %s is intact (%d file(s))\n", entry.Path, entry.FileCount())
}

func runBackupRestore(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	entry := resolveBackup(c, args[0])
	n, err := c.Backups.Restore(entry.Path)
	fmt.Printf("Restored %d of %d file(s)\n", n, entry.FileCount())
	if err != nil {
		exitError("%v", err)
	}
}

func runBackupClean(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	days := c.Config.Backup.RetentionDays
	if cmd.Flags().Changed("days") {
		days = backupCleanDays
	}
	if days <= 0 {
		fmt.Println("Retention is disabled; nothing removed")
		return
	}
	n := c.Backups.Cleanup(days)
	fmt.Printf("Removed %d backup(s) older than %d day(s)\n", n, days)
}

// resolveBackup accepts a backup directory or a batch ID prefix
func resolveBackup(c *cmdContext, arg string) *models.BackupEntry {
	if arg == "" {
		exitError("a batch ID or backup path is required")
	}
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		entry, err := backup.ReadManifest(arg)
		if err != nil {
			exitError("%v", err)
		}
		return entry
	}

	entries, err := c.Backups.List()
	if err != nil {
		exitError("failed to list backups: %v", err)
	}
	var match *models.BackupEntry
	for _, e := range entries {
		if e.BatchID == arg {
			return e
		}
		if strings.HasPrefix(e.BatchID, arg) {
			if match != nil && match.BatchID != e.BatchID {
				exitError("ambiguous batch prefix %s", arg)
			}
			if match == nil {
				match = e
			}
		}
	}
	if match == nil {
		exitError("no backup found for %s", arg)
	}
	return match
}
