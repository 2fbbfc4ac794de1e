package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <backup-name>...",
	Short: "Delete stored backups",
	Long: `Delete one or more backups by their full backup filename as shown by the
list command. Deleting a backup never touches the live save file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	_, _, st, err := setup()
	if err != nil {
		return err
	}

	failures := 0
	for _, arg := range args {
		backupName := filepath.Base(arg)
		rec, err := findBackup(st, backupName)
		if err != nil {
			color.Red("✗ %v", err)
			failures++
			continue
		}

		removed, err := st.Delete(*rec)
		switch {
		case err != nil:
			color.Red("✗ %s: %v", backupName, err)
			failures++
		case removed:
			color.Green("✓ %s deleted", backupName)
		default:
			fmt.Printf("  %s was already gone\n", backupName)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d deletion(s) failed", failures)
	}
	return nil
}
