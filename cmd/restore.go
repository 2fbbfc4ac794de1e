package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"d2r-save-guard/internal/store"
)

var (
	restoreTarget string
	noPreBackup   bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-name>",
	Short: "Restore a save file from a backup",
	Long: `Restore a backup over the corresponding save file. The backup is named by
its full backup filename as shown by the list command. Unless --no-pre-backup
is given, a safety backup of the current save file is taken first.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreTarget, "target", "", "restore to this path instead of the original save file")
	restoreCmd.Flags().BoolVar(&noPreBackup, "no-pre-backup", false, "skip the safety backup of the current save file")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, _, st, err := setup()
	if err != nil {
		return err
	}

	backupName := filepath.Base(args[0])
	rec, err := findBackup(st, backupName)
	if err != nil {
		return err
	}

	target := restoreTarget
	if target == "" {
		target = filepath.Join(cfg.SaveDir, rec.OriginalName)
	}

	result := st.Restore(cmd.Context(), *rec, target, !noPreBackup)
	if !result.Success {
		color.Red("✗ restore of %s failed: %v", backupName, result.Err)
		return fmt.Errorf("restore failed")
	}

	color.Green("✓ %s restored to %s", backupName, target)
	if result.PreRestore != nil {
		fmt.Printf("  previous state saved as %s\n", result.PreRestore.BackupName)
	}
	return nil
}

// findBackup resolves a backup filename to a record actually present in the
// backup directory.
func findBackup(st *store.Store, backupName string) (*store.BackupRecord, error) {
	rec, ok := store.DecodeBackupName(backupName)
	if !ok {
		return nil, fmt.Errorf("%s is not a recognized backup name", backupName)
	}

	for _, candidate := range st.ListFor(rec.OriginalName) {
		if candidate.BackupName == backupName {
			return &candidate, nil
		}
	}
	return nil, fmt.Errorf("backup %s not found in %s", backupName, st.BackupDir())
}
