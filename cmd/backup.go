package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"d2r-save-guard/internal/config"
	"d2r-save-guard/internal/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup [file...]",
	Short: "Back up save files",
	Long: `Back up one or more save files into the backup directory. File arguments
may be plain names resolved against the save directory, or explicit paths.
With no arguments, every .d2s file in the save directory is backed up.`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, _, st, err := setup()
	if err != nil {
		return err
	}

	paths, err := resolveSavePaths(cfg, args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no save files found in %s", cfg.SaveDir)
	}

	ctx := cmd.Context()

	if len(paths) == 1 {
		result := st.Create(ctx, paths[0], store.TriggerManualSingle)
		printBackupResult(result, filepath.Base(paths[0]))
		if !result.Success {
			return fmt.Errorf("backup failed")
		}
		return nil
	}

	results := st.CreateBulk(ctx, paths, store.TriggerManualBulk)

	failures := 0
	for i, result := range results {
		printBackupResult(result, filepath.Base(paths[i]))
		if !result.Success {
			failures++
		}
	}

	fmt.Printf("\n%d of %d save files backed up\n", len(results)-failures, len(results))
	if failures > 0 {
		return fmt.Errorf("%d backup(s) failed", failures)
	}
	return nil
}

func printBackupResult(result store.Result, name string) {
	if result.Success {
		color.Green("✓ %s -> %s", name, result.Record.BackupName)
	} else {
		color.Red("✗ %s: %v", name, result.Err)
	}
}

// resolveSavePaths turns command arguments into absolute save-file paths.
// Bare names resolve against the save directory; no arguments means every
// save file in it.
func resolveSavePaths(cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		return listSaveDir(cfg.SaveDir)
	}

	paths := make([]string, 0, len(args))
	for _, arg := range args {
		path := arg
		if !filepath.IsAbs(path) && !strings.ContainsRune(path, filepath.Separator) {
			path = filepath.Join(cfg.SaveDir, arg)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func listSaveDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read save directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), store.SaveExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}
