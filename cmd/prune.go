package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune [file...]",
	Short: "Apply the retention cap to stored backups",
	Long: `Evict backups beyond the per-file retention cap, oldest first. With no
arguments every save file with stored backups is pruned; otherwise only the
named files are.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	_, _, st, err := setup()
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		seen := make(map[string]bool)
		for _, rec := range st.ListAll() {
			if !seen[rec.OriginalName] {
				seen[rec.OriginalName] = true
				names = append(names, rec.OriginalName)
			}
		}
	}

	if len(names) == 0 {
		fmt.Println("No backups to prune.")
		return nil
	}

	totalEvicted := 0
	for _, name := range names {
		result := st.ApplyRetention(name)
		totalEvicted += result.Evicted
		if result.Evicted > 0 || len(result.Errors) > 0 {
			fmt.Printf("%s: evicted %d, kept %d\n", name, result.Evicted, result.Kept)
		}
		for _, msg := range result.Errors {
			fmt.Printf("  warning: %s\n", msg)
		}
	}

	fmt.Printf("%d backup(s) evicted\n", totalEvicted)
	return nil
}
