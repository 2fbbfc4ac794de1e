package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"d2r-save-guard/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List stored backups",
	Long: `List backups in the backup directory, newest first. With a save-file
name argument, only that file's backups are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	_, _, st, err := setup()
	if err != nil {
		return err
	}

	var records []store.BackupRecord
	if len(args) == 1 {
		records = st.ListFor(args[0])
	} else {
		records = st.ListAll()
	}

	if len(records) == 0 {
		fmt.Println("No backups found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := color.New(color.Bold)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		header.Sprint("CHARACTER"),
		header.Sprint("BACKUP"),
		header.Sprint("CREATED"),
		header.Sprint("SIZE"),
		header.Sprint("FORMAT"))

	for _, rec := range records {
		format := "plain"
		if rec.Compressed {
			format = "zip"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.OriginalName,
			rec.BackupName,
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			formatSize(rec.SizeBytes),
			format)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d backup(s)\n", len(records))
	return nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
