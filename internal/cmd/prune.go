package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune old finished task records",
	Long: `Delete task records matching the configured retention policy.
In-flight tasks are never deleted. Use --dry-run to preview.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().BoolVarP(&pruneDryRun, "dry-run", "n", false, "report what would be deleted without deleting")
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.cleanupRunner().RunOnce(cmd.Context(), pruneDryRun)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d task(s), matched %d.\n", report.Scanned, report.Matched)
	if pruneDryRun {
		fmt.Printf("Would delete %d record(s).\n", report.Matched)
	} else {
		fmt.Printf("Deleted %d record(s).\n", report.Deleted)
	}

	for _, s := range report.Preview {
		fmt.Printf("  %s  %-10s  attempt %d  %s\n", shortID(s.ID), s.State, s.Attempt, s.Title)
	}
	return nil
}
