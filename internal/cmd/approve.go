package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var approver string

var approveCmd = &cobra.Command{
	Use:   "approve <task-id>",
	Short: "Approve a task waiting for approval",
	Long: `Record an approval on a task in WAIT_APPROVAL. Approval opens the
gate; the run itself is started separately.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	rootCmd.AddCommand(approveCmd)

	approveCmd.Flags().StringVar(&approver, "by", "", "approver id (defaults to $USER)")
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := resolveTask(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}

	by := approver
	if by == "" {
		by = os.Getenv("USER")
	}
	if by == "" {
		by = "cli"
	}

	t, err = a.orch.ApproveTask(cmd.Context(), t.ID, by)
	if err != nil {
		return err
	}

	fmt.Printf("Task %s approved by %s\n", shortID(t.ID), by)
	return nil
}
