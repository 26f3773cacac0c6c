package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pilotcrew/taskpilot/internal/orchestrator"
	"github.com/pilotcrew/taskpilot/internal/task"
)

var (
	createDescription string
	createUser        string
	createChannel     string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Long: `Create a new task in the NEW state. The title is what the engine
clarifies; use --description for additional context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "longer task description")
	createCmd.Flags().StringVar(&createUser, "user", "", "requesting user id")
	createCmd.Flags().StringVar(&createChannel, "channel", "cli", "originating channel id")
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.orch.CreateTask(cmd.Context(), orchestrator.CreateRequest{
		Title:       strings.Join(args, " "),
		Description: createDescription,
		Source: task.Source{
			ChannelID: createChannel,
			UserID:    createUser,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created task %s\n", t.ID)
	fmt.Printf("  Title: %s\n", t.Title)
	fmt.Printf("  State: %s\n", t.State)
	return nil
}
