package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilotcrew/taskpilot/internal/engine"
)

var showEvents bool

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's current status",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showEvents, "events", false, "include the task's event log")
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	t, err := resolveTask(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}

	fmt.Println(engine.FormatTaskReply(t))

	if showEvents {
		fmt.Println("\nEvents:")
		for _, ev := range t.Events {
			line := fmt.Sprintf("  %s  %-12s", ev.At.Format("2006-01-02 15:04:05"), ev.Type)
			if ev.Type == "transition" {
				line += fmt.Sprintf(" %s -> %s", ev.From, ev.To)
			}
			if ev.Message != "" {
				line += "  " + ev.Message
			}
			fmt.Println(line)
		}
	}
	return nil
}
