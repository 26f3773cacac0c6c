package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pilotcrew/taskpilot/internal/task"
)

var tasksState string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Long:  `List tasks ordered by most recent activity.`,
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)

	tasksCmd.Flags().StringVar(&tasksState, "state", "", "only show tasks in this state")
}

func runTasks(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var filter task.State
	if tasksState != "" {
		st, ok := task.ParseState(tasksState)
		if !ok {
			return fmt.Errorf("unknown state %q", tasksState)
		}
		filter = st
	}

	tasks, err := a.store.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPT\tUPDATED\tTITLE")
	shown := 0
	for _, t := range tasks {
		if filter != "" && t.State != filter {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			shortID(t.ID), t.State, t.Attempt, t.MaxAttempts,
			relativeTime(t.UpdatedAt), t.Title)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if shown == 0 {
		fmt.Println("No tasks.")
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
