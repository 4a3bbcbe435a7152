package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tasksAll bool

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks with their projected state",
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().BoolVarP(&tasksAll, "all", "a", false, "include completed tasks")
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	q, err := mustQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	states, err := q.ListStates()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	for _, st := range states {
		if !tasksAll && st.Status == "completed" {
			continue
		}

		statusColor := colorWhite
		switch st.Status {
		case "processing":
			statusColor = colorBlue
		case "claimed":
			statusColor = colorYellow
		case "completed":
			statusColor = colorGreen
		case "failed":
			statusColor = colorRed
		}

		request := ""
		if st.Payload != nil {
			if s, ok := st.Payload["text"].(string); ok {
				request = s
			}
		}
		if len(request) > 60 {
			request = request[:60] + "..."
		}

		fmt.Printf("  %s%-14s%s %s%-11s%s %s",
			colorCyan, st.TaskID, colorReset,
			statusColor, st.Status, colorReset,
			request)
		if st.Recoveries > 0 {
			fmt.Printf(" %s(↺%d)%s", colorYellow, st.Recoveries, colorReset)
		}
		if st.Error != "" {
			fmt.Printf("\n      %s⚠ %s%s", colorRed, st.Error, colorReset)
		}
		fmt.Println()
	}

	return nil
}
