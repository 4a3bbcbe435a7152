package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log [task-id]",
	Short: "Show the event log for a task",
	Long: `Prints every event recorded for a task, in order. The event log is
append-only and is what the engine replays to reconstruct task state
after a crash.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	q, err := mustQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	taskID := args[0]
	events, err := q.Events(taskID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("No events for task %s\n", taskID)
		return nil
	}

	fmt.Printf("Events for task %s%s%s:\n\n", colorCyan, taskID, colorReset)
	for _, e := range events {
		worker := ""
		if e.WorkerID != "" {
			worker = fmt.Sprintf("[%s] ", e.WorkerID)
		}
		detail := ""
		if len(e.Data) > 0 {
			if raw, err := json.Marshal(e.Data); err == nil {
				detail = string(raw)
				if len(detail) > 100 {
					detail = detail[:100] + "..."
				}
			}
		}
		fmt.Printf("  %s  %s%-12s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), worker, e.Type, detail)
	}

	// Show the projected state derived from these events.
	st, err := q.RecoverState(taskID)
	if err == nil {
		fmt.Printf("\nProjected: %s%s%s", colorBold, st.Status, colorReset)
		if st.Recoveries > 0 {
			fmt.Printf(" (recovered %dx)", st.Recoveries)
		}
		fmt.Println()
	}
	return nil
}
