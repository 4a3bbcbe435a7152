package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	taskUser    string
	taskSession string
	taskChat    int64
)

var taskCmd = &cobra.Command{
	Use:   "task [request]",
	Short: "Enqueue a task for the workers",
	Long: `Persists a task in the queue. The enqueue is durable: once this
command returns, the task survives crashes and restarts until a worker
finishes it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	taskCmd.Flags().StringVarP(&taskUser, "user", "u", "local", "user id to attribute the task to")
	taskCmd.Flags().StringVarP(&taskSession, "session", "s", "default", "conversation session id")
	taskCmd.Flags().Int64VarP(&taskChat, "chat", "c", 0, "chat id for progress notifications")
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	q, err := mustQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	text := strings.Join(args, " ")
	payload := map[string]any{
		"text":       text,
		"session_id": taskSession,
	}
	if taskChat != 0 {
		payload["chat_id"] = taskChat
	}

	id, err := q.Enqueue(taskUser, "general", payload, text)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	fmt.Printf("Enqueued %s%s%s\n", colorCyan, id, colorReset)
	fmt.Printf("Run %sgarra worker%s to process it, or %sgarra log %s%s to follow.\n",
		colorBold, colorReset, colorBold, id, colorReset)
	return nil
}
