package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricmello/garra/internal/worker"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-execute tasks interrupted by a crash",
	Long: `Scans the queue for tasks that were claimed but never finished —
typically because a worker crashed mid-task — and runs each of them
again. Every resumed task gets a recovered event in its log.

Without arguments, lists the unfinished tasks. With --run, executes them.`,
	RunE: runResume,
}

var resumeRun bool

func init() {
	resumeCmd.Flags().BoolVar(&resumeRun, "run", false, "execute the unfinished tasks instead of listing them")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	q, err := mustQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	unfinished, err := q.GetUnfinishedTasks()
	if err != nil {
		return err
	}
	if len(unfinished) == 0 {
		fmt.Printf("  %s✓ No interrupted tasks found.%s\n", colorGreen, colorReset)
		return nil
	}

	if !resumeRun {
		fmt.Printf("%sInterrupted tasks:%s\n\n", colorBold, colorReset)
		for _, st := range unfinished {
			request := ""
			if st.Payload != nil {
				if s, ok := st.Payload["text"].(string); ok {
					request = s
				}
			}
			fmt.Printf("  %s%-14s%s %-11s %s\n", colorYellow, st.TaskID, colorReset, st.Status, request)
			if len(st.Checkpoints) > 0 {
				last := st.Checkpoints[len(st.Checkpoints)-1]
				fmt.Printf("    last checkpoint: %s (%s)\n", last.Step, last.Timestamp.Local().Format("15:04:05"))
			}
		}
		fmt.Printf("\n  Resume with: %sgarra resume --run%s\n", colorCyan, colorReset)
		return nil
	}

	exec, err := buildExecutor(cfg, q, slog.Default())
	if err != nil {
		return err
	}
	pool := worker.New(worker.Config{Queue: q, Runner: exec, Logger: slog.Default(), Workers: 1})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resumed, err := pool.Resume(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  %s↺ Resumed %d task(s)%s\n", colorYellow, resumed, colorReset)
	return nil
}
