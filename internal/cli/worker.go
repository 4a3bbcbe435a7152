package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricmello/garra/internal/agent"
	"github.com/ricmello/garra/internal/checkpoint"
	"github.com/ricmello/garra/internal/config"
	"github.com/ricmello/garra/internal/executor"
	"github.com/ricmello/garra/internal/llm"
	"github.com/ricmello/garra/internal/manifest"
	"github.com/ricmello/garra/internal/tools"
	"github.com/ricmello/garra/internal/worker"
)

var (
	workerCount    int
	workerOnce     bool
	workerNoResume bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the worker pool",
	Long: `Claims tasks from the queue and executes them through the resilient
pipeline. On startup, tasks interrupted by a previous crash are resumed
before new work is taken. Runs until interrupted; --once drains the queue
and exits.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVarP(&workerCount, "workers", "w", 0, "pool size (default from config)")
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "drain the queue and exit")
	workerCmd.Flags().BoolVar(&workerNoResume, "no-resume", false, "skip crash recovery on startup")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	q, err := mustQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	logger := slog.Default()

	exec, err := buildExecutor(cfg, q, logger)
	if err != nil {
		return err
	}

	count := workerCount
	if count <= 0 {
		count = cfg.EffectiveWorkers()
	}
	pool := worker.New(worker.Config{
		Queue:   q,
		Runner:  exec,
		Logger:  logger,
		Workers: count,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !workerNoResume {
		resumed, err := pool.Resume(ctx)
		if err != nil {
			return fmt.Errorf("resume interrupted tasks: %w", err)
		}
		if resumed > 0 {
			fmt.Printf("%s↺ Resumed %d interrupted task(s)%s\n", colorYellow, resumed, colorReset)
		}
	}

	if workerOnce {
		results := pool.Drain(ctx)
		for _, r := range results {
			status := colorGreen + "done" + colorReset
			if r.Err != nil {
				status = colorRed + "failed" + colorReset
			}
			fmt.Printf("  %s%s%s  %s  %s\n",
				colorCyan, r.TaskID, colorReset, status, r.Duration.Round(time.Millisecond))
		}
		fmt.Printf("Processed %d task(s).\n", len(results))
		return nil
	}

	fmt.Printf("%sgarra worker%s — %d worker(s), Ctrl+C to stop\n", colorBold, colorReset, count)
	pool.Start(ctx)
	pool.Wait()
	fmt.Println("Stopped.")
	return nil
}

// buildExecutor wires the executor: model client, identity manifest and a
// delegate factory that scopes each task's tools to its working directory.
func buildExecutor(cfg *config.Config, events executor.EventSink, logger *slog.Logger) (*executor.Executor, error) {
	client, err := llm.New(llm.Config{
		APIBase:     cfg.LLM.APIBase,
		APIKey:      cfg.LLM.APIKey(),
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.DefaultTimeout()) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	man, err := manifest.Load(resolvePath(cfg.Manifest, "manifest.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	newDelegate := func(workDir string) (executor.Delegate, error) {
		reg := tools.NewRegistry()
		tools.RegisterWorkspace(reg, workDir)
		tools.RegisterCheckpoints(reg, checkpoint.New(workDir, logger))

		loop, err := agent.New(agent.Config{
			Backend:  client,
			Tools:    reg,
			Manifest: man,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return loop, nil
	}

	return executor.New(executor.Config{
		NewDelegate:   newDelegate,
		Events:        events,
		Logger:        logger,
		WorkBase:      resolvePath(cfg.WorkDir, "processing"),
		MaxRecoveries: cfg.EffectiveMaxRecoveries(),
	})
}
