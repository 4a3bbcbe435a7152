package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ricmello/garra/internal/checkpoint"
)

var checkpointsRollbackTo string

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints [task-id]",
	Short: "Inspect a task's checkpoint history",
	Long: `Shows the git checkpoint history of a task's working directory.
With --rollback-to, restores the workspace to that checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpoints,
}

func init() {
	checkpointsCmd.Flags().StringVar(&checkpointsRollbackTo, "rollback-to", "", "restore the workspace to this checkpoint version")
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}

	workDir := filepath.Join(resolvePath(cfg.WorkDir, "processing"), args[0])
	if _, err := os.Stat(workDir); os.IsNotExist(err) {
		return fmt.Errorf("no workspace for task %s", args[0])
	}

	store := checkpoint.New(workDir, slog.Default())
	if !checkpoint.Available() {
		return fmt.Errorf("git is not available on PATH")
	}

	if checkpointsRollbackTo != "" {
		if err := store.RollbackTo(checkpointsRollbackTo); err != nil {
			return err
		}
		fmt.Printf("%s↺ Restored %s to %s%s\n", colorYellow, args[0], checkpointsRollbackTo, colorReset)
		return nil
	}

	entries, err := store.Log(50)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No checkpoints.")
		return nil
	}

	fmt.Printf("Checkpoints for %s%s%s:\n\n", colorCyan, args[0], colorReset)
	for _, e := range entries {
		fmt.Printf("  %s%s%s  %s  %s\n",
			colorYellow, e.Version, colorReset, e.Timestamp, e.Message)
	}

	if diff, err := store.Diff(); err == nil && diff != "" {
		fmt.Printf("\n%sUncommitted changes:%s\n%s\n", colorBold, colorReset, diff)
	}
	return nil
}
