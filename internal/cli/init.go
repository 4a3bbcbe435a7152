package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ricmello/garra/internal/config"
	"github.com/ricmello/garra/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize garra in the current directory",
	Long:  "Creates a .garra/ directory with default config, agent manifest and databases.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	garraDir := garraDirName
	workDir := filepath.Join(garraDir, "processing")

	// Check if already initialized.
	if _, err := os.Stat(garraDir); err == nil {
		return fmt.Errorf("garra already initialized in this directory (.garra/ exists)")
	}

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", workDir, err)
	}

	// Write default config.
	cfg := config.DefaultConfig()
	if err := config.Save(garraPath("config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Write the default agent manifest. Its hash anchors identity checks.
	if err := manifest.Save(garraPath("manifest.yaml"), manifest.Default()); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	// Create the queue database (migration runs automatically).
	q, err := mustQueue(cfg)
	if err != nil {
		return fmt.Errorf("create queue database: %w", err)
	}
	q.Close()

	fmt.Println("Initialized garra in .garra/")
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .garra/config.yaml to point at your model endpoint")
	fmt.Println("  2. Run: garra task \"your request\"")
	fmt.Println("  3. Run: garra worker")

	return nil
}
