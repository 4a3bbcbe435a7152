package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ricmello/garra/internal/config"
	"github.com/ricmello/garra/internal/queue"
)

const garraDirName = ".garra"

const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorWhite   = "\033[37m"
)

// garraPath returns the path to a file inside .garra/.
func garraPath(parts ...string) string {
	elems := append([]string{garraDirName}, parts...)
	return filepath.Join(elems...)
}

// mustConfig loads the config, returning an error if garra is not
// initialized.
func mustConfig() (*config.Config, error) {
	cfgPath := garraPath("config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("garra não inicializado. Execute: garra init")
	}
	return config.Load(cfgPath)
}

// mustQueue opens the task queue described by the config.
func mustQueue(cfg *config.Config) (*queue.Queue, error) {
	return queue.New(resolvePath(cfg.QueueDB, "queue.db"), slog.Default())
}

// resolvePath anchors relative config paths under .garra/.
func resolvePath(p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return p
	}
	return garraPath(p)
}
