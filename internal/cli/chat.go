package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricmello/garra/internal/agent"
	"github.com/ricmello/garra/internal/checkpoint"
	"github.com/ricmello/garra/internal/llm"
	"github.com/ricmello/garra/internal/manifest"
	"github.com/ricmello/garra/internal/session"
	"github.com/ricmello/garra/internal/tools"
)

var (
	chatUser    string
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the agent directly, without the queue",
	Long: `Runs one conversational turn through the agent loop. History is
persisted per user and session, so consecutive invocations share context.
Workspace tools operate on the current directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "local", "user id")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "default", "session id")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	client, err := llm.New(llm.Config{
		APIBase:     cfg.LLM.APIBase,
		APIKey:      cfg.LLM.APIKey(),
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.DefaultTimeout()) * time.Second,
	})
	if err != nil {
		return err
	}

	man, err := manifest.Load(resolvePath(cfg.Manifest, "manifest.yaml"))
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	sessions, err := session.New(resolvePath(cfg.SessionsDB, "sessions.db"), logger)
	if err != nil {
		return fmt.Errorf("open sessions: %w", err)
	}
	defer sessions.Close()

	workDir, _ := os.Getwd()
	reg := tools.NewRegistry()
	tools.RegisterWorkspace(reg, workDir)
	tools.RegisterCheckpoints(reg, checkpoint.New(workDir, logger))

	loop, err := agent.New(agent.Config{
		Backend:  client,
		Tools:    reg,
		Sessions: sessions,
		Manifest: man,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	reply := loop.Run(context.Background(), strings.Join(args, " "), chatUser, chatSession)
	fmt.Println(reply)
	return nil
}
