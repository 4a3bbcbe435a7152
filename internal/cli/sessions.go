package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ricmello/garra/internal/session"
)

var (
	sessionsUser  string
	sessionsClear string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or clear conversation sessions",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVarP(&sessionsUser, "user", "u", "local", "user id")
	sessionsCmd.Flags().StringVar(&sessionsClear, "clear", "", "delete the given session's history")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	store, err := session.New(resolvePath(cfg.SessionsDB, "sessions.db"), slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	if sessionsClear != "" {
		if err := store.Clear(sessionsUser, sessionsClear); err != nil {
			return err
		}
		fmt.Printf("Cleared session %s%s%s\n", colorCyan, sessionsClear, colorReset)
		return nil
	}

	ids, err := store.ListSessions(sessionsUser)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Printf("No sessions for user %q.\n", sessionsUser)
		return nil
	}

	for _, id := range ids {
		count, _ := store.Count(sessionsUser, id)
		fmt.Printf("  %s%-20s%s %d message(s)\n", colorCyan, id, colorReset, count)
	}
	return nil
}
