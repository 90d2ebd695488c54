// File: cmd/session.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/observability"
	"github.com/prodscout/prodscout-cli/internal/session"
)

// newSessionCmd groups session-file maintenance commands.
func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear the persisted login session",
	}
	sessionCmd.AddCommand(newSessionStatusCmd(), newSessionClearCmd())
	return sessionCmd
}

func newSessionManager() (*session.Manager, error) {
	dir, err := appCfg.SessionDir()
	if err != nil {
		return nil, fmt.Errorf("could not resolve session directory: %w", err)
	}
	return session.NewManager(appCfg.Session, dir, observability.GetLogger()), nil
}

func newSessionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a valid session file exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newSessionManager()
			if err != nil {
				return err
			}

			logger := observability.GetLogger()
			logger.Info("Session file.", zap.String("path", mgr.FilePath()))
			if mgr.HasValidSession() {
				fmt.Println("session: valid")
				return nil
			}
			fmt.Println("session: missing or expired")
			return nil
		},
	}
}

func newSessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted session file",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newSessionManager()
			if err != nil {
				return err
			}
			if err := mgr.Clear(); err != nil {
				return err
			}
			fmt.Println("session cleared")
			return nil
		},
	}
}
