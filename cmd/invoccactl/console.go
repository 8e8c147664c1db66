package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/console"
	"github.com/MCT-Salman/invocca/pkg/types"
)

func newConsoleCmd(a *app) *cobra.Command {
	var eventID, logFile string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the interactive console",
		Long: `Console opens a terminal UI with one tab per resource the current role
can use. Lists refresh live from the server's change feed.

Clients need --event to see invitations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.resolveToken()
			if err != nil {
				return err
			}
			role, subject := types.RoleAdmin, ""
			if res.Token != "" {
				claims, err := auth.PeekClaims(res.Token)
				if err != nil {
					return fmt.Errorf("reading token claims: %w", err)
				}
				role, subject = claims.Role, claims.Subject
			} else {
				a.logger.Warn().Msg("no token configured; only a dev-mode server will accept requests")
			}

			c, err := a.client()
			if err != nil {
				return err
			}

			// The console owns the terminal, so logs go to a file or nowhere.
			logger := zerolog.Nop()
			if logFile != "" {
				f, err := os.OpenFile(auth.ExpandPath(logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				logger = zerolog.New(f).With().Timestamp().Str("component", "console").Logger()
			}

			return console.Run(cmd.Context(), console.Options{
				Client:    c,
				Role:      role,
				Subject:   subject,
				EventID:   eventID,
				PageSize:  a.v.GetInt(cfgKeyPageSize),
				StaleTime: a.v.GetDuration(cfgKeyStaleTime),
				Logger:    logger,
			})
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "event whose invitations are listed")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write console logs to this file")
	return cmd
}
