package commands

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobflow/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString(flagUser)
			ttl, _ := cmd.Flags().GetDuration(flagTTL)

			return env.withStore(func(store Store) error {
				user, err := store.GetUser(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("error loading user: %w", err)
				}

				tokens := auth.NewTokens(env.cfg.Auth.JWTSecret, env.cfg.Auth.Issuer, env.cfg.Auth.TokenTTL)
				token, expiresAt, err := tokens.Issue(user.ID, ttl)
				if err != nil {
					return fmt.Errorf("error issuing token: %w", err)
				}

				fmt.Fprintln(env.Out, token)
				env.logger.Info("Token issued",
					slog.String("user_id", user.ID),
					slog.Time("expires_at", expiresAt),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringP(flagUser, "u", "", "ID of the user the token is for")
	cmd.Flags().Duration(flagTTL, 0, "Token lifetime (default: auth.token_ttl)")
	_ = cmd.MarkFlagRequired(flagUser)
	return cmd
}
