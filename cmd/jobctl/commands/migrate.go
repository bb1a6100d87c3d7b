package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  `Apply every embedded SQL migration that is not yet recorded in schema_migrations.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := env.Migrate(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return fmt.Errorf("error applying migrations: %w", err)
			}

			if len(applied) == 0 {
				fmt.Fprintln(env.Out, "Schema is up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(env.Out, "Applied %s\n", version)
			}
			return nil
		},
	}
}
