package commands

import (
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/spf13/cobra"
)

func newUserCmd(env *Env) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		Long: `Add a user directly to the store. This is how the first admin is
created, before anyone can sign in to the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString(flagName)
			email, _ := cmd.Flags().GetString(flagEmail)
			role, _ := cmd.Flags().GetString(flagRole)

			return env.withStore(func(store Store) error {
				directory := service.NewDirectoryService(store, store, env.logger)
				user, err := directory.AddUser(cmd.Context(), service.CreateUserInput{
					Name:  name,
					Email: email,
					Role:  role,
				})
				if err != nil {
					return fmt.Errorf("error creating user: %w", err)
				}

				prettyJSON, err := json.MarshalIndent(dto.NewUserDTO(*user), "", "  ")
				if err != nil {
					return fmt.Errorf("error formatting response: %w", err)
				}
				fmt.Fprintln(env.Out, string(prettyJSON))
				return nil
			})
		},
	}
	addCmd.Flags().StringP(flagName, "n", "", "Display name")
	addCmd.Flags().StringP(flagEmail, "e", "", "Email address")
	addCmd.Flags().StringP(flagRole, "r", domain.RoleMember, "Role: member or admin")
	_ = addCmd.MarkFlagRequired(flagName)
	_ = addCmd.MarkFlagRequired(flagEmail)

	userCmd.AddCommand(addCmd)
	return userCmd
}
