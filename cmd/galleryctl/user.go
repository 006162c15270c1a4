package main

import (
	"github.com/spf13/cobra"

	"github.com/world-gallery/internal/auth"
	"github.com/world-gallery/internal/domain"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var req domain.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user that can sign in and like worlds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			cfg := loadConfig(logger)

			repo, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			// Registration never touches sessions.
			provider := auth.NewProvider(&cfg.Auth, repo, nil, logger)
			user, err := provider.CreateUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("created user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "password, at least 8 characters")
	cmd.Flags().StringVar(&req.DisplayName, "display-name", "", "name shown in the navigation bar")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
