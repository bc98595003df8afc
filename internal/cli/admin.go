package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/blog-cms/internal/app"
	"github.com/example/blog-cms/internal/auth"
)

type CreateAdminOptions struct {
	*RootOptions
	Email    string
	Password string
}

// NewCreateAdminCommand registers an admin account directly in the
// database, for deployments where public sign-up is disabled.
func NewCreateAdminCommand(root *RootOptions) *cobra.Command {
	opts := &CreateAdminOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Email == "" || opts.Password == "" {
				return errors.New("--email and --password are required")
			}
			cfg := opts.config()
			database, err := app.Open(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			p := auth.NewProvider(database.Gorm, cfg.AuthSecret, cfg.TokenTTL())
			user, err := p.SignUp(cmd.Context(), opts.Email, opts.Password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %d (%s)\n", user.ID, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "admin password")

	return cmd
}
