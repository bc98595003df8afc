package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/blog-cms/internal/app"
)

func NewMigrateCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := app.Open(root.config())
			if err != nil {
				return err
			}
			defer database.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
