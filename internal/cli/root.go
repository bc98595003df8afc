package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/blog-cms/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// config loads the environment and applies flag overrides.
func (o *RootOptions) config() *config.Config {
	cfg := config.Load()
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg
}

// NewRootCommand creates the root command for the blog CMS.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "blog-cms",
		Short:         "Blog CMS API server",
		Long:          "Serves the blog API: public posts, admin post and category management, thumbnails and sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCreateAdminCommand(opts))

	return cmd
}
