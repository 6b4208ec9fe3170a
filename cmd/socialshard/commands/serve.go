package commands

import (
	"github.com/spf13/cobra"

	"github.com/najoast/socialshard/bootstrap"
	"github.com/najoast/socialshard/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the node",
		Long: `Run the node until SIGINT or SIGTERM.

With --config the file is watched and the log level and broadcast interval
are applied without a restart. Every setting can be overridden with a
SOCIALSHARD_<SECTION>_<KEY> environment variable.

Examples:
  socialshard serve
  socialshard serve --config /etc/socialshard/socialshard.yaml
  SOCIALSHARD_STORE_BACKEND=redis SOCIALSHARD_REDIS_ADDR=redis:6379 socialshard serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	builder := bootstrap.NewApplicationBuilder()
	if cfgFile != "" {
		builder = builder.WithConfigFile(cfgFile)
	}

	app, err := builder.Build()
	if err != nil {
		return err
	}

	cfg := app.Config()
	logger.Info("configuration loaded",
		"source", configSource(),
		logger.KeyBackend, cfg.Store.Backend,
		"environment", cfg.App.Environment)

	return app.Run(cmd.Context())
}

func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "search path or defaults"
}
