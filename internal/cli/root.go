// Package cli implements the astra-briefing command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/DariyDar/astra/internal/config"
	"github.com/DariyDar/astra/internal/logging"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	version    string
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{version: version}
	root := &cobra.Command{
		Use:   "astra-briefing",
		Short: "Aggregated briefings across Slack, Gmail, Calendar and ClickUp",
		Long: `astra-briefing fans one query out to Slack, Gmail, Google Calendar and ClickUp
concurrently and returns one merged result. A failing source is reported in the
result without failing the query.

Run "astra-briefing serve" to expose the briefing and search_everywhere tools
to an MCP client over stdio.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default "+config.DefaultConfigPath()+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "mirror debug logs to stderr")

	root.AddCommand(
		serveCmd(opts),
		queryCmd(opts),
		searchCmd(opts),
		viewCmd(opts),
		authCmd(opts),
		initCmd(opts),
		versionCmd(opts),
	)
	return root
}

// setup loads config and the logger and wires the engine. The caller
// must run the returned cleanup.
func (o *rootOptions) setup(cmd *cobra.Command) (*App, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := o.logger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	app, err := Build(cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	cleanup := func() {
		if err := app.Close(); err != nil {
			logger.Warn("close", "error", err)
		}
		_ = closeLog()
	}
	return app, cleanup, nil
}

func (o *rootOptions) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func() error, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		level = slog.LevelDebug
	}
	return logging.New(logging.Options{
		Path:   cfg.LogPath(),
		Level:  level,
		Stderr: cmd.ErrOrStderr(),
		Mirror: o.verbose,
	})
}

func versionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "astra-briefing %s\n", o.version)
		},
	}
}

func initCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if err := config.WriteDefaults(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}
