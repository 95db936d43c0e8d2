// Package cmd defines the pagewatch CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/app"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/logging"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type appKeyType string

const appKey appKeyType = "app"

// newApp builds the service container. Tests swap it out.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, Version)
}

type rootOptions struct {
	configPath string
	urlsFile   string
	logLevel   string

	app *app.App
}

// close releases the services built for the command, if any.
func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close(context.Background())
		o.app = nil
	}
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pagewatch",
		Short:         "Watch web pages and report when their content changes.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `pagewatch fetches a list of pages, reduces each one to its visible text,
and compares it to the last capture. Changed pages are archived and reported
through the configured notification channel.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize services: %w", err)
			}
			opts.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().StringVar(&opts.urlsFile, "urls", "", "URL list file; overrides monitor.urls_file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error; overrides logging.level")

	cmd.AddCommand(newRunCmd(), newWatchCmd(), newStateCmd())
	return cmd, opts
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.urlsFile != "" {
		cfg.Monitor.URLsFile = opts.urlsFile
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI and returns the process exit code.
// Services are closed whether or not the command succeeded.
func Execute(ctx context.Context) int {
	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	opts.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pagewatch:", err)
		return 1
	}
	return 0
}
