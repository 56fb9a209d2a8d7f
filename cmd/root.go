// Package cmd defines and implements the CLI commands for the crawlkit executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlkit/internal/app"
	"github.com/JakeFAU/crawlkit/internal/config"
	"github.com/JakeFAU/crawlkit/internal/logging"
	"github.com/JakeFAU/crawlkit/internal/spiders"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Format:      cfg.Logging.Format,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(cfg, logger), nil
}

// newRootCmd creates and configures the root command.
func newRootCmd(registry *spiders.Registry) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "crawlkit",
		Short: "Runs registered spiders through the fetch, parse and sink pipeline.",
		Long: `crawlkit fetches pages for a registered spider, either over HTTP or through a
headless browser, parses them into records and writes every record to the configured
sinks: a delimited text file, a relational table and a Kafka topic.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
				defer cancel()
				appInstance.Close(ctx)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); CRAWLKIT_* environment variables override it")

	cmd.AddCommand(newRunCmd(registry))
	cmd.AddCommand(newListCmd(registry))
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(spiders.Default()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
