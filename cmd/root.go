// Package cmd defines the price-error-watch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/config"
	"github.com/JakeFAU/price-error-watch/internal/logging"
	"github.com/JakeFAU/price-error-watch/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface commands use. Tests swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Scan(ctx context.Context, deliver bool) ([]string, error)
	Close() error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "price-error-watch",
		Short: "Watches Brazilian retailers for mispriced listings.",
		Long: `price-error-watch searches retail sites for every keyword of every watched
category, classifies each listing against store discounts, category price floors
and its own price history, and delivers alerts for probable price errors.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, server.ServiceName)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), &cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the PRICEWATCH_ prefix")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScanCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
