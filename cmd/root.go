package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/config"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/tracing"
)

var version = "dev"

var (
	cfg             *config.Config
	shutdownTracing tracing.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "profiles-cli",
	Short: "Contractor profile consolidation engine",
	Long:  "Consolidates per-UEI federal contractor records into entity profiles, maps every UEI to a profile, and recovers unmapped UEIs by fuzzy name matching.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		shutdown, err := tracing.Init(cmd.Context(), cfg.Tracing, version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		shutdownTracing = shutdown

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracing != nil {
			if err := shutdownTracing(context.WithoutCancel(cmd.Context())); err != nil {
				zap.L().Warn("tracing shutdown failed", zap.Error(err))
			}
		}
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
