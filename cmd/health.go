package main

import (
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/monitoring"
)

type healthReport struct {
	Snapshot *monitoring.HealthSnapshot `json:"snapshot" yaml:"snapshot"`
	Alerts   []monitoring.Alert         `json:"alerts" yaml:"alerts"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check aggregation freshness and mapping coverage",
	Long:  "Evaluates the latest aggregation run and UEI coverage against monitoring thresholds, posting alerts to the configured webhook. --watch repeats the check until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		watch, _ := cmd.Flags().GetBool("watch")
		strict, _ := cmd.Flags().GetBool("strict")
		format, _ := cmd.Flags().GetString("format")

		st, err := connectStore(ctx, "monitor")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		if watch {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			checker.Run(ctx)
			return nil
		}

		snap, alerts, err := checker.CheckOnce(ctx)
		if err != nil {
			return eris.Wrap(err, "health")
		}
		report := healthReport{Snapshot: snap, Alerts: alerts}
		if err := render(cmd.OutOrStdout(), format, report, func(w io.Writer) { formatHealth(w, snap, alerts) }); err != nil {
			return err
		}
		if strict && len(alerts) > 0 {
			return eris.Errorf("health: %d alerts triggered", len(alerts))
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Bool("watch", false, "re-check on the configured interval until interrupted")
	healthCmd.Flags().Bool("strict", false, "exit non-zero when any alert fires")
	healthCmd.Flags().String("format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(healthCmd)
}
