package main

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Build and inspect contractor profiles",
	Long:  "Commands for full rebuilds, incremental refreshes and run status of contractor profile aggregation.",
}

// -- profiles build --

var profilesBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild every contractor profile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "aggregate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		defer pushMetrics(ctx)

		run, err := newAggregator(st).BuildAllProfiles(ctx)
		if run != nil {
			formatRun(cmd.OutOrStdout(), run)
		}
		if err != nil {
			return eris.Wrap(err, "profiles build")
		}
		return nil
	},
}

// -- profiles update --

var profilesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh profiles touched by recently updated records",
	Long:  "Recomputes every profile whose name group contains a record updated after --since (default: the configured incremental window).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		raw, _ := cmd.Flags().GetString("since")
		since, err := parseSince(raw)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "aggregate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		defer pushMetrics(ctx)

		run, err := newAggregator(st).UpdateRecentProfiles(ctx, since)
		if run != nil {
			formatRun(cmd.OutOrStdout(), run)
		}
		if err != nil {
			return eris.Wrap(err, "profiles update")
		}
		return nil
	},
}

// -- profiles status --

var profilesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent aggregation run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")

		st, err := connectStore(ctx, "migrate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := newAggregator(st).GetAggregationStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "profiles status")
		}
		if run == nil {
			zap.L().Info("no aggregation runs found, run 'profiles build' first")
			return nil
		}

		return render(cmd.OutOrStdout(), format, run, func(w io.Writer) { formatRun(w, run) })
	},
}

// parseSince accepts RFC 3339 timestamps or plain dates. Empty means no
// explicit cutoff.
func parseSince(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, eris.Errorf("invalid --since %q (want RFC 3339 or YYYY-MM-DD)", raw)
}

func init() {
	profilesUpdateCmd.Flags().String("since", "", "only refresh groups with records updated after this time")
	profilesStatusCmd.Flags().String("format", "table", "output format: table, json or yaml")

	profilesCmd.AddCommand(profilesBuildCmd, profilesUpdateCmd, profilesStatusCmd)
	rootCmd.AddCommand(profilesCmd)
}
