package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Inspect UEI to profile mappings",
}

var mappingsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show UEI mapping coverage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")

		st, err := connectStore(ctx, "migrate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := newMatcher(st, true).GetMappingStats(ctx)
		if err != nil {
			return eris.Wrap(err, "mappings stats")
		}

		return render(cmd.OutOrStdout(), format, stats, func(w io.Writer) { formatMappingStats(w, stats) })
	},
}

func init() {
	mappingsStatsCmd.Flags().String("format", "table", "output format: table, json or yaml")

	mappingsCmd.AddCommand(mappingsStatsCmd)
	rootCmd.AddCommand(mappingsCmd)
}
