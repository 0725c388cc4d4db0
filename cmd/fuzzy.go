package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var fuzzyCmd = &cobra.Command{
	Use:   "fuzzy",
	Short: "Recover unmapped UEIs by fuzzy name matching",
}

// -- fuzzy run --

var fuzzyRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Find and apply fuzzy UEI matches",
	Long:  "Scores every unmapped UEI against existing profile names by trigram similarity and inserts mappings that clear the confidence threshold.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()

		if flags.Changed("min-similarity") {
			cfg.Fuzzy.MinSimilarity, _ = flags.GetFloat64("min-similarity")
		}
		if flags.Changed("min-confidence") {
			cfg.Fuzzy.MinConfidence, _ = flags.GetInt("min-confidence")
		}
		if flags.Changed("limit") {
			cfg.Fuzzy.Limit, _ = flags.GetInt("limit")
		}
		if flags.Changed("dry-run") {
			cfg.Fuzzy.DryRun, _ = flags.GetBool("dry-run")
		}
		format, _ := flags.GetString("format")

		st, err := openStore(ctx, "fuzzy")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		defer pushMetrics(ctx)

		res, err := newMatcher(st, cfg.Fuzzy.DryRun).
			RunFuzzyMatchingProcess(ctx, cfg.Fuzzy.MinSimilarity, cfg.Fuzzy.MinConfidence, cfg.Fuzzy.Limit)
		if err != nil {
			return eris.Wrap(err, "fuzzy run")
		}

		return render(cmd.OutOrStdout(), format, res, func(w io.Writer) { formatProcessResult(w, res) })
	},
}

func init() {
	f := fuzzyRunCmd.Flags()
	f.Float64("min-similarity", 0.7, "minimum trigram similarity in (0, 1]")
	f.Int("min-confidence", 75, "minimum confidence (0-100) for a match to be applied")
	f.Int("limit", 5000, "maximum unmapped UEIs to consider")
	f.Bool("dry-run", false, "report matches without writing mappings")
	f.String("format", "table", "output format: table, json or yaml")

	fuzzyCmd.AddCommand(fuzzyRunCmd)
	rootCmd.AddCommand(fuzzyCmd)
}
