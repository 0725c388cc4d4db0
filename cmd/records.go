package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage raw per-UEI contractor records",
}

var recordsLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load raw contractor records from a YAML or JSON file",
	Long:  "Upserts raw per-UEI records keyed by UEI. Intended for seeding local databases; production records arrive from the upstream ETL.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "records load: open file")
		}
		defer f.Close() //nolint:errcheck

		recs, err := parseRecords(f, time.Now().UTC())
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "migrate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.LoadRecords(ctx, recs)
		if err != nil {
			return eris.Wrap(err, "records load")
		}
		zap.L().Info("records loaded", zap.String("file", args[0]), zap.Int64("rows", n))
		return nil
	},
}

// parseRecords decodes a YAML (or JSON) list of records. Missing timestamps
// default to now, a missing is_active defaults to true, and duplicate UEIs
// keep the last occurrence.
func parseRecords(r io.Reader, now time.Time) ([]model.RawContractorRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "records: read")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.New("records: file is empty")
	}

	var raw []model.RawContractorRecord
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "records: decode")
	}
	var keys []map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, eris.Wrap(err, "records: decode")
	}

	index := make(map[string]int, len(raw))
	out := make([]model.RawContractorRecord, 0, len(raw))
	for i, rec := range raw {
		rec.UEI = strings.TrimSpace(rec.UEI)
		if rec.UEI == "" {
			return nil, eris.Errorf("records: entry %d has no uei", i)
		}
		if strings.TrimSpace(rec.DisplayName) == "" {
			return nil, eris.Errorf("records: %s has no display_name", rec.UEI)
		}
		if _, ok := keys[i]["is_active"]; !ok {
			rec.IsActive = true
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now
		}
		if j, ok := index[rec.UEI]; ok {
			out[j] = rec
			continue
		}
		index[rec.UEI] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

func init() {
	recordsCmd.AddCommand(recordsLoadCmd)
	rootCmd.AddCommand(recordsCmd)
}
