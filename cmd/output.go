package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/fuzzy"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/model"
	"github.com/goldengate-intelligence/gg-portal-mvp-sub001/internal/monitoring"
)

// render writes v as json or yaml, or falls back to the table writer.
func render(out io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "", "table":
		table(out)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// formatRun writes a key/value summary of one aggregation run.
func formatRun(out io.Writer, run *model.AggregationRunStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	dur := "-"
	completed := "-"
	if run.CompletedAt != nil {
		completed = run.CompletedAt.Format("2006-01-02 15:04")
		dur = (time.Duration(run.DurationMs) * time.Millisecond).Round(time.Second).String()
	}
	_, _ = fmt.Fprintf(w, "RUN\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "TYPE\t%s\n", run.RunType)
	_, _ = fmt.Fprintf(w, "STATUS\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "STARTED\t%s\n", run.StartedAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "COMPLETED\t%s\n", completed)
	_, _ = fmt.Fprintf(w, "DURATION\t%s\n", dur)
	_, _ = fmt.Fprintf(w, "PROFILES\t%d\n", run.TotalProfiles)
	_, _ = fmt.Fprintf(w, "UEIS MAPPED\t%d\n", run.TotalUEIsMapped)
	_, _ = fmt.Fprintf(w, "GROUPS FAILED\t%d\n", run.GroupsFailed)
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "ERROR\t%s\n", truncate(run.Error, 80))
	}
	for i, e := range run.Errors {
		if i == 5 {
			_, _ = fmt.Fprintf(w, "\t... %d more\n", len(run.Errors)-i)
			break
		}
		_, _ = fmt.Fprintf(w, "GROUP ERROR\t%s\n", truncate(e, 80))
	}
	_ = w.Flush()
}

// formatMappingStats writes coverage totals and the per-method breakdown.
func formatMappingStats(out io.Writer, stats *model.MappingStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TOTAL UEIS\t%d\n", stats.TotalUEIs)
	_, _ = fmt.Fprintf(w, "MAPPED\t%d\n", stats.MappedUEIs)
	_, _ = fmt.Fprintf(w, "UNMAPPED\t%d\n", stats.UnmappedUEIs)
	_, _ = fmt.Fprintf(w, "COVERAGE\t%.2f%%\n", stats.CoveragePct)

	methods := make([]string, 0, len(stats.ByMethod))
	for m := range stats.ByMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", m, stats.ByMethod[model.MatchMethod(m)])
	}
	_ = w.Flush()
}

// formatProcessResult writes a before/after summary of a fuzzy pass.
func formatProcessResult(out io.Writer, res *fuzzy.ProcessResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\tBEFORE\tAFTER")
	_, _ = fmt.Fprintf(w, "MAPPED\t%d\t%d\n", res.Before.MappedUEIs, res.After.MappedUEIs)
	_, _ = fmt.Fprintf(w, "UNMAPPED\t%d\t%d\n", res.Before.UnmappedUEIs, res.After.UnmappedUEIs)
	_, _ = fmt.Fprintf(w, "COVERAGE\t%.2f%%\t%.2f%%\n", res.Before.CoveragePct, res.After.CoveragePct)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "CANDIDATES\t%d\n", res.Candidates)
	_, _ = fmt.Fprintf(w, "MEAN CONFIDENCE\t%.1f\n", res.MeanConfidence)
	_, _ = fmt.Fprintf(w, "ELIGIBLE\t%d\n", res.Applied.Eligible)
	_, _ = fmt.Fprintf(w, "INSERTED\t%d\n", res.Applied.Inserted)
	_, _ = fmt.Fprintf(w, "FAILED BATCHES\t%d\n", res.Applied.Report.Failed)
	if res.DryRun {
		_, _ = fmt.Fprintln(w, "DRY RUN\tno mappings written")
	}
	_ = w.Flush()
}

// formatHealth writes a health snapshot followed by any triggered alerts.
func formatHealth(out io.Writer, snap *monitoring.HealthSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if snap.HasRun {
		_, _ = fmt.Fprintf(w, "LAST RUN\t%s (%s, %s, %.1fh ago)\n",
			snap.LastRunID, snap.LastRunType, snap.LastRunStatus, snap.LastRunAgeHours)
	} else {
		_, _ = fmt.Fprintln(w, "LAST RUN\tnone")
	}
	_, _ = fmt.Fprintf(w, "COVERAGE\t%.2f%% (%d/%d)\n", snap.CoveragePct, snap.MappedUEIs, snap.TotalUEIs)
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(w, "ALERTS\tnone")
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "ALERT\t[%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
