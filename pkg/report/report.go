// Package report renders a metrics.Report for people and for tools.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/metrics"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

func Formats() []Format {
	return []Format{FormatTable, FormatJSON, FormatCSV}
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", bencherr.NewConfigError("format", constants.UnknownFormatErr, s)
	}
}

type Options struct {
	// NoColor disables highlighting in the table format.
	NoColor bool
}

func Write(w io.Writer, format Format, r metrics.Report, opts Options) error {
	switch format {
	case FormatTable, "":
		return writeTable(w, r, opts)
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSV:
		return writeCSV(w, r)
	default:
		return bencherr.NewConfigError("format", constants.UnknownFormatErr, string(format))
	}
}

func rows(r metrics.Report) []metrics.KindStats {
	out := make([]metrics.KindStats, 0, len(r.Kinds)+1)
	out = append(out, r.Kinds...)
	return append(out, r.Total)
}

var header = []string{
	"kind", "count", "ok", "failed", "error_rate",
	"min", "mean", "p50", "p95", "p99", "max", "ops/s",
}

func writeTable(w io.Writer, r metrics.Report, opts Options) error {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	if opts.NoColor {
		for _, c := range []*color.Color{bold, red, yellow, green} {
			c.DisableColor()
		}
	}

	fmt.Fprintf(w, "run %s: %d/%d operations in %s\n",
		r.RunID, r.Executed, r.Planned, r.Elapsed.Round(time.Millisecond))
	if r.Degraded {
		yellow.Fprintf(w, "degraded: %s\n", r.DegradedReason)
	}
	if r.Dropped > 0 {
		yellow.Fprintf(w, "dropped %d late results\n", r.Dropped)
	}
	fmt.Fprintln(w)

	var table bytes.Buffer
	tw := tabwriter.NewWriter(&table, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))
	stats := rows(r)
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f%%\t%s\t%s\t%s\t%s\t%s\t%s\t%.1f\n",
			s.Name, s.Count, s.Successes, s.Failures, s.ErrorRate*100,
			latency(s.Min), latency(s.Mean), latency(s.P50),
			latency(s.P95), latency(s.P99), latency(s.Max), s.Throughput,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	// Colors go on after alignment so escape codes do not skew the columns.
	lines := strings.SplitAfter(strings.TrimSuffix(table.String(), "\n"), "\n")
	bold.Fprint(w, lines[0])
	for i, line := range lines[1:] {
		s := stats[i]
		switch {
		case s.Kind == metrics.KindTotal:
			bold.Fprint(w, line)
		case s.Failures > 0:
			red.Fprint(w, line)
		default:
			green.Fprint(w, line)
		}
	}
	fmt.Fprintln(w)

	if len(r.Total.Errors) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "errors:")
	for _, reason := range sortedReasons(r.Total.Errors) {
		red.Fprintf(w, "  %s: %d\n", reason, r.Total.Errors[reason])
	}
	return nil
}

func latency(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(10 * time.Microsecond).String()
}

func sortedReasons(errs map[string]int) []string {
	reasons := make([]string, 0, len(errs))
	for reason := range errs {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return reasons
}

func writeJSON(w io.Writer, r metrics.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var csvHeader = []string{
	"run_id", "kind", "count", "successes", "failures", "error_rate",
	"min_ns", "mean_ns", "p50_ns", "p95_ns", "p99_ns", "max_ns", "ops_per_sec",
}

func writeCSV(w io.Writer, r metrics.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range rows(r) {
		record := []string{
			r.RunID,
			s.Name,
			strconv.Itoa(s.Count),
			strconv.Itoa(s.Successes),
			strconv.Itoa(s.Failures),
			strconv.FormatFloat(s.ErrorRate, 'f', 4, 64),
			strconv.FormatInt(int64(s.Min), 10),
			strconv.FormatInt(int64(s.Mean), 10),
			strconv.FormatInt(int64(s.P50), 10),
			strconv.FormatInt(int64(s.P95), 10),
			strconv.FormatInt(int64(s.P99), 10),
			strconv.FormatInt(int64(s.Max), 10),
			strconv.FormatFloat(s.Throughput, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
