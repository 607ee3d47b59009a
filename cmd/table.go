package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"orderproof/internal/core/checkpoint"
	"orderproof/internal/core/pipeline"
)

func newTable(out io.Writer, headers ...interface{}) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(headers))
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	return tw
}

func printSummary(out io.Writer, s *pipeline.Summary) {
	if s == nil {
		return
	}
	if len(s.Results) > 0 {
		tw := newTable(out, "No", "Order", "Outcome", "Reference / Reason")
		for i, r := range s.Results {
			detail := r.Reference
			if r.Outcome != pipeline.Succeeded {
				detail = r.Reason
			}
			tw.AppendRow(table.Row{i + 1, r.OrderID, string(r.Outcome), text.Trim(detail, 80)})
		}
		tw.Render()
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Requested:  %d\n", s.Requested)
	if s.Resumed > 0 {
		fmt.Fprintf(out, "Resumed:    %d already processed\n", s.Resumed)
	}
	if s.Excluded > 0 {
		fmt.Fprintf(out, "Excluded:   %d already in report\n", s.Excluded)
	}
	fmt.Fprintf(out, "Succeeded:  %d/%d\n", s.Succeeded, s.WorkSet)
	fmt.Fprintf(out, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(out, "Total time: %s\n", s.Elapsed.Round(time.Second))
	if s.ReportPath != "" {
		fmt.Fprintf(out, "Report:     %s\n", s.ReportPath)
	}
	if s.ManifestPath != "" {
		fmt.Fprintf(out, "Failures:   %s\n", s.ManifestPath)
	}
	if s.Aborted {
		fmt.Fprintf(out, "Stopped:    %s\n", s.Cause)
	}

	if s.ReportPath == "" {
		return
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Open %s\n", s.ReportPath)
	fmt.Fprintln(out, "  2. Check every row and evidence link")
	fmt.Fprintln(out, "  3. Submit the report to marketplace support")
	if s.ManifestPath != "" {
		fmt.Fprintf(out, "  4. Retry the orders listed in %s\n", s.ManifestPath)
	}
}

func printCheckpoint(out io.Writer, location string, res checkpoint.LoadResult) {
	fmt.Fprintf(out, "Checkpoint: %s (%s)\n", location, res.Status)
	if res.Err != nil {
		fmt.Fprintf(out, "Error: %v\n", res.Err)
	}
	if len(res.Log.Entries) == 0 {
		fmt.Fprintln(out, "Processed orders: none")
		return
	}
	tw := newTable(out, "No", "Order", "Reference", "Completed")
	for i, e := range res.Log.Entries {
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), e.OrderID, e.Reference, humanize.Time(e.CompletedAt)})
	}
	tw.Render()
}
