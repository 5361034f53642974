package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"adaptiveclean/internal/operations"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// summary prints run events as they arrive.
type summary struct {
	out   io.Writer
	start time.Time
}

func (s *summary) Emit(_ context.Context, ev operations.Event) error {
	switch d := ev.Data.(type) {
	case operations.StartData:
		s.start = ev.Timestamp
		fmt.Fprintf(s.out, "%s %s on %s (%d steps)\n", bold("▶"), bold(d.Algorithm), d.DatasetID, d.TotalSteps)
		if d.Model != "" {
			fmt.Fprintf(s.out, "  %s %s\n", gray("config chosen by"), d.Model)
		}
		for _, o := range d.Overrides {
			fmt.Fprintf(s.out, "  %s %s\n", yellow("override"), o)
		}
	case operations.StepData:
		if d.Status != operations.StepStatusCompleted {
			return nil
		}
		line := fmt.Sprintf("  %s [%d/%d] %-28s", green("✓"), d.StepNumber, d.TotalSteps, d.Label)
		if d.RowCount != nil {
			line += fmt.Sprintf(" rows=%d", *d.RowCount)
		}
		if d.Score != nil {
			line += fmt.Sprintf(" score=%s", scoreColor(*d.Score))
		}
		fmt.Fprintln(s.out, line)
	case operations.CompleteData:
		fmt.Fprintf(s.out, "%s %d rows × %d columns, quality %s, %d variant(s) in %s\n",
			green("done"), d.Rows, d.Columns, scoreColor(d.QualityScore), len(d.VariantIDs),
			ev.Timestamp.Sub(s.start).Round(time.Millisecond))
	case operations.ErrorData:
		fmt.Fprintf(s.out, "%s %s", red("failed"), d.Message)
		if d.Step != "" {
			fmt.Fprintf(s.out, " (step %s)", d.Step)
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func scoreColor(score float64) string {
	v := fmt.Sprintf("%.3f", score)
	switch {
	case score >= 0.8:
		return green(v)
	case score >= 0.5:
		return yellow(v)
	default:
		return red(v)
	}
}
