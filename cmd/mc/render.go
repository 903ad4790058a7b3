package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"meetcast/internal/domain"
	"meetcast/internal/replay"
)

func statusColor(s domain.Status) text.Colors {
	switch s {
	case domain.StatusConfirmed:
		return text.Colors{text.FgGreen}
	case domain.StatusAdjusted, domain.StatusClarificationNeeded:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgRed}
	}
}

func renderSummary(out io.Writer, sum domain.EventSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendRow(table.Row{"Status", statusColor(sum.Status).Sprint(string(sum.Status))})
	tw.AppendRow(table.Row{"Reason", sum.Reason})
	if sum.City != "" {
		tw.AppendRow(table.Row{"City", sum.City})
	}
	if sum.DatetimeISO != "" {
		tw.AppendRow(table.Row{"When", sum.DatetimeISO})
	}
	if sum.DurationMin > 0 {
		tw.AppendRow(table.Row{"Duration", fmt.Sprintf("%d min", sum.DurationMin)})
	}
	if len(sum.Attendees) > 0 {
		tw.AppendRow(table.Row{"Attendees", strings.Join(sum.Attendees, ", ")})
	}
	if sum.EventID != "" {
		tw.AppendRow(table.Row{"Event", sum.EventID})
	}
	if len(sum.MissingFields) > 0 {
		tw.AppendRow(table.Row{"Missing", strings.Join(sum.MissingFields, ", ")})
	}
	if sum.Notes != "" {
		tw.AppendRow(table.Row{"Notes", sum.Notes})
	}
	tw.AppendRow(table.Row{"Run", sum.RunID})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 80}})
	tw.Render()

	if len(sum.Candidates) > 0 {
		ct := table.NewWriter()
		ct.SetOutputMirror(out)
		ct.SetStyle(table.StyleLight)
		ct.SetTitle("Alternatives")
		ct.AppendHeader(table.Row{"#", "Start", "Available"})
		for i, c := range sum.Candidates {
			ct.AppendRow(table.Row{i + 1, c.DatetimeISO, fmt.Sprintf("%d min", c.AvailableMin)})
		}
		ct.Render()
	}
}

func renderRuns(out io.Writer, runs []domain.Run) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"ID", "Time", "Status", "Action", "Input", "Elapsed"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, r.TS, statusColor(r.Status).Sprint(string(r.Status)), r.Action, truncate(r.Input, 48), fmt.Sprintf("%dms", r.ElapsedMS)})
	}
	tw.Render()
}

func renderRun(out io.Writer, run domain.Run) {
	renderSummary(out, run.Summary)
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle("Transitions")
	tw.AppendHeader(table.Row{"#", "Stage", "At", "Detail"})
	for i, t := range run.Transitions {
		tw.AppendRow(table.Row{i + 1, t.Stage, t.At, t.Detail})
	}
	tw.Render()
}

func renderReport(out io.Writer, report replay.Report) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle("Evaluation Results")
	tw.AppendHeader(table.Row{"Case", "Result", "Expected", "Actual", "Description"})
	for _, r := range report.Results {
		mark := text.FgGreen.Sprint("PASS")
		if !r.Passed {
			mark = text.FgRed.Sprint("FAIL")
		}
		expected := string(r.Case.ExpectedStatus)
		if r.Case.ExpectedAction != "" {
			expected += "/" + string(r.Case.ExpectedAction)
		}
		actual := string(r.Summary.Status)
		if r.Summary.Action != "" {
			actual += "/" + string(r.Summary.Action)
		}
		tw.AppendRow(table.Row{r.Case.ID, mark, expected, actual, r.Case.Description})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d", report.Passed, len(report.Results)), "", fmt.Sprintf("%.1f%%", report.SuccessRate()), ""})
	tw.Render()

	for _, r := range report.Results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(out, "\n%s: %s\n  input: %s\n", r.Case.ID, strings.Join(r.Mismatch, "; "), r.Case.Input)
		if r.Summary.Reason != "" {
			fmt.Fprintf(out, "  reason: %s\n", r.Summary.Reason)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
