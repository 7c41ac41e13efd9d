package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/importer"
	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/report"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const errorWidth = 60

func (a *App) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func (a *App) renderImports(results []fileResult) {
	t := a.newTable("Imported Reports")
	t.AppendHeader(table.Row{"File", "Dialect", "Results", "Recorded", "Dropped", "Run", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Results", Align: text.AlignRight},
		{Name: "Recorded", Align: text.AlignRight},
		{Name: "Dropped", Align: text.AlignRight},
		{Name: "Status", WidthMax: errorWidth, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range results {
		row := table.Row{r.path, "-", "-", "-", "-", "-", importStatus(r)}
		if r.res != nil {
			row[1] = r.res.Dialect
			if r.res.Report != nil {
				row[2] = len(r.res.Report.Results)
			}
			if r.res.RunID != "" {
				row[5] = r.res.RunID
			}
			switch {
			case r.res.Outcome != nil:
				row[3] = r.res.Outcome.Recorded
				row[4] = len(r.res.Outcome.Dropped)
			case r.res.Direct != nil:
				row[3] = r.res.Direct.ProcessedCount
				row[4] = r.res.Direct.ErrorCount
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

func importStatus(r fileResult) string {
	if r.err != nil {
		return fmt.Sprintf("%s %s: %v", statusMark(false), failure.KindOf(r.err), r.err)
	}
	if r.res != nil && r.res.Outcome != nil && r.res.Outcome.Issues != nil {
		return fmt.Sprintf("%s partial: %v", statusMark(true), r.res.Outcome.Issues)
	}
	return statusMark(true) + " ok"
}

func statusMark(ok bool) string {
	if ok {
		return text.FgGreen.Sprint("✓")
	}
	return text.FgRed.Sprint("✗")
}

func (a *App) renderSubmit(res *importer.Result) {
	d := res.Direct
	t := a.newTable(fmt.Sprintf("%s (%s) run %s", d.TestRunName, d.Environment, d.TestRunID))
	t.AppendHeader(table.Row{"Test Case", "Status", "Result"})
	for _, p := range d.Results {
		t.AppendRow(table.Row{p.TestCaseID, p.Status, p.ResultID})
	}
	for _, e := range d.Errors {
		t.AppendRow(table.Row{e.TestCaseID, statusMark(false), e.Error})
	}
	t.AppendFooter(table.Row{"Processed", d.ProcessedCount, fmt.Sprintf("errors %d", d.ErrorCount)})
	t.Render()
}

func (a *App) renderReport(rep *report.Report) {
	h := rep.Header
	info := a.newTable("Report")
	info.AppendRows([]table.Row{
		{"Dialect", rep.Dialect},
		{"Source", orDash(h.Source)},
		{"Project", orDash(h.ProjectName)},
		{"Run", orDash(h.RunName)},
		{"Environment", orDash(h.RunEnvironment)},
		{"Started", orDash(h.StartTime)},
		{"Finished", orDash(h.EndTime)},
	})
	if h.Environment.Browser != "" || h.Environment.OS != "" {
		info.AppendRow(table.Row{"Platform", strings.TrimSpace(h.Environment.Browser + " " + h.Environment.OS)})
	}
	if h.Trigger.BuildID != "" {
		info.AppendRow(table.Row{"Build", h.Trigger.BuildID})
	}
	info.Render()

	s := rep.Summary()
	t := a.newTable(fmt.Sprintf("Results (%d)", s.Total))
	t.AppendHeader(table.Row{"ID", "Name", "Class", "Status", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: errorWidth, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range rep.Results {
		dur := "-"
		if secs, ok := r.DurationSeconds(); ok {
			dur = (time.Duration(secs) * time.Second).String()
		}
		t.AppendRow(table.Row{orDash(r.LocalID), r.Name, orDash(r.ClassName), r.Status, dur, r.ErrorMessage})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("passed %d", s.Passed), fmt.Sprintf("failed %d", s.Failed),
		fmt.Sprintf("skipped %d", s.Skipped), s.Duration.Round(time.Second).String(), fmt.Sprintf("other %d", s.Other)})
	t.Render()
}

func (a *App) renderHistory(id string, entries []integration.HistoryEntry) {
	t := a.newTable(fmt.Sprintf("History of %s", id))
	t.AppendHeader(table.Row{"Executed", "Run", "Environment", "Status", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: errorWidth, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, e := range entries {
		run, env := e.TestRunID, "-"
		if e.TestRun != nil {
			run = e.TestRun.Name
			env = orDash(e.TestRun.Environment)
		}
		dur := "-"
		if e.Duration != nil {
			dur = fmt.Sprintf("%ds", *e.Duration)
		}
		t.AppendRow(table.Row{e.ExecutedAt.Format("2006-01-02 15:04:05"), run, env, e.Status, dur, e.ErrorMessage})
	}
	t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
