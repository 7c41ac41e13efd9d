// Package importer is the entry point that turns a report file into a
// registry test run.
package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/metrics"
	"github.com/f4hrenh9it/go-eztest/reconcile"
	"github.com/f4hrenh9it/go-eztest/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is the registry surface an import needs, including the one-call
// automation-report endpoint.
type Client interface {
	reconcile.Registry
	ImportAutomationReport(ctx context.Context, r integration.AutomationReport) (*integration.AutomationReportResponse, error)
}

type Options struct {
	// Direct sends reports that name their own run through the one-call
	// endpoint instead of resolving cases locally.
	Direct          bool
	ReplacePrevious bool
	Environment     string
	CacheSize       int
	Logger          *zap.SugaredLogger
}

type Importer struct {
	client Client
	parser *report.Parser
	orc    *reconcile.Orchestrator
	o      Options
	l      *zap.SugaredLogger
}

// Result is what one import produced. Outcome is set on the reconciled path,
// Direct on the one-call path.
type Result struct {
	Source  string
	Dialect report.Dialect
	Report  *report.Report
	RunID   string
	Outcome *reconcile.Outcome
	Direct  *integration.AutomationReportResponse
}

func New(c Client, o Options) (*Importer, error) {
	if c == nil {
		return nil, errors.New("registry client is required")
	}
	l := integration.OrNop(o.Logger)
	resolver, err := reconcile.NewResolver(c, l, o.CacheSize)
	if err != nil {
		return nil, err
	}
	orc, err := reconcile.NewOrchestrator(c, resolver, reconcile.Options{
		ReplacePrevious: o.ReplacePrevious,
		Environment:     o.Environment,
		Logger:          l,
	})
	if err != nil {
		return nil, err
	}
	return &Importer{client: c, parser: report.NewParser(l), orc: orc, o: o, l: l}, nil
}

// Parser exposes the parser so callers can detect or preview reports.
func (i *Importer) Parser() *report.Parser {
	return i.parser
}

func (i *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	rep, err := i.parser.ParseFile(path)
	if err != nil {
		metrics.RecordImport(dialectOf(rep), err)
		i.l.Errorw("report not imported", "file", path, "kind", failure.KindOf(err), "err", err)
		return nil, err
	}
	res, err := i.ImportReport(ctx, rep)
	if res != nil {
		res.Source = filepath.Base(path)
	}
	return res, err
}

func (i *Importer) ImportBytes(ctx context.Context, name string, raw []byte) (*Result, error) {
	rep, err := i.parser.Parse(name, raw)
	if err != nil {
		metrics.RecordImport(dialectOf(rep), err)
		i.l.Errorw("report not imported", "file", name, "kind", failure.KindOf(err), "err", err)
		return nil, err
	}
	res, err := i.ImportReport(ctx, rep)
	if res != nil {
		res.Source = name
	}
	return res, err
}

// ImportReport pushes an already parsed report. The returned Result carries a
// run id whenever a run was created, even when err reports partial issues.
func (i *Importer) ImportReport(ctx context.Context, rep *report.Report) (res *Result, err error) {
	if rep == nil {
		return nil, errors.New("report is required")
	}
	defer func() { metrics.RecordImport(string(rep.Dialect), err) }()

	if i.o.Direct && rep.Header.RunName != "" {
		return i.Submit(ctx, rep)
	}
	out, err := i.orc.Run(ctx, rep)
	res = &Result{Dialect: rep.Dialect, Report: rep, Outcome: out}
	if out != nil {
		res.RunID = out.RunID
	}
	return res, err
}

// Submit sends rep through the one-call endpoint, skipping local resolution.
func (i *Importer) Submit(ctx context.Context, rep *report.Report) (*Result, error) {
	ar, err := ToAutomationReport(rep)
	if err != nil {
		return nil, err
	}
	l := i.l.With("import", uuid.NewString())
	resp, err := i.client.ImportAutomationReport(ctx, ar)
	if err != nil {
		l.Errorw("automation report rejected", "run", ar.TestRunName, "err", err)
		return nil, err
	}
	l.Infow("automation report imported",
		"run", resp.TestRunID,
		"processed", resp.ProcessedCount,
		"errors", resp.ErrorCount,
	)
	for _, e := range resp.Errors {
		l.Warnw("result rejected by registry", "testCase", e.TestCaseID, "err", e.Error)
	}
	return &Result{Dialect: rep.Dialect, Report: rep, RunID: resp.TestRunID, Direct: resp}, nil
}

// ToAutomationReport converts a report that names its run and environment
// into the one-call endpoint body.
func ToAutomationReport(rep *report.Report) (integration.AutomationReport, error) {
	h := rep.Header
	if strings.TrimSpace(h.RunName) == "" || strings.TrimSpace(h.RunEnvironment) == "" {
		return integration.AutomationReport{}, failure.New(failure.KindMissingRequiredField,
			"one-call import needs a run name and environment")
	}
	ar := integration.AutomationReport{
		TestRunName: h.RunName,
		Environment: h.RunEnvironment,
		Description: h.Description,
		Results:     make([]integration.AutomationResult, 0, len(rep.Results)),
	}
	for _, r := range rep.Results {
		id := r.LocalID
		if id == "" {
			id = r.Name
		}
		p := reconcile.RecordPayload(id, r)
		ar.Results = append(ar.Results, integration.AutomationResult{
			TestCaseID:   p.TestCaseID,
			Status:       p.Status,
			Duration:     p.Duration,
			Comment:      p.Comment,
			ErrorMessage: p.ErrorMessage,
			StackTrace:   p.StackTrace,
		})
	}
	return ar, nil
}

func dialectOf(rep *report.Report) string {
	if rep == nil || rep.Dialect == "" {
		return "unknown"
	}
	return string(rep.Dialect)
}
