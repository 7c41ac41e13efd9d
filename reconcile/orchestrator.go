package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/metrics"
	"github.com/f4hrenh9it/go-eztest/report"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultRunName     = "Automated Test Run"
	DefaultEnvironment = "AUTOMATION"
)

// RunState is the lifecycle state of a test run. Transitions only move forward.
type RunState string

const (
	StateNone      RunState = ""
	StateCreated   RunState = "CREATED"
	StateStarted   RunState = "STARTED"
	StateCompleted RunState = "COMPLETED"
)

var stateOrder = map[RunState]int{StateNone: 0, StateCreated: 1, StateStarted: 2, StateCompleted: 3}

// Advance moves s to next, refusing to go backwards or stay in place.
func (s RunState) Advance(next RunState) (RunState, error) {
	if stateOrder[next] <= stateOrder[s] {
		return s, fmt.Errorf("invalid run transition %s -> %s", s, next)
	}
	return next, nil
}

type Options struct {
	// ReplacePrevious deletes the newest run with the same name before creating a new one.
	ReplacePrevious bool
	// Environment is used when the report header does not determine one.
	Environment string
	Logger      *zap.SugaredLogger
	Clock       func() time.Time
}

// Orchestrator drives one import through create, start, record and complete.
type Orchestrator struct {
	reg      Registry
	resolver *Resolver
	o        Options
	l        *zap.SugaredLogger
}

func NewOrchestrator(reg Registry, resolver *Resolver, o Options) (*Orchestrator, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Environment == "" {
		o.Environment = DefaultEnvironment
	}
	return &Orchestrator{reg: reg, resolver: resolver, o: o, l: integration.OrNop(o.Logger)}, nil
}

// Outcome describes what an import did remotely.
type Outcome struct {
	ImportID    string
	RunID       string
	RunName     string
	Environment string
	State       RunState
	// TestCaseIDs are the distinct resolved cases in first-seen order.
	TestCaseIDs []string
	Recorded    int
	// Dropped names results whose test case could not be resolved.
	Dropped []string
	// Issues aggregates transition and record failures after the run was
	// created. It is of kind partial_record_failure when set.
	Issues error
}

// Run imports rep. It fails before anything is created when no result
// resolves; after the run exists every step is attempted and failures land in
// Outcome.Issues instead of aborting.
func (o *Orchestrator) Run(ctx context.Context, rep *report.Report) (*Outcome, error) {
	if rep == nil {
		return nil, errors.New("report is required")
	}
	out := &Outcome{ImportID: uuid.NewString()}
	l := o.l.With("import", out.ImportID)

	ids := make([]string, len(rep.Results))
	seen := map[string]bool{}
	for i, res := range rep.Results {
		id, ok := o.resolver.ResolveOrCreate(ctx, LookupFor(res), NewCaseFor(res, rep.Header.Environment))
		if !ok {
			l.Warnw("dropping result, test case unresolved", "name", res.Name, "localId", res.LocalID)
			out.Dropped = append(out.Dropped, res.Name)
			continue
		}
		ids[i] = id
		if !seen[id] {
			seen[id] = true
			out.TestCaseIDs = append(out.TestCaseIDs, id)
		}
	}
	if len(out.TestCaseIDs) == 0 {
		l.Errorw("no test case could be resolved, run not created", "results", len(rep.Results))
		return out, failure.New(failure.KindNoResolvableTestCases, "none of %d results resolved to a test case", len(rep.Results))
	}

	out.RunName = RunName(rep.Header, o.o.Clock())
	out.Environment = RunEnvironment(rep.Header, o.o.Environment)

	if o.o.ReplacePrevious {
		if deleted, err := o.reg.DeleteLatestTestRun(ctx, out.RunName); err != nil {
			l.Warnw("previous run could not be replaced", "name", out.RunName, "err", err)
		} else if deleted != "" {
			l.Infow("previous run deleted", "id", deleted, "name", out.RunName)
		}
	}

	run, err := o.reg.CreateTestRun(ctx, integration.CreateTestRunPayload{
		Name:        out.RunName,
		Description: RunDescription(rep.Header),
		Environment: out.Environment,
		TestCaseIDs: out.TestCaseIDs,
	})
	if err != nil {
		return out, failure.Wrap(err, failure.KindTransport, "create test run")
	}
	out.RunID = run.ID
	out.State, _ = out.State.Advance(StateCreated)
	l = l.With("run", run.ID)
	l.Infow("test run created", "name", out.RunName, "environment", out.Environment, "cases", len(out.TestCaseIDs))

	var issues error
	if err := o.reg.StartTestRun(ctx, run.ID); err != nil {
		l.Warnw("test run start failed", "err", err)
		issues = multierr.Append(issues, fmt.Errorf("start: %w", err))
	} else {
		out.State, _ = out.State.Advance(StateStarted)
	}

	for i, res := range rep.Results {
		if ids[i] == "" {
			continue
		}
		err := o.reg.RecordResult(ctx, run.ID, RecordPayload(ids[i], res))
		metrics.RecordResult(string(res.Status), err)
		if err != nil {
			l.Warnw("result not recorded", "testCase", ids[i], "name", res.Name, "err", err)
			issues = multierr.Append(issues, fmt.Errorf("record %s: %w", res.Name, err))
			continue
		}
		out.Recorded++
	}

	if err := o.reg.CompleteTestRun(ctx, run.ID); err != nil {
		l.Warnw("test run completion failed", "err", err)
		issues = multierr.Append(issues, fmt.Errorf("complete: %w", err))
	} else {
		out.State, _ = out.State.Advance(StateCompleted)
	}

	if issues != nil {
		out.Issues = failure.Wrap(issues, failure.KindPartialRecord, "test run partially recorded")
	}
	l.Infow("import finished",
		"state", out.State,
		"recorded", out.Recorded,
		"dropped", len(out.Dropped),
		"issues", len(multierr.Errors(issues)),
	)
	return out, nil
}

// RecordPayload builds the record request for a resolved result. Error
// details are only sent for failed results.
func RecordPayload(testCaseID string, res report.Result) integration.RecordResultPayload {
	p := integration.RecordResultPayload{
		TestCaseID: testCaseID,
		Status:     string(res.Status),
		Comment:    res.Comment,
	}
	if secs, ok := res.DurationSeconds(); ok {
		p.Duration = &secs
	}
	if p.Comment == "" && len(res.Tags) > 0 {
		p.Comment = "Tags: " + strings.Join(res.Tags, ", ")
	}
	if res.Status == report.StatusFailed {
		p.ErrorMessage = res.ErrorMessage
		p.StackTrace = res.StackTrace
	}
	return p
}

// RunName prefers an explicit name, then build id and profile, then the
// project name, then a default. A header start time is appended when known,
// otherwise the default name is stamped with now.
func RunName(h report.Header, now time.Time) string {
	if name := strings.TrimSpace(h.RunName); name != "" {
		return name
	}
	var parts []string
	if h.Trigger.BuildID != "" {
		parts = append(parts, h.Trigger.BuildID)
	}
	if h.Trigger.ExecutionProfile != "" {
		parts = append(parts, h.Trigger.ExecutionProfile)
	}
	name := strings.Join(parts, " - ")
	if name == "" {
		name = strings.TrimSpace(h.ProjectName)
	}
	switch {
	case name == "" && h.StartTime == "":
		return DefaultRunName + " - " + now.UTC().Format("2006-01-02 15:04:05")
	case name == "":
		name = DefaultRunName
	}
	if h.StartTime != "" {
		name += " - " + h.StartTime
	}
	return name
}

// RunEnvironment is the explicit environment, else "browser - url", else fallback.
func RunEnvironment(h report.Header, fallback string) string {
	if env := strings.TrimSpace(h.RunEnvironment); env != "" {
		return env
	}
	var parts []string
	if h.Environment.Browser != "" {
		parts = append(parts, h.Environment.Browser)
	}
	if h.Environment.URL != "" {
		parts = append(parts, h.Environment.URL)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " - ")
	}
	if fallback == "" {
		return DefaultEnvironment
	}
	return fallback
}

func RunDescription(h report.Header) string {
	if h.Description != "" {
		return h.Description
	}
	source := h.Source
	if source == "" {
		source = "external report"
	}
	desc := "Automated test execution imported from " + source
	if h.Trigger.TriggeredBy != "" {
		desc += "\nTriggered by: " + h.Trigger.TriggeredBy
	}
	return desc
}
