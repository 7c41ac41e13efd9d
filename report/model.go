package report

import (
	"strings"
	"time"
)

// Status is the canonical execution outcome of a test.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
	StatusBlocked Status = "BLOCKED"
	StatusRetest  Status = "RETEST"
)

// Dialect names one report layout the detectors recognize.
type Dialect string

const (
	DialectRichJSON    Dialect = "json_rich"
	DialectMinimalJSON Dialect = "json_minimal"
	DialectGoTestJSON  Dialect = "json_gotest"
	DialectExtentHTML  Dialect = "html_extent"
	DialectTestNGHTML  Dialect = "html_testng"
	DialectGenericHTML Dialect = "html_generic"
)

type Environment struct {
	OS      string
	Browser string
	URL     string
	Runtime string
}

type Trigger struct {
	BuildID          string
	TriggeredBy      string
	ExecutionProfile string
}

// Header is the provenance of a report. Parsers fill it once; nothing mutates it later.
type Header struct {
	Source      string
	ProjectName string
	GeneratedAt string
	StartTime   string
	EndTime     string
	Environment Environment
	Trigger     Trigger

	// Set only by dialects that name their run explicitly.
	RunName        string
	RunEnvironment string
	Description    string
}

// Result is one normalized test execution.
type Result struct {
	LocalID      string
	Name         string
	ClassName    string
	Status       Status
	Duration     time.Duration
	HasDuration  bool
	Tags         []string
	Comment      string
	ErrorMessage string
	StackTrace   string
}

// DurationSeconds floors the duration to whole seconds.
func (r Result) DurationSeconds() (int64, bool) {
	if !r.HasDuration {
		return 0, false
	}
	return Seconds(r.Duration), true
}

func (r *Result) SetDuration(d time.Duration) {
	if d < 0 {
		return
	}
	r.Duration = d
	r.HasDuration = true
}

// tidy enforces the Result invariants: trimmed identity fields, tags as an
// ordered set, and failure details only on failed results.
func (r *Result) tidy() {
	r.LocalID = strings.TrimSpace(r.LocalID)
	r.Name = strings.TrimSpace(r.Name)
	r.ClassName = strings.TrimSpace(r.ClassName)
	r.Comment = strings.TrimSpace(r.Comment)
	if r.Status == "" {
		r.Status = StatusSkipped
	}
	r.Tags = uniqueTags(r.Tags)
	if r.Status == StatusFailed {
		r.ErrorMessage = CleanText(r.ErrorMessage)
		r.StackTrace = CleanText(r.StackTrace)
	} else {
		r.ErrorMessage = ""
		r.StackTrace = ""
	}
}

func uniqueTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

type Report struct {
	Dialect Dialect
	Header  Header
	Results []Result
}

type Summary struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Other    int
	Duration time.Duration
}

func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Other++
		}
		if res.HasDuration {
			s.Duration += res.Duration
		}
	}
	return s
}
