package report

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/pkg/errors"
)

type richReport struct {
	ReportMeta *struct {
		ProjectName  string `json:"project_name"`
		GeneratedAt  string `json:"generated_at"`
		ReportSource string `json:"report_source"`
		Environment  *struct {
			OS             string `json:"os"`
			JavaVersion    string `json:"java_version"`
			Browser        string `json:"browser"`
			EnvironmentURL string `json:"environment_url"`
		} `json:"environment"`
		UserConfig *struct {
			TriggeredBy      string `json:"triggered_by"`
			BuildID          string `json:"build_id"`
			ExecutionProfile string `json:"execution_profile"`
		} `json:"user_config"`
	} `json:"report_meta"`
	Summary *struct {
		TotalTests      int      `json:"total_tests"`
		Passed          int      `json:"passed"`
		Failed          int      `json:"failed"`
		Skipped         int      `json:"skipped"`
		TotalDurationMs *float64 `json:"total_duration_ms"`
		StartTime       string   `json:"start_time"`
		EndTime         string   `json:"end_time"`
	} `json:"summary"`
	Results []richResult `json:"results"`
}

type richResult struct {
	TestID       string   `json:"test_id"`
	TestName     string   `json:"test_name"`
	ClassName    string   `json:"class_name"`
	Status       string   `json:"status"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	DurationMs   *float64 `json:"duration_ms"`
	Tags         []string `json:"tags"`
	ErrorMessage string   `json:"error_message"`
	StackTrace   string   `json:"stack_trace"`
}

// isRichJSON accepts any object with a results array unless it carries the
// minimal schema's camelCase keys and none of the rich markers (report_meta,
// summary, snake_case result keys).
func isRichJSON(s *source) bool {
	obj := s.object()
	if obj == nil || !isArray(obj["results"]) {
		return false
	}
	if hasKey(obj, "report_meta") || hasKey(obj, "summary") || resultKeys(obj, "test_name", "test_id") {
		return true
	}
	return !isMinimalJSON(s)
}

func (p *Parser) parseRichJSON(s *source) (*Report, error) {
	var rr richReport
	if err := json.Unmarshal(s.head, &rr); err != nil {
		return nil, failure.Wrap(err, failure.KindFormatUnrecognized, "decode rich json report")
	}
	r := &Report{}
	h := &r.Header
	if m := rr.ReportMeta; m != nil {
		h.ProjectName = m.ProjectName
		h.GeneratedAt = m.GeneratedAt
		h.Source = m.ReportSource
		if e := m.Environment; e != nil {
			h.Environment = Environment{OS: e.OS, Browser: e.Browser, URL: e.EnvironmentURL, Runtime: e.JavaVersion}
		}
		if u := m.UserConfig; u != nil {
			h.Trigger = Trigger{BuildID: u.BuildID, TriggeredBy: u.TriggeredBy, ExecutionProfile: u.ExecutionProfile}
		}
	}
	if sum := rr.Summary; sum != nil {
		h.StartTime = sum.StartTime
		h.EndTime = sum.EndTime
	}
	for _, res := range rr.Results {
		nr := Result{
			LocalID:      res.TestID,
			Name:         res.TestName,
			ClassName:    res.ClassName,
			Status:       p.status(res.Status),
			Tags:         res.Tags,
			ErrorMessage: res.ErrorMessage,
			StackTrace:   res.StackTrace,
		}
		if res.DurationMs != nil {
			nr.SetDuration(time.Duration(*res.DurationMs * float64(time.Millisecond)))
		}
		r.Results = p.keep(r.Results, nr)
	}
	return r, nil
}

type minimalReport struct {
	TestRunName string          `json:"testRunName"`
	Environment string          `json:"environment"`
	Description string          `json:"description"`
	Results     []minimalResult `json:"results"`
}

type minimalResult struct {
	TestCaseID   string   `json:"testCaseId"`
	Status       string   `json:"status"`
	Duration     *float64 `json:"duration"`
	Comment      string   `json:"comment"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   string   `json:"stackTrace"`
}

func isMinimalJSON(s *source) bool {
	obj := s.object()
	if obj == nil {
		return false
	}
	return hasKey(obj, "testRunName") || hasKey(obj, "environment") || resultKeys(obj, "testCaseId")
}

// parseMinimalJSON requires testRunName and environment because the one-call
// import endpoint rejects reports without them.
func (p *Parser) parseMinimalJSON(s *source) (*Report, error) {
	var mr minimalReport
	if err := json.Unmarshal(s.head, &mr); err != nil {
		return nil, failure.Wrap(err, failure.KindFormatUnrecognized, "decode automation report")
	}
	var missing []string
	if strings.TrimSpace(mr.TestRunName) == "" {
		missing = append(missing, "testRunName")
	}
	if strings.TrimSpace(mr.Environment) == "" {
		missing = append(missing, "environment")
	}
	if len(missing) > 0 {
		return nil, failure.Wrap(
			errors.Errorf("missing %s", strings.Join(missing, ", ")),
			failure.KindMissingRequiredField,
			"automation report",
		)
	}
	r := &Report{Header: Header{
		Source:         "automation report",
		GeneratedAt:    p.timestamp(),
		RunName:        strings.TrimSpace(mr.TestRunName),
		RunEnvironment: strings.TrimSpace(mr.Environment),
		Description:    mr.Description,
	}}
	for _, res := range mr.Results {
		nr := Result{
			LocalID:      res.TestCaseID,
			Name:         res.TestCaseID,
			Status:       p.status(res.Status),
			Comment:      res.Comment,
			ErrorMessage: res.ErrorMessage,
			StackTrace:   res.StackTrace,
		}
		if res.Duration != nil {
			nr.SetDuration(time.Duration(*res.Duration * float64(time.Second)))
		}
		r.Results = p.keep(r.Results, nr)
	}
	return r, nil
}
