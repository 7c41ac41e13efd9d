package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/f4hrenh9it/go-eztest/config"
	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/metrics"
	"go.uber.org/zap"
)

const searchLimit = 100

// ErrNotFound is returned by lookups answered with 404.
var ErrNotFound = errors.New("not found")

// TransportError describes a call that failed on the network or with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Options struct {
	BaseURL        string
	ProjectID      string
	APIKey         string
	User           string
	Passwd         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	HTTPClient     *http.Client
	Logger         *zap.SugaredLogger
}

type Client struct {
	BaseURL   *url.URL
	ProjectID string
	APIKey    string
	User      string
	Passwd    string

	httpClient *http.Client
	l          *zap.SugaredLogger
}

func New(o Options) (*Client, error) {
	if strings.TrimSpace(o.BaseURL) == "" {
		return nil, errors.New("base url cannot be empty")
	}
	if strings.TrimSpace(o.ProjectID) == "" {
		return nil, errors.New("project id cannot be empty")
	}
	base := o.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	client := o.HTTPClient
	if client == nil {
		client = newHTTPClient(o.ConnectTimeout, o.ReadTimeout)
	}
	return &Client{
		BaseURL:    u,
		ProjectID:  strings.TrimSpace(o.ProjectID),
		APIKey:     strings.TrimSpace(o.APIKey),
		User:       o.User,
		Passwd:     o.Passwd,
		httpClient: client,
		l:          OrNop(o.Logger),
	}, nil
}

// NewFromConfig validates c and builds a client for its project.
func NewFromConfig(c *config.Config, l *zap.SugaredLogger) (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return New(Options{
		BaseURL:        c.APIBaseURL(),
		ProjectID:      c.ProjectID,
		APIKey:         c.APIKey,
		ConnectTimeout: c.ConnectTimeout(),
		ReadTimeout:    c.ReadTimeout(),
		Logger:         l,
	})
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	if connect <= 0 {
		connect = config.DefaultConnectTimeoutMs * time.Millisecond
	}
	if read <= 0 {
		read = config.DefaultReadTimeoutMs * time.Millisecond
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: read,
			MaxIdleConnsPerHost:   4,
		},
	}
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) GetTestCase(ctx context.Context, id string) (*TestCase, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "testcases/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var env envelope[*TestCase]
	if err := c.do(req, "get_test_case", &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, c.fail(&TransportError{Op: "get_test_case", Err: ErrNotFound})
	}
	c.l.Debugw("test case found", "id", id)
	return env.Data, nil
}

func (c *Client) SearchTestCases(ctx context.Context, term string) ([]TestCase, error) {
	q := map[string]string{"search": term, "limit": strconv.Itoa(searchLimit)}
	req, err := c.newRequest(ctx, http.MethodGet, c.projectPath("testcases"), nil, q)
	if err != nil {
		return nil, err
	}
	var env envelope[[]TestCase]
	if err := c.do(req, "search_test_cases", &env); err != nil {
		return nil, err
	}
	c.l.Debugw("test case search", "term", term, "matches", len(env.Data))
	return env.Data, nil
}

func (c *Client) CreateTestCase(ctx context.Context, p CreateTestCasePayload) (*TestCase, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.projectPath("testcases"), p, nil)
	if err != nil {
		return nil, err
	}
	var env envelope[*TestCase]
	if err := c.do(req, "create_test_case", &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, c.fail(&TransportError{Op: "create_test_case", Err: errors.New("response carries no test case id")})
	}
	c.l.Debugw("test case created", "id", env.Data.ID, "title", p.Title)
	return env.Data, nil
}

func (c *Client) UpdateTestCase(ctx context.Context, id string, p UpdateTestCasePayload) (*TestCase, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "testcases/"+url.PathEscape(id), p, nil)
	if err != nil {
		return nil, err
	}
	var env envelope[*TestCase]
	if err := c.do(req, "update_test_case", &env); err != nil {
		return nil, err
	}
	c.l.Debugw("test case updated", "id", id)
	return env.Data, nil
}

// GetTestCaseHistory returns the executions recorded for a test case, oldest
// first as the registry returns them. An unknown test case has no history.
func (c *Client) GetTestCaseHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "testcases/"+url.PathEscape(id)+"/history", nil, nil)
	if err != nil {
		return nil, err
	}
	var env envelope[[]HistoryEntry]
	if err := c.do(req, "get_test_case_history", &env); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	c.l.Debugw("test case history", "id", id, "entries", len(env.Data))
	return env.Data, nil
}

func (c *Client) CreateTestRun(ctx context.Context, p CreateTestRunPayload) (*TestRun, error) {
	if p.TestCaseIDs == nil {
		p.TestCaseIDs = []string{}
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.projectPath("testruns"), p, nil)
	if err != nil {
		return nil, err
	}
	c.l.Debugw("creating test run", "project", c.ProjectID, "name", p.Name, "cases", len(p.TestCaseIDs))
	var env envelope[*TestRun]
	if err := c.do(req, "create_test_run", &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, c.fail(&TransportError{Op: "create_test_run", Err: errors.New("response carries no test run id")})
	}
	c.l.Infow("test run created", "id", env.Data.ID)
	return env.Data, nil
}

func (c *Client) SearchTestRuns(ctx context.Context, search string) ([]TestRun, error) {
	var q map[string]string
	if search != "" {
		q = map[string]string{"search": search}
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.projectPath("testruns"), nil, q)
	if err != nil {
		return nil, err
	}
	var env envelope[[]TestRun]
	if err := c.do(req, "search_test_runs", &env); err != nil {
		return nil, err
	}
	c.l.Debugw("test run search", "search", search, "matches", len(env.Data))
	return env.Data, nil
}

func (c *Client) UpdateTestRun(ctx context.Context, id string, p UpdateTestRunPayload) (*TestRun, error) {
	req, err := c.newRequest(ctx, http.MethodPatch, "testruns/"+url.PathEscape(id), p, nil)
	if err != nil {
		return nil, err
	}
	var env envelope[*TestRun]
	if err := c.do(req, "update_test_run", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) DeleteTestRun(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "testruns/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, "delete_test_run", nil); err != nil {
		return err
	}
	c.l.Infow("test run deleted", "id", id)
	return nil
}

func (c *Client) StartTestRun(ctx context.Context, id string) error {
	return c.transition(ctx, id, "start")
}

func (c *Client) CompleteTestRun(ctx context.Context, id string) error {
	return c.transition(ctx, id, "complete")
}

func (c *Client) transition(ctx context.Context, id, action string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "testruns/"+url.PathEscape(id)+"/"+action, nil, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, action+"_test_run", nil); err != nil {
		return err
	}
	c.l.Debugw("test run transition", "id", id, "action", action)
	return nil
}

func (c *Client) RecordResult(ctx context.Context, runID string, p RecordResultPayload) error {
	req, err := c.newRequest(ctx, http.MethodPost, "testruns/"+url.PathEscape(runID)+"/results", p, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, "record_result", nil); err != nil {
		return err
	}
	c.l.Debugw("result recorded", "run", runID, "testCase", p.TestCaseID, "status", p.Status)
	return nil
}

// ImportAutomationReport sends a whole minimal report in one call and lets the
// registry resolve and record every result.
func (c *Client) ImportAutomationReport(ctx context.Context, r AutomationReport) (*AutomationReportResponse, error) {
	if len(r.Results) == 0 {
		return nil, failure.New(failure.KindNoResults, "automation report has no results")
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.projectPath("automation-report"), r, nil)
	if err != nil {
		return nil, err
	}
	var env envelope[*AutomationReportResponse]
	if err := c.do(req, "import_automation_report", &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.TestRunID == "" {
		return nil, c.fail(&TransportError{Op: "import_automation_report", Err: errors.New("response carries no test run id")})
	}
	c.l.Infow("automation report imported", "run", env.Data.TestRunID,
		"processed", env.Data.ProcessedCount, "errors", env.Data.ErrorCount)
	return env.Data, nil
}

func (c *Client) projectPath(resource string) string {
	return "projects/" + url.PathEscape(c.ProjectID) + "/" + resource
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}, queryParams map[string]string) (*http.Request, error) {
	// path is already escaped; ids never introduce extra segments.
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := c.BaseURL.ResolveReference(rel)
	var buf io.ReadWriter
	if body != nil {
		buf = new(bytes.Buffer)
		err := json.NewEncoder(buf).Encode(body)
		if err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if queryParams != nil {
		q := req.URL.Query()
		for k, v := range queryParams {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, v interface{}) (err error) {
	defer func() { metrics.RecordRequest(op, err) }()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.l.Errorw("request failed", "op", op, "error", err)
		return c.fail(&TransportError{Op: op, Err: err})
	}
	defer resp.Body.Close()
	bb, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(&TransportError{Op: op, StatusCode: resp.StatusCode, Err: err})
	}
	if resp.StatusCode == http.StatusNotFound {
		c.l.Debugw("resource not found", "op", op, "url", req.URL.String())
		return c.fail(&TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(bb), Err: ErrNotFound})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.l.Errorw("request failed", "op", op, "status", resp.Status, "body", string(bb))
		return c.fail(&TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(bb)})
	}
	if v == nil || len(bytes.TrimSpace(bb)) == 0 {
		return nil
	}
	if bytes.HasPrefix(bytes.TrimSpace(bb), []byte("<")) {
		c.l.Errorw("registry answered with html instead of json", "op", op, "body", truncate(string(bb), 500))
		return c.fail(&TransportError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(bb), 500), Err: errors.New("unexpected html response")})
	}
	if err := json.Unmarshal(bb, v); err != nil {
		c.l.Errorw("cannot decode response", "op", op, "error", err)
		return c.fail(&TransportError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(bb), 500), Err: err})
	}
	return nil
}

func (c *Client) fail(te *TransportError) error {
	return failure.Wrap(te, failure.KindTransport, "registry")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
