package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/f4hrenh9it/go-eztest/config"
	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(Options{BaseURL: ts.URL + "/api", ProjectID: "proj1", APIKey: "secret", Logger: NewLogger("debug")})
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func TestClient_CreateTestRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/proj1/testruns", r.URL.String())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var p CreateTestRunPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "Nightly", p.Name)
		assert.Equal(t, "QA", p.Environment)
		assert.Equal(t, []string{"tc1", "tc2"}, p.TestCaseIDs)

		writeEnvelope(w, http.StatusCreated, TestRun{ID: "run1", Name: p.Name})
	})
	run, err := c.CreateTestRun(context.Background(), CreateTestRunPayload{
		Name:        "Nightly",
		Environment: "QA",
		TestCaseIDs: []string{"tc1", "tc2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "run1", run.ID)
}

func TestClient_GetTestCaseNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/testcases/missing", r.URL.String())
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Test case not found"}`))
	})
	tc, err := c.GetTestCase(context.Background(), "missing")
	assert.Nil(t, tc)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
}

func TestClient_UpdateTestCase(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/testcases/tc1", r.URL.String())
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p UpdateTestCasePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, UpdateTestCasePayload{Title: "Login works", Priority: "HIGH", Status: "ACTIVE"}, p)

		writeEnvelope(w, http.StatusOK, TestCase{ID: "tc1", TcID: "TC-1", Title: p.Title, Priority: p.Priority})
	})
	tc, err := c.UpdateTestCase(context.Background(), "tc1", UpdateTestCasePayload{Title: "Login works", Priority: "HIGH", Status: "ACTIVE"})
	require.NoError(t, err)
	assert.Equal(t, "tc1", tc.ID)
	assert.Equal(t, "Login works", tc.Title)
}

func TestClient_UpdateTestRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/testruns/run1", r.URL.String())
		assert.Equal(t, http.MethodPatch, r.Method)

		var raw map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, map[string]interface{}{"name": "Nightly #2", "environment": "STAGING"}, raw)

		writeEnvelope(w, http.StatusOK, TestRun{ID: "run1", Name: "Nightly #2", Environment: "STAGING"})
	})
	run, err := c.UpdateTestRun(context.Background(), "run1", UpdateTestRunPayload{Name: "Nightly #2", Environment: "STAGING"})
	require.NoError(t, err)
	assert.Equal(t, "Nightly #2", run.Name)
	assert.Equal(t, "STAGING", run.Environment)
}

func TestClient_IdsStayInOneSegment(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
	})
	ctx := context.Background()
	_, _ = c.GetTestCase(ctx, "../testruns/R1")
	_, _ = c.UpdateTestCase(ctx, "a/b", UpdateTestCasePayload{Title: "x"})
	_, _ = c.GetTestCaseHistory(ctx, "a b")
	_, _ = c.UpdateTestRun(ctx, "../R1", UpdateTestRunPayload{Name: "x"})
	_ = c.DeleteTestRun(ctx, "r/1")
	_ = c.StartTestRun(ctx, "r?1")
	_ = c.RecordResult(ctx, "r#1", RecordResultPayload{TestCaseID: "tc1", Status: "PASSED"})

	assert.Equal(t, []string{
		"GET /api/testcases/..%2Ftestruns%2FR1",
		"PUT /api/testcases/a%2Fb",
		"GET /api/testcases/a%20b/history",
		"PATCH /api/testruns/..%2FR1",
		"DELETE /api/testruns/r%2F1",
		"POST /api/testruns/r%3F1/start",
		"POST /api/testruns/r%231/results",
	}, paths)
}

func TestClient_ServerErrorCarriesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	err := c.StartTestRun(context.Background(), "run1")
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "start_test_run", te.Op)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, "upstream down", te.Body)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_SearchTestCases(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/proj1/testcases?limit=100&search=Login+flow", r.URL.String())
		writeEnvelope(w, http.StatusOK, []TestCase{{ID: "x1", TcID: "TC-1", Title: "Login flow"}})
	})
	res, err := c.SearchTestCases(context.Background(), "Login flow")
	require.NoError(t, err)
	assert.Equal(t, []TestCase{{ID: "x1", TcID: "TC-1", Title: "Login flow"}}, res)
}

func TestClient_RecordResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/testruns/run1/results", r.URL.String())
		var p RecordResultPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.NotNil(t, p.Duration)
		assert.Equal(t, int64(3), *p.Duration)
		assert.Equal(t, "FAILED", p.Status)
		assert.Equal(t, "boom", p.ErrorMessage)
		writeEnvelope(w, http.StatusCreated, p)
	})
	d := int64(3)
	err := c.RecordResult(context.Background(), "run1", RecordResultPayload{
		TestCaseID: "tc1", Status: "FAILED", Duration: &d, ErrorMessage: "boom",
	})
	assert.NoError(t, err)
}

func TestClient_HistoryOfUnknownCaseIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h, err := c.GetTestCaseHistory(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Empty(t, h)
}

func TestClient_ImportAutomationReportRejectsHTML(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/proj1/automation-report", r.URL.String())
		_, _ = w.Write([]byte("<html><body>login</body></html>"))
	})
	_, err := c.ImportAutomationReport(context.Background(), AutomationReport{
		TestRunName: "Nightly",
		Environment: "QA",
		Results:     []AutomationResult{{TestCaseID: "TC-1", Status: "PASSED"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected html response")
}

func TestClient_ImportAutomationReportEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.ImportAutomationReport(context.Background(), AutomationReport{TestRunName: "x", Environment: "y"})
	assert.True(t, failure.Is(err, failure.KindNoResults))
}

func TestClient_DeleteLatestTestRun(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	var deleted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/api/projects/proj1/testruns?search=Nightly", r.URL.String())
			writeEnvelope(w, http.StatusOK, []TestRun{
				{ID: "r1", Name: "Nightly", CreatedAt: older},
				{ID: "r2", Name: "Nightly", CreatedAt: newer},
				{ID: "r3", Name: "Nightly 2", CreatedAt: newer.Add(time.Hour)},
			})
		case http.MethodDelete:
			deleted = r.URL.Path
			writeEnvelope(w, http.StatusOK, nil)
		}
	})
	id, err := c.DeleteLatestTestRun(context.Background(), "Nightly")
	require.NoError(t, err)
	assert.Equal(t, "r2", id)
	assert.Equal(t, "/api/testruns/r2", deleted)
}

func TestClient_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()
	c, err := New(Options{BaseURL: ts.URL + "/api/", ProjectID: "p"})
	require.NoError(t, err)
	err = c.CompleteTestRun(context.Background(), "run1")
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindTransport))
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(Options{ProjectID: "p"})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ServerURL = "https://eztest.example.com/"
	cfg.APIKey = "k"
	cfg.ProjectID = "p"
	c, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://eztest.example.com/api/", c.BaseURL.String())
	assert.Equal(t, "Bearer k", c.authorization())
}

func TestBasicAuthFallback(t *testing.T) {
	c, err := New(Options{BaseURL: "http://localhost/api/", ProjectID: "p", User: "abc", Passwd: "123"})
	require.NoError(t, err)
	assert.Equal(t, "Basic YWJjOjEyMw==", c.authorization())
}
