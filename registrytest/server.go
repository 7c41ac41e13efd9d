// Package registrytest runs an in-memory registry behind the same REST surface
// the integration client talks to, with per-operation fault injection.
package registrytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/gorilla/mux"
)

var displayIDPattern = regexp.MustCompile(`(?i)^TC-\d+$`)

type Run struct {
	integration.TestRun
	ProjectID   string
	Description string
	TestCaseIDs []string
	Results     []integration.RecordResultPayload
}

type storedCase struct {
	integration.TestCase
	ProjectID string
}

type Server struct {
	*httptest.Server

	// APIKey, when set, is required as a Bearer token on every call.
	APIKey string
	// HideCreated keeps created test cases out of search results.
	HideCreated bool

	mu      sync.Mutex
	cases   []*storedCase
	created map[string]bool
	runs    []*Run
	history map[string][]integration.HistoryEntry
	calls   map[string]int
	faults  map[string]int
	seq     int
	clock   time.Time
}

func New() *Server {
	s := &Server{
		created: map[string]bool{},
		history: map[string][]integration.HistoryEntry{},
		calls:   map[string]int{},
		faults:  map[string]int{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// BaseURL is the API root a client should be configured with.
func (s *Server) BaseURL() string {
	return s.Server.URL + "/api/"
}

// Client builds an integration client for projectID against this server.
func (s *Server) Client(projectID string) *integration.Client {
	c, err := integration.New(integration.Options{
		BaseURL:   s.BaseURL(),
		ProjectID: projectID,
		APIKey:    s.APIKey,
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (s *Server) AddTestCase(projectID, tcID, title string) integration.TestCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc := &storedCase{TestCase: integration.TestCase{ID: s.nextID("tc"), TcID: tcID, Title: title}, ProjectID: projectID}
	s.cases = append(s.cases, tc)
	return tc.TestCase
}

// Fail makes every call of op answer with status until Heal is called.
func (s *Server) Fail(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = status
}

func (s *Server) Heal(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, op)
}

func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) TestCases() []integration.TestCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]integration.TestCase, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c.TestCase)
	}
	return out
}

func (s *Server) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		cp.TestCaseIDs = append([]string(nil), r.TestCaseIDs...)
		cp.Results = append([]integration.RecordResultPayload(nil), r.Results...)
		out = append(out, cp)
	}
	return out
}

func (s *Server) Run(id string) (Run, bool) {
	for _, r := range s.Runs() {
		if r.ID == id {
			return r, true
		}
	}
	return Run{}, false
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%04d", prefix, s.seq)
}

func (s *Server) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/testcases/{id}", s.op("get_test_case", s.getTestCase)).Methods(http.MethodGet)
	api.HandleFunc("/testcases/{id}", s.op("update_test_case", s.updateTestCase)).Methods(http.MethodPut)
	api.HandleFunc("/testcases/{id}/history", s.op("get_test_case_history", s.getHistory)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{pid}/testcases", s.op("search_test_cases", s.searchTestCases)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{pid}/testcases", s.op("create_test_case", s.createTestCase)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{pid}/testruns", s.op("search_test_runs", s.searchTestRuns)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{pid}/testruns", s.op("create_test_run", s.createTestRun)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{pid}/automation-report", s.op("import_automation_report", s.importReport)).Methods(http.MethodPost)
	api.HandleFunc("/testruns/{id}", s.op("update_test_run", s.updateTestRun)).Methods(http.MethodPatch)
	api.HandleFunc("/testruns/{id}", s.op("delete_test_run", s.deleteTestRun)).Methods(http.MethodDelete)
	api.HandleFunc("/testruns/{id}/start", s.op("start_test_run", s.transition("IN_PROGRESS"))).Methods(http.MethodPost)
	api.HandleFunc("/testruns/{id}/complete", s.op("complete_test_run", s.transition("COMPLETED"))).Methods(http.MethodPost)
	api.HandleFunc("/testruns/{id}/results", s.op("record_result", s.recordResult)).Methods(http.MethodPost)
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.APIKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// op counts the call, applies an injected fault, and otherwise runs h under the lock.
func (s *Server) op(name string, h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls[name]++
		if status, ok := s.faults[name]; ok {
			writeError(w, status, "injected failure")
			return
		}
		h(w, r)
	}
}

func (s *Server) findCase(id string) *storedCase {
	for _, c := range s.cases {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Server) findRun(id string) *Run {
	for _, r := range s.runs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *Server) getTestCase(w http.ResponseWriter, r *http.Request) {
	c := s.findCase(mux.Vars(r)["id"])
	if c == nil {
		writeError(w, http.StatusNotFound, "test case not found")
		return
	}
	writeData(w, http.StatusOK, c.TestCase)
}

func (s *Server) updateTestCase(w http.ResponseWriter, r *http.Request) {
	c := s.findCase(mux.Vars(r)["id"])
	if c == nil {
		writeError(w, http.StatusNotFound, "test case not found")
		return
	}
	var p integration.UpdateTestCasePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Title != "" {
		c.Title = p.Title
	}
	if p.Description != "" {
		c.Description = p.Description
	}
	if p.Priority != "" {
		c.Priority = p.Priority
	}
	if p.Status != "" {
		c.Status = p.Status
	}
	writeData(w, http.StatusOK, c.TestCase)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.findCase(id) == nil {
		writeError(w, http.StatusNotFound, "test case not found")
		return
	}
	entries := s.history[id]
	if entries == nil {
		entries = []integration.HistoryEntry{}
	}
	writeData(w, http.StatusOK, entries)
}

func (s *Server) searchTestCases(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]
	term := strings.ToLower(r.URL.Query().Get("search"))
	out := []integration.TestCase{}
	for _, c := range s.cases {
		if c.ProjectID != pid || (s.HideCreated && s.created[c.ID]) {
			continue
		}
		if term == "" || strings.Contains(strings.ToLower(c.Title), term) || strings.Contains(strings.ToLower(c.TcID), term) {
			out = append(out, c.TestCase)
		}
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) createTestCase(w http.ResponseWriter, r *http.Request) {
	var p integration.CreateTestCasePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	id := s.nextID("tc")
	c := &storedCase{
		TestCase: integration.TestCase{
			ID:          id,
			TcID:        fmt.Sprintf("TC-%d", len(s.cases)+1),
			Title:       p.Title,
			Description: p.Description,
			Priority:    p.Priority,
			Status:      p.Status,
		},
		ProjectID: mux.Vars(r)["pid"],
	}
	s.cases = append(s.cases, c)
	s.created[id] = true
	writeData(w, http.StatusCreated, c.TestCase)
}

func (s *Server) searchTestRuns(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]
	term := strings.ToLower(r.URL.Query().Get("search"))
	out := []integration.TestRun{}
	for _, run := range s.runs {
		if run.ProjectID == pid && strings.Contains(strings.ToLower(run.Name), term) {
			out = append(out, run.TestRun)
		}
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) createTestRun(w http.ResponseWriter, r *http.Request) {
	var p integration.CreateTestRunPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	run := &Run{
		TestRun: integration.TestRun{
			ID:          s.nextID("run"),
			Name:        p.Name,
			Status:      "PLANNED",
			Environment: p.Environment,
			CreatedAt:   s.tick(),
		},
		ProjectID:   mux.Vars(r)["pid"],
		Description: p.Description,
		TestCaseIDs: p.TestCaseIDs,
	}
	s.runs = append(s.runs, run)
	writeData(w, http.StatusCreated, run.TestRun)
}

func (s *Server) updateTestRun(w http.ResponseWriter, r *http.Request) {
	run := s.findRun(mux.Vars(r)["id"])
	if run == nil {
		writeError(w, http.StatusNotFound, "test run not found")
		return
	}
	var p integration.UpdateTestRunPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Name != "" {
		run.Name = p.Name
	}
	if p.Description != "" {
		run.Description = p.Description
	}
	if p.Environment != "" {
		run.Environment = p.Environment
	}
	if p.Status != "" {
		run.Status = p.Status
	}
	writeData(w, http.StatusOK, run.TestRun)
}

func (s *Server) deleteTestRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for i, run := range s.runs {
		if run.ID == id {
			s.runs = append(s.runs[:i], s.runs[i+1:]...)
			writeData(w, http.StatusOK, map[string]string{"id": id})
			return
		}
	}
	writeError(w, http.StatusNotFound, "test run not found")
}

func (s *Server) transition(status string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		run := s.findRun(mux.Vars(r)["id"])
		if run == nil {
			writeError(w, http.StatusNotFound, "test run not found")
			return
		}
		if run.Status == "COMPLETED" {
			writeError(w, http.StatusConflict, "test run already completed")
			return
		}
		run.Status = status
		if status == "IN_PROGRESS" {
			run.StartedAt = s.tick().Format(time.RFC3339)
		} else {
			run.CompletedAt = s.tick().Format(time.RFC3339)
		}
		writeData(w, http.StatusOK, run.TestRun)
	}
}

func (s *Server) recordResult(w http.ResponseWriter, r *http.Request) {
	run := s.findRun(mux.Vars(r)["id"])
	if run == nil {
		writeError(w, http.StatusNotFound, "test run not found")
		return
	}
	var p integration.RecordResultPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.TestCaseID == "" {
		writeError(w, http.StatusBadRequest, "testCaseId is required")
		return
	}
	s.record(run, p)
	writeData(w, http.StatusCreated, p)
}

func (s *Server) record(run *Run, p integration.RecordResultPayload) {
	run.Results = append(run.Results, p)
	s.history[p.TestCaseID] = append(s.history[p.TestCaseID], integration.HistoryEntry{
		ID:           s.nextID("res"),
		TestCaseID:   p.TestCaseID,
		TestRunID:    run.ID,
		Status:       p.Status,
		Duration:     p.Duration,
		Comment:      p.Comment,
		ErrorMessage: p.ErrorMessage,
		StackTrace:   p.StackTrace,
		ExecutedAt:   s.tick(),
		TestRun:      &integration.HistoryRun{ID: run.ID, Name: run.Name, Environment: run.Environment, Status: run.Status},
	})
}

func (s *Server) importReport(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]
	var rep integration.AutomationReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rep.TestRunName == "" || rep.Environment == "" || len(rep.Results) == 0 {
		writeError(w, http.StatusBadRequest, "testRunName, environment and results are required")
		return
	}
	run := &Run{
		TestRun: integration.TestRun{
			ID:          s.nextID("run"),
			Name:        rep.TestRunName,
			Status:      "COMPLETED",
			Environment: rep.Environment,
			CreatedAt:   s.tick(),
		},
		ProjectID:   pid,
		Description: rep.Description,
	}
	s.runs = append(s.runs, run)
	resp := integration.AutomationReportResponse{
		TestRunID:   run.ID,
		TestRunName: run.Name,
		Environment: run.Environment,
		Results:     []integration.ProcessedResult{},
		Errors:      []integration.ResultError{},
	}
	for _, res := range rep.Results {
		c := s.lookupForImport(pid, res.TestCaseID)
		if c == nil {
			resp.Errors = append(resp.Errors, integration.ResultError{TestCaseID: res.TestCaseID, Error: "Test case not found: " + res.TestCaseID})
			continue
		}
		p := integration.RecordResultPayload{
			TestCaseID:   c.ID,
			Status:       res.Status,
			Duration:     res.Duration,
			Comment:      res.Comment,
			ErrorMessage: res.ErrorMessage,
			StackTrace:   res.StackTrace,
		}
		run.TestCaseIDs = append(run.TestCaseIDs, c.ID)
		s.record(run, p)
		resp.Results = append(resp.Results, integration.ProcessedResult{TestCaseID: res.TestCaseID, Status: res.Status, ResultID: s.nextID("res")})
	}
	resp.ProcessedCount = len(resp.Results)
	resp.ErrorCount = len(resp.Errors)
	writeData(w, http.StatusCreated, resp)
}

func (s *Server) lookupForImport(pid, ref string) *storedCase {
	for _, c := range s.cases {
		if c.ProjectID != pid {
			continue
		}
		if displayIDPattern.MatchString(ref) && strings.EqualFold(c.TcID, ref) {
			return c
		}
		if c.ID == ref {
			return c
		}
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": msg, "statusCode": status})
}
