package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/f4hrenh9it/go-eztest/integration"
)

var errOutage = errors.New("connection refused")

// fakeRegistry is an in-memory Registry. fail holds method names that return errOutage.
type fakeRegistry struct {
	mu          sync.Mutex
	cases       []integration.TestCase
	hideCreated bool
	fail        map[string]bool
	calls       map[string]int
	runs        []integration.CreateTestRunPayload
	results     []integration.RecordResultPayload
	transitions []string
	seq         int
}

func newFakeRegistry(cases ...integration.TestCase) *fakeRegistry {
	return &fakeRegistry{cases: cases, fail: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeRegistry) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.fail[op] {
		return &integration.TransportError{Op: op, Err: errOutage}
	}
	return nil
}

func (f *fakeRegistry) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRegistry) GetTestCase(_ context.Context, id string) (*integration.TestCase, error) {
	if err := f.enter("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tc := range f.cases {
		if tc.ID == id {
			tc := tc
			return &tc, nil
		}
	}
	return nil, &integration.TransportError{Op: "get", StatusCode: 404, Err: integration.ErrNotFound}
}

func (f *fakeRegistry) SearchTestCases(_ context.Context, term string) ([]integration.TestCase, error) {
	if err := f.enter("search"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []integration.TestCase
	needle := strings.ToLower(term)
	for _, tc := range f.cases {
		if f.hideCreated && strings.HasPrefix(tc.ID, "new") {
			continue
		}
		if strings.Contains(strings.ToLower(tc.Title), needle) || strings.Contains(strings.ToLower(tc.TcID), needle) {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (f *fakeRegistry) CreateTestCase(_ context.Context, p integration.CreateTestCasePayload) (*integration.TestCase, error) {
	if err := f.enter("create_case"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	tc := integration.TestCase{
		ID:          fmt.Sprintf("new%d", f.seq),
		TcID:        fmt.Sprintf("TC-%d", 100+f.seq),
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		Status:      p.Status,
	}
	f.cases = append(f.cases, tc)
	return &tc, nil
}

func (f *fakeRegistry) CreateTestRun(_ context.Context, p integration.CreateTestRunPayload) (*integration.TestRun, error) {
	if err := f.enter("create_run"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, p)
	return &integration.TestRun{ID: fmt.Sprintf("run%d", len(f.runs)), Name: p.Name}, nil
}

func (f *fakeRegistry) StartTestRun(_ context.Context, id string) error {
	if err := f.enter("start"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, "start "+id)
	return nil
}

func (f *fakeRegistry) RecordResult(_ context.Context, runID string, p integration.RecordResultPayload) error {
	if err := f.enter("record"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail["record:"+p.TestCaseID] {
		return &integration.TransportError{Op: "record", StatusCode: 500}
	}
	f.results = append(f.results, p)
	return nil
}

func (f *fakeRegistry) CompleteTestRun(_ context.Context, id string) error {
	if err := f.enter("complete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, "complete "+id)
	return nil
}

func (f *fakeRegistry) DeleteLatestTestRun(_ context.Context, name string) (string, error) {
	if err := f.enter("delete_latest"); err != nil {
		return "", err
	}
	return "", nil
}
