// Package reconcile maps normalized report results onto registry test cases and
// drives a test run through its lifecycle.
package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/metrics"
	"github.com/f4hrenh9it/go-eztest/report"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Registry is the part of the registry client the engine depends on.
// *integration.Client satisfies it.
type Registry interface {
	GetTestCase(ctx context.Context, id string) (*integration.TestCase, error)
	SearchTestCases(ctx context.Context, term string) ([]integration.TestCase, error)
	CreateTestCase(ctx context.Context, p integration.CreateTestCasePayload) (*integration.TestCase, error)
	CreateTestRun(ctx context.Context, p integration.CreateTestRunPayload) (*integration.TestRun, error)
	StartTestRun(ctx context.Context, id string) error
	RecordResult(ctx context.Context, runID string, p integration.RecordResultPayload) error
	CompleteTestRun(ctx context.Context, id string) error
	DeleteLatestTestRun(ctx context.Context, name string) (string, error)
}

var _ Registry = (*integration.Client)(nil)

const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	StatusActive   = "ACTIVE"
)

// Resolution strategies, also used as metric labels.
const (
	ByRegistryID = "registry_id"
	ByDisplayID  = "display_id"
	ByTitle      = "title"
	ByCache      = "cache"
	Created      = "created"
	Unresolved   = "unresolved"
)

// Lookup carries the identity hints of one result. Empty fields are skipped.
type Lookup struct {
	RegistryID string
	DisplayID  string
	Title      string
}

// NewCase describes the test case created when a lookup misses.
type NewCase struct {
	Title       string
	Description string
	Priority    string
}

// Resolver finds registry test cases by exact identity, creating them on request.
type Resolver struct {
	reg   Registry
	l     *zap.SugaredLogger
	cache *lru.Cache
}

// NewResolver builds a resolver. cacheSize <= 0 disables the hit cache.
func NewResolver(reg Registry, l *zap.SugaredLogger, cacheSize int) (*Resolver, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	r := &Resolver{reg: reg, l: integration.OrNop(l)}
	if cacheSize > 0 {
		c, err := lru.New(cacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	return r, nil
}

// Resolve looks the case up by registry id, then by display id, then by
// title. String comparison is exact and case-insensitive; partial matches
// never count. Transport failures are logged and count as a miss.
func (r *Resolver) Resolve(ctx context.Context, q Lookup) (string, bool) {
	id, strategy := r.lookup(ctx, normalizeLookup(q))
	metrics.RecordResolution(strategy)
	return id, id != ""
}

// ResolveOrCreate resolves q and creates nc when nothing matches.
func (r *Resolver) ResolveOrCreate(ctx context.Context, q Lookup, nc NewCase) (string, bool) {
	q = normalizeLookup(q)
	if id, strategy := r.lookup(ctx, q); id != "" {
		metrics.RecordResolution(strategy)
		return id, true
	}
	title := strings.TrimSpace(nc.Title)
	if title == "" {
		title = q.Title
	}
	if title == "" {
		metrics.RecordResolution(Unresolved)
		return "", false
	}
	priority := nc.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	tc, err := r.reg.CreateTestCase(ctx, integration.CreateTestCasePayload{
		Title:       title,
		Description: nc.Description,
		Priority:    priority,
		Status:      StatusActive,
	})
	if err != nil || tc == nil || tc.ID == "" {
		r.l.Warnw("test case could not be created", "title", title, "err", err)
		metrics.RecordResolution(Unresolved)
		return "", false
	}
	r.l.Infow("test case created", "id", tc.ID, "tcId", tc.TcID, "title", title)
	r.remember("title", title, tc.ID)
	metrics.RecordResolution(Created)
	return tc.ID, true
}

func normalizeLookup(q Lookup) Lookup {
	return Lookup{
		RegistryID: strings.TrimSpace(q.RegistryID),
		DisplayID:  strings.TrimSpace(q.DisplayID),
		Title:      strings.TrimSpace(q.Title),
	}
}

func (r *Resolver) lookup(ctx context.Context, q Lookup) (string, string) {
	for _, k := range [][2]string{{"id", q.RegistryID}, {"display", q.DisplayID}, {"title", q.Title}} {
		if id, ok := r.cached(k[0], k[1]); ok {
			return id, ByCache
		}
	}

	if q.RegistryID != "" {
		tc, err := r.reg.GetTestCase(ctx, q.RegistryID)
		switch {
		case err == nil && tc != nil && tc.ID != "":
			r.l.Debugw("test case found by id", "id", tc.ID)
			r.remember("id", q.RegistryID, tc.ID)
			return tc.ID, ByRegistryID
		case err != nil && !errors.Is(err, integration.ErrNotFound):
			r.l.Warnw("test case lookup by id failed", "id", q.RegistryID, "err", err)
		}
	}

	if q.DisplayID != "" {
		if tc := r.search(ctx, q.DisplayID, func(tc integration.TestCase) string { return tc.TcID }); tc != nil {
			r.l.Debugw("test case found by display id", "tcId", q.DisplayID, "id", tc.ID)
			r.remember("display", q.DisplayID, tc.ID)
			return tc.ID, ByDisplayID
		}
	}

	if q.Title != "" {
		if tc := r.search(ctx, q.Title, func(tc integration.TestCase) string { return tc.Title }); tc != nil {
			r.l.Debugw("test case found by title", "title", q.Title, "id", tc.ID)
			r.remember("title", q.Title, tc.ID)
			return tc.ID, ByTitle
		}
	}
	return "", Unresolved
}

// search returns the first hit whose field equals term ignoring case.
func (r *Resolver) search(ctx context.Context, term string, field func(integration.TestCase) string) *integration.TestCase {
	found, err := r.reg.SearchTestCases(ctx, term)
	if err != nil {
		r.l.Warnw("test case search failed", "term", term, "err", err)
		return nil
	}
	for i := range found {
		if found[i].ID != "" && strings.EqualFold(field(found[i]), term) {
			return &found[i]
		}
	}
	return nil
}

func (r *Resolver) cached(kind, key string) (string, bool) {
	if r.cache == nil || key == "" {
		return "", false
	}
	v, ok := r.cache.Get(kind + ":" + strings.ToLower(key))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (r *Resolver) remember(kind, key, id string) {
	if r.cache == nil || key == "" {
		return
	}
	r.cache.Add(kind+":"+strings.ToLower(key), id)
}

// LookupFor derives identity hints from a result. The report-native id is
// tried both as a registry id and as a display id.
func LookupFor(res report.Result) Lookup {
	return Lookup{RegistryID: res.LocalID, DisplayID: res.LocalID, Title: CaseTitle(res)}
}

// NewCaseFor describes the case to create for an unmatched result.
func NewCaseFor(res report.Result, env report.Environment) NewCase {
	return NewCase{
		Title:       CaseTitle(res),
		Description: CaseDescription(res, env),
		Priority:    CasePriority(res.Tags),
	}
}

// CaseTitle is "localId - name", or just the name when there is no distinct local id.
func CaseTitle(res report.Result) string {
	if res.LocalID != "" && !strings.EqualFold(res.LocalID, res.Name) {
		return res.LocalID + " - " + res.Name
	}
	return res.Name
}

func CaseDescription(res report.Result, env report.Environment) string {
	var lines []string
	if res.ClassName != "" {
		lines = append(lines, "Class: "+res.ClassName)
	}
	if len(res.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(res.Tags, ", "))
	}
	if e := describeEnvironment(env); e != "" {
		lines = append(lines, "Environment: "+e)
	}
	return strings.Join(lines, "\n")
}

func describeEnvironment(env report.Environment) string {
	switch {
	case env.Browser != "" && env.OS != "":
		return env.Browser + " on " + env.OS
	case env.Browser != "":
		return env.Browser
	default:
		return env.OS
	}
}

// CasePriority is HIGH when any tag is "critical" or "high".
func CasePriority(tags []string) string {
	for _, t := range tags {
		if strings.EqualFold(t, "critical") || strings.EqualFold(t, "high") {
			return PriorityHigh
		}
	}
	return PriorityMedium
}
