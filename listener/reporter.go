package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/metrics"
	"github.com/f4hrenh9it/go-eztest/reconcile"
	"github.com/f4hrenh9it/go-eztest/report"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultComment = "Automated test execution reported by the test listener"

// Descriptor is the registry metadata a test runner attaches to one test.
type Descriptor struct {
	// Key identifies the test within the suite, e.g. "pkg.Class#method".
	Key string
	// ProjectID overrides the reporter's default project.
	ProjectID string
	// TestCaseID is a registry id or display id of an existing case.
	TestCaseID  string
	Title       string
	Description string
	Priority    string
	ClassName   string
	Method      string
}

func (d Descriptor) key() string {
	if d.Key != "" {
		return d.Key
	}
	return d.ClassName + "#" + d.Method
}

func (d Descriptor) title() string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	return strings.TrimSpace(d.Method)
}

// Outcome is how a test finished.
type Outcome struct {
	Status       report.Status
	ErrorMessage string
	StackTrace   string
	Comment      string
}

type Options struct {
	SuiteName      string
	Environment    string
	DefaultProject string
	Logger         *zap.SugaredLogger
	Clock          func() time.Time
}

type Stats struct {
	Recorded   int64
	Failed     int64
	Skipped    int64
	Duplicates int64
}

// Reporter records test outcomes as they happen. All methods are safe for
// concurrent use by parallel test workers.
type Reporter struct {
	sessions *Sessions
	o        Options
	l        *zap.SugaredLogger

	runName string

	started   sync.Map // key -> time.Time
	caseIDs   sync.Map // project/key -> registry id
	processed sync.Map // key -> struct{}

	recorded   atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	duplicates atomic.Int64
}

func NewReporter(s *Sessions, o Options) (*Reporter, error) {
	if s == nil {
		return nil, errors.New("sessions are required")
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Environment == "" {
		o.Environment = reconcile.DefaultEnvironment
	}
	suite := o.SuiteName
	if suite == "" {
		suite = "suite-" + uuid.NewString()[:8]
	}
	return &Reporter{
		sessions: s,
		o:        o,
		l:        integration.OrNop(o.Logger).With("suite", suite),
		runName:  fmt.Sprintf("%s - %s - %s", reconcile.DefaultRunName, suite, o.Clock().UTC().Format("2006-01-02 15:04:05")),
	}, nil
}

// Begin opens the default project's run eagerly. Without a default project
// runs are opened by the first result of each project.
func (r *Reporter) Begin(ctx context.Context) error {
	if r.o.DefaultProject == "" {
		return nil
	}
	sess, err := r.sessions.Get(r.o.DefaultProject)
	if err != nil {
		return err
	}
	_, err = sess.ensureRun(ctx, r.runName, r.o.Environment, r.l)
	return err
}

// RunName is the name every project's run of this suite gets.
func (r *Reporter) RunName() string {
	return r.runName
}

func (r *Reporter) TestStarted(d Descriptor) {
	r.started.Store(d.key(), r.o.Clock())
}

// TestFinished records the outcome of d. A test is recorded at most once;
// later reports for the same key are ignored. Tests without any case identity
// are skipped.
func (r *Reporter) TestFinished(ctx context.Context, d Descriptor, out Outcome) error {
	key := d.key()
	if _, dup := r.processed.LoadOrStore(key, struct{}{}); dup {
		r.duplicates.Inc()
		r.l.Debugw("test already reported", "test", key)
		return nil
	}
	if d.TestCaseID == "" && d.title() == "" {
		r.skipped.Inc()
		r.l.Debugw("test has no case identity, not reported", "test", key)
		return nil
	}
	pid := d.ProjectID
	if pid == "" {
		pid = r.o.DefaultProject
	}
	sess, err := r.sessions.Get(pid)
	if err != nil {
		r.skipped.Inc()
		return err
	}
	runID, err := sess.ensureRun(ctx, r.runName, r.o.Environment, r.l)
	if err != nil {
		r.skipped.Inc()
		r.l.Warnw("test run unavailable, result not recorded", "project", pid, "test", key, "err", err)
		return err
	}

	caseID, ok := r.caseID(ctx, sess, d)
	if !ok {
		r.skipped.Inc()
		r.l.Warnw("could not determine test case", "project", pid, "test", key)
		return nil
	}

	p := integration.RecordResultPayload{
		TestCaseID: caseID,
		Status:     string(out.Status),
		Comment:    out.Comment,
	}
	if p.Status == "" {
		p.Status = string(report.StatusSkipped)
	}
	if p.Comment == "" {
		p.Comment = defaultComment
	}
	if v, ok := r.started.LoadAndDelete(key); ok {
		secs := report.Seconds(r.o.Clock().Sub(v.(time.Time)))
		p.Duration = &secs
	}
	if out.Status == report.StatusFailed {
		p.ErrorMessage = report.CleanText(out.ErrorMessage)
		p.StackTrace = report.CleanText(out.StackTrace)
	}
	err = sess.client.RecordResult(ctx, runID, p)
	metrics.RecordResult(p.Status, err)
	if err != nil {
		r.failed.Inc()
		r.l.Warnw("result not recorded", "project", pid, "test", key, "err", err)
		return err
	}
	r.recorded.Inc()
	return nil
}

func (r *Reporter) caseID(ctx context.Context, sess *Session, d Descriptor) (string, bool) {
	memo := sess.ProjectID + "/" + d.key()
	if v, ok := r.caseIDs.Load(memo); ok {
		return v.(string), true
	}
	title := d.title()
	priority := d.Priority
	if priority == "" {
		priority = reconcile.PriorityMedium
	}
	id, ok := sess.resolver.ResolveOrCreate(ctx,
		reconcile.Lookup{RegistryID: d.TestCaseID, DisplayID: d.TestCaseID, Title: title},
		reconcile.NewCase{Title: title, Description: d.Description, Priority: priority},
	)
	if ok {
		r.caseIDs.Store(memo, id)
	}
	return id, ok
}

// End completes every project's run and closes all sessions. Completion
// failures are aggregated; every session is closed regardless.
func (r *Reporter) End(ctx context.Context) error {
	var err error
	r.sessions.Range(func(s *Session) bool {
		if cerr := s.complete(ctx); cerr != nil {
			r.l.Errorw("test run completion failed", "project", s.ProjectID, "run", s.RunID(), "err", cerr)
			err = multierr.Append(err, fmt.Errorf("complete %s: %w", s.ProjectID, cerr))
		} else if s.RunID() != "" {
			r.l.Infow("test run completed", "project", s.ProjectID, "run", s.RunID())
		}
		return true
	})
	r.sessions.CloseAll()
	st := r.Stats()
	r.l.Infow("suite reported", "recorded", st.Recorded, "failed", st.Failed, "skipped", st.Skipped, "duplicates", st.Duplicates)
	return err
}

func (r *Reporter) Stats() Stats {
	return Stats{
		Recorded:   r.recorded.Load(),
		Failed:     r.failed.Load(),
		Skipped:    r.skipped.Load(),
		Duplicates: r.duplicates.Load(),
	}
}
