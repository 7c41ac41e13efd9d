// Package listener reports tests to the registry as a test runner executes
// them, holding one lazily created session per registry project.
package listener

import (
	"context"
	"errors"
	"sync"

	"github.com/f4hrenh9it/go-eztest/config"
	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/reconcile"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Client is a registry client that owns network resources.
type Client interface {
	reconcile.Registry
	Close()
}

var _ Client = (*integration.Client)(nil)

// Factory builds the client for one project.
type Factory func(projectID string) (Client, error)

// FromConfig returns a Factory that scopes cfg to each requested project.
func FromConfig(cfg *config.Config, l *zap.SugaredLogger) Factory {
	return func(projectID string) (Client, error) {
		return integration.NewFromConfig(cfg.ForProject(projectID), l)
	}
}

// Session is the per-project state of a suite: its client, resolver and run.
type Session struct {
	ProjectID string

	client   Client
	resolver *reconcile.Resolver

	mu    sync.Mutex
	runID string
	state reconcile.RunState
}

func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func (s *Session) State() reconcile.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ensureRun creates and starts the project's run on first use. A failed
// create is retried by the next caller; a failed start is only logged.
func (s *Session) ensureRun(ctx context.Context, name, env string, l *zap.SugaredLogger) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != "" {
		return s.runID, nil
	}
	run, err := s.client.CreateTestRun(ctx, integration.CreateTestRunPayload{
		Name:        name,
		Description: "Automated test execution reported by the test listener",
		Environment: env,
	})
	if err != nil {
		return "", err
	}
	s.runID = run.ID
	s.state, _ = s.state.Advance(reconcile.StateCreated)
	if err := s.client.StartTestRun(ctx, run.ID); err != nil {
		l.Warnw("test run start failed", "project", s.ProjectID, "run", run.ID, "err", err)
	} else {
		s.state, _ = s.state.Advance(reconcile.StateStarted)
	}
	l.Infow("test run created and started", "project", s.ProjectID, "run", run.ID, "name", name)
	return s.runID, nil
}

func (s *Session) complete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID == "" || s.state == reconcile.StateCompleted {
		return nil
	}
	if err := s.client.CompleteTestRun(ctx, s.runID); err != nil {
		return err
	}
	s.state, _ = s.state.Advance(reconcile.StateCompleted)
	return nil
}

// Sessions is a concurrent registry of sessions keyed by project id. Each
// session is created at most once, even under concurrent first use.
type Sessions struct {
	factory   Factory
	cacheSize int
	l         *zap.SugaredLogger

	m     sync.Map
	group singleflight.Group
}

func NewSessions(f Factory, l *zap.SugaredLogger, cacheSize int) (*Sessions, error) {
	if f == nil {
		return nil, errors.New("client factory is required")
	}
	return &Sessions{factory: f, cacheSize: cacheSize, l: integration.OrNop(l)}, nil
}

func (s *Sessions) Get(projectID string) (*Session, error) {
	if projectID == "" {
		return nil, errors.New("project id is required")
	}
	if v, ok := s.m.Load(projectID); ok {
		return v.(*Session), nil
	}
	v, err, _ := s.group.Do(projectID, func() (interface{}, error) {
		if v, ok := s.m.Load(projectID); ok {
			return v, nil
		}
		c, err := s.factory(projectID)
		if err != nil {
			return nil, err
		}
		resolver, err := reconcile.NewResolver(c, s.l, s.cacheSize)
		if err != nil {
			c.Close()
			return nil, err
		}
		sess := &Session{ProjectID: projectID, client: c, resolver: resolver}
		s.m.Store(projectID, sess)
		s.l.Debugw("session opened", "project", projectID)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Range calls fn for every open session until fn returns false.
func (s *Sessions) Range(fn func(*Session) bool) {
	s.m.Range(func(_, v interface{}) bool {
		return fn(v.(*Session))
	})
}

func (s *Sessions) Len() int {
	n := 0
	s.m.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// CloseAll releases every client and forgets all sessions.
func (s *Sessions) CloseAll() {
	s.m.Range(func(k, v interface{}) bool {
		v.(*Session).client.Close()
		s.m.Delete(k)
		return true
	})
}
