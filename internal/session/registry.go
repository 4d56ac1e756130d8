package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reputable-ai/browserhub/internal/worker"
)

// Options bounds the registry's resource lifetime. Zero fields take the
// defaults below.
type Options struct {
	MaxConcurrent   int           // non-terminal sessions admitted at once
	RunTimeout      time.Duration // wall-clock bound on the running state
	CancelGrace     time.Duration // wait for worker teardown before forcing terminal
	CreatedIdle     time.Duration // reclaim created sessions never started
	Retention       time.Duration // keep terminal sessions before sweeping
	SweepInterval   time.Duration // ticker period for timeout/sweep enforcement
	BacklogCapacity int           // retained events per session
	SubscriberQueue int           // pending events per subscriber
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 30 * time.Minute
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = 10 * time.Second
	}
	if o.CreatedIdle <= 0 {
		o.CreatedIdle = time.Hour
	}
	if o.Retention <= 0 {
		o.Retention = 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	if o.BacklogCapacity <= 0 {
		o.BacklogCapacity = 256
	}
	if o.SubscriberQueue <= 0 {
		o.SubscriberQueue = 64
	}
	return o
}

// Registry is the single authority over the session table: identifier
// space, admission control, command routing, and reclamation. One
// instance per process; all session mutation goes through it.
type Registry struct {
	opts   Options
	worker worker.Worker

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a registry that runs every session's task on w.
func NewRegistry(opts Options, w worker.Worker) *Registry {
	return &Registry{
		opts:     opts.withDefaults(),
		worker:   w,
		sessions: make(map[string]*Session),
	}
}

// Create admits a new session in the created state and returns its id.
// Fails with ErrCapacityExceeded when the non-terminal session count has
// reached the configured limit. The worker is untouched until Start.
func (r *Registry) Create(task string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, s := range r.sessions {
		if !s.State().IsTerminal() {
			active++
		}
	}
	if active >= r.opts.MaxConcurrent {
		return "", fmt.Errorf("%w: %d non-terminal sessions at limit %d",
			ErrCapacityExceeded, active, r.opts.MaxConcurrent)
	}

	id := uuid.NewString()
	r.sessions[id] = newSession(id, task, r.opts.BacklogCapacity, r.opts.SubscriberQueue)
	log.Printf("session %s: created (task %q)", id, task)
	return id, nil
}

// Start transitions a created session to running and spawns its worker.
// Returns without waiting for the job.
func (r *Registry) Start(id string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := s.start(r.worker); err != nil {
		return err
	}
	log.Printf("session %s: started", id)
	return nil
}

// Cancel signals the session's worker and blocks until it acknowledges or
// the forced-cancel grace elapses, whichever comes first.
func (r *Registry) Cancel(id string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := s.requestCancel(r.opts.CancelGrace); err != nil {
		return err
	}
	log.Printf("session %s: cancelled", id)
	return nil
}

// Get returns a read-only snapshot of one session.
func (r *Registry) Get(id string) (View, error) {
	s, err := r.lookup(id)
	if err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// List returns snapshots of all sessions ordered by creation time.
func (r *Registry) List() []View {
	r.mu.Lock()
	views := make([]View, 0, len(r.sessions))
	for _, s := range r.sessions {
		views = append(views, s.View())
	}
	r.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Attach subscribes an observer to a session's event stream, returning
// the retained backlog followed by the live subscriber.
func (r *Registry) Attach(id string) ([]Event, *Subscriber, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	backlog, sub := s.bus.Subscribe()
	return backlog, sub, nil
}

// ActiveCount returns the number of non-terminal sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.sessions {
		if !s.State().IsTerminal() {
			count++
		}
	}
	return count
}

// Run enforces timeouts and reclamation on a ticker until ctx is
// cancelled. Timeout forcing happens off this goroutine so one
// unresponsive worker cannot delay enforcement for the others.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.enforceTimeouts()
			r.Sweep()
		}
	}
}

func (r *Registry) enforceTimeouts() {
	now := time.Now()

	r.mu.Lock()
	var expired []*Session
	for _, s := range r.sessions {
		if since, ok := s.runningSince(); ok && now.Sub(since) > r.opts.RunTimeout {
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		if !s.markTimedOut() {
			// Already being forced by an earlier tick.
			continue
		}
		log.Printf("session %s: running timeout exceeded", s.ID())
		go s.forceTimeout(r.opts.CancelGrace)
	}
}

// Sweep reclaims sessions that have been terminal longer than the
// retention window and cancels created sessions idle past the idle
// window. A non-terminal session is never removed.
func (r *Registry) Sweep() {
	now := time.Now()

	r.mu.Lock()
	var reclaimed []*Session
	var idle []*Session
	for id, s := range r.sessions {
		if since, ok := s.terminalSince(); ok && now.Sub(since) > r.opts.Retention {
			reclaimed = append(reclaimed, s)
			delete(r.sessions, id)
			continue
		}
		if since, ok := s.createdIdleSince(); ok && now.Sub(since) > r.opts.CreatedIdle {
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	for _, s := range reclaimed {
		s.bus.Close()
		log.Printf("session %s: swept after retention", s.ID())
	}
	for _, s := range idle {
		log.Printf("session %s: reclaiming idle created session", s.ID())
		s.finish(Cancelled, "", "created session idle past reclamation window")
	}
}

func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}
