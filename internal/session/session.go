package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/reputable-ai/browserhub/internal/worker"
)

// Session is one tracked automation job: its lifecycle state, its event
// bus, and the handle to its running worker. Sessions are created and
// owned by the Registry; nothing else mutates session state.
type Session struct {
	id   string
	task string
	bus  *Bus

	mu          sync.Mutex
	state       State
	createdAt   time.Time
	startedAt   *time.Time
	endedAt     *time.Time
	result      string
	failure     string
	cancelAsked bool
	timedOut    bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// View is a read-only snapshot of a session, shaped for the public API.
type View struct {
	ID        string     `json:"session_id"`
	Task      string     `json:"task"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Result    string     `json:"result,omitempty"`
	Failure   string     `json:"failure,omitempty"`
}

func newSession(id, task string, backlogCapacity, queueDepth int) *Session {
	return &Session{
		id:        id,
		task:      task,
		bus:       newBus(backlogCapacity, queueDepth),
		state:     Created,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string { return s.id }

// Bus returns the session's event bus.
func (s *Session) Bus() *Bus { return s.bus }

// View returns a consistent snapshot. Pointer fields are copied so the
// caller can hold the view without racing later transitions.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.id,
		Task:      s.task,
		State:     s.state,
		CreatedAt: s.createdAt,
		Result:    s.result,
		Failure:   s.failure,
	}
	if s.startedAt != nil {
		t := *s.startedAt
		v.StartedAt = &t
	}
	if s.endedAt != nil {
		t := *s.endedAt
		v.EndedAt = &t
	}
	return v
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// start transitions created -> running and spawns the worker goroutine.
// The call itself never blocks on the worker.
func (s *Session) start(w worker.Worker) error {
	s.mu.Lock()
	if s.state != Created {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start session in state %s", ErrInvalidState, st)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.state = Running
	now := time.Now()
	s.startedAt = &now
	s.cancel = cancel
	s.mu.Unlock()

	s.publishStatus(Running)
	go s.run(ctx, w)
	return nil
}

// run drives the worker to completion and records the terminal state.
// Whatever the worker does — return, error, ignore cancellation, panic —
// the session ends terminal; the registry's timeout backstop covers a
// worker that never returns at all.
func (s *Session) run(ctx context.Context, w worker.Worker) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("worker panic: %v", r)
			log.Printf("session %s: %s", s.id, detail)
			s.bus.Publish(Event{Type: EventError, Detail: detail})
			s.finish(Failed, "", detail)
		}
	}()

	result, err := w.Run(ctx, s.task, &sink{bus: s.bus})

	s.mu.Lock()
	timedOut := s.timedOut
	cancelAsked := s.cancelAsked
	s.mu.Unlock()

	switch {
	case timedOut:
		s.finish(TimedOut, "", "running timeout exceeded")
	case cancelAsked:
		s.finish(Cancelled, "", "cancelled by caller")
	case err != nil:
		s.bus.Publish(Event{Type: EventError, Detail: err.Error()})
		s.finish(Failed, "", err.Error())
	default:
		s.finish(Completed, result, "")
	}
}

// requestCancel signals the worker and waits up to grace for it to wind
// down, then forces the terminal state so resources are released on a
// bounded schedule regardless of worker cooperation. A created session
// cancels immediately — there is no worker to tear down.
func (s *Session) requestCancel(grace time.Duration) error {
	s.mu.Lock()
	switch {
	case s.state == Created:
		s.mu.Unlock()
		s.finish(Cancelled, "", "cancelled before start")
		return nil
	case s.state != Running:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel session in state %s", ErrInvalidState, st)
	}
	s.cancelAsked = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	select {
	case <-s.done:
	case <-time.After(grace):
		log.Printf("session %s: cancel grace elapsed, forcing terminal state", s.id)
		s.finish(Cancelled, "", "cancel deadline exceeded; worker did not acknowledge")
	}
	return nil
}

// markTimedOut records the timeout decision. Returns false if the
// session is not running or the decision was already taken, so the
// registry's ticker forces each expired session exactly once even when
// the grace window spans several ticks.
func (s *Session) markTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running || s.timedOut {
		return false
	}
	s.timedOut = true
	return true
}

// forceTimeout raises the worker's cancel signal, waits up to grace, then
// records timed_out. Called from the registry's ticker after markTimedOut;
// runs off the caller's goroutine so a stuck worker cannot stall the
// sweep.
func (s *Session) forceTimeout(grace time.Duration) {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	select {
	case <-s.done:
	case <-time.After(grace):
		log.Printf("session %s: timeout grace elapsed, forcing terminal state", s.id)
		s.finish(TimedOut, "", "running timeout exceeded; worker did not acknowledge")
	}
}

// finish records the terminal state. First caller wins: the worker
// goroutine, a forced cancel, and a forced timeout may race here, and
// exactly one of them performs the transition and emits its
// status_changed event.
func (s *Session) finish(st State, result, failure string) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.state = st
	now := time.Now()
	s.endedAt = &now
	s.result = result
	s.failure = failure
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.publishStatus(st)
}

func (s *Session) publishStatus(st State) {
	s.bus.Publish(Event{Type: EventStatus, State: st})
}

// runningSince returns the start time if the session is currently
// running.
func (s *Session) runningSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running || s.startedAt == nil {
		return time.Time{}, false
	}
	return *s.startedAt, true
}

// terminalSince returns the terminal time if the session has finished.
func (s *Session) terminalSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsTerminal() || s.endedAt == nil {
		return time.Time{}, false
	}
	return *s.endedAt, true
}

// createdIdleSince returns the creation time if the session was never
// started.
func (s *Session) createdIdleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Created {
		return time.Time{}, false
	}
	return s.createdAt, true
}

// sink routes worker progress into the session's bus.
type sink struct {
	bus *Bus
}

func (k *sink) Log(level, message string) {
	k.bus.Publish(Event{Type: EventLog, Level: level, Message: message})
}

func (k *sink) Screenshot(ref string) {
	k.bus.Publish(Event{Type: EventScreenshot, Image: ref})
}

func (k *sink) Error(detail string) {
	k.bus.Publish(Event{Type: EventError, Detail: detail})
}
