package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordSink captures emitted events as strings for assertions.
type recordSink struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordSink) Log(level, message string) {
	r.add(fmt.Sprintf("log:%s:%s", level, message))
}

func (r *recordSink) Screenshot(ref string) {
	r.add("screenshot:" + ref)
}

func (r *recordSink) Error(detail string) {
	r.add("error:" + detail)
}

func (r *recordSink) add(entry string) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

func (r *recordSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func TestScriptedEmitsInOrder(t *testing.T) {
	s := &Scripted{
		Steps: []Step{
			{Message: "first"},
			{Level: "warning", Message: "second"},
			{Screenshot: "shot.png"},
		},
		Result: "ok",
	}

	sink := &recordSink{}
	result, err := s.Run(context.Background(), "task", sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want %q", result, "ok")
	}

	want := []string{"log:info:first", "log:warning:second", "screenshot:shot.png"}
	got := sink.all()
	if len(got) != len(want) {
		t.Fatalf("emitted %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScriptedFailStep(t *testing.T) {
	s := &Scripted{
		Steps: []Step{
			{Message: "working"},
			{Fail: "element not found"},
			{Message: "never reached"},
		},
	}

	sink := &recordSink{}
	_, err := s.Run(context.Background(), "task", sink)
	if err == nil || err.Error() != "element not found" {
		t.Fatalf("Run error = %v, want element not found", err)
	}

	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("emitted %d events, want 2 (log + error): %v", len(got), got)
	}
	if got[1] != "error:element not found" {
		t.Errorf("last event = %q, want the error", got[1])
	}
}

func TestScriptedObservesCancel(t *testing.T) {
	s := &Scripted{
		Steps: []Step{
			{Message: "quick"},
			{Delay: 10 * time.Second, Message: "slow"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, "task", &recordSink{})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDemoScriptCompletes(t *testing.T) {
	s := DemoScript()
	if len(s.Steps) == 0 || s.Result == "" {
		t.Fatal("demo script is empty")
	}

	// Strip delays so the test runs instantly.
	for i := range s.Steps {
		s.Steps[i].Delay = 0
	}

	sink := &recordSink{}
	result, err := s.Run(context.Background(), "demo", sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != s.Result {
		t.Errorf("result = %q, want %q", result, s.Result)
	}
	if len(sink.all()) != len(s.Steps) {
		t.Errorf("emitted %d events, want %d", len(sink.all()), len(s.Steps))
	}
}
