package worker

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestCommandStreamsStdout(t *testing.T) {
	skipWithoutShell(t)

	c := &Command{Argv: []string{"/bin/sh", "-c", "echo step one; echo step two"}}
	sink := &recordSink{}

	result, err := c.Run(context.Background(), "task", sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != "step two" {
		t.Errorf("result = %q, want last output line", result)
	}

	want := []string{"log:info:step one", "log:info:step two"}
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

func TestCommandFailureSurfacesError(t *testing.T) {
	skipWithoutShell(t)

	c := &Command{Argv: []string{"/bin/sh", "-c", "exit 3"}}
	if _, err := c.Run(context.Background(), "task", &recordSink{}); err == nil {
		t.Error("Run of failing command returned nil error")
	}
}

func TestCommandObservesCancel(t *testing.T) {
	skipWithoutShell(t)

	c := &Command{Argv: []string{"/bin/sh", "-c", "sleep 30"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, "task", &recordSink{})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCommandEmptyArgv(t *testing.T) {
	c := &Command{}
	if _, err := c.Run(context.Background(), "task", &recordSink{}); err == nil {
		t.Error("Run with no command returned nil error")
	}
}
