package worker

import (
	"context"
	"errors"
	"time"
)

// Step is one scripted action. Exactly one of the payload fields should be
// set; a step with only a Delay just sleeps.
type Step struct {
	Delay      time.Duration
	Level      string
	Message    string
	Screenshot string
	Fail       string // non-empty: abort the run with this failure detail
}

// Scripted is a Worker that replays a fixed sequence of steps. It backs
// demo mode and tests, standing in for a real automation backend.
type Scripted struct {
	Steps  []Step
	Result string
}

func (s *Scripted) Run(ctx context.Context, task string, sink Sink) (string, error) {
	for _, step := range s.Steps {
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return "", err
		}

		switch {
		case step.Fail != "":
			sink.Error(step.Fail)
			return "", errors.New(step.Fail)
		case step.Screenshot != "":
			sink.Screenshot(step.Screenshot)
		case step.Message != "":
			level := step.Level
			if level == "" {
				level = "info"
			}
			sink.Log(level, step.Message)
		}
	}
	return s.Result, nil
}

// DemoScript returns the canned run used by demo mode: a plausible
// browser-automation trace with logs and screenshots.
func DemoScript() *Scripted {
	return &Scripted{
		Steps: []Step{
			{Message: "launching headless browser"},
			{Delay: 500 * time.Millisecond, Message: "navigating to target page"},
			{Delay: 500 * time.Millisecond, Screenshot: "demo/page-loaded.png"},
			{Delay: time.Second, Message: "filling form fields"},
			{Delay: 500 * time.Millisecond, Screenshot: "demo/form-filled.png"},
			{Delay: time.Second, Level: "success", Message: "task finished"},
		},
		Result: "demo run completed",
	}
}
