package ws

import (
	"time"

	"github.com/reputable-ai/browserhub/internal/session"
)

// Frame is the wire envelope for one stream event: a type tag, the
// session-scoped sequence number, and a type-specific payload.
type Frame struct {
	Type string      `json:"type"`
	Seq  uint64      `json:"seq"`
	Data interface{} `json:"data"`
}

type StatusPayload struct {
	State     session.State `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}

type LogPayload struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ScreenshotPayload struct {
	Image     string    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// GapPayload tells the client it missed the inclusive sequence range
// [From, To] because it could not keep up with the stream.
type GapPayload struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// frameFor converts a bus event into its wire representation.
func frameFor(ev session.Event) Frame {
	f := Frame{Type: ev.Type.String(), Seq: ev.Seq}
	switch ev.Type {
	case session.EventStatus:
		f.Data = StatusPayload{State: ev.State, Timestamp: ev.Timestamp}
	case session.EventLog:
		f.Data = LogPayload{Level: ev.Level, Message: ev.Message, Timestamp: ev.Timestamp}
	case session.EventScreenshot:
		f.Data = ScreenshotPayload{Image: ev.Image, Timestamp: ev.Timestamp}
	case session.EventError:
		f.Data = ErrorPayload{Detail: ev.Detail, Timestamp: ev.Timestamp}
	case session.EventGap:
		f.Data = GapPayload{From: ev.GapFrom, To: ev.GapTo}
	}
	return f
}

// CreateRequest is the body of POST /api/sessions.
type CreateRequest struct {
	Task string `json:"task"`
}

// SessionAck acknowledges a create/start/cancel command.
type SessionAck struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
}

// SessionList is the body of GET /api/sessions.
type SessionList struct {
	Sessions []session.View `json:"sessions"`
	Total    int            `json:"total"`
}
