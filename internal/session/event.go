package session

import (
	"encoding/json"
	"time"
)

// EventType classifies the events a session emits while it runs.
type EventType int

const (
	EventStatus     EventType = iota // state transition
	EventLog                         // worker log line
	EventScreenshot                  // browser viewport capture
	EventError                       // non-fatal worker error
	EventGap                         // events dropped for one subscriber
)

var eventTypeNames = map[EventType]string{
	EventStatus:     "status_changed",
	EventLog:        "log",
	EventScreenshot: "screenshot",
	EventError:      "error",
	EventGap:        "gap",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event is one entry in a session's stream. Seq is assigned at publish
// time and is strictly increasing per session; ordering by Seq is total
// and preserved to every subscriber. Which payload fields are meaningful
// depends on Type. Events are immutable once published.
//
// A gap event is synthetic: it is never published, never retained in the
// backlog, and exists only on the subscriber whose queue overflowed. Its
// GapFrom/GapTo carry the inclusive sequence range that was dropped.
type Event struct {
	Type      EventType
	Seq       uint64
	Timestamp time.Time

	// EventStatus
	State State

	// EventLog
	Level   string
	Message string

	// EventScreenshot: opaque reference (URL, storage key, data URI)
	Image string

	// EventError
	Detail string

	// EventGap
	GapFrom uint64
	GapTo   uint64
}
