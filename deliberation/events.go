package deliberation

import "time"

// EventKind labels a progress event emitted during a run.
type EventKind string

const (
	EventStageStarted  EventKind = "stage_started"
	EventStageFinished EventKind = "stage_finished"
	EventRoundDecided  EventKind = "round_decided"
	EventCompleted     EventKind = "completed"
	EventFailed        EventKind = "failed"
)

// Event is one progress update from a running deliberation. Exactly one
// terminal event (completed or failed) closes every run; Answer is set
// only on the terminal event.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Stage    string        `json:"stage,omitempty"`
	Round    int           `json:"round,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Answer   *FinalAnswer  `json:"answer,omitempty"`
	Err      error         `json:"-"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}
