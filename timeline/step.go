package timeline

import "encoding/json"

// Kind classifies a step.
type Kind string

const (
	KindThinking  Kind = "thinking"
	KindAction    Kind = "action"
	KindNarrative Kind = "narrative"
	KindLifecycle Kind = "lifecycle"
)

// Status is the lifecycle state of a step. Steps are created running;
// pending exists only so a sweep can name it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsOpen reports whether a step in this status can still change.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusRunning
}

// Step is one entry of the rendered timeline.
type Step struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// action steps only
	ActionName     string          `json:"actionName,omitempty"`
	CorrelationKey string          `json:"correlationKey,omitempty"`
	LocalKey       bool            `json:"localKey,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Detail         json.RawMessage `json:"detail,omitempty"`

	// thinking, narrative and lifecycle steps
	Text string `json:"text,omitempty"`

	Status Status `json:"status"`
	Seq    uint64 `json:"seq"`
}

// accumulates reports whether the step collects streamed text.
func (s Step) accumulates() bool {
	return s.Kind == KindThinking || s.Kind == KindNarrative
}
