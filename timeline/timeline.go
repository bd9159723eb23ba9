// Package timeline folds decoded agent frames into an ordered list of steps.
package timeline

import (
	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

// Outcome is the session-level result of a stream.
type Outcome string

const (
	OutcomeRunning    Outcome = "running"
	OutcomeComplete   Outcome = "complete"
	OutcomeFailed     Outcome = "failed"
	OutcomeIncomplete Outcome = "incomplete"
	OutcomeCancelled  Outcome = "cancelled"
)

// IsFinal reports whether no further frames will change the outcome.
func (o Outcome) IsFinal() bool {
	return o != "" && o != OutcomeRunning
}

// Timeline is an immutable value. Reducing a frame returns a new Timeline and
// never writes to slices reachable from an older one.
type Timeline struct {
	Steps         []Step                 `json:"steps"`
	SessionID     string                 `json:"sessionId,omitempty"`
	Text          string                 `json:"text,omitempty"`
	Progress      float64                `json:"progress,omitempty"`
	Outcome       Outcome                `json:"outcome"`
	Artifact      *agent.CompletePayload `json:"artifact,omitempty"`
	FailureReason string                 `json:"failureReason,omitempty"`
	Anomalies     int                    `json:"anomalies,omitempty"`
}

// New returns the empty timeline a session starts from.
func New() Timeline {
	return Timeline{Steps: []Step{}, Outcome: OutcomeRunning}
}

// Terminal reports whether a complete or error frame has been applied.
func (tl Timeline) Terminal() bool {
	return tl.Outcome == OutcomeComplete || tl.Outcome == OutcomeFailed
}

// Finish records how the transport ended. A timeline that already reached a
// terminal frame keeps its outcome; steps are left exactly as last reduced.
func (tl Timeline) Finish(o Outcome) Timeline {
	if tl.Terminal() {
		return tl
	}
	tl.Outcome = o
	return tl
}

// Filter returns the steps keep accepts. It is meant for presentation; the
// timeline itself never drops steps.
func (tl Timeline) Filter(keep func(Step) bool) []Step {
	out := make([]Step, 0, len(tl.Steps))
	for _, s := range tl.Steps {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of steps of the given kind.
func (tl Timeline) Count(kind Kind) int {
	n := 0
	for _, s := range tl.Steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Step returns the step with the given id.
func (tl Timeline) Step(id string) (Step, bool) {
	for _, s := range tl.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Live returns the index of the live step of the given kind. Only the last
// step can be live, and only while it is running.
func (tl Timeline) Live(kind Kind) (int, bool) {
	return liveIndex(tl.Steps, kind)
}

func liveIndex(steps []Step, kind Kind) (int, bool) {
	if len(steps) == 0 {
		return -1, false
	}
	i := len(steps) - 1
	if steps[i].Kind == kind && steps[i].Status == StatusRunning {
		return i, true
	}
	return -1, false
}

// OfKind is a Filter predicate.
func OfKind(kinds ...Kind) func(Step) bool {
	return func(s Step) bool {
		for _, k := range kinds {
			if s.Kind == k {
				return true
			}
		}
		return false
	}
}
