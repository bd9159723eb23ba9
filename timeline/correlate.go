package timeline

import (
	"fmt"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

// Strategy names the rule binding a tool result to its tool call.
type Strategy string

const (
	// ByID binds on the correlation key and is correct with concurrent
	// same-named actions.
	ByID Strategy = "id"
	// ByName binds the newest running action with the same name. Ambiguous
	// when two calls of one tool are outstanding; only for sources that never
	// send ids.
	ByName Strategy = "name"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", ByID:
		return ByID, nil
	case ByName:
		return ByName, nil
	default:
		return "", fmt.Errorf("unknown correlation strategy %q", s)
	}
}

// Correlator finds the step a tool result concludes. Resolve returns the
// step index, or -1 when nothing binds.
type Correlator interface {
	Strategy() Strategy
	Resolve(steps []Step, res *agent.ToolResultPayload) int
}

// NewCorrelator returns the correlator for s, defaulting to ByID.
func NewCorrelator(s Strategy) Correlator {
	if s == ByName {
		return NameCorrelator{}
	}
	return IDCorrelator{}
}

type IDCorrelator struct{}

func (IDCorrelator) Strategy() Strategy { return ByID }

func (IDCorrelator) Resolve(steps []Step, res *agent.ToolResultPayload) int {
	if res.ID == "" {
		return -1
	}
	return newestRunning(steps, func(s Step) bool { return s.CorrelationKey == res.ID })
}

type NameCorrelator struct{}

func (NameCorrelator) Strategy() Strategy { return ByName }

func (NameCorrelator) Resolve(steps []Step, res *agent.ToolResultPayload) int {
	if res.Tool == "" {
		return -1
	}
	return newestRunning(steps, func(s Step) bool { return s.ActionName == res.Tool })
}

func newestRunning(steps []Step, match func(Step) bool) int {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.Kind == KindAction && s.Status == StatusRunning && match(s) {
			return i
		}
	}
	return -1
}
