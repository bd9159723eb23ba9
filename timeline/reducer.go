package timeline

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

// Mode is how successive progress notes fold into the live thinking step.
type Mode string

const (
	ModeReplace Mode = "replace"
	ModeAppend  Mode = "append"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeReplace:
		return ModeReplace, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", fmt.Errorf("unknown accumulation mode %q", s)
	}
}

// Config is fixed per call site.
// Recorded sessions store it so a replay reduces with the rules of the live run.
type Config struct {
	Mode        Mode     `json:"mode"`
	Correlation Strategy `json:"correlation"`
	// NewID generates step ids and local correlation keys.
	NewID func() string `json:"-"`
	// LifecycleMarkers appends a lifecycle step for the terminal frame.
	LifecycleMarkers bool `json:"lifecycle_markers,omitempty"`
}

// Reducer applies frames to a timeline. It holds no per-session state, so one
// Reducer may serve many sessions as long as each session's frames are
// reduced in order.
type Reducer struct {
	cfg  Config
	corr Correlator
}

func NewReducer(cfg Config) *Reducer {
	if cfg.Mode == "" {
		cfg.Mode = ModeReplace
	}
	if cfg.Correlation == "" {
		cfg.Correlation = ByID
	}
	if cfg.NewID == nil {
		cfg.NewID = newID
	}
	return &Reducer{cfg: cfg, corr: NewCorrelator(cfg.Correlation)}
}

func (r *Reducer) Config() Config { return r.cfg }

// Fold replays frames from the empty timeline.
func Fold(cfg Config, frames []agent.Frame) Timeline {
	r := NewReducer(cfg)
	tl := New()
	for _, f := range frames {
		tl = r.Reduce(tl, f)
	}
	return tl
}

// Reduce applies one frame.
func (r *Reducer) Reduce(tl Timeline, f agent.Frame) Timeline {
	if tl.Outcome == "" {
		tl.Outcome = OutcomeRunning
	}
	if tl.Terminal() {
		slog.Warn("ignoring frame after terminal frame", "type", f.Type, "outcome", tl.Outcome)
		tl.Anomalies++
		return tl
	}

	switch p := f.Payload.(type) {
	case agent.Note:
		return r.note(tl, p)
	case agent.DeltaPayload:
		if p.EventType() == agent.EventTypeThinking {
			return r.think(tl, p.Text, ModeAppend)
		}
		return r.narrate(tl, p.Text)
	case agent.ToolCallPayload:
		return r.startAction(tl, p)
	case agent.ToolResultPayload:
		return r.resolve(tl, p)
	case agent.CompletePayload:
		return r.complete(tl, p)
	case agent.ErrorPayload:
		return r.fail(tl, p)
	case agent.SessionPayload:
		tl.SessionID = p.SessionID
		return tl
	default:
		slog.Debug("ignoring frame with unknown label", "type", f.Type)
		tl.Anomalies++
		return tl
	}
}

func (r *Reducer) note(tl Timeline, n agent.Note) Timeline {
	if ratio, ok := n.ProgressRatio(); ok {
		tl.Progress = ratio
	}
	text := n.NoteText()
	if text == "" {
		return tl
	}
	return r.think(tl, text, r.cfg.Mode)
}

func (r *Reducer) think(tl Timeline, text string, mode Mode) Timeline {
	steps := clone(tl.Steps)
	if i, ok := liveIndex(steps, KindThinking); ok {
		if mode == ModeAppend {
			steps[i].Text += text
		} else {
			steps[i].Text = text
		}
		tl.Steps = steps
		return tl
	}

	tl.Steps = r.push(steps, Step{Kind: KindThinking, Text: text, Status: StatusRunning})
	return tl
}

func (r *Reducer) narrate(tl Timeline, text string) Timeline {
	tl.Text += text
	steps := clone(tl.Steps)
	if i, ok := liveIndex(steps, KindNarrative); ok {
		steps[i].Text += text
		tl.Steps = steps
		return tl
	}

	tl.Steps = r.push(steps, Step{Kind: KindNarrative, Text: text, Status: StatusRunning})
	return tl
}

func (r *Reducer) startAction(tl Timeline, p agent.ToolCallPayload) Timeline {
	step := Step{
		Kind:           KindAction,
		ActionName:     p.Tool,
		CorrelationKey: p.ID,
		Input:          p.Args,
		Status:         StatusRunning,
	}
	if step.CorrelationKey == "" {
		step.CorrelationKey = r.cfg.NewID()
		step.LocalKey = true
	}

	tl.Steps = r.push(clone(tl.Steps), step)
	return tl
}

func (r *Reducer) resolve(tl Timeline, p agent.ToolResultPayload) Timeline {
	i := r.corr.Resolve(tl.Steps, &p)
	if i < 0 {
		slog.Warn("dropping dangling tool result", "tool", p.Tool, "id", p.ID, "strategy", r.corr.Strategy())
		tl.Anomalies++
		return tl
	}

	steps := clone(tl.Steps)
	s := &steps[i]
	s.Summary = p.Summary
	s.Detail = p.Output
	s.Status = StatusCompleted
	if p.Error != "" {
		s.Status = StatusError
		if s.Summary == "" {
			s.Summary = p.Error
		}
	}
	tl.Steps = steps
	return tl
}

func (r *Reducer) complete(tl Timeline, p agent.CompletePayload) Timeline {
	steps := sweep(tl.Steps, StatusCompleted)
	if r.cfg.LifecycleMarkers {
		steps = r.push(steps, Step{Kind: KindLifecycle, Text: "complete", Status: StatusCompleted})
	}
	tl.Steps = steps
	tl.Artifact = &p
	tl.Outcome = OutcomeComplete
	return tl
}

func (r *Reducer) fail(tl Timeline, p agent.ErrorPayload) Timeline {
	steps := sweep(tl.Steps, StatusError)
	if r.cfg.LifecycleMarkers {
		steps = r.push(steps, Step{Kind: KindLifecycle, Text: p.Message, Status: StatusError})
	}
	tl.Steps = steps
	tl.FailureReason = p.Message
	tl.Outcome = OutcomeFailed
	return tl
}

// push freezes a live tail step and appends s, assigning its id and sequence.
// steps must already be a private copy.
func (r *Reducer) push(steps []Step, s Step) []Step {
	if n := len(steps); n > 0 && steps[n-1].accumulates() && steps[n-1].Status == StatusRunning {
		steps[n-1].Status = StatusCompleted
	}
	s.ID = r.cfg.NewID()
	s.Seq = uint64(len(steps)) + 1
	return append(steps, s)
}

// sweep returns a copy with every open step set to status.
func sweep(steps []Step, status Status) []Step {
	out := clone(steps)
	for i := range out {
		if out[i].Status.IsOpen() {
			out[i].Status = status
		}
	}
	return out
}

// clone copies steps with room for one more.
func clone(steps []Step) []Step {
	out := make([]Step, len(steps), len(steps)+1)
	copy(out, steps)
	return out
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
