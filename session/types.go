package session

import (
	"errors"
	"sync"
	"time"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionMeta holds metadata for one recorded stream.
type SessionMeta struct {
	ID      string        `json:"id"`
	Key     string        `json:"key"`
	Target  agent.Target  `json:"target"`
	Title   string        `json:"title"`
	Request agent.Request `json:"request"`
	// Config is the reducer configuration the session ran with. Nil on
	// records written before it was kept.
	Config *timeline.Config `json:"config,omitempty"`

	Outcome       timeline.Outcome `json:"outcome"`
	FailureReason string           `json:"failure_reason,omitempty"`
	UpstreamID    string           `json:"upstream_id,omitempty"` // from the session handshake
	Steps         int              `json:"steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is what a finished stream records about itself.
type Result struct {
	Outcome       timeline.Outcome
	FailureReason string
	UpstreamID    string
	Steps         int
}

// ResultOf summarizes a timeline.
func ResultOf(tl timeline.Timeline) Result {
	return Result{
		Outcome:       tl.Outcome,
		FailureReason: tl.FailureReason,
		UpstreamID:    tl.SessionID,
		Steps:         len(tl.Steps),
	}
}

// Title returns a human-readable title for a request.
func Title(req agent.Request) string {
	switch req.Target {
	case agent.TargetDocument:
		if req.CustomTitle != "" {
			return req.CustomTitle
		}
		if req.DocType != "" {
			return req.DocType
		}
		return "Document"
	case agent.TargetVideo:
		return "Video"
	case agent.TargetChat:
		if n := len(req.Messages); n > 0 {
			return truncate(req.Messages[n-1].Content, 60)
		}
		return "Chat"
	default:
		return string(req.Target)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// Operation represents the type of change to the session list.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// SessionChangeEvent represents a change to the session list.
// For create/update: Session is fully populated.
// For delete: only Session.ID is valid.
type SessionChangeEvent struct {
	Op      Operation
	Session SessionMeta
}

// OnChangeListener receives notifications when the session list changes.
type OnChangeListener interface {
	OnSessionChange(event SessionChangeEvent)
}

// changeNotifier is embedded by stores to deliver change events.
type changeNotifier struct {
	mu       sync.RWMutex
	listener OnChangeListener
}

func (n *changeNotifier) SetOnChangeListener(l OnChangeListener) {
	n.mu.Lock()
	n.listener = l
	n.mu.Unlock()
}

func (n *changeNotifier) notify(op Operation, meta SessionMeta) {
	n.mu.RLock()
	l := n.listener
	n.mu.RUnlock()
	if l != nil {
		l.OnSessionChange(SessionChangeEvent{Op: op, Session: meta})
	}
}
