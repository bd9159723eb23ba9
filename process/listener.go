package process

import "github.com/Harsha-Reddy21/AI-Onboarding/timeline"

// Update is one timeline revision of a running session.
type Update struct {
	SessionID string
	Key       string
	Timeline  timeline.Timeline
}

// TimelineListener receives every timeline revision from the driver, in order.
// It is called on the driver goroutine and must not block.
type TimelineListener interface {
	OnTimeline(u Update)
}

// ListenerFunc adapts a function to TimelineListener.
type ListenerFunc func(Update)

func (f ListenerFunc) OnTimeline(u Update) { f(u) }
