package watch

import (
	"context"
	"errors"
)

// Notification methods sent by the watchers.
const (
	MethodTimelineUpdated    = "timeline.updated"
	MethodSessionListChanged = "session.list.changed"
)

// ErrSubscriberGone is returned by a Notifier whose transport has closed.
// The watcher drops the subscription instead of retrying it.
var ErrSubscriberGone = errors.New("subscriber gone")

// Notification is one message for a subscriber.
type Notification struct {
	Method string
	Params any
}

// Notifier delivers notifications to one subscriber, typically a JSON-RPC
// connection.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
