package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Watcher is a fan-out source that runs in the background.
type Watcher interface {
	Start() error
	Stop()
	Unsubscribe(id string)
}

type Subscription struct {
	ID       string
	Notifier Notifier
	// Topic narrows what the subscriber receives; empty means everything.
	Topic string
}

// BaseWatcher provides common subscription management for all watcher types.
type BaseWatcher struct {
	idPrefix string

	subMu         sync.RWMutex
	subscriptions map[string]*Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBaseWatcher(idPrefix string) *BaseWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseWatcher{
		idPrefix:      idPrefix,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (b *BaseWatcher) GenerateID() string {
	return generateIDWithPrefix(b.idPrefix)
}

func generateIDWithPrefix(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func (b *BaseWatcher) AddSubscription(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.subscriptions[sub.ID] = sub
}

func (b *BaseWatcher) RemoveSubscription(id string) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return nil
	}

	delete(b.subscriptions, id)
	return sub
}

// RemoveNotifier drops every subscription delivered through n, used when a
// connection goes away.
func (b *BaseWatcher) RemoveNotifier(n Notifier) int {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	removed := 0
	for id, sub := range b.subscriptions {
		if sub.Notifier == n {
			delete(b.subscriptions, id)
			removed++
		}
	}
	return removed
}

func (b *BaseWatcher) GetAllSubscriptions() []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

func (b *BaseWatcher) GetSubscription(id string) *Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return b.subscriptions[id]
}

// NotifyWhere sends to the subscriptions accepted by match and returns how
// many were notified.
func (b *BaseWatcher) NotifyWhere(method string, match func(sub *Subscription) bool, makeParams func(sub *Subscription) any) int {
	sent := 0
	for _, sub := range b.GetAllSubscriptions() {
		if match != nil && !match(sub) {
			continue
		}
		n := Notification{Method: method, Params: makeParams(sub)}
		err := sub.Notifier.Notify(b.ctx, n)
		if errors.Is(err, ErrSubscriberGone) {
			b.RemoveSubscription(sub.ID)
			slog.Debug("dropped subscription of closed subscriber", "id", sub.ID, "method", method)
			continue
		}
		if err != nil {
			slog.Debug("failed to notify subscriber",
				"id", sub.ID,
				"method", method,
				"error", err)
		}
		sent++
	}
	return sent
}

func (b *BaseWatcher) NotifyAll(method string, makeParams func(sub *Subscription) any) int {
	return b.NotifyWhere(method, nil, makeParams)
}

func (b *BaseWatcher) Context() context.Context { return b.ctx }
func (b *BaseWatcher) Cancel()                  { b.cancel() }

func (b *BaseWatcher) HasSubscriptions() bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions) > 0
}

func (b *BaseWatcher) Unsubscribe(id string) {
	b.RemoveSubscription(id)
}
