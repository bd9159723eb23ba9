package watch

import (
	"context"
	"log/slog"

	"github.com/Harsha-Reddy21/AI-Onboarding/rpc"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
)

type RunStateGetter interface {
	GetRunState(sessionID string) string
}

// SessionListWatcher notifies subscribers when the session list changes.
// Uses a channel-based async notification pattern to avoid blocking the session
// store during network I/O.
type SessionListWatcher struct {
	*BaseWatcher
	store          session.Store
	runStateGetter RunStateGetter
	eventCh        chan session.SessionChangeEvent
}

var _ session.OnChangeListener = (*SessionListWatcher)(nil)
var _ Watcher = (*SessionListWatcher)(nil)

func NewSessionListWatcher(store session.Store, states RunStateGetter) *SessionListWatcher {
	w := &SessionListWatcher{
		BaseWatcher:    NewBaseWatcher("sl"),
		store:          store,
		runStateGetter: states,
		eventCh:        make(chan session.SessionChangeEvent, 64), // Buffer to avoid blocking
	}
	store.SetOnChangeListener(w)
	return w
}

func (w *SessionListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SessionListWatcher started")
	return nil
}

func (w *SessionListWatcher) Stop() {
	w.Cancel()
	slog.Info("SessionListWatcher stopped")
}

// eventLoop processes session change events asynchronously.
func (w *SessionListWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		}
	}
}

// notifyChange sends notifications to all subscribers.
func (w *SessionListWatcher) notifyChange(event session.SessionChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyAll(MethodSessionListChanged, func(sub *Subscription) any {
		params := rpc.SessionListChangedParams{
			ID:        sub.ID,
			Operation: string(event.Op),
		}
		if event.Op == session.OperationDelete {
			params.SessionID = event.Session.ID
		} else {
			item := w.item(event.Session)
			params.Session = &item
		}
		return params
	})

	slog.Debug("notified session list change", "operation", event.Op)
}

func (w *SessionListWatcher) item(meta session.SessionMeta) rpc.SessionListItem {
	return rpc.SessionListItem{
		SessionMeta: meta,
		State:       w.runStateGetter.GetRunState(meta.ID),
	}
}

// List returns the session list enriched with runtime state.
func (w *SessionListWatcher) List(ctx context.Context) ([]rpc.SessionListItem, error) {
	sessions, err := w.store.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]rpc.SessionListItem, len(sessions))
	for i, sess := range sessions {
		items[i] = w.item(sess)
	}
	return items, nil
}

// Subscribe registers a subscriber and returns the subscription ID along with
// the current session list.
func (w *SessionListWatcher) Subscribe(ctx context.Context, notifier Notifier) (string, []rpc.SessionListItem, error) {
	id := w.GenerateID()
	// Add subscription BEFORE getting the list to avoid missing events
	// that occur between List() and AddSubscription().
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier})

	items, err := w.List(ctx)
	if err != nil {
		w.RemoveSubscription(id)
		return "", nil, err
	}
	return id, items, nil
}

// OnSessionChange implements session.OnChangeListener.
// Called from store methods, so it must not block.
func (w *SessionListWatcher) OnSessionChange(event session.SessionChangeEvent) {
	if w.Context().Err() != nil {
		return
	}

	// Non-blocking send: if buffer is full, drop the event
	select {
	case w.eventCh <- event:
	default:
		slog.Warn("session list change event dropped (buffer full)", "operation", event.Op)
	}
}
