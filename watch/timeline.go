package watch

import (
	"log/slog"
	"sync"

	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/rpc"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// RunLookup finds the current run for a subscription topic.
type RunLookup interface {
	Get(sessionID string) *process.Run
	GetByKey(key string) *process.Run
}

// TimelineWatcher fans timeline revisions out to subscribers as
// timeline.updated notifications. Revisions of one session are coalesced:
// a slow subscriber sees the latest timeline, never a stale one.
type TimelineWatcher struct {
	*BaseWatcher
	runs RunLookup

	pendingMu sync.Mutex
	pending   map[string]process.Update // by session ID
	order     []string
	wake      chan struct{}
}

var _ process.TimelineListener = (*TimelineWatcher)(nil)
var _ Watcher = (*TimelineWatcher)(nil)

func NewTimelineWatcher(runs RunLookup) *TimelineWatcher {
	return &TimelineWatcher{
		BaseWatcher: NewBaseWatcher("tl"),
		runs:        runs,
		pending:     make(map[string]process.Update),
		wake:        make(chan struct{}, 1),
	}
}

func (w *TimelineWatcher) Start() error {
	go w.eventLoop()
	slog.Info("TimelineWatcher started")
	return nil
}

func (w *TimelineWatcher) Stop() {
	w.Cancel()
	slog.Info("TimelineWatcher stopped")
}

// OnTimeline implements process.TimelineListener.
// Called from the driver goroutine, must not block.
func (w *TimelineWatcher) OnTimeline(u process.Update) {
	if w.Context().Err() != nil || !w.HasSubscriptions() {
		return
	}

	w.pendingMu.Lock()
	if _, queued := w.pending[u.SessionID]; !queued {
		w.order = append(w.order, u.SessionID)
	}
	w.pending[u.SessionID] = u
	w.pendingMu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *TimelineWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case <-w.wake:
			for _, u := range w.drain() {
				w.notifyUpdate(u)
			}
		}
	}
}

func (w *TimelineWatcher) drain() []process.Update {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	updates := make([]process.Update, 0, len(w.order))
	for _, id := range w.order {
		updates = append(updates, w.pending[id])
	}
	w.pending = make(map[string]process.Update)
	w.order = w.order[:0]
	return updates
}

func (w *TimelineWatcher) notifyUpdate(u process.Update) {
	n := w.NotifyWhere(MethodTimelineUpdated,
		func(sub *Subscription) bool { return sub.Topic == u.SessionID || sub.Topic == u.Key },
		func(sub *Subscription) any {
			return rpc.TimelineUpdatedParams{
				ID:        sub.ID,
				SessionID: u.SessionID,
				Key:       u.Key,
				Timeline:  u.Timeline,
			}
		})
	if n > 0 {
		slog.Debug("notified timeline update", "sessionId", u.SessionID, "subscribers", n, "steps", len(u.Timeline.Steps))
	}
}

// Subscribe registers a subscriber for a session ID or target key and returns
// the current timeline when a run is known.
func (w *TimelineWatcher) Subscribe(notifier Notifier, topic string) (string, *timeline.Timeline) {
	id := w.GenerateID()
	// Add subscription BEFORE reading the snapshot to avoid missing a revision
	// produced in between.
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier, Topic: topic})

	run := w.runs.Get(topic)
	if run == nil {
		run = w.runs.GetByKey(topic)
	}
	if run == nil {
		return id, nil
	}
	tl := run.Timeline()
	return id, &tl
}
