package ws

import (
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/Harsha-Reddy21/AI-Onboarding/watch"
)

// connState holds what one connection owns: its notifier and the watcher
// subscriptions to release when it closes.
type connState struct {
	connID string

	mu       sync.Mutex
	notifier *JSONRPCNotifier
	subs     map[string]watch.Watcher // nil once released
}

func newConnState(connID string) *connState {
	return &connState{connID: connID, subs: make(map[string]watch.Watcher)}
}

func (s *connState) attach(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	s.notifier = NewJSONRPCNotifier(conn)
	s.mu.Unlock()
}

func (s *connState) getNotifier() watch.Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifier
}

// track records a subscription. A subscription made after the connection was
// released is dropped at once.
func (s *connState) track(id string, w watch.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		w.Unsubscribe(id)
		return
	}
	s.subs[id] = w
}

func (s *connState) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// release unsubscribes everything and returns how many subscriptions it held.
func (s *connState) release() int {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for id, w := range subs {
		w.Unsubscribe(id)
	}
	return len(subs)
}
