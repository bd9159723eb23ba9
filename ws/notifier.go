package ws

import (
	"context"
	"errors"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/Harsha-Reddy21/AI-Onboarding/watch"
)

// JSONRPCNotifier delivers watcher notifications as JSON-RPC notifications on
// one connection.
type JSONRPCNotifier struct {
	conn *jsonrpc2.Conn
}

var _ watch.Notifier = (*JSONRPCNotifier)(nil)

func NewJSONRPCNotifier(conn *jsonrpc2.Conn) *JSONRPCNotifier {
	return &JSONRPCNotifier{conn: conn}
}

func (n *JSONRPCNotifier) Notify(ctx context.Context, notif watch.Notification) error {
	err := n.conn.Notify(ctx, notif.Method, notif.Params)
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return watch.ErrSubscriberGone
	}
	return err
}
