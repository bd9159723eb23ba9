// Package ws serves the JSON-RPC 2.0 observer endpoint over WebSocket.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/Harsha-Reddy21/AI-Onboarding/logger"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/rpc"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/watch"
)

// RPCHandler accepts WebSocket connections and serves session and timeline
// methods on them.
type RPCHandler struct {
	token              string
	version            string
	title              string
	devMode            bool
	manager            *process.Manager
	sessionStore       session.Store
	timelineWatcher    *watch.TimelineWatcher
	sessionListWatcher *watch.SessionListWatcher
	configFor          process.ConfigFunc
}

// Options holds the collaborators of an RPCHandler.
type Options struct {
	Token   string
	Version string
	Title   string
	DevMode bool

	Manager            *process.Manager
	SessionStore       session.Store
	TimelineWatcher    *watch.TimelineWatcher
	SessionListWatcher *watch.SessionListWatcher
	// ConfigFor picks the reducer configuration used by session.replay.
	ConfigFor process.ConfigFunc
}

func NewRPCHandler(opts Options) *RPCHandler {
	return &RPCHandler{
		token:              opts.Token,
		version:            opts.Version,
		title:              opts.Title,
		devMode:            opts.DevMode,
		manager:            opts.Manager,
		sessionStore:       opts.SessionStore,
		timelineWatcher:    opts.TimelineWatcher,
		sessionListWatcher: opts.SessionListWatcher,
		configFor:          opts.ConfigFor,
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	ctx := r.Context()
	h.HandleStream(ctx, newWebSocketStream(ctx, wsConn), uuid.Must(uuid.NewV7()).String())
}

// HandleStream serves one connection until the peer goes away, then releases
// its subscriptions.
func (h *RPCHandler) HandleStream(ctx context.Context, stream jsonrpc2.ObjectStream, connID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "websocket connection crashed", "connId", connID)
		}
	}()

	log := slog.With("connId", connID)
	log.Info("new connection")

	state := newConnState(connID)
	handler := &rpcMethodHandler{RPCHandler: h, state: state, log: log}

	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(handler))
	state.attach(conn)

	<-conn.DisconnectNotify()

	released := state.release()
	log.Info("connection closed", "subscriptionsReleased", released)
}

type methodFunc func(h *rpcMethodHandler, ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request)

// methods is the dispatch table for authenticated connections.
var methods = map[string]methodFunc{
	"session.start":  (*rpcMethodHandler).handleSessionStart,
	"session.cancel": (*rpcMethodHandler).handleSessionCancel,
	"session.list":   (*rpcMethodHandler).handleSessionList,
	"session.delete": (*rpcMethodHandler).handleSessionDelete,
	"session.replay": (*rpcMethodHandler).handleSessionReplay,

	"session.list.subscribe": (*rpcMethodHandler).handleSessionListSubscribe,
	"session.list.unsubscribe": func(h *rpcMethodHandler, ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
		h.handleWatcherUnsubscribe(ctx, conn, req, h.sessionListWatcher)
	},
	"timeline.subscribe": (*rpcMethodHandler).handleTimelineSubscribe,
	"timeline.unsubscribe": func(h *rpcMethodHandler, ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
		h.handleWatcherUnsubscribe(ctx, conn, req, h.timelineWatcher)
	},
}

type rpcMethodHandler struct {
	*RPCHandler
	state         *connState
	log           *slog.Logger
	authenticated atomic.Bool
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "rpc handler panic", "method", req.Method, "connId", h.state.connID)
		}
	}()

	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	if !h.authenticated.Load() {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	method, ok := methods[req.Method]
	if !ok {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
		return
	}
	method(h, ctx, conn, req)
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("invalid auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	h.authenticated.Store(true)
	h.log.Info("authenticated")

	h.reply(ctx, conn, req, rpc.AuthResult{Version: h.version, Title: h.title})
}

func (h *rpcMethodHandler) handleWatcherUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, watcher watch.Watcher) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "id is required")
		return
	}

	watcher.Unsubscribe(params.ID)
	h.state.untrack(params.ID)
	h.log.Debug("unsubscribed", "method", req.Method, "watchId", params.ID)

	h.reply(ctx, conn, req, struct{}{})
}

func (h *rpcMethodHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result any) {
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "method", req.Method, "error", err)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{Code: code, Message: message}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return errors.New("params required")
	}
	return json.Unmarshal(*req.Params, v)
}
