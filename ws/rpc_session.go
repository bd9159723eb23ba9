package ws

import (
	"context"
	"errors"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/rpc"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
)

func (h *rpcMethodHandler) handleSessionStart(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionStartParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	// The run outlives this request; it is bound to the manager, not the connection.
	run, err := h.manager.Start(context.WithoutCancel(ctx), params.Request)
	if err != nil {
		if errors.Is(err, agent.ErrInvalidRequest) {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
			return
		}
		h.log.Error("failed to start session", "key", params.Key(), "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to start session")
		return
	}

	h.log.Info("session started", "sessionId", run.ID(), "key", run.Key())

	result := rpc.SessionStartResult{SessionID: run.ID(), Key: run.Key()}
	h.reply(ctx, conn, req, result)
}

func (h *rpcMethodHandler) handleSessionCancel(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionCancelParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id is required")
		return
	}

	cancelled := h.manager.Cancel(params.SessionID)
	h.log.Info("session cancel requested", "sessionId", params.SessionID, "cancelled", cancelled)

	h.reply(ctx, conn, req, rpc.SessionCancelResult{Cancelled: cancelled})
}

func (h *rpcMethodHandler) handleSessionList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	items, err := h.sessionListWatcher.List(ctx)
	if err != nil {
		h.log.Error("failed to list sessions", "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to list sessions")
		return
	}

	h.reply(ctx, conn, req, rpc.SessionListResult{Sessions: items})
}

func (h *rpcMethodHandler) handleSessionDelete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionDeleteParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.manager.Cancel(params.SessionID)
	if err := h.sessionStore.Delete(ctx, params.SessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session not found")
			return
		}
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to delete session")
		return
	}

	h.log.Info("session deleted", "sessionId", params.SessionID)

	h.reply(ctx, conn, req, struct{}{})
}

func (h *rpcMethodHandler) handleSessionReplay(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionReplayParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	meta, found, err := h.sessionStore.Get(ctx, params.SessionID)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to read session")
		return
	}
	if !found {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session not found")
		return
	}

	tl, err := session.Replay(ctx, h.sessionStore, meta.ID, h.configFor)
	if err != nil {
		h.log.Error("failed to replay session", "sessionId", meta.ID, "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to replay session")
		return
	}

	h.reply(ctx, conn, req, tl)
}

func (h *rpcMethodHandler) handleSessionListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	notifier := h.state.getNotifier()
	id, sessions, err := h.sessionListWatcher.Subscribe(ctx, notifier)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to subscribe")
		return
	}
	h.state.track(id, h.sessionListWatcher)

	h.log.Debug("subscribed", "watcher", "session list", "watchId", id)

	result := rpc.SessionListSubscribeResult{ID: id, Sessions: sessions}
	h.reply(ctx, conn, req, result)
}

func (h *rpcMethodHandler) handleTimelineSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.TimelineSubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	topic := params.SessionID
	if topic == "" {
		topic = params.Key
	}
	if topic == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id or key is required")
		return
	}

	id, tl := h.timelineWatcher.Subscribe(h.state.getNotifier(), topic)
	h.state.track(id, h.timelineWatcher)

	h.log.Debug("subscribed", "watcher", "timeline", "watchId", id, "topic", topic)

	h.reply(ctx, conn, req, rpc.TimelineSubscribeResult{ID: id, Timeline: tl})
}
