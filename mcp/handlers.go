package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

func (s *Server) handleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return InternalError(err), nil
	}

	if target := agent.Target(req.GetString("target", "")); target != "" {
		filtered := make([]session.SessionMeta, 0, len(sessions))
		for _, sess := range sessions {
			if sess.Target == target {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}
	return jsonResult(sessions)
}

func (s *Server) handleSessionGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return InvalidArgument("session_id", "session_id is required"), nil
	}

	meta, found, err := s.store.Get(ctx, id)
	if err != nil {
		return InternalError(err), nil
	}
	if !found {
		return SessionNotFound(id), nil
	}
	return jsonResult(meta)
}

func (s *Server) handleSessionTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return InvalidArgument("session_id", "session_id is required"), nil
	}

	_, found, err := s.store.Get(ctx, id)
	if err != nil {
		return InternalError(err), nil
	}
	if !found {
		return SessionNotFound(id), nil
	}

	tl, err := session.Replay(ctx, s.store, id, s.configFor)
	if errors.Is(err, session.ErrSessionNotFound) {
		return SessionNotFound(id), nil
	}
	if err != nil {
		return InternalError(err), nil
	}

	if kind := timeline.Kind(req.GetString("kind", "")); kind != "" {
		tl.Steps = tl.Filter(func(step timeline.Step) bool { return step.Kind == kind })
	}
	return jsonResult(tl)
}

func (s *Server) handleStreamDecode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stream, err := req.RequireString("stream")
	if err != nil {
		return InvalidArgument("stream", "stream is required"), nil
	}

	cfg := timeline.Config{}
	if target := agent.Target(req.GetString("target", "")); target != "" {
		if !target.IsValid() {
			return InvalidArgument("target", "unknown target: "+string(target)), nil
		}
		cfg = s.configFor(target)
	}
	if v := req.GetString("mode", ""); v != "" {
		mode, err := timeline.ParseMode(v)
		if err != nil {
			return InvalidArgument("mode", err.Error()), nil
		}
		cfg.Mode = mode
	}
	if v := req.GetString("correlation", ""); v != "" {
		strategy, err := timeline.ParseStrategy(v)
		if err != nil {
			return InvalidArgument("correlation", err.Error()), nil
		}
		cfg.Correlation = strategy
	}

	tl, err := session.ReplayStream(strings.NewReader(stream), cfg)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(tl)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
