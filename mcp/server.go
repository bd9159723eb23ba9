// Package mcp implements a stdio MCP server that exposes recorded agent
// sessions and the stream decoder as tools.
package mcp

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
)

const serverName = "agent-stream"

type Server struct {
	store     session.Store
	configFor process.ConfigFunc
	mcp       *server.MCPServer
}

func NewServer(store session.Store, configFor process.ConfigFunc, version string) *Server {
	s := &Server{store: store, configFor: configFor}
	s.mcp = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("session_list",
		mcp.WithDescription("List recorded agent sessions, newest first, with their outcome and step count."),
		mcp.WithString("target", mcp.Description("Only list sessions of this call site"), mcp.Enum("document", "video", "chat")),
	), s.handleSessionList)

	s.mcp.AddTool(mcp.NewTool("session_get",
		mcp.WithDescription("Get a recorded session's metadata by ID."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.handleSessionGet)

	s.mcp.AddTool(mcp.NewTool("session_timeline",
		mcp.WithDescription("Rebuild a recorded session's timeline of thinking, action and narrative steps from its frame log."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("kind", mcp.Description("Only return steps of this kind"), mcp.Enum("thinking", "action", "narrative", "lifecycle")),
	), s.handleSessionTimeline)

	s.mcp.AddTool(mcp.NewTool("stream_decode",
		mcp.WithDescription("Decode a raw text/event-stream body and fold it into a timeline."),
		mcp.WithString("stream", mcp.Required(), mcp.Description("Raw event stream text")),
		mcp.WithString("target", mcp.Description("Call site whose reducer profile applies"), mcp.Enum("document", "video", "chat")),
		mcp.WithString("mode", mcp.Description("Override the accumulation mode"), mcp.Enum("replace", "append")),
		mcp.WithString("correlation", mcp.Description("Override the result correlation strategy"), mcp.Enum("id", "name")),
	), s.handleStreamDecode)
}

// HandleMessage processes one JSON-RPC message.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

// Run serves MCP over the given stdio pair until ctx is cancelled or in closes.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
