// Package chat drives the chat call site: it keeps the conversation history
// and carries the agent's session identifier into the next request.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Runner starts and cancels streams. *process.Manager satisfies it.
type Runner interface {
	Start(ctx context.Context, req agent.Request) (*process.Run, error)
	Cancel(sessionID string) bool
}

// Client coordinates chat turns across the session store and the run manager.
type Client struct {
	store     session.Store
	runs      Runner
	configFor process.ConfigFunc
}

// NewClient returns a chat client. configFor is used to replay recorded chats
// that did not keep their reducer configuration.
func NewClient(store session.Store, runs Runner, configFor process.ConfigFunc) *Client {
	return &Client{store: store, runs: runs, configFor: configFor}
}

// Conversation is the client-side state of one chat. It is not safe for
// concurrent use; turns of a conversation are sequential.
type Conversation struct {
	ProjectID string
	Messages  []agent.ChatMessage
	// UpstreamID is the agent's session identifier from the last turn's
	// session frame. Empty until the agent announces one.
	UpstreamID string
	// LastSessionID is the local session that recorded the last turn.
	LastSessionID string
}

// Reply is the outcome of one turn.
type Reply struct {
	SessionID string
	Text      string
	Timeline  timeline.Timeline
}

func (c *Client) New(projectID string) *Conversation {
	return &Conversation{ProjectID: projectID}
}

// Resume rebuilds a conversation from a recorded chat session: the request's
// history plus the reply the session produced.
func (c *Client) Resume(ctx context.Context, sessionID string) (*Conversation, error) {
	meta, found, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !found || meta.Target != agent.TargetChat {
		return nil, ErrSessionNotFound
	}

	tl, err := session.Replay(ctx, c.store, sessionID, c.configFor)
	if err != nil {
		return nil, fmt.Errorf("replay session: %w", err)
	}

	conv := &Conversation{
		ProjectID:     meta.Request.ProjectID,
		Messages:      append([]agent.ChatMessage(nil), meta.Request.Messages...),
		UpstreamID:    meta.UpstreamID,
		LastSessionID: sessionID,
	}
	if tl.Text != "" {
		conv.Messages = append(conv.Messages, agent.ChatMessage{Role: RoleAssistant, Content: tl.Text})
	}
	return conv, nil
}

// Send runs one turn and waits for it to finish. On success the user message
// and the reply are appended to the history. A failed turn leaves the history
// unchanged but still keeps a session identifier the agent announced.
func (c *Client) Send(ctx context.Context, conv *Conversation, content string) (Reply, error) {
	messages := append(append([]agent.ChatMessage(nil), conv.Messages...),
		agent.ChatMessage{Role: RoleUser, Content: content})

	req := agent.Request{
		Target:    agent.TargetChat,
		ProjectID: conv.ProjectID,
		Messages:  messages,
		SessionID: conv.UpstreamID,
	}
	run, err := c.runs.Start(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	select {
	case <-run.Done():
	case <-ctx.Done():
		c.runs.Cancel(run.ID())
		return Reply{}, ctx.Err()
	}

	tl := run.Timeline()
	conv.LastSessionID = run.ID()
	if tl.SessionID != "" {
		conv.UpstreamID = tl.SessionID
	}
	reply := Reply{SessionID: run.ID(), Text: tl.Text, Timeline: tl}

	if err := run.Err(); err != nil {
		slog.Warn("chat turn failed", "sessionId", run.ID(), "projectId", conv.ProjectID, "error", err)
		return reply, err
	}

	conv.Messages = append(messages, agent.ChatMessage{Role: RoleAssistant, Content: tl.Text})
	return reply, nil
}
