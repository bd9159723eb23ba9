// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket communication.
// These types represent the params and result structures for all RPC methods.
package rpc

import (
	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
	Title   string `json:"title"`
}

// Session management

type SessionStartParams struct {
	agent.Request
}

type SessionStartResult struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
}

type SessionCancelParams struct {
	SessionID string `json:"session_id"`
}

type SessionCancelResult struct {
	Cancelled bool `json:"cancelled"`
}

type SessionDeleteParams struct {
	SessionID string `json:"session_id"`
}

type SessionReplayParams struct {
	SessionID string `json:"session_id"`
}

// SessionListItem is a recorded session enriched with its runtime state.
type SessionListItem struct {
	session.SessionMeta
	State string `json:"state"`
}

type SessionListResult struct {
	Sessions []SessionListItem `json:"sessions"`
}

type SessionListSubscribeResult struct {
	ID       string            `json:"id"`
	Sessions []SessionListItem `json:"sessions"`
}

// Timeline subscriptions

// TimelineSubscribeParams names a session id or a target key. A key
// subscription follows restarts of the same target.
type TimelineSubscribeParams struct {
	SessionID string `json:"session_id,omitempty"`
	Key       string `json:"key,omitempty"`
}

type TimelineSubscribeResult struct {
	ID       string             `json:"id"`
	Timeline *timeline.Timeline `json:"timeline,omitempty"`
}

type UnsubscribeParams struct {
	ID string `json:"id"`
}

// Server → Client

// TimelineUpdatedParams is sent as timeline.updated.
type TimelineUpdatedParams struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Key       string            `json:"key"`
	Timeline  timeline.Timeline `json:"timeline"`
}

// SessionListChangedParams is sent as session.list.changed.
type SessionListChangedParams struct {
	ID        string           `json:"id"`
	Operation string           `json:"operation"`
	Session   *SessionListItem `json:"session,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
}
