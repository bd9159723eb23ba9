package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Source opens the byte stream of one agent session.
// The returned reader must be closed by the caller; closing it releases the
// underlying transport and is the only cancellation mechanism besides ctx.
type Source interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Target identifies the call site a stream belongs to.
type Target string

const (
	TargetDocument Target = "document"
	TargetVideo    Target = "video"
	TargetChat     Target = "chat"
)

// IsValid returns true if the target is a known call site.
func (t Target) IsValid() bool {
	switch t {
	case TargetDocument, TargetVideo, TargetChat:
		return true
	default:
		return false
	}
}

// ChatMessage is one turn of a chat conversation sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes the stream to open. Which fields apply depends on Target.
type Request struct {
	Target Target `json:"target"`

	// document
	ProjectID   string `json:"project_id,omitempty"`
	DocType     string `json:"doc_type,omitempty"`
	CustomTitle string `json:"custom_title,omitempty"`

	// video
	DocumentID string `json:"document_id,omitempty"`

	// chat (ProjectID is shared)
	Messages  []ChatMessage `json:"messages,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
}

var ErrInvalidRequest = errors.New("invalid request")

// Validate checks that the fields required by the target are present.
func (r Request) Validate() error {
	switch r.Target {
	case TargetDocument:
		if r.ProjectID == "" {
			return fmt.Errorf("%w: project id required", ErrInvalidRequest)
		}
	case TargetVideo:
		if r.DocumentID == "" {
			return fmt.Errorf("%w: document id required", ErrInvalidRequest)
		}
	case TargetChat:
		if r.ProjectID == "" {
			return fmt.Errorf("%w: project id required", ErrInvalidRequest)
		}
		if len(r.Messages) == 0 {
			return fmt.Errorf("%w: at least one message required", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown target %q", ErrInvalidRequest, r.Target)
	}
	return nil
}

// Key names the logical target of the request. Starting a new stream for a
// key that already has one replaces it.
func (r Request) Key() string {
	switch r.Target {
	case TargetDocument:
		docType := r.DocType
		if docType == "" {
			docType = "custom"
		}
		return fmt.Sprintf("document:%s:%s", r.ProjectID, docType)
	case TargetVideo:
		return "video:" + r.DocumentID
	case TargetChat:
		return "chat:" + r.ProjectID
	default:
		return string(r.Target)
	}
}
