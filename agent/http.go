package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHeaderTimeout = 30 * time.Second
	// errorBodyMaxLen limits how much of a failed response is kept in the error.
	errorBodyMaxLen = 512
)

// HTTPSource opens streams against the remote agent service.
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSource creates a source for the service at baseURL.
// Streams are long-lived, so the client has no overall timeout; only
// connecting and waiting for response headers are bounded.
func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				ResponseHeaderTimeout: DefaultHeaderTimeout,
			},
		},
	}
}

// StatusError is returned when the service rejects a stream request.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent service returned %d: %s", e.StatusCode, e.Body)
}

// Open starts the stream described by req.
func (s *HTTPSource) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	path, body := endpoint(req)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMaxLen))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	return resp.Body, nil
}

type documentBody struct {
	ProjectID   string `json:"projectId"`
	DocType     string `json:"docType,omitempty"`
	CustomTitle string `json:"customTitle,omitempty"`
}

type videoBody struct {
	DocumentID string `json:"documentId"`
}

type chatBody struct {
	Messages  []ChatMessage `json:"messages"`
	ProjectID string        `json:"projectId"`
	SessionID string        `json:"sessionId,omitempty"`
}

func endpoint(req Request) (string, any) {
	switch req.Target {
	case TargetVideo:
		return "/api/videos/stream", videoBody{DocumentID: req.DocumentID}
	case TargetChat:
		return "/api/chat", chatBody{Messages: req.Messages, ProjectID: req.ProjectID, SessionID: req.SessionID}
	default:
		return "/api/docs/stream", documentBody{ProjectID: req.ProjectID, DocType: req.DocType, CustomTitle: req.CustomTitle}
	}
}
