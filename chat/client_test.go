package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/settings"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

func frame(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// scriptedSource serves one scripted stream per Open and records requests.
type scriptedSource struct {
	mu       sync.Mutex
	streams  []string
	requests []agent.Request
}

func (s *scriptedSource) Open(ctx context.Context, req agent.Request) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.streams) == 0 {
		return nil, errors.New("no more streams")
	}
	stream := s.streams[0]
	s.streams = s.streams[1:]
	return io.NopCloser(strings.NewReader(stream)), nil
}

func (s *scriptedSource) request(i int) agent.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func newTestClient(t *testing.T, streams ...string) (*Client, *scriptedSource, *session.FileStore) {
	t.Helper()
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{streams: streams}
	manager := process.NewManager(src, store, time.Minute)
	manager.SetConfigFunc(settings.Default().ConfigFor)
	t.Cleanup(manager.Shutdown)
	return NewClient(store, manager, settings.Default().ConfigFor), src, store
}

func TestClient_SessionHandshake(t *testing.T) {
	client, src, _ := newTestClient(t,
		frame("session", `{"sessionId":"up-1"}`)+frame("text", `{"text":"Hello"}`)+frame("text", `{"text":" there"}`)+frame("complete", `{}`),
		frame("text", `{"text":"Again"}`)+frame("complete", `{}`),
	)
	ctx := context.Background()
	conv := client.New("p1")

	reply, err := client.Send(ctx, conv, "hi")
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if reply.Text != "Hello there" {
		t.Errorf("reply = %q, want %q", reply.Text, "Hello there")
	}
	if conv.UpstreamID != "up-1" {
		t.Errorf("upstream id = %q, want up-1", conv.UpstreamID)
	}
	if first := src.request(0); first.SessionID != "" {
		t.Errorf("first request carried session id %q", first.SessionID)
	}

	if _, err := client.Send(ctx, conv, "and again"); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}

	second := src.request(1)
	if second.SessionID != "up-1" {
		t.Errorf("second request session id = %q, want up-1", second.SessionID)
	}
	if len(second.Messages) != 3 {
		t.Fatalf("second request carried %d messages, want 3", len(second.Messages))
	}
	if second.Messages[1].Role != RoleAssistant || second.Messages[1].Content != "Hello there" {
		t.Errorf("unexpected history entry %+v", second.Messages[1])
	}
	if len(conv.Messages) != 4 {
		t.Errorf("conversation has %d messages, want 4", len(conv.Messages))
	}
	// No new session frame: the identifier is kept.
	if conv.UpstreamID != "up-1" {
		t.Errorf("upstream id = %q, want up-1", conv.UpstreamID)
	}
}

func TestClient_FailedTurn(t *testing.T) {
	client, _, _ := newTestClient(t,
		frame("session", `{"sessionId":"up-2"}`)+frame("error", `{"message":"quota exceeded"}`),
	)
	conv := client.New("p1")

	_, err := client.Send(context.Background(), conv, "hi")
	var streamErr *process.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("failed turn changed history: %+v", conv.Messages)
	}
	if conv.UpstreamID != "up-2" {
		t.Errorf("upstream id = %q, want up-2", conv.UpstreamID)
	}
}

func TestClient_IncompleteTurn(t *testing.T) {
	client, _, _ := newTestClient(t, frame("text", `{"text":"partial"}`))

	reply, err := client.Send(context.Background(), client.New("p1"), "hi")
	if !errors.Is(err, process.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if reply.Text != "partial" {
		t.Errorf("reply text = %q, want partial", reply.Text)
	}
}

func TestClient_Resume(t *testing.T) {
	client, _, _ := newTestClient(t,
		frame("session", `{"sessionId":"up-3"}`)+frame("text", `{"text":"Answer"}`)+frame("complete", `{}`),
	)
	ctx := context.Background()
	conv := client.New("p9")
	if _, err := client.Send(ctx, conv, "question"); err != nil {
		t.Fatal(err)
	}

	resumed, err := client.Resume(ctx, conv.LastSessionID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.ProjectID != "p9" || resumed.UpstreamID != "up-3" {
		t.Errorf("unexpected resumed conversation %+v", resumed)
	}
	if len(resumed.Messages) != 2 || resumed.Messages[1].Content != "Answer" {
		t.Errorf("unexpected resumed history %+v", resumed.Messages)
	}
}

func TestClient_Resume_ConfigSource(t *testing.T) {
	ctx := context.Background()
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	req := agent.Request{Target: agent.TargetChat, ProjectID: "p1", Messages: []agent.ChatMessage{{Role: RoleUser, Content: "q"}}}
	recorded := timeline.Config{Mode: timeline.ModeAppend, Correlation: timeline.ByID}

	store.Create(ctx, session.SessionMeta{ID: "with-config", Request: req, Config: &recorded})
	store.Create(ctx, session.SessionMeta{ID: "legacy", Request: req})
	for _, id := range []string{"with-config", "legacy"} {
		store.AppendFrame(ctx, id, agent.NewFrame(agent.DeltaPayload{Label: agent.EventTypeText, Text: "A"}))
		store.Finish(ctx, id, session.Result{Outcome: timeline.OutcomeComplete})
	}

	var asked []agent.Target
	configFor := func(target agent.Target) timeline.Config {
		asked = append(asked, target)
		return settings.Default().ConfigFor(target)
	}
	client := NewClient(store, nil, configFor)

	tests := []struct {
		id        string
		wantAsked int
	}{
		{"with-config", 0},
		{"legacy", 1},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			asked = nil
			conv, err := client.Resume(ctx, tt.id)
			if err != nil {
				t.Fatalf("Resume failed: %v", err)
			}
			if len(asked) != tt.wantAsked {
				t.Errorf("profile lookups = %v, want %d", asked, tt.wantAsked)
			}
			if tt.wantAsked > 0 && asked[0] != agent.TargetChat {
				t.Errorf("profile looked up for %q, want chat", asked[0])
			}
			if last := conv.Messages[len(conv.Messages)-1]; last.Content != "A" {
				t.Errorf("unexpected resumed reply %+v", last)
			}
		})
	}
}

func TestClient_Resume_NotFound(t *testing.T) {
	client, _, _ := newTestClient(t)

	if _, err := client.Resume(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestClient_InvalidRequest(t *testing.T) {
	client, _, _ := newTestClient(t)

	if _, err := client.Send(context.Background(), client.New(""), "hi"); !errors.Is(err, agent.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}
