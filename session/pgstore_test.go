package session

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

func openTestPGStore(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := OpenPGStore(context.Background(), url)
	if err != nil {
		t.Fatalf("OpenPGStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPGStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestPGStore(t)
	id := uuid.NewString()
	t.Cleanup(func() { store.Delete(context.Background(), id) })

	cfg := timeline.Config{Mode: timeline.ModeAppend, Correlation: timeline.ByName}
	if _, err := store.Create(ctx, SessionMeta{ID: id, Request: docRequest("p1"), Config: &cfg}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw := agent.Frame{Type: agent.EventTypeStatus, Payload: agent.StatusPayload{Message: "a"}, Raw: []byte(`{"message":  "a"}`)}
	if err := store.AppendFrame(ctx, id, raw); err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	store.AppendFrame(ctx, id, agent.NewFrame(agent.CompletePayload{}))

	frames, err := store.Frames(ctx, id)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if string(frames[0].Raw) != `{"message":  "a"}` {
		t.Errorf("Raw = %s, want bytes preserved", frames[0].Raw)
	}

	if err := store.Finish(ctx, id, Result{Outcome: timeline.OutcomeComplete, UpstreamID: "up"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	meta, found, err := store.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("Get: %v %v", found, err)
	}
	if meta.Outcome != timeline.OutcomeComplete || meta.UpstreamID != "up" || meta.Request.ProjectID != "p1" {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Config == nil || meta.Config.Mode != timeline.ModeAppend || meta.Config.Correlation != timeline.ByName {
		t.Errorf("Config = %+v", meta.Config)
	}

	if err := store.Finish(ctx, uuid.NewString(), Result{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Finish(missing) = %v", err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if frames, _ := store.Frames(ctx, id); len(frames) != 0 {
		t.Errorf("frames survived delete: %d", len(frames))
	}
}
