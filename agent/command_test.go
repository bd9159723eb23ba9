package agent

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandSource_Stream(t *testing.T) {
	requireShell(t)

	src := NewCommandSource(t.TempDir(), "sh", "-c", `cat >/dev/null; printf 'event: complete\ndata: {}\n\n'`)
	rc, err := src.Open(context.Background(), Request{Target: TargetVideo, DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "event: complete\ndata: {}\n\n" {
		t.Errorf("stream = %q", data)
	}
}

func TestCommandSource_ReceivesRequest(t *testing.T) {
	requireShell(t)

	src := NewCommandSource(t.TempDir(), "sh", "-c", "cat")
	rc, err := src.Open(context.Background(), Request{Target: TargetVideo, DocumentID: "d42"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if !strings.Contains(string(data), `"document_id":"d42"`) {
		t.Errorf("stdin = %q", data)
	}
}

func TestCommandSource_FailureCarriesStderr(t *testing.T) {
	requireShell(t)

	src := NewCommandSource(t.TempDir(), "sh", "-c", "cat >/dev/null; echo 'agent crashed' >&2; exit 3")
	rc, err := src.Open(context.Background(), Request{Target: TargetVideo, DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	_, err = io.ReadAll(rc)
	if err == nil || !strings.Contains(err.Error(), "agent crashed") {
		t.Errorf("err = %v, want stderr in message", err)
	}
}

func TestCommandSource_MissingBinary(t *testing.T) {
	src := NewCommandSource(t.TempDir(), "definitely-not-a-real-binary-xyz")
	if _, err := src.Open(context.Background(), Request{Target: TargetVideo, DocumentID: "d1"}); err == nil {
		t.Error("expected error for missing binary")
	}
}
