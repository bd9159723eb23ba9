package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSource_Open(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantPath string
		wantBody map[string]any
	}{
		{
			name:     "document",
			req:      Request{Target: TargetDocument, ProjectID: "p1", DocType: "overview"},
			wantPath: "/api/docs/stream",
			wantBody: map[string]any{"projectId": "p1", "docType": "overview"},
		},
		{
			name:     "video",
			req:      Request{Target: TargetVideo, DocumentID: "d1"},
			wantPath: "/api/videos/stream",
			wantBody: map[string]any{"documentId": "d1"},
		},
		{
			name:     "chat",
			req:      Request{Target: TargetChat, ProjectID: "p1", SessionID: "s1", Messages: []ChatMessage{{Role: "user", Content: "hi"}}},
			wantPath: "/api/chat",
			wantBody: map[string]any{"projectId": "p1", "sessionId": "s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if r.URL.Path != tt.wantPath {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.wantPath)
				}
				if got := r.Header.Get("Accept"); got != "text/event-stream" {
					t.Errorf("Accept = %q", got)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer secret" {
					t.Errorf("Authorization = %q", got)
				}

				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode body: %v", err)
				}
				for k, v := range tt.wantBody {
					if body[k] != v {
						t.Errorf("body[%s] = %v, want %v", k, body[k], v)
					}
				}

				w.Header().Set("Content-Type", "text/event-stream")
				io.WriteString(w, "event: complete\ndata: {}\n\n")
			}))
			defer srv.Close()

			rc, err := NewHTTPSource(srv.URL+"/", "secret").Open(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer rc.Close()

			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !strings.HasPrefix(string(data), "event: complete") {
				t.Errorf("stream = %q", data)
			}
		})
	}
}

func TestHTTPSource_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "project not indexed", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, "").Open(context.Background(), Request{Target: TargetVideo, DocumentID: "d1"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if statusErr.Body != "project not indexed" {
		t.Errorf("Body = %q", statusErr.Body)
	}
}

func TestHTTPSource_InvalidRequest(t *testing.T) {
	_, err := NewHTTPSource("http://127.0.0.1:0", "").Open(context.Background(), Request{Target: TargetDocument})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}
