package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/sse"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// Store persists session metadata and each session's frame log.
type Store interface {
	// Session metadata
	List(ctx context.Context) ([]SessionMeta, error)
	Get(ctx context.Context, sessionID string) (SessionMeta, bool, error)
	Create(ctx context.Context, meta SessionMeta) (SessionMeta, error)
	Finish(ctx context.Context, sessionID string, res Result) error
	Delete(ctx context.Context, sessionID string) error

	// Frame log
	AppendFrame(ctx context.Context, sessionID string, f agent.Frame) error
	Frames(ctx context.Context, sessionID string) ([]agent.Frame, error)

	SetOnChangeListener(l OnChangeListener)
}

// indexData is the structure of index.json.
type indexData struct {
	Sessions []SessionMeta `json:"sessions"`
}

// FileStore implements Store using file system storage. Frame logs are kept
// in text/event-stream form so they can be tailed and decoded like a live
// stream.
type FileStore struct {
	changeNotifier

	dataDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new FileStore with the given data directory.
func NewFileStore(dataDir string) (*FileStore, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dataDir, "sessions", "index.json")
}

// LogPath returns the frame log of a session.
func (s *FileStore) LogPath(sessionID string) string {
	return filepath.Join(s.dataDir, "sessions", sessionID, "stream.sse")
}

func (s *FileStore) readIndex() (indexData, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return indexData{Sessions: []SessionMeta{}}, nil
	}
	if err != nil {
		return indexData{}, err
	}

	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		return indexData{}, fmt.Errorf("read session index: %w", err)
	}
	return idx, nil
}

func (s *FileStore) writeIndex(idx indexData) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath())
}

// List returns all sessions, newest first.
func (s *FileStore) List(_ context.Context) ([]SessionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	return idx.Sessions, nil
}

// Get returns a session by ID. Returns (session, found, error).
func (s *FileStore) Get(_ context.Context, sessionID string) (SessionMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.readIndex()
	if err != nil {
		return SessionMeta{}, false, err
	}

	for _, sess := range idx.Sessions {
		if sess.ID == sessionID {
			return sess, true, nil
		}
	}
	return SessionMeta{}, false, nil
}

// Create records a new running session.
func (s *FileStore) Create(_ context.Context, meta SessionMeta) (SessionMeta, error) {
	meta = newMeta(meta)

	s.mu.Lock()
	idx, err := s.readIndex()
	if err == nil {
		// Prepend new session (newest first)
		idx.Sessions = append([]SessionMeta{meta}, idx.Sessions...)
		err = s.writeIndex(idx)
	}
	s.mu.Unlock()

	if err != nil {
		return SessionMeta{}, err
	}
	s.notify(OperationCreate, meta)
	return meta, nil
}

// Finish records how a session ended.
// Returns ErrSessionNotFound if the session does not exist.
func (s *FileStore) Finish(_ context.Context, sessionID string, res Result) error {
	s.mu.Lock()
	idx, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var updated *SessionMeta
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == sessionID {
			applyResult(&idx.Sessions[i], res)
			updated = &idx.Sessions[i]
			break
		}
	}
	if updated == nil {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	err = s.writeIndex(idx)
	meta := *updated
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(OperationUpdate, meta)
	return nil
}

// Delete removes a session by ID, including its frame log.
// Returns ErrSessionNotFound if the session does not exist.
func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	err := s.delete(sessionID)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(OperationDelete, SessionMeta{ID: sessionID})
	return nil
}

func (s *FileStore) delete(sessionID string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}

	newSessions := make([]SessionMeta, 0, len(idx.Sessions))
	for _, sess := range idx.Sessions {
		if sess.ID != sessionID {
			newSessions = append(newSessions, sess)
		}
	}
	if len(newSessions) == len(idx.Sessions) {
		return ErrSessionNotFound
	}
	idx.Sessions = newSessions

	if err := os.RemoveAll(filepath.Dir(s.LogPath(sessionID))); err != nil {
		return err
	}
	return s.writeIndex(idx)
}

// AppendFrame appends a frame to the session's log.
func (s *FileStore) AppendFrame(_ context.Context, sessionID string, f agent.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.LogPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	return sse.Encode(file, f)
}

// Frames reads the session's log back. A session without a log has no frames.
func (s *FileStore) Frames(_ context.Context, sessionID string) ([]agent.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Open(s.LogPath(sessionID))
	if os.IsNotExist(err) {
		return []agent.Frame{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadFrames(file)
}

// ReadFrames decodes every frame of a recorded stream.
func ReadFrames(r io.Reader) ([]agent.Frame, error) {
	reader := sse.NewReader(r)
	frames := []agent.Frame{}
	for {
		f, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	if n := reader.Decoder().Dropped(); n > 0 {
		slog.Debug("skipped malformed frames in log", "count", n)
	}
	return frames, nil
}

func newMeta(meta SessionMeta) SessionMeta {
	now := time.Now()
	if meta.Key == "" {
		meta.Key = meta.Request.Key()
	}
	if meta.Target == "" {
		meta.Target = meta.Request.Target
	}
	if meta.Title == "" {
		meta.Title = Title(meta.Request)
	}
	if meta.Outcome == "" {
		meta.Outcome = timeline.OutcomeRunning
	}
	meta.CreatedAt = now
	meta.UpdatedAt = now
	return meta
}

func applyResult(meta *SessionMeta, res Result) {
	meta.Outcome = res.Outcome
	meta.FailureReason = res.FailureReason
	if res.UpstreamID != "" {
		meta.UpstreamID = res.UpstreamID
	}
	meta.Steps = res.Steps
	meta.UpdatedAt = time.Now()
}
