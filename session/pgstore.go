package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS stream_sessions (
	id             TEXT PRIMARY KEY,
	key            TEXT NOT NULL,
	target         TEXT NOT NULL,
	title          TEXT NOT NULL,
	request        JSONB NOT NULL,
	outcome        TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	upstream_id    TEXT NOT NULL DEFAULT '',
	steps          INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
ALTER TABLE stream_sessions ADD COLUMN IF NOT EXISTS config JSONB;
CREATE INDEX IF NOT EXISTS stream_sessions_created_idx ON stream_sessions (created_at DESC);
CREATE TABLE IF NOT EXISTS stream_frames (
	session_id TEXT NOT NULL REFERENCES stream_sessions (id) ON DELETE CASCADE,
	seq        BIGSERIAL,
	type       TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, seq)
);`

const sessionCols = "id, key, target, title, request, outcome, failure_reason, upstream_id, steps, created_at, updated_at, config"

// PGStore implements Store on PostgreSQL. Frame data is stored as text so a
// replay sees the payload bytes exactly as received.
type PGStore struct {
	changeNotifier

	pool *pgxpool.Pool
}

// OpenPGStore connects to databaseURL and creates the schema if needed.
func OpenPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPGStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) List(ctx context.Context) ([]SessionMeta, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+sessionCols+" FROM stream_sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMeta)
}

func (s *PGStore) Get(ctx context.Context, sessionID string) (SessionMeta, bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+sessionCols+" FROM stream_sessions WHERE id = $1", sessionID)
	if err != nil {
		return SessionMeta{}, false, err
	}
	meta, err := pgx.CollectExactlyOneRow(rows, scanMeta)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionMeta{}, false, nil
	}
	if err != nil {
		return SessionMeta{}, false, err
	}
	return meta, true, nil
}

func (s *PGStore) Create(ctx context.Context, meta SessionMeta) (SessionMeta, error) {
	meta = newMeta(meta)
	req, err := json.Marshal(meta.Request)
	if err != nil {
		return SessionMeta{}, err
	}
	var cfg []byte
	if meta.Config != nil {
		if cfg, err = json.Marshal(meta.Config); err != nil {
			return SessionMeta{}, err
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO stream_sessions (`+sessionCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		meta.ID, meta.Key, string(meta.Target), meta.Title, req, string(meta.Outcome),
		meta.FailureReason, meta.UpstreamID, meta.Steps, meta.CreatedAt, meta.UpdatedAt, cfg)
	if err != nil {
		return SessionMeta{}, err
	}

	s.notify(OperationCreate, meta)
	return meta, nil
}

func (s *PGStore) Finish(ctx context.Context, sessionID string, res Result) error {
	rows, err := s.pool.Query(ctx,
		`UPDATE stream_sessions SET
		   outcome = $2,
		   failure_reason = $3,
		   upstream_id = COALESCE(NULLIF($4::text, ''), upstream_id),
		   steps = $5,
		   updated_at = now()
		 WHERE id = $1
		 RETURNING `+sessionCols,
		sessionID, string(res.Outcome), res.FailureReason, res.UpstreamID, res.Steps)
	if err != nil {
		return err
	}
	meta, err := pgx.CollectExactlyOneRow(rows, scanMeta)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	s.notify(OperationUpdate, meta)
	return nil
}

func (s *PGStore) Delete(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM stream_sessions WHERE id = $1", sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	s.notify(OperationDelete, SessionMeta{ID: sessionID})
	return nil
}

func (s *PGStore) AppendFrame(ctx context.Context, sessionID string, f agent.Frame) error {
	rec := f.ToRecord()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO stream_frames (session_id, type, data) VALUES ($1, $2, $3)",
		sessionID, string(rec.Type), string(rec.Data))
	return err
}

func (s *PGStore) Frames(ctx context.Context, sessionID string) ([]agent.Frame, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT type, data FROM stream_frames WHERE session_id = $1 ORDER BY seq", sessionID)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (agent.EventRecord, error) {
		var typ, data string
		if err := row.Scan(&typ, &data); err != nil {
			return agent.EventRecord{}, err
		}
		return agent.EventRecord{Type: agent.EventType(typ), Data: json.RawMessage(data)}, nil
	})
	if err != nil {
		return nil, err
	}

	frames := make([]agent.Frame, 0, len(records))
	for _, rec := range records {
		f, err := rec.ToFrame()
		if err != nil {
			slog.Debug("skipping stored frame", "sessionId", sessionID, "type", rec.Type, "error", err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func scanMeta(row pgx.CollectableRow) (SessionMeta, error) {
	var (
		meta            SessionMeta
		target, outcome string
		req, cfg        []byte
	)
	err := row.Scan(&meta.ID, &meta.Key, &target, &meta.Title, &req, &outcome,
		&meta.FailureReason, &meta.UpstreamID, &meta.Steps, &meta.CreatedAt, &meta.UpdatedAt, &cfg)
	if err != nil {
		return SessionMeta{}, err
	}
	meta.Target = agent.Target(target)
	meta.Outcome = timeline.Outcome(outcome)
	if err := json.Unmarshal(req, &meta.Request); err != nil {
		return SessionMeta{}, fmt.Errorf("decode request of %s: %w", meta.ID, err)
	}
	if len(cfg) > 0 {
		meta.Config = &timeline.Config{}
		if err := json.Unmarshal(cfg, meta.Config); err != nil {
			return SessionMeta{}, fmt.Errorf("decode config of %s: %w", meta.ID, err)
		}
	}
	return meta, nil
}
