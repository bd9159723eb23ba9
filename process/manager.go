package process

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/logger"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

type RunState string

const (
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateEnded    RunState = "ended" // no longer held by the manager
)

// ConfigFunc picks the reducer configuration for a call site.
type ConfigFunc func(agent.Target) timeline.Config

// Manager owns the running sessions, at most one per target key.
type Manager struct {
	source         agent.Source
	sessionStore   session.Store
	retainFinished time.Duration

	runsMu sync.Mutex
	runs   map[string]*Run // by key

	configFor ConfigFunc
	listener  TimelineListener

	ctx    context.Context
	cancel context.CancelFunc
}

// Run is one session started by the Manager. Do not cache references across
// restarts of the same key.
type Run struct {
	id      string
	key     string
	request agent.Request
	driver  *Driver
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	err        error
	state      RunState
	startedAt  time.Time
	finishedAt time.Time
}

// RunInfo is a snapshot of a run for listings.
type RunInfo struct {
	SessionID string           `json:"session_id"`
	Key       string           `json:"key"`
	Target    agent.Target     `json:"target"`
	State     RunState         `json:"state"`
	Outcome   timeline.Outcome `json:"outcome"`
	Steps     int              `json:"steps"`
	StartedAt time.Time        `json:"started_at"`
}

// NewManager creates a manager that keeps finished runs in memory for
// retainFinished before reaping them.
func NewManager(src agent.Source, store session.Store, retainFinished time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		source:         src,
		sessionStore:   store,
		retainFinished: retainFinished,
		runs:           make(map[string]*Run),
		configFor:      func(agent.Target) timeline.Config { return timeline.Config{} },
		ctx:            ctx,
		cancel:         cancel,
	}
	go m.runReaper()
	return m
}

func (m *Manager) SetConfigFunc(fn ConfigFunc) {
	m.runsMu.Lock()
	defer m.runsMu.Unlock()
	m.configFor = fn
}

// SetTimelineListener sets the listener for timeline revisions of all runs.
func (m *Manager) SetTimelineListener(l TimelineListener) {
	m.runsMu.Lock()
	defer m.runsMu.Unlock()
	m.listener = l
}

// Start begins a session for req. A live run on the same key is cancelled
// and awaited first; the new run starts from an empty timeline.
func (m *Manager) Start(ctx context.Context, req agent.Request) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.ctx.Err() != nil {
		return nil, errors.New("manager is shut down")
	}

	m.runsMu.Lock()
	cfg := m.configFor(req.Target)
	m.runsMu.Unlock()

	// The recorded config is what a replay reduces with.
	recorded := cfg
	recorded.NewID = nil
	sessionID := uuid.Must(uuid.NewV7()).String()
	meta := session.SessionMeta{ID: sessionID, Request: req, Config: &recorded}
	if _, err := m.sessionStore.Create(ctx, meta); err != nil {
		return nil, err
	}

	m.runsMu.Lock()
	runCtx, cancel := context.WithCancel(m.ctx)
	run := &Run{
		id:        sessionID,
		key:       req.Key(),
		request:   req,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     RunStateRunning,
		startedAt: time.Now(),
	}
	run.driver = NewDriver(sessionID, m.source, req, DriverOptions{
		Config:   cfg,
		Store:    m.sessionStore,
		Listener: m.listener,
	})
	previous := m.runs[run.key]
	m.runs[run.key] = run
	m.runsMu.Unlock()

	if previous != nil {
		previous.cancel()
		<-previous.done
		slog.Info("run replaced", "key", run.key, "previous", previous.id, "sessionId", sessionID)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, "session driver crashed", "sessionId", sessionID)
				run.setDone(errors.New("session driver crashed"))
			}
			cancel()
			close(run.done)
		}()
		err := run.driver.Run(runCtx)
		run.setDone(err)
		slog.Info("run ended", "sessionId", sessionID, "key", run.key, "error", err)
	}()

	slog.Info("run started", "sessionId", sessionID, "key", run.key)
	return run, nil
}

// Get returns the run with the given session ID, or nil.
func (m *Manager) Get(sessionID string) *Run {
	m.runsMu.Lock()
	defer m.runsMu.Unlock()
	for _, run := range m.runs {
		if run.id == sessionID {
			return run
		}
	}
	return nil
}

// GetByKey returns the current run of a target key, or nil.
func (m *Manager) GetByKey(key string) *Run {
	m.runsMu.Lock()
	defer m.runsMu.Unlock()
	return m.runs[key]
}

// GetRunState returns the state of a session's run.
// Returns "ended" if the manager no longer holds it.
func (m *Manager) GetRunState(sessionID string) string {
	run := m.Get(sessionID)
	if run == nil {
		return string(RunStateEnded)
	}
	return string(run.State())
}

// Runs returns a snapshot of all known runs.
func (m *Manager) Runs() []RunInfo {
	m.runsMu.Lock()
	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.runsMu.Unlock()

	infos := make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, run.Info())
	}
	return infos
}

// RunCount returns the number of runs still streaming.
func (m *Manager) RunCount() int {
	n := 0
	for _, info := range m.Runs() {
		if info.State == RunStateRunning {
			n++
		}
	}
	return n
}

// Cancel abandons the run with the given session ID. It reports whether a
// running session was found.
func (m *Manager) Cancel(sessionID string) bool {
	run := m.Get(sessionID)
	if run == nil || run.State() != RunStateRunning {
		return false
	}
	run.cancel()
	<-run.done
	slog.Info("run cancelled", "sessionId", sessionID)
	return true
}

// removeWhere removes runs matching the predicate and returns them.
func (m *Manager) removeWhere(predicate func(*Run) bool) []*Run {
	m.runsMu.Lock()
	defer m.runsMu.Unlock()

	var removed []*Run
	for key, run := range m.runs {
		if predicate(run) {
			removed = append(removed, run)
			delete(m.runs, key)
		}
	}
	return removed
}

// Shutdown cancels all runs and waits for their drivers to return.
func (m *Manager) Shutdown() {
	m.cancel()
	runs := m.removeWhere(func(*Run) bool { return true })
	for _, run := range runs {
		<-run.done
	}
	slog.Info("manager shutdown complete", "runsClosed", len(runs))
}

func (m *Manager) runReaper() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "run reaper crashed")
		}
	}()

	interval := m.retainFinished / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapFinished()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) reapFinished() {
	now := time.Now()
	runs := m.removeWhere(func(r *Run) bool {
		finishedAt, ok := r.FinishedAt()
		return ok && now.Sub(finishedAt) > m.retainFinished
	})
	for _, run := range runs {
		slog.Debug("finished run reaped", "sessionId", run.id)
	}
}

func (r *Run) ID() string             { return r.id }
func (r *Run) Key() string            { return r.key }
func (r *Run) Request() agent.Request { return r.request }

// Done is closed once the driver has returned.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the driver's result once Done is closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) Timeline() timeline.Timeline { return r.driver.Timeline() }

func (r *Run) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) FinishedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt, r.state == RunStateFinished
}

func (r *Run) Info() RunInfo {
	tl := r.Timeline()
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunInfo{
		SessionID: r.id,
		Key:       r.key,
		Target:    r.request.Target,
		State:     r.state,
		Outcome:   tl.Outcome,
		Steps:     len(tl.Steps),
		StartedAt: r.startedAt,
	}
}

func (r *Run) setDone(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RunStateFinished {
		return
	}
	r.err = err
	r.state = RunStateFinished
	r.finishedAt = time.Now()
}
