package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/sse"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// ErrIncomplete is returned when the transport ends before a complete or
// error frame arrived.
var ErrIncomplete = errors.New("stream ended without a terminal frame")

// StreamError is returned when the agent reported a failure.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "agent error: " + e.Message
}

// Driver runs one session: it reads the source, decodes frames, reduces them
// and hands every revision to the listener. All of it happens on the
// goroutine calling Run.
type Driver struct {
	sessionID string
	key       string
	source    agent.Source
	request   agent.Request
	reducer   *timeline.Reducer
	store     session.Store
	listener  TimelineListener

	mu sync.Mutex
	tl timeline.Timeline
}

// DriverOptions configures optional collaborators of a Driver.
type DriverOptions struct {
	Config   timeline.Config
	Store    session.Store // frame log and outcome; may be nil
	Listener TimelineListener
}

func NewDriver(sessionID string, src agent.Source, req agent.Request, opts DriverOptions) *Driver {
	return &Driver{
		sessionID: sessionID,
		key:       req.Key(),
		source:    src,
		request:   req,
		reducer:   timeline.NewReducer(opts.Config),
		store:     opts.Store,
		listener:  opts.Listener,
		tl:        timeline.New(),
	}
}

// Timeline returns the latest revision. Safe to call from any goroutine.
func (d *Driver) Timeline() timeline.Timeline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tl
}

// Run drives the session to its end. It returns nil after a complete frame
// or a cancellation, *StreamError after an error frame and ErrIncomplete when
// the transport ended first.
func (d *Driver) Run(ctx context.Context) error {
	log := slog.With("sessionId", d.sessionID, "key", d.key)

	rc, err := d.source.Open(ctx, d.request)
	if err != nil {
		if ctx.Err() != nil {
			d.finish(ctx, timeline.OutcomeCancelled)
			return nil
		}
		log.Warn("failed to open stream", "error", err)
		d.finish(ctx, timeline.OutcomeIncomplete)
		return fmt.Errorf("%w: %w", ErrIncomplete, err)
	}

	src := &onceCloser{rc: rc}
	defer src.Close()
	// A cancelled session releases its transport; the pending read fails and
	// the loop below sees ctx.Err.
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()

	reader := sse.NewReader(src)
	reader.Decoder().OnMalformed(func(label agent.EventType, err error) {
		log.Debug("malformed frame dropped", "type", label, "error", err)
	})

	for {
		f, err := reader.Next()
		if ctx.Err() != nil {
			log.Info("session cancelled")
			d.finish(ctx, timeline.OutcomeCancelled)
			return nil
		}
		if err != nil {
			d.finish(ctx, timeline.OutcomeIncomplete)
			if errors.Is(err, io.EOF) {
				log.Warn("stream ended without terminal frame")
				return ErrIncomplete
			}
			log.Warn("stream failed", "error", err)
			return fmt.Errorf("%w: %w", ErrIncomplete, err)
		}

		tl := d.apply(ctx, f)
		if !tl.Terminal() {
			continue
		}

		d.finish(ctx, tl.Outcome)
		if tl.Outcome == timeline.OutcomeFailed {
			log.Info("session failed", "reason", tl.FailureReason)
			return &StreamError{Message: tl.FailureReason}
		}
		log.Info("session complete", "steps", len(tl.Steps))
		return nil
	}
}

func (d *Driver) apply(ctx context.Context, f agent.Frame) timeline.Timeline {
	if d.store != nil {
		if err := d.store.AppendFrame(context.WithoutCancel(ctx), d.sessionID, f); err != nil {
			slog.Error("failed to append frame", "sessionId", d.sessionID, "error", err)
		}
	}

	d.mu.Lock()
	d.tl = d.reducer.Reduce(d.tl, f)
	tl := d.tl
	d.mu.Unlock()

	d.emit(tl)
	return tl
}

// finish records the outcome and emits the final revision.
func (d *Driver) finish(ctx context.Context, o timeline.Outcome) {
	d.mu.Lock()
	d.tl = d.tl.Finish(o)
	tl := d.tl
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.Finish(context.WithoutCancel(ctx), d.sessionID, session.ResultOf(tl)); err != nil {
			slog.Error("failed to record outcome", "sessionId", d.sessionID, "error", err)
		}
	}
	if !tl.Terminal() {
		d.emit(tl)
	}
}

func (d *Driver) emit(tl timeline.Timeline) {
	if d.listener != nil {
		d.listener.OnTimeline(Update{SessionID: d.sessionID, Key: d.key, Timeline: tl})
	}
}

type onceCloser struct {
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.rc.Close() })
	return c.err
}
