package session

import (
	"context"
	"io"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// Replay rebuilds a recorded session's timeline from its frame log, reducing
// with the configuration the session ran with. fallback picks one for records
// that did not keep it; nil means the reducer defaults.
func Replay(ctx context.Context, store Store, sessionID string, fallback func(agent.Target) timeline.Config) (timeline.Timeline, error) {
	meta, found, err := store.Get(ctx, sessionID)
	if err != nil {
		return timeline.Timeline{}, err
	}
	if !found {
		return timeline.Timeline{}, ErrSessionNotFound
	}

	frames, err := store.Frames(ctx, sessionID)
	if err != nil {
		return timeline.Timeline{}, err
	}

	tl := timeline.Fold(configOf(meta, fallback), frames)
	if meta.Outcome.IsFinal() {
		tl = tl.Finish(meta.Outcome)
	}
	return tl, nil
}

func configOf(meta SessionMeta, fallback func(agent.Target) timeline.Config) timeline.Config {
	switch {
	case meta.Config != nil:
		return *meta.Config
	case fallback != nil:
		return fallback(meta.Target)
	default:
		return timeline.Config{}
	}
}

// ReplayStream folds a raw event stream. A stream that ends without a
// terminal frame is incomplete.
func ReplayStream(r io.Reader, cfg timeline.Config) (timeline.Timeline, error) {
	frames, err := ReadFrames(r)
	return timeline.Fold(cfg, frames).Finish(timeline.OutcomeIncomplete), err
}
