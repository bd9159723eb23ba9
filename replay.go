package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/logger"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/settings"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

type replayOptions struct {
	target      string
	mode        string
	correlation string
	jsonOut     bool
	follow      bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <glob>...",
		Short: "Fold recorded event streams into timelines",
		Long: `Replay decodes recorded text/event-stream files and prints the
resulting timelines. Patterns support ** (e.g. 'sessions/**/stream.sse').
With --follow, a single file is tailed until its stream terminates.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(logger.Config{DevMode: true, Stderr: true})
			cfg, err := opts.config()
			if err != nil {
				return err
			}

			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if opts.follow {
				if len(paths) != 1 {
					return fmt.Errorf("--follow needs exactly one file, got %d", len(paths))
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				return followStream(ctx, out, paths[0], cfg, opts.jsonOut)
			}

			for _, path := range paths {
				tl, err := replayFile(path, cfg)
				if err != nil {
					return err
				}
				if err := printTimeline(out, path, tl, opts.jsonOut); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.target, "target", "", "Reducer profile to use: document, video or chat")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Override the accumulation mode: replace or append")
	cmd.Flags().StringVar(&opts.correlation, "correlation", "", "Override the correlation strategy: id or name")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print timelines as JSON")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow a file as it grows")
	return cmd
}

func (o replayOptions) config() (timeline.Config, error) {
	cfg := timeline.Config{}
	if o.target != "" {
		target := agent.Target(o.target)
		if !target.IsValid() {
			return cfg, fmt.Errorf("unknown target %q", o.target)
		}
		cfg = settings.Default().ConfigFor(target)
	}
	if o.mode != "" {
		mode, err := timeline.ParseMode(o.mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if o.correlation != "" {
		strategy, err := timeline.ParseStrategy(o.correlation)
		if err != nil {
			return cfg, err
		}
		cfg.Correlation = strategy
	}
	return cfg, nil
}

// expandGlobs resolves each pattern; a pattern without matches is an error.
func expandGlobs(patterns []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

func replayFile(path string, cfg timeline.Config) (timeline.Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return timeline.Timeline{}, err
	}
	defer f.Close()

	tl, err := session.ReplayStream(f, cfg)
	if err != nil {
		return tl, fmt.Errorf("read %s: %w", path, err)
	}
	return tl, nil
}

func followStream(ctx context.Context, out io.Writer, path string, cfg timeline.Config, jsonOut bool) error {
	printed := 0
	listener := process.ListenerFunc(func(u process.Update) {
		// Steps are only appended, so print each one once it exists.
		for _, step := range u.Timeline.Steps[printed:] {
			fmt.Fprintln(out, formatStep(step))
		}
		printed = len(u.Timeline.Steps)
	})

	d := process.NewDriver(path, agent.NewTailSource(path), agent.Request{}, process.DriverOptions{
		Config:   cfg,
		Listener: listener,
	})
	err := d.Run(ctx)

	var streamErr *process.StreamError
	if err != nil && !errors.Is(err, process.ErrIncomplete) && !errors.As(err, &streamErr) {
		return err
	}
	return printTimeline(out, path, d.Timeline(), jsonOut)
}

func printTimeline(w io.Writer, path string, tl timeline.Timeline, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Path     string            `json:"path"`
			Timeline timeline.Timeline `json:"timeline"`
		}{path, tl})
	}

	fmt.Fprintf(w, "%s: %s, %d steps", path, tl.Outcome, len(tl.Steps))
	if tl.Anomalies > 0 {
		fmt.Fprintf(w, ", %d anomalies", tl.Anomalies)
	}
	if tl.FailureReason != "" {
		fmt.Fprintf(w, " (%s)", tl.FailureReason)
	}
	fmt.Fprintln(w)
	for _, step := range tl.Steps {
		fmt.Fprintln(w, formatStep(step))
	}
	return nil
}

func formatStep(s timeline.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %3d %-9s %-9s", s.Seq, s.Kind, s.Status)
	switch s.Kind {
	case timeline.KindAction:
		b.WriteString(s.ActionName)
		if s.Summary != "" {
			b.WriteString(": " + logger.Truncate(s.Summary, 80))
		}
	default:
		b.WriteString(logger.Truncate(strings.ReplaceAll(s.Text, "\n", " "), 80))
	}
	return b.String()
}
