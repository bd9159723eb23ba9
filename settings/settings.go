// Package settings provides server-side settings management.
package settings

import (
	"fmt"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// Profile is the reducer configuration of one call site.
type Profile struct {
	Mode             timeline.Mode     `json:"mode"`
	Correlation      timeline.Strategy `json:"correlation"`
	LifecycleMarkers bool              `json:"lifecycle_markers,omitempty"`
}

func (p Profile) Validate() error {
	if _, err := timeline.ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if _, err := timeline.ParseStrategy(string(p.Correlation)); err != nil {
		return err
	}
	return nil
}

// Config converts the profile to a reducer configuration.
func (p Profile) Config() timeline.Config {
	mode, _ := timeline.ParseMode(string(p.Mode))
	strategy, _ := timeline.ParseStrategy(string(p.Correlation))
	return timeline.Config{
		Mode:             mode,
		Correlation:      strategy,
		LifecycleMarkers: p.LifecycleMarkers,
	}
}

type Settings struct {
	Profiles map[agent.Target]Profile `json:"profiles"`
}

// Default returns the stock profiles. Document and video progress notes
// replace the live thinking step; chat keeps every delta in one step.
func Default() Settings {
	return Settings{
		Profiles: map[agent.Target]Profile{
			agent.TargetDocument: {Mode: timeline.ModeReplace, Correlation: timeline.ByID},
			agent.TargetVideo:    {Mode: timeline.ModeReplace, Correlation: timeline.ByID},
			agent.TargetChat:     {Mode: timeline.ModeAppend, Correlation: timeline.ByID},
		},
	}
}

func (s Settings) Validate() error {
	for target, p := range s.Profiles {
		if !target.IsValid() {
			return fmt.Errorf("unknown target %q", target)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", target, err)
		}
	}
	return nil
}

// ConfigFor returns the reducer configuration for a target. Targets without
// a profile use the stock one.
func (s Settings) ConfigFor(target agent.Target) timeline.Config {
	if p, ok := s.Profiles[target]; ok {
		return p.Config()
	}
	if p, ok := Default().Profiles[target]; ok {
		return p.Config()
	}
	return timeline.Config{}
}
