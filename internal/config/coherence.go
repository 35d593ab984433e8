package config

import (
	"fmt"
	"time"
)

// CoherenceConfig configures the coherence engine and belief revision.
type CoherenceConfig struct {
	// CoherenceThreshold is the minimum post-revision coherence score for
	// add-event to report coherence as maintained.
	CoherenceThreshold float64 `yaml:"coherence_threshold"`

	// ContradictionLookback is how far back the contradiction scan queries
	// recent events.
	ContradictionLookback string `yaml:"contradiction_lookback"`

	// LookbackLimit caps how many recent events one scan compares against.
	LookbackLimit int `yaml:"lookback_limit"`

	// OverrideRatio is the evidence-weight ratio beyond which the stronger
	// side overrides the weaker instead of synthesizing.
	OverrideRatio float64 `yaml:"override_ratio"`

	// MaxSynthesisDepth bounds the belief-revision work-list when synthesized
	// events re-enter the add-event pipeline.
	MaxSynthesisDepth int `yaml:"max_synthesis_depth"`
}

// DefaultCoherenceConfig returns the documented default policy.
func DefaultCoherenceConfig() CoherenceConfig {
	return CoherenceConfig{
		CoherenceThreshold:    0.85,
		ContradictionLookback: "24h",
		LookbackLimit:         50,
		OverrideRatio:         1.2,
		MaxSynthesisDepth:     3,
	}
}

// LookbackDuration parses ContradictionLookback, falling back to 24h.
func (c CoherenceConfig) LookbackDuration() time.Duration {
	d, err := time.ParseDuration(c.ContradictionLookback)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Validate checks threshold ranges.
func (c CoherenceConfig) Validate() error {
	if c.CoherenceThreshold < 0 || c.CoherenceThreshold > 1 {
		return fmt.Errorf("coherence_threshold must be in [0,1], got %v", c.CoherenceThreshold)
	}
	if c.OverrideRatio <= 1 {
		return fmt.Errorf("override_ratio must exceed 1, got %v", c.OverrideRatio)
	}
	if c.MaxSynthesisDepth < 1 {
		return fmt.Errorf("max_synthesis_depth must be at least 1, got %d", c.MaxSynthesisDepth)
	}
	return nil
}
