package abr

import (
	"fmt"
	"time"
)

// StartupProfile selects how aggressively the first rendition is chosen
// before any throughput samples exist.
type StartupProfile int

const (
	StartupConservative StartupProfile = iota
	StartupModerate
	StartupAggressive
)

func (p StartupProfile) String() string {
	switch p {
	case StartupConservative:
		return "conservative"
	case StartupModerate:
		return "moderate"
	case StartupAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// ParseStartupProfile converts a string to a StartupProfile.
func ParseStartupProfile(s string) (StartupProfile, error) {
	switch s {
	case "conservative":
		return StartupConservative, nil
	case "moderate":
		return StartupModerate, nil
	case "aggressive":
		return StartupAggressive, nil
	default:
		return 0, fmt.Errorf("invalid startup profile: %s", s)
	}
}

// StabilityConfig tunes the selection policy. All fields may change at
// runtime; updates are applied as a single assignment and take effect on
// the next decision cycle.
type StabilityConfig struct {
	// Enabled turns automatic selection on or off entirely.
	Enabled bool

	// BufferThreshold is the minimum buffered seconds required before an
	// upward switch is allowed.
	BufferThreshold float64

	// BandwidthSafetyFactor is the fraction of the estimated bandwidth
	// usable for selection, in [0,1].
	BandwidthSafetyFactor float64

	// QualityCooldown is the minimum time between two switches.
	QualityCooldown time.Duration

	// GradualSwitch steps one rendition at a time instead of jumping
	// straight to the destination.
	GradualSwitch bool

	// StartupProfile picks the initial rendition.
	StartupProfile StartupProfile

	// HysteresisFactor is the extra margin, in [0,1], the current
	// rendition's bitrate must exceed the estimate by before it is
	// abandoned downward.
	HysteresisFactor float64
}

// DefaultStabilityConfig returns the tuning used when nothing is
// configured.
func DefaultStabilityConfig() StabilityConfig {
	return StabilityConfig{
		Enabled:               true,
		BufferThreshold:       10,
		BandwidthSafetyFactor: 0.7,
		QualityCooldown:       5 * time.Second,
		GradualSwitch:         true,
		StartupProfile:        StartupConservative,
		HysteresisFactor:      0.2,
	}
}

// Clamped returns a copy with every field forced into its valid range.
// Out-of-range values are clamped rather than rejected so a bad settings
// write can never wedge playback.
func (c StabilityConfig) Clamped() StabilityConfig {
	if c.BufferThreshold < 0 {
		c.BufferThreshold = 0
	}
	c.BandwidthSafetyFactor = clamp01(c.BandwidthSafetyFactor)
	c.HysteresisFactor = clamp01(c.HysteresisFactor)
	if c.QualityCooldown < 0 {
		c.QualityCooldown = 0
	}
	if c.StartupProfile < StartupConservative || c.StartupProfile > StartupAggressive {
		c.StartupProfile = StartupConservative
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StabilityUpdate is a partial runtime update. Nil fields keep their
// current value.
type StabilityUpdate struct {
	Enabled               *bool    `json:"enabled,omitempty"`
	BufferThreshold       *float64 `json:"bufferThreshold,omitempty"`
	BandwidthSafetyFactor *float64 `json:"bandwidthSafetyFactor,omitempty"`
	QualityCooldownMs     *int64   `json:"qualityCooldownMs,omitempty"`
	GradualSwitch         *bool    `json:"gradualSwitch,omitempty"`
	StartupProfile        *string  `json:"startupProfile,omitempty"`
	HysteresisFactor      *float64 `json:"hysteresisFactor,omitempty"`
}

// applyTo merges the update into cfg and clamps the result.
func (u StabilityUpdate) applyTo(cfg StabilityConfig) (StabilityConfig, error) {
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.BufferThreshold != nil {
		cfg.BufferThreshold = *u.BufferThreshold
	}
	if u.BandwidthSafetyFactor != nil {
		cfg.BandwidthSafetyFactor = *u.BandwidthSafetyFactor
	}
	if u.QualityCooldownMs != nil {
		cfg.QualityCooldown = time.Duration(*u.QualityCooldownMs) * time.Millisecond
	}
	if u.GradualSwitch != nil {
		cfg.GradualSwitch = *u.GradualSwitch
	}
	if u.StartupProfile != nil {
		profile, err := ParseStartupProfile(*u.StartupProfile)
		if err != nil {
			return cfg, err
		}
		cfg.StartupProfile = profile
	}
	if u.HysteresisFactor != nil {
		cfg.HysteresisFactor = *u.HysteresisFactor
	}
	return cfg.Clamped(), nil
}

// ConfigView is the JSON shape of the active configuration.
type ConfigView struct {
	Enabled               bool    `json:"enabled"`
	BufferThreshold       float64 `json:"bufferThreshold"`
	BandwidthSafetyFactor float64 `json:"bandwidthSafetyFactor"`
	QualityCooldownMs     int64   `json:"qualityCooldownMs"`
	GradualSwitch         bool    `json:"gradualSwitch"`
	StartupProfile        string  `json:"startupProfile"`
	HysteresisFactor      float64 `json:"hysteresisFactor"`
}

// View converts the config to its JSON shape.
func (c StabilityConfig) View() ConfigView {
	return ConfigView{
		Enabled:               c.Enabled,
		BufferThreshold:       c.BufferThreshold,
		BandwidthSafetyFactor: c.BandwidthSafetyFactor,
		QualityCooldownMs:     c.QualityCooldown.Milliseconds(),
		GradualSwitch:         c.GradualSwitch,
		StartupProfile:        c.StartupProfile.String(),
		HysteresisFactor:      c.HysteresisFactor,
	}
}
