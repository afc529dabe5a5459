package abr

import (
	"testing"
	"time"

	"github.com/halcyontv/halcyon/internal/player"
)

func ladder() *Catalog {
	return BuildCatalog([]player.RawLevel{
		{Width: 426, Height: 240, Bitrate: 400_000, Name: "240p"},
		{Width: 854, Height: 480, Bitrate: 1_200_000, Name: "480p"},
		{Width: 1280, Height: 720, Bitrate: 2_500_000, Name: "720p"},
	})
}

func baseInput() DecisionInput {
	cfg := DefaultStabilityConfig()
	cfg.GradualSwitch = false
	return DecisionInput{
		Catalog:            ladder(),
		CurrentID:          1,
		EstimatedBandwidth: 1_500_000,
		BufferSeconds:      20,
		SinceLastSwitch:    time.Minute,
		Config:             cfg,
	}
}

func TestDecideGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DecisionInput)
	}{
		{"disabled", func(in *DecisionInput) { in.Config.Enabled = false }},
		{"manual override", func(in *DecisionInput) { in.ManualOverride = true }},
		{"cooldown active", func(in *DecisionInput) {
			in.SinceLastSwitch = time.Second
			in.Config.QualityCooldown = 5 * time.Second
			in.EstimatedBandwidth = 10_000_000
		}},
		{"empty catalog", func(in *DecisionInput) { in.Catalog = BuildCatalog(nil) }},
		{"unknown current level", func(in *DecisionInput) { in.CurrentID = 42 }},
		{"already optimal", func(in *DecisionInput) { in.EstimatedBandwidth = 1_500_000 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.mutate(&in)
			if d := Decide(in); d.Switch {
				t.Errorf("expected no change, got switch to %d (%s)", d.TargetID, d.Reason)
			}
		})
	}
}

func TestDecideEmergencyDowngrade(t *testing.T) {
	in := baseInput()
	in.CurrentID = 2
	in.BufferSeconds = 1.0
	// Plenty of bandwidth: starvation still wins.
	in.EstimatedBandwidth = 10_000_000
	in.Config.GradualSwitch = true

	d := Decide(in)
	if !d.Switch || !d.Emergency {
		t.Fatalf("expected emergency switch, got %+v", d)
	}
	if d.TargetID != 0 {
		t.Errorf("emergency target = %d, want lowest (0)", d.TargetID)
	}
}

func TestDecideEmergencyStillCooldownGated(t *testing.T) {
	in := baseInput()
	in.CurrentID = 2
	in.BufferSeconds = 0.5
	in.SinceLastSwitch = time.Second
	in.Config.QualityCooldown = 5 * time.Second

	if d := Decide(in); d.Switch {
		t.Errorf("emergency should respect cooldown, got %+v", d)
	}
}

func TestDecideEmergencyNoOpAtLowest(t *testing.T) {
	in := baseInput()
	in.CurrentID = 0
	in.BufferSeconds = 0.5

	if d := Decide(in); d.Switch {
		t.Errorf("already at lowest, got %+v", d)
	}
}

func TestDecideDownwardHysteresis(t *testing.T) {
	tests := []struct {
		name       string
		estimate   float64
		hysteresis float64
		wantSwitch bool
	}{
		// Current is 480p at 1.2 Mbps. Estimate just below: within the
		// 20% margin, hold.
		{"dip within margin", 1_100_000, 0.2, false},
		// 1.2M > 0.9M*1.2=1.08M: margin exceeded, drop.
		{"dip beyond margin", 900_000, 0.2, true},
		// Zero margin: any shortfall drops.
		{"no hysteresis", 1_100_000, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.EstimatedBandwidth = tc.estimate
			in.Config.HysteresisFactor = tc.hysteresis
			d := Decide(in)
			if d.Switch != tc.wantSwitch {
				t.Errorf("switch = %v, want %v (%+v)", d.Switch, tc.wantSwitch, d)
			}
			if tc.wantSwitch && d.TargetID != 0 {
				t.Errorf("target = %d, want 0", d.TargetID)
			}
		})
	}
}

func TestDecideUpwardBufferGate(t *testing.T) {
	tests := []struct {
		name       string
		buffer     float64
		startup    bool
		wantSwitch bool
	}{
		{"buffer below threshold", 5, false, false},
		{"buffer at threshold", 10, false, true},
		{"startup needs extra margin", 12, true, false},
		{"startup margin met", 15, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			in.CurrentID = 0
			in.EstimatedBandwidth = 1_500_000 // affords 480p
			in.BufferSeconds = tc.buffer
			in.StartupActive = tc.startup
			in.Config.BufferThreshold = 10
			d := Decide(in)
			if d.Switch != tc.wantSwitch {
				t.Errorf("switch = %v, want %v", d.Switch, tc.wantSwitch)
			}
		})
	}
}

func TestDecideGradualSteps(t *testing.T) {
	in := baseInput()
	in.CurrentID = 0
	in.EstimatedBandwidth = 10_000_000 // affords 720p outright
	in.Config.GradualSwitch = true

	d := Decide(in)
	if !d.Switch || d.TargetID != 1 {
		t.Fatalf("gradual upward should step one rung, got %+v", d)
	}

	// During startup the clamp is off and the full jump is taken.
	in.StartupActive = true
	in.BufferSeconds = 30
	d = Decide(in)
	if !d.Switch || d.TargetID != 2 {
		t.Fatalf("startup should jump directly, got %+v", d)
	}
}

func TestDecideDirectJumpWhenGradualOff(t *testing.T) {
	in := baseInput()
	in.CurrentID = 0
	in.EstimatedBandwidth = 10_000_000

	d := Decide(in)
	if !d.Switch || d.TargetID != 2 {
		t.Fatalf("expected direct jump to 2, got %+v", d)
	}
}

func TestDecideNothingAffordable(t *testing.T) {
	in := baseInput()
	in.CurrentID = 2
	in.EstimatedBandwidth = 100_000 // below every rung
	in.Config.HysteresisFactor = 0

	d := Decide(in)
	if !d.Switch || d.TargetID != 0 {
		t.Fatalf("expected drop to lowest, got %+v", d)
	}
}

func TestStartupLevel(t *testing.T) {
	cat := ladder()
	tests := []struct {
		profile StartupProfile
		want    int
	}{
		{StartupConservative, 0},
		{StartupModerate, 1},
		{StartupAggressive, 1}, // second-highest of three
	}
	for _, tc := range tests {
		t.Run(tc.profile.String(), func(t *testing.T) {
			if got := StartupLevel(cat, tc.profile); got != tc.want {
				t.Errorf("StartupLevel = %d, want %d", got, tc.want)
			}
		})
	}

	if got := StartupLevel(BuildCatalog(nil), StartupAggressive); got != AutoLevelID {
		t.Errorf("empty catalog startup = %d, want sentinel", got)
	}

	single := BuildCatalog([]player.RawLevel{{Height: 240, Bitrate: 400_000}})
	if got := StartupLevel(single, StartupAggressive); got != 0 {
		t.Errorf("single-level aggressive startup = %d, want 0", got)
	}
}

func TestParseStartupProfile(t *testing.T) {
	for _, p := range []StartupProfile{StartupConservative, StartupModerate, StartupAggressive} {
		got, err := ParseStartupProfile(p.String())
		if err != nil || got != p {
			t.Errorf("round trip failed for %s: %v %v", p, got, err)
		}
	}
	if _, err := ParseStartupProfile("bogus"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestStabilityConfigClamped(t *testing.T) {
	cfg := StabilityConfig{
		BufferThreshold:       -3,
		BandwidthSafetyFactor: 1.7,
		QualityCooldown:       -time.Second,
		HysteresisFactor:      -0.5,
		StartupProfile:        StartupProfile(9),
	}.Clamped()

	if cfg.BufferThreshold != 0 {
		t.Errorf("buffer threshold = %v", cfg.BufferThreshold)
	}
	if cfg.BandwidthSafetyFactor != 1 {
		t.Errorf("safety factor = %v", cfg.BandwidthSafetyFactor)
	}
	if cfg.QualityCooldown != 0 {
		t.Errorf("cooldown = %v", cfg.QualityCooldown)
	}
	if cfg.HysteresisFactor != 0 {
		t.Errorf("hysteresis = %v", cfg.HysteresisFactor)
	}
	if cfg.StartupProfile != StartupConservative {
		t.Errorf("profile = %v", cfg.StartupProfile)
	}
}
