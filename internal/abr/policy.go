package abr

import "time"

const (
	// EmergencyBufferSeconds is the buffer level below which playback is
	// about to starve and the policy drops straight to the floor.
	EmergencyBufferSeconds = 2.0

	// startupBufferMargin widens the upward buffer gate during the startup
	// phase, when buffer measurements are still noisy.
	startupBufferMargin = 1.5

	// StartupPhaseWindow is how long after initialization the startup
	// phase lasts. The first throughput samples are biased by TCP
	// slow-start and should not drive aggressive upward switches.
	StartupPhaseWindow = 30 * time.Second
)

// DecisionInput is the read-only snapshot one decision runs on. The policy
// never retains state between calls.
type DecisionInput struct {
	Catalog        *Catalog
	CurrentID      int
	EstimatedBandwidth float64 // bits/sec, already safety-scaled
	BufferSeconds  float64
	SinceLastSwitch time.Duration
	StartupActive  bool
	ManualOverride bool
	Config         StabilityConfig
}

// Decision is the policy output. A zero Decision means no change.
type Decision struct {
	Switch    bool
	TargetID  int
	Emergency bool
	Reason    string
}

// Decide runs one selection cycle. It is a pure function of its input.
//
// Gate order matters: cooldown applies to everything including emergency
// downgrades (starvation reactions are rate-limited too), hysteresis only
// to downward moves, the buffer gate only to upward moves.
func Decide(in DecisionInput) Decision {
	cfg := in.Config
	if !cfg.Enabled || in.ManualOverride {
		return Decision{}
	}
	if in.Catalog.Empty() {
		return Decision{}
	}
	current, ok := in.Catalog.ByID(in.CurrentID)
	if !ok {
		return Decision{}
	}
	if in.SinceLastSwitch < cfg.QualityCooldown {
		return Decision{}
	}

	// Starvation takes priority over smooth transition: this is the only
	// path allowed to cross more than one rung even with gradual
	// switching on.
	if in.BufferSeconds < EmergencyBufferSeconds && in.CurrentID > in.Catalog.Lowest().ID {
		return Decision{
			Switch:    true,
			TargetID:  in.Catalog.Lowest().ID,
			Emergency: true,
			Reason:    "buffer critical",
		}
	}

	optimal := optimalIndex(in.Catalog, in.EstimatedBandwidth)

	if optimal < in.CurrentID {
		// Don't abandon a rendition the instant bandwidth dips marginally
		// below its bitrate.
		if float64(current.Bitrate) <= in.EstimatedBandwidth*(1+cfg.HysteresisFactor) {
			return Decision{}
		}
	}

	if optimal > in.CurrentID {
		gate := cfg.BufferThreshold
		if in.StartupActive {
			gate *= startupBufferMargin
		}
		if in.BufferSeconds < gate {
			return Decision{}
		}
	}

	if optimal == in.CurrentID {
		return Decision{}
	}

	target := optimal
	reason := "bandwidth headroom"
	if optimal < in.CurrentID {
		reason = "bandwidth shortfall"
	}
	if cfg.GradualSwitch && !in.StartupActive {
		if target > in.CurrentID {
			target = in.CurrentID + 1
		} else {
			target = in.CurrentID - 1
		}
	}

	return Decision{Switch: true, TargetID: target, Reason: reason}
}

// optimalIndex returns the highest-bitrate rendition affordable at the
// given estimate, or the lowest rung when nothing qualifies.
func optimalIndex(c *Catalog, bandwidth float64) int {
	idx := 0
	for _, lvl := range c.levels {
		if float64(lvl.Bitrate) <= bandwidth {
			idx = lvl.ID
		}
	}
	return idx
}

// StartupLevel picks the initial rendition for a fresh session, before any
// throughput samples exist.
func StartupLevel(c *Catalog, profile StartupProfile) int {
	if c.Empty() {
		return AutoLevelID
	}
	switch profile {
	case StartupAggressive:
		// Second-highest rung.
		id := c.Len() - 2
		if id < 0 {
			id = 0
		}
		return id
	case StartupModerate:
		// Roughly one third up the ladder.
		return c.Len() / 3
	default:
		return c.Lowest().ID
	}
}
