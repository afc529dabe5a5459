package abr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/metrics"
	"github.com/halcyontv/halcyon/internal/player"
)

// ErrDisposed is returned by mutating operations after Dispose.
var ErrDisposed = errors.New("abr: controller disposed")

// switchHistorySize bounds the audit trail kept for the metrics snapshot.
const switchHistorySize = 20

// SwitchRecord is one entry of the switch audit trail.
type SwitchRecord struct {
	Time      time.Time `json:"time"`
	FromID    int       `json:"fromId"`
	ToID      int       `json:"toId"`
	Reason    string    `json:"reason"`
	Emergency bool      `json:"emergency"`
}

// Controller orchestrates rendition selection for one playback session. It
// consumes playback-engine events, feeds the bandwidth estimator, runs the
// stability policy and issues rendition-change commands back to the
// engine.
//
// All mutation happens under one mutex; events are processed in delivery
// order and each decision runs synchronously to completion, so no two
// decisions are ever in flight at once.
type Controller struct {
	mu sync.Mutex

	sessionID string
	logger    *zap.Logger
	engine    player.Engine
	clock     func() time.Time

	catalog   *Catalog
	estimator *Estimator
	cfg       StabilityConfig

	currentID int
	targetID  int
	auto      bool
	manualID  int

	lastSwitch      time.Time
	startupActive   bool
	startupDeadline time.Time

	history  []SwitchRecord
	disposed bool
}

// NewController creates a controller bound to one engine. The catalog is
// empty until Initialize runs (normally on the manifest-parsed event).
func NewController(engine player.Engine, cfg StabilityConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sessionID: uuid.NewString(),
		logger:    logger.Named("abr-controller"),
		engine:    engine,
		clock:     time.Now,
		estimator: NewEstimator(EstimatorConfig{}),
		cfg:       cfg.Clamped(),
		currentID: AutoLevelID,
		targetID:  AutoLevelID,
		manualID:  AutoLevelID,
		auto:      true,
	}
}

// SessionID identifies this controller in logs and metrics.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// HandleEvent dispatches one tagged playback-engine event.
func (c *Controller) HandleEvent(ev player.Event) {
	switch ev.Kind {
	case player.EventManifestParsed:
		c.Initialize(ev.Levels)
	case player.EventLevelSwitching:
		c.OnLevelSwitching(ev.LevelID)
	case player.EventLevelLoaded:
		c.onLevelLoaded()
	case player.EventFragLoaded:
		c.OnSegmentLoaded(ev.Bytes, ev.LoadEnd.Sub(ev.LoadStart))
	case player.EventError:
		// Recovery is the engine's job; we stay synchronized through the
		// level-switching events it emits afterwards.
		c.logger.Debug("engine error observed",
			zap.Bool("fatal", ev.Fatal),
			zap.String("type", ev.ErrType))
	}
}

// Initialize builds the catalog, resets all selection state, picks the
// startup rendition and arms the startup-phase deadline.
func (c *Controller) Initialize(levels []player.RawLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}

	now := c.clock()
	c.catalog = BuildCatalog(levels)
	c.estimator.Reset()
	c.auto = true
	c.manualID = AutoLevelID
	c.lastSwitch = time.Time{}
	c.history = nil
	c.startupActive = true
	c.startupDeadline = now.Add(StartupPhaseWindow)

	start := StartupLevel(c.catalog, c.cfg.StartupProfile)
	c.currentID = start
	c.targetID = start

	if c.catalog.Empty() {
		c.logger.Warn("initialized with empty catalog, selection disabled",
			zap.String("session", c.sessionID))
		return
	}

	if err := c.engine.SetRenditionLevel(start); err != nil {
		c.logger.Warn("failed to apply startup rendition",
			zap.Int("level", start), zap.Error(err))
	}
	lvl, _ := c.catalog.ByID(start)
	c.logger.Info("session initialized",
		zap.String("session", c.sessionID),
		zap.Int("levels", c.catalog.Len()),
		zap.String("startupProfile", c.cfg.StartupProfile.String()),
		zap.String("startLevel", lvl.Name))
}

// OnSegmentLoaded records the segment's throughput and, in auto mode, runs
// one decision cycle.
func (c *Controller) OnSegmentLoaded(bytes int64, loadDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.catalog.Empty() {
		return
	}
	if bytes <= 0 || loadDuration <= 0 {
		return
	}

	now := c.clock()
	c.estimator.RecordSample(float64(bytes*8) / loadDuration.Seconds())
	c.refreshStartupLocked(now)

	if !c.auto {
		return
	}

	decision := Decide(DecisionInput{
		Catalog:            c.catalog,
		CurrentID:          c.currentID,
		EstimatedBandwidth: c.estimator.Estimate(c.cfg.BandwidthSafetyFactor),
		BufferSeconds:      c.engine.BufferedSeconds(),
		SinceLastSwitch:    now.Sub(c.lastSwitch),
		StartupActive:      c.startupActive,
		ManualOverride:     false,
		Config:             c.cfg,
	})
	if !decision.Switch {
		return
	}
	c.applyDecisionLocked(decision, now)
}

// OnLevelSwitching acknowledges a level change driven from outside the
// policy (the engine switches on its own after fatal-error recovery). The
// controller synchronizes rather than assuming it is the sole writer.
func (c *Controller) OnLevelSwitching(levelID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	if levelID != c.currentID {
		c.logger.Debug("external level switch",
			zap.Int("from", c.currentID), zap.Int("to", levelID))
	}
	c.currentID = levelID
	c.targetID = levelID
	c.lastSwitch = c.clock()
}

// onLevelLoaded only re-evaluates the startup-phase deadline.
func (c *Controller) onLevelLoaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.refreshStartupLocked(c.clock())
}

func (c *Controller) refreshStartupLocked(now time.Time) {
	if c.startupActive && !now.Before(c.startupDeadline) {
		c.startupActive = false
		c.logger.Info("startup phase complete", zap.String("session", c.sessionID))
	}
}

func (c *Controller) applyDecisionLocked(d Decision, now time.Time) {
	from := c.currentID
	if err := c.engine.SetRenditionLevel(d.TargetID); err != nil {
		c.logger.Warn("rendition change rejected by engine",
			zap.Int("target", d.TargetID), zap.Error(err))
		return
	}

	c.history = append(c.history, SwitchRecord{
		Time:      now,
		FromID:    from,
		ToID:      d.TargetID,
		Reason:    d.Reason,
		Emergency: d.Emergency,
	})
	if len(c.history) > switchHistorySize {
		c.history = c.history[1:]
	}

	c.currentID = d.TargetID
	c.targetID = d.TargetID
	c.lastSwitch = now
	metrics.RecordSwitch(c.sessionID, d.TargetID > from, d.Emergency)

	c.logger.Info("rendition switch",
		zap.String("session", c.sessionID),
		zap.Int("from", from),
		zap.Int("to", d.TargetID),
		zap.String("reason", d.Reason),
		zap.Bool("emergency", d.Emergency))
}

// SetManualQuality overrides automatic selection with a fixed rendition,
// or re-enables it when levelID is AutoLevelID. Returning to auto clears
// the bandwidth history.
func (c *Controller) SetManualQuality(levelID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}

	if levelID == AutoLevelID {
		c.auto = true
		c.manualID = AutoLevelID
		c.estimator.Reset()
		c.logger.Info("auto quality re-enabled", zap.String("session", c.sessionID))
		return nil
	}

	if _, ok := c.catalog.ByID(levelID); !ok {
		return fmt.Errorf("abr: unknown level %d", levelID)
	}
	if err := c.engine.SetRenditionLevel(levelID); err != nil {
		return fmt.Errorf("abr: apply manual level %d: %w", levelID, err)
	}

	c.auto = false
	c.manualID = levelID
	c.currentID = levelID
	c.targetID = levelID
	c.lastSwitch = c.clock()
	c.logger.Info("manual quality set",
		zap.String("session", c.sessionID), zap.Int("level", levelID))
	return nil
}

// CurrentQuality returns the selected rendition, or the Auto sentinel when
// no real rendition is selected.
func (c *Controller) CurrentQuality() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lvl, ok := c.catalog.ByID(c.currentID); ok {
		return lvl
	}
	return AutoLevel()
}

// QualityLevels returns the rendition ladder, lowest bitrate first.
func (c *Controller) QualityLevels() []Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Levels()
}

// IsAutoQuality reports whether automatic selection is active.
func (c *Controller) IsAutoQuality() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

// StabilityConfig returns the active configuration.
func (c *Controller) StabilityConfig() StabilityConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateStabilityConfig merges a partial update. The replacement is a
// single assignment, so a decision cycle sees either the old or the new
// config, never a mix.
func (c *Controller) UpdateStabilityConfig(update StabilityUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	cfg, err := update.applyTo(c.cfg)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger.Info("stability config updated",
		zap.String("session", c.sessionID),
		zap.Any("config", cfg.View()))
	return nil
}

// Dispose releases all state. Safe to call more than once; every other
// operation is a no-op or returns ErrDisposed afterwards.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.catalog = nil
	c.estimator.Reset()
	c.history = nil
	metrics.ForgetSession(c.sessionID)
	c.logger.Info("controller disposed", zap.String("session", c.sessionID))
}

// Snapshot captures the observable state for telemetry. Read-only; never
// feeds back into selection.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:     c.sessionID,
		Timestamp:     c.clock(),
		Auto:          c.auto,
		StartupActive: c.startupActive,
		SampleCount:   c.estimator.SampleCount(),
		LevelID:       AutoLevelID,
		LevelName:     AutoLevel().Name,
	}
	if lvl, ok := c.catalog.ByID(c.currentID); ok {
		snap.LevelID = lvl.ID
		snap.LevelName = lvl.Name
	}
	if !c.disposed {
		snap.BandwidthBps = c.estimator.Estimate(1)
		snap.UsableBandwidthBps = c.estimator.Estimate(c.cfg.BandwidthSafetyFactor)
		snap.BufferSeconds = c.engine.BufferedSeconds()
		snap.DroppedFrames = c.engine.DroppedFrames()
	}
	snap.RecentSwitches = append([]SwitchRecord(nil), c.history...)
	return snap
}
