package abr

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/metrics"
)

// DefaultTelemetryInterval is how often the reporter snapshots a session.
const DefaultTelemetryInterval = 2 * time.Second

// Snapshot is one periodic telemetry observation of a session.
type Snapshot struct {
	SessionID          string         `json:"sessionId"`
	Timestamp          time.Time      `json:"timestamp"`
	BandwidthBps       float64        `json:"bandwidthBps"`
	UsableBandwidthBps float64        `json:"usableBandwidthBps"`
	LevelID            int            `json:"levelId"`
	LevelName          string         `json:"levelName"`
	BufferSeconds      float64        `json:"bufferSeconds"`
	DroppedFrames      uint64         `json:"droppedFrames"`
	Auto               bool           `json:"auto"`
	StartupActive      bool           `json:"startupActive"`
	SampleCount        int            `json:"sampleCount"`
	RecentSwitches     []SwitchRecord `json:"recentSwitches,omitempty"`
}

// Reporter periodically snapshots one controller and fans the snapshot out
// to registered subscribers and Prometheus. It owns its ticker and
// releases it deterministically in Close; it never feeds back into the
// selection path.
type Reporter struct {
	mu         sync.Mutex
	controller *Controller
	interval   time.Duration
	logger     *zap.Logger

	subs   map[int]func(Snapshot)
	nextID int

	done    chan struct{}
	started bool
	closed  bool
}

// NewReporter creates a reporter for one controller. A non-positive
// interval falls back to DefaultTelemetryInterval.
func NewReporter(controller *Controller, interval time.Duration, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultTelemetryInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		controller: controller,
		interval:   interval,
		logger:     logger.Named("telemetry"),
		subs:       make(map[int]func(Snapshot)),
		done:       make(chan struct{}),
	}
}

// Register adds a subscriber and returns a handle for Unregister.
// Subscribers are invoked from the reporter's own goroutine and must not
// block.
func (r *Reporter) Register(fn func(Snapshot)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return id
}

// Unregister removes a subscriber. Unknown handles are ignored.
func (r *Reporter) Unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Start launches the periodic snapshot loop. Calling Start twice is a
// no-op.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run()
}

func (r *Reporter) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.publish(r.controller.Snapshot())
		}
	}
}

func (r *Reporter) publish(snap Snapshot) {
	metrics.ObserveSession(snap.SessionID, snap.BandwidthBps, snap.BufferSeconds,
		snap.LevelID, snap.DroppedFrames)

	r.mu.Lock()
	fns := make([]func(Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Close stops the loop and drops all subscribers. Idempotent.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
	r.subs = make(map[int]func(Snapshot))
}
