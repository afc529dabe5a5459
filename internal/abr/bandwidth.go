package abr

import "sort"

const (
	// DefaultSampleCapacity bounds the throughput history window.
	DefaultSampleCapacity = 10

	// DefaultEstimatePercentile picks which sorted sample represents the
	// estimate. A low percentile biases toward the worse recent
	// measurements: good spikes must repeat to raise the estimate, while
	// one bad sample pulls it down quickly.
	DefaultEstimatePercentile = 0.25

	// DefaultBandwidthBps is assumed before any sample has been recorded.
	DefaultBandwidthBps = 1_000_000
)

// EstimatorConfig tunes the bandwidth estimator. Zero values fall back to
// the package defaults.
type EstimatorConfig struct {
	Capacity         int
	Percentile       float64
	DefaultBandwidth float64
}

func (c EstimatorConfig) withDefaults() EstimatorConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultSampleCapacity
	}
	if c.Percentile <= 0 || c.Percentile >= 1 {
		c.Percentile = DefaultEstimatePercentile
	}
	if c.DefaultBandwidth <= 0 {
		c.DefaultBandwidth = DefaultBandwidthBps
	}
	return c
}

// Estimator keeps a bounded FIFO window of per-segment throughput samples
// and produces a conservative low-percentile estimate.
//
// Not safe for concurrent use; the controller is the only writer.
type Estimator struct {
	cfg     EstimatorConfig
	samples []float64
}

// NewEstimator creates an estimator with the given tuning.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	cfg = cfg.withDefaults()
	return &Estimator{
		cfg:     cfg,
		samples: make([]float64, 0, cfg.Capacity),
	}
}

// RecordSample appends one measured throughput value in bits per second,
// evicting the oldest sample once the window is full.
func (e *Estimator) RecordSample(bitsPerSecond float64) {
	if len(e.samples) >= e.cfg.Capacity {
		e.samples = e.samples[1:]
	}
	e.samples = append(e.samples, bitsPerSecond)
}

// Estimate returns the low-percentile throughput scaled by safetyFactor.
// With no samples it falls back to the configured default bandwidth.
func (e *Estimator) Estimate(safetyFactor float64) float64 {
	value := e.cfg.DefaultBandwidth
	if len(e.samples) > 0 {
		sorted := make([]float64, len(e.samples))
		copy(sorted, e.samples)
		sort.Float64s(sorted)
		idx := int(float64(len(sorted)) * e.cfg.Percentile)
		value = sorted[idx]
	}
	return value * safetyFactor
}

// SampleCount reports how many samples are currently held.
func (e *Estimator) SampleCount() int {
	return len(e.samples)
}

// Reset discards all samples. Called when returning to auto mode from a
// manual override, and when the asset changes: stale samples from a
// different quality regime should not bias the resumed selection.
func (e *Estimator) Reset() {
	e.samples = e.samples[:0]
}
