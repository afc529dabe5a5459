// Package player defines the boundary between the quality controller and
// the external playback engine. The engine downloads, demuxes and decodes
// media segments on its own; this package only models the events it emits
// and the commands it accepts, so nothing else in the codebase depends on
// the engine's own types.
package player

import "time"

// EventKind tags an inbound playback-engine event.
type EventKind int

const (
	EventManifestParsed EventKind = iota
	EventLevelSwitching
	EventLevelLoaded
	EventFragLoaded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventManifestParsed:
		return "manifest-parsed"
	case EventLevelSwitching:
		return "level-switching"
	case EventLevelLoaded:
		return "level-loaded"
	case EventFragLoaded:
		return "frag-loaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// RawLevel describes one rendition as reported by the engine's manifest.
// Bitrate is in bits per second; a missing bitrate is reported as 0.
type RawLevel struct {
	Width   int
	Height  int
	Bitrate int64
	Name    string
	URL     string
}

// Event is the tagged form of a playback-engine callback. Only the fields
// relevant to the Kind are populated.
type Event struct {
	Kind EventKind

	// EventManifestParsed
	Levels []RawLevel

	// EventLevelSwitching
	LevelID int

	// EventFragLoaded
	Bytes     int64
	LoadStart time.Time
	LoadEnd   time.Time

	// EventError. Fatal errors are recovered by the engine itself; the
	// controller only observes the level changes that result.
	Fatal   bool
	ErrType string
}

// Engine is the command and stat surface the controller uses. The engine
// owns segment scheduling and playback; SetRenditionLevel is the only
// mutating command issued from this side.
type Engine interface {
	SetRenditionLevel(levelID int) error

	// BufferedSeconds reports playable media buffered ahead of the
	// play-head.
	BufferedSeconds() float64

	// DroppedFrames reports the engine's cumulative dropped-frame count.
	DroppedFrames() uint64
}
