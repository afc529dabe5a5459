package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyontv/halcyon/internal/player"
)

// JSON-RPC methods spoken with remote playback engines. Inbound methods
// are notifications from the player; engine.setLevel is the single
// outbound command.
const (
	methodManifestParsed = "engine.manifestParsed"
	methodLevelSwitching = "engine.levelSwitching"
	methodLevelLoaded    = "engine.levelLoaded"
	methodFragLoaded     = "engine.fragLoaded"
	methodBuffer         = "engine.buffer"
	methodError          = "engine.error"
	methodSetLevel       = "engine.setLevel"
)

type levelParam struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Bitrate int64  `json:"bitrate"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
}

type manifestParams struct {
	Levels []levelParam `json:"levels"`
}

type levelSwitchParams struct {
	LevelID int `json:"levelId"`
}

type fragParams struct {
	Bytes       int64 `json:"bytes"`
	LoadStartMs int64 `json:"loadStartMs"` // unix milliseconds
	LoadEndMs   int64 `json:"loadEndMs"`
}

type errorParams struct {
	Fatal bool   `json:"fatal"`
	Type  string `json:"type"`
}

type bufferParams struct {
	BufferedSeconds float64 `json:"bufferedSeconds"`
	DroppedFrames   uint64  `json:"droppedFrames"`
}

type setLevelParams struct {
	LevelID int `json:"levelId"`
}

// decodeEvent translates one inbound notification into a tagged engine
// event. engine.buffer is handled separately because it updates engine
// stats rather than driving the controller.
func decodeEvent(method string, params json.RawMessage) (player.Event, error) {
	switch method {
	case methodManifestParsed:
		var p manifestParams
		if err := json.Unmarshal(params, &p); err != nil {
			return player.Event{}, fmt.Errorf("bad %s params: %w", method, err)
		}
		levels := make([]player.RawLevel, 0, len(p.Levels))
		for _, l := range p.Levels {
			levels = append(levels, player.RawLevel{
				Width:   l.Width,
				Height:  l.Height,
				Bitrate: l.Bitrate,
				Name:    l.Name,
				URL:     l.URL,
			})
		}
		return player.Event{Kind: player.EventManifestParsed, Levels: levels}, nil

	case methodLevelSwitching:
		var p levelSwitchParams
		if err := json.Unmarshal(params, &p); err != nil {
			return player.Event{}, fmt.Errorf("bad %s params: %w", method, err)
		}
		return player.Event{Kind: player.EventLevelSwitching, LevelID: p.LevelID}, nil

	case methodLevelLoaded:
		return player.Event{Kind: player.EventLevelLoaded}, nil

	case methodFragLoaded:
		var p fragParams
		if err := json.Unmarshal(params, &p); err != nil {
			return player.Event{}, fmt.Errorf("bad %s params: %w", method, err)
		}
		return player.Event{
			Kind:      player.EventFragLoaded,
			Bytes:     p.Bytes,
			LoadStart: time.UnixMilli(p.LoadStartMs),
			LoadEnd:   time.UnixMilli(p.LoadEndMs),
		}, nil

	case methodError:
		var p errorParams
		if err := json.Unmarshal(params, &p); err != nil {
			return player.Event{}, fmt.Errorf("bad %s params: %w", method, err)
		}
		return player.Event{Kind: player.EventError, Fatal: p.Fatal, ErrType: p.Type}, nil

	default:
		return player.Event{}, fmt.Errorf("unknown engine method: %s", method)
	}
}
