// Package abr implements adaptive-bitrate rendition selection with a
// stability layer: hysteresis, switch cooldown, startup profiles, gradual
// stepping and buffer-aware gating on top of raw bandwidth telemetry.
package abr

import (
	"fmt"
	"sort"

	"github.com/halcyontv/halcyon/internal/player"
)

// AutoLevelID is the sentinel identifier for automatic selection. It is
// never a member of the bitrate-ordered ladder.
const AutoLevelID = -1

// Level is one rendition of the current asset. Immutable once the catalog
// is built.
type Level struct {
	ID      int    `json:"id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Bitrate int64  `json:"bitrate"` // bits per second
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
}

// AutoLevel returns the synthetic "Auto" entry reported while no real
// rendition is selected.
func AutoLevel() Level {
	return Level{ID: AutoLevelID, Name: "Auto"}
}

// Catalog holds the rendition ladder for one asset, sorted ascending by
// bitrate. IDs are assigned after sorting, so ID and ladder index agree.
type Catalog struct {
	levels []Level
}

// BuildCatalog constructs a catalog from raw manifest levels. A zero-length
// input yields an empty catalog; every selection against it is a no-op.
func BuildCatalog(raw []player.RawLevel) *Catalog {
	levels := make([]Level, 0, len(raw))
	for _, r := range raw {
		lvl := Level{
			Width:   r.Width,
			Height:  r.Height,
			Bitrate: r.Bitrate,
			Name:    r.Name,
			URL:     r.URL,
		}
		if lvl.Bitrate < 0 {
			lvl.Bitrate = 0
		}
		if lvl.Name == "" {
			lvl.Name = defaultLevelName(lvl)
		}
		levels = append(levels, lvl)
	}

	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Bitrate < levels[j].Bitrate
	})
	for i := range levels {
		levels[i].ID = i
	}

	return &Catalog{levels: levels}
}

func defaultLevelName(lvl Level) string {
	if lvl.Height > 0 {
		return fmt.Sprintf("%dp", lvl.Height)
	}
	return fmt.Sprintf("%d kbps", lvl.Bitrate/1000)
}

// Empty reports whether the catalog holds no real renditions.
func (c *Catalog) Empty() bool {
	return c == nil || len(c.levels) == 0
}

// Len returns the number of real renditions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.levels)
}

// Levels returns a copy of the ladder, lowest bitrate first.
func (c *Catalog) Levels() []Level {
	if c == nil {
		return nil
	}
	out := make([]Level, len(c.levels))
	copy(out, c.levels)
	return out
}

// ByID looks up a rendition by identifier.
func (c *Catalog) ByID(id int) (Level, bool) {
	if c == nil || id < 0 || id >= len(c.levels) {
		return Level{}, false
	}
	return c.levels[id], true
}

// Lowest returns the cheapest rendition. Only valid on a non-empty catalog.
func (c *Catalog) Lowest() Level {
	return c.levels[0]
}

// Highest returns the most expensive rendition. Only valid on a non-empty
// catalog.
func (c *Catalog) Highest() Level {
	return c.levels[len(c.levels)-1]
}
