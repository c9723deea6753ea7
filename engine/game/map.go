package game

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lguibr/bollywood"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// TileEntry is one live tile of the map: its definition id and a shared,
// non-owning handle to its actor. Cheap to copy.
type TileEntry struct {
	Id  id.TileId
	PID *bollywood.PID
}

// TileMap maps coordinates to live tiles. Deterministic iteration is done
// by sorting coordinates; the map itself is unordered.
type TileMap = map[coord.TileCoord]TileEntry

// MapInfo is the save metadata of a map.
type MapInfo struct {
	// SaveID identifies one save lineage across renames.
	SaveID uuid.UUID `json:"save_id"`
	// TileCount is the number of tiles in the last save.
	TileCount uint64 `json:"tile_count"`
	// SaveTime is the last save time as a UTC Unix timestamp.
	SaveTime int64 `json:"save_time"`
}

// GameMap is the loaded world: the live tile map plus the map-level data.
// MapData holds process-level bookkeeping, notably the player inventory
// and the research progression sets under reserved keys.
type GameMap struct {
	Name    string
	Info    MapInfo
	Tiles   TileMap
	MapData data.DataMap
}

// NewEmptyMap creates a fresh map with no tiles.
func NewEmptyMap(name string) *GameMap {
	return &GameMap{
		Name:    name,
		Info:    MapInfo{SaveID: uuid.New()},
		Tiles:   make(TileMap),
		MapData: data.NewDataMap(),
	}
}

// winIllegalNames are the device names Windows refuses as file names.
var winIllegalNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "CLOCK$": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeMapName rewrites a user-supplied map name so it is usable as a
// directory name on every platform: whitespace and periods trimmed,
// non-alphanumerics replaced, Windows device names escaped.
func SanitizeMapName(name string) string {
	if name == "" {
		return "empty"
	}
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ".")

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name = b.String()
	if name == "" {
		return "empty"
	}

	if _, bad := winIllegalNames[strings.ToUpper(name)]; bad {
		return "_" + name
	}
	return name
}
