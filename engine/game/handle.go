package game

import (
	"time"

	"github.com/lguibr/bollywood"

	"github.com/Carmen-Shannon/hexfab/common"
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// callTimeout bounds asks made from outside the actor system. Map loads
// and saves can legitimately take a while.
const callTimeout = 5 * time.Second

// Handle is the outside world's reference to a running game actor. It
// wraps the send-plus-await-reply pattern so callers don't deal with reply
// channels directly. Cheap to copy; safe from any goroutine.
type Handle struct {
	Engine *bollywood.Engine
	PID    *bollywood.PID
}

// Send fires a game message without awaiting anything.
func (h Handle) Send(msg GameMsg) {
	h.Engine.Send(h.PID, msg, nil)
}

// await waits for a reply with the call timeout; misses are logged and
// reported as !ok.
func await[T any](ch <-chan T) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(callTimeout):
		common.Logger().Warn("game call timed out")
		var zero T
		return zero, false
	}
}

// LoadMap loads the named map, reporting success.
func (h Handle) LoadMap(name string) bool {
	ch := make(chan bool, 1)
	h.Send(LoadMap{Name: name, Reply: ch})
	ok, _ := await(ch)
	return ok
}

// SaveMap writes the loaded map to disk.
func (h Handle) SaveMap() {
	ch := make(chan struct{}, 1)
	h.Send(SaveMap{Reply: ch})
	_, _ = await(ch)
}

// SaveAndUnload saves, then unloads the map.
func (h Handle) SaveAndUnload() {
	ch := make(chan struct{}, 1)
	h.Send(SaveAndUnload{Reply: ch})
	_, _ = await(ch)
}

// MapIdAndData returns the loaded map's identity and data snapshot.
func (h Handle) MapIdAndData() (MapIdAndData, bool) {
	ch := make(chan MapIdAndData, 1)
	h.Send(GetMapIdAndData{Reply: ch})
	v, ok := await(ch)
	return v, ok && v.Name != ""
}

// PlaceTile places (or removes, for the none id) a tile and reports the
// outcome.
func (h Handle) PlaceTile(c coord.TileCoord, tile id.TileId, tileData data.DataMap, record bool) PlaceTileResponse {
	ch := make(chan PlaceTileResponse, 1)
	h.Send(PlaceTile{Coord: c, Id: tile, Data: tileData, Record: record, Reply: ch})
	v, _ := await(ch)
	return v
}

// PlaceTiles places a batch and returns the displaced tiles.
func (h Handle) PlaceTiles(tiles []FlatTile, replace bool) []FlatTile {
	ch := make(chan []FlatTile, 1)
	h.Send(PlaceTiles{Tiles: tiles, Replace: replace, Reply: ch})
	v, _ := await(ch)
	return v
}

// MoveTiles moves the listed tiles one step along direction.
func (h Handle) MoveTiles(coords []coord.TileCoord, direction coord.TileCoord, record bool) {
	h.Send(MoveTiles{Coords: coords, Direction: direction, Record: record})
}

// Undo reverts the most recent recorded action.
func (h Handle) Undo() {
	h.Send(Undo{})
}

// Pause suspends ticking.
func (h Handle) Pause() {
	h.Send(Pause{})
}

// Resume continues ticking.
func (h Handle) Resume() {
	h.Send(Resume{})
}

// GetTile returns the live tile entry at c, or nil.
func (h Handle) GetTile(c coord.TileCoord) *TileEntry {
	ch := make(chan *TileEntry, 1)
	h.Send(GetTile{Coord: c, Reply: ch})
	v, _ := await(ch)
	return v
}

// GetTileFlat returns a detached snapshot of the tile at c, or nil.
func (h Handle) GetTileFlat(c coord.TileCoord) *FlatTile {
	ch := make(chan *FlatTile, 1)
	h.Send(GetTileFlat{Coord: c, Reply: ch})
	v, _ := await(ch)
	return v
}

// GetTiles returns the live entries present at the given coordinates.
func (h Handle) GetTiles(coords []coord.TileCoord) map[coord.TileCoord]TileEntry {
	ch := make(chan map[coord.TileCoord]TileEntry, 1)
	h.Send(GetTiles{Coords: coords, Reply: ch})
	v, _ := await(ch)
	return v
}

// GetTilesFlat returns detached snapshots of the given coordinates.
func (h Handle) GetTilesFlat(coords []coord.TileCoord) []FlatTile {
	ch := make(chan []FlatTile, 1)
	h.Send(GetTilesFlat{Coords: coords, Reply: ch})
	v, _ := await(ch)
	return v
}

// GetAllRenderCommands aggregates this frame's render deltas under the
// culling bounds. The first batch is cleanup accumulated since the last
// query, the second the fresh commands.
func (h Handle) GetAllRenderCommands(bounds coord.TileBounds) RenderCommandBatches {
	ch := make(chan RenderCommandBatches, 1)
	h.Send(GetAllRenderCommands{CullingBounds: bounds, Reply: ch})
	v, ok := await(ch)
	if !ok {
		return RenderCommandBatches{
			map[coord.TileCoord][]registry.RenderCommand{},
			map[coord.TileCoord][]registry.RenderCommand{},
		}
	}
	return v
}

// TransactionRecords returns the live transfer-animation records.
func (h Handle) TransactionRecords() map[TransactionKey]TransactionRecord {
	ch := make(chan map[TransactionKey]TransactionRecord, 1)
	h.Send(GetTransactionRecords{Reply: ch})
	v, _ := await(ch)
	return v
}

// SendTileMsg forwards a message to the tile at c, dropped when no tile is
// there or the game is not running.
func (h Handle) SendTileMsg(c coord.TileCoord, msg TileMsg) {
	h.Send(SendTileMsg{Coord: c, Msg: msg})
}

// GetTileConfigUi asks the tile at c for its config panel description, or
// nil when the tile has none (or no tile is there).
func (h Handle) GetTileConfigUi(c coord.TileCoord) *registry.UiUnit {
	ch := make(chan *registry.UiUnit, 1)
	h.SendTileMsg(c, TileGetConfigUi{Reply: ch})
	v, _ := await(ch)
	return v
}
