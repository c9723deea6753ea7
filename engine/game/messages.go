// Package game implements the authoritative game world: the game actor
// that owns the tile map and brokers every mutation, and the per-tile
// entity actors that execute tile handler functions. Actors are hosted on
// a bollywood engine; each actor processes its mailbox strictly in arrival
// order, and all cross-actor communication is by message.
package game

import (
	"time"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// TPS is the fixed simulation tick rate.
const TPS = 60

const (
	// TickInterval is the nominal time between ticks.
	TickInterval = time.Duration(1_000_000_000 / TPS)
	// MaxAllowedTickInterval is the tick cost above which a warning is
	// logged.
	MaxAllowedTickInterval = 5 * TickInterval

	// TransactionAnimationSpeed is how long an item transfer animates.
	TransactionAnimationSpeed = 800 * time.Millisecond
	// TransactionMinInterval rate-limits recorded transfers per lane.
	TransactionMinInterval = 250 * time.Millisecond
	// TakeItemAnimationSpeed is the GUI item-pickup animation length.
	TakeItemAnimationSpeed = 300 * time.Millisecond
)

// undoCacheSize is the capacity of the undo ring.
const undoCacheSize = 256

// TickUnit counts ticks, wrapping.
type TickUnit = uint16

// FlatTile is a tile snapshot detached from its actor.
type FlatTile struct {
	Coord coord.TileCoord
	Id    id.TileId
	// Data may be nil when the tile had no live entity.
	Data data.DataMap
}

// PlaceTileResponse reports the outcome of a PlaceTile message.
type PlaceTileResponse uint8

const (
	// PlaceIgnored means nothing changed.
	PlaceIgnored PlaceTileResponse = iota
	// PlacePlaced means a tile now occupies the coordinate.
	PlacePlaced
	// PlaceRemoved means the placement removed the prior tile.
	PlaceRemoved
)

// TileMsg is a message handled by a tile entity actor.
type TileMsg interface{ isTileMsg() }

// TileTick runs the tile's tick handler.
type TileTick struct {
	TickCount TickUnit
}

// TileTransaction offers a stack to the tile. Source is the most recent
// forwarder, Root the transaction's originator; both survive proxy chains
// so consume-notifications reach the right tile.
type TileTransaction struct {
	Stack       data.ItemStack
	SourceCoord coord.TileCoord
	SourceId    id.TileId
	RootCoord   coord.TileCoord
	RootId      id.TileId
	// Hidden suppresses the transfer-animation record.
	Hidden bool
}

// TileTransactionResult notifies the transaction root of what was consumed.
type TileTransactionResult struct {
	Stack data.ItemStack
}

// TileExtractRequest asks the tile to push items toward the requester.
type TileExtractRequest struct {
	RequestedFromId    id.TileId
	RequestedFromCoord coord.TileCoord
}

// TileSetData replaces the tile's data map.
type TileSetData struct {
	Data data.DataMap
}

// TileSetDataValue binds one key.
type TileSetDataValue struct {
	Key   id.Id
	Value data.Data
}

// TileRemoveData unbinds one key.
type TileRemoveData struct {
	Key id.Id
}

// TileTakeData moves the data map out, leaving an empty one.
type TileTakeData struct {
	Reply chan<- data.DataMap
}

// TileGetData replies with a clone of the data map.
type TileGetData struct {
	Reply chan<- data.DataMap
}

// TileGetDataValue replies with a clone of one value, or nil.
type TileGetDataValue struct {
	Key   id.Id
	Reply chan<- data.Data
}

// CoordData pairs a tile's coordinate with its data.
type CoordData struct {
	Coord coord.TileCoord
	Data  data.DataMap
}

// TileGetDataWithCoord replies with the tile's coordinate and data clone.
type TileGetDataWithCoord struct {
	Reply chan<- CoordData
}

// TileCollectRenderCommands asks the tile's handler for this frame's render
// deltas. Loading is set when the tile just became visible, Unloading when
// it is about to be culled out or removed. The reply is nil when the tile
// has no render handler.
type TileCollectRenderCommands struct {
	Loading   bool
	Unloading bool
	Reply     chan<- []registry.RenderCommand
}

// TileGetConfigUi asks for the tile's config panel description.
type TileGetConfigUi struct {
	Reply chan<- *registry.UiUnit
}

func (TileTick) isTileMsg()                  {}
func (TileTransaction) isTileMsg()           {}
func (TileTransactionResult) isTileMsg()     {}
func (TileExtractRequest) isTileMsg()        {}
func (TileSetData) isTileMsg()               {}
func (TileSetDataValue) isTileMsg()          {}
func (TileRemoveData) isTileMsg()            {}
func (TileTakeData) isTileMsg()              {}
func (TileGetData) isTileMsg()               {}
func (TileGetDataValue) isTileMsg()          {}
func (TileGetDataWithCoord) isTileMsg()      {}
func (TileCollectRenderCommands) isTileMsg() {}
func (TileGetConfigUi) isTileMsg()           {}

// GameMsg is a message handled by the game actor.
type GameMsg interface{ isGameMsg() }

// Tick advances the world one tick. Only processed while running.
type Tick struct{}

// Pause suspends ticking; data reads keep working.
type Pause struct{}

// Resume continues ticking after a Pause.
type Resume struct{}

// LoadMap loads (or creates) the named map and starts running it.
type LoadMap struct {
	Name  string
	Reply chan<- bool
}

// SaveMap writes the current map to disk.
type SaveMap struct {
	Reply chan<- struct{}
}

// SaveAndUnload saves, stops every tile entity and returns to the unloaded
// state.
type SaveAndUnload struct {
	Reply chan<- struct{}
}

// MapIdAndData is the reply of GetMapIdAndData.
type MapIdAndData struct {
	Name string
	Info MapInfo
	Data data.DataMap
}

// GetMapIdAndData replies with the loaded map's identity and map-level
// data. While unloaded it replies the zero MapIdAndData (empty Name).
type GetMapIdAndData struct {
	Reply chan<- MapIdAndData
}

// ForwardMsgToTile routes a tile message through the game actor, applying
// OnFail against the source tile when the destination is empty.
type ForwardMsgToTile struct {
	Source coord.TileCoord
	To     coord.TileCoord
	Msg    TileMsg
	OnFail registry.OnFailAction
}

// PlaceTile places (or, for the none id, removes) a tile.
type PlaceTile struct {
	Coord  coord.TileCoord
	Id     id.TileId
	Data   data.DataMap
	Record bool
	Reply  chan<- PlaceTileResponse
}

// PlaceTiles is the batch form of PlaceTile. Without a reply channel and
// with Record set, the inverse batch is pushed as one undo step.
type PlaceTiles struct {
	Tiles   []FlatTile
	Replace bool
	Record  bool
	Reply   chan<- []FlatTile
}

// MoveTiles removes the listed tiles and re-places each at
// coord + direction.
type MoveTiles struct {
	Coords    []coord.TileCoord
	Direction coord.TileCoord
	Record    bool
}

// Undo applies the most recent undo step.
type Undo struct{}

// GetTile replies with the tile entry at a coordinate, or nil.
type GetTile struct {
	Coord coord.TileCoord
	Reply chan<- *TileEntry
}

// GetTileFlat replies with a detached tile snapshot, or nil.
type GetTileFlat struct {
	Coord coord.TileCoord
	Reply chan<- *FlatTile
}

// GetTiles replies with the entries present at the given coordinates.
type GetTiles struct {
	Coords []coord.TileCoord
	Reply  chan<- map[coord.TileCoord]TileEntry
}

// GetTilesFlat replies with detached snapshots of the given coordinates,
// collected by fanning out over the tile actors.
type GetTilesFlat struct {
	Coords []coord.TileCoord
	Reply  chan<- []FlatTile
}

// RenderCommandBatches is the reply of GetAllRenderCommands: cleanup
// commands accumulated since the last query, then the fresh frame's
// commands.
type RenderCommandBatches = [2]map[coord.TileCoord][]registry.RenderCommand

// GetAllRenderCommands aggregates every live tile's render deltas under the
// given culling bounds, none-filling newly visible empty coordinates.
type GetAllRenderCommands struct {
	CullingBounds coord.TileBounds
	Reply         chan<- RenderCommandBatches
}

// SendTileMsg forwards a message to the tile at a coordinate, silently
// dropping it when no tile is there. Only processed while running.
type SendTileMsg struct {
	Coord coord.TileCoord
	Msg   TileMsg
}

// SetMapDataValue binds one key of the map-level data: research grants,
// player inventory rewards, puzzle state.
type SetMapDataValue struct {
	Key   id.Id
	Value data.Data
}

// RecordTransaction records an item transfer for the transfer animation.
// Sent by tile entities for non-hidden transactions.
type RecordTransaction struct {
	Stack       data.ItemStack
	SourceCoord coord.TileCoord
	DestCoord   coord.TileCoord
}

// TransactionKey identifies one animation lane between two coordinates.
type TransactionKey struct {
	Source coord.TileCoord
	Dest   coord.TileCoord
}

// TransactionRecord is one recorded transfer.
type TransactionRecord struct {
	At    time.Time
	Stack data.ItemStack
}

// GetTransactionRecords replies with the live (non-expired) transfer
// records.
type GetTransactionRecords struct {
	Reply chan<- map[TransactionKey]TransactionRecord
}

// TileFailed is the supervision event a tile entity reports when its
// handler or lookup panics.
type TileFailed struct {
	Coord coord.TileCoord
	Err   error
}

func (Tick) isGameMsg()                  {}
func (Pause) isGameMsg()                 {}
func (Resume) isGameMsg()                {}
func (LoadMap) isGameMsg()               {}
func (SaveMap) isGameMsg()               {}
func (SaveAndUnload) isGameMsg()         {}
func (GetMapIdAndData) isGameMsg()       {}
func (ForwardMsgToTile) isGameMsg()      {}
func (PlaceTile) isGameMsg()             {}
func (PlaceTiles) isGameMsg()            {}
func (MoveTiles) isGameMsg()             {}
func (Undo) isGameMsg()                  {}
func (GetTile) isGameMsg()               {}
func (GetTileFlat) isGameMsg()           {}
func (GetTiles) isGameMsg()              {}
func (GetTilesFlat) isGameMsg()          {}
func (GetAllRenderCommands) isGameMsg()  {}
func (SendTileMsg) isGameMsg()           {}
func (SetMapDataValue) isGameMsg()       {}
func (RecordTransaction) isGameMsg()     {}
func (GetTransactionRecords) isGameMsg() {}
func (TileFailed) isGameMsg()            {}
