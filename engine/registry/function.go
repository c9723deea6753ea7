package registry

import (
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// TileState is the mutable state a handler runs against: the tile's data
// map plus the persistent handler scope. The tile actor snapshots it
// before every call and restores the snapshot if the handler panics, so a
// failing handler can never corrupt the tile.
type TileState struct {
	Data  data.DataMap
	Scope data.DataMap
}

// Clone deep-copies the state for the restore-on-error contract.
func (s *TileState) Clone() TileState {
	return TileState{Data: s.Data.Clone(), Scope: s.Scope.Clone()}
}

// TickArgs is the argument record of HandleTick.
type TickArgs struct {
	Coord  coord.TileCoord
	Id     id.TileId
	Random int32
}

// TransactionArgs is the argument record of HandleTransaction.
type TransactionArgs struct {
	Coord       coord.TileCoord
	Id          id.TileId
	SourceCoord coord.TileCoord
	SourceId    id.TileId
	RootCoord   coord.TileCoord
	RootId      id.TileId
	Random      int32
	Stack       data.ItemStack
}

// TransactionResultArgs is the argument record of HandleTransactionResult.
type TransactionResultArgs struct {
	Coord       coord.TileCoord
	Id          id.TileId
	Random      int32
	Transferred data.ItemStack
}

// ExtractRequestArgs is the argument record of HandleExtractRequest.
type ExtractRequestArgs struct {
	Coord              coord.TileCoord
	Id                 id.TileId
	Random             int32
	RequestedFromCoord coord.TileCoord
	RequestedFromId    id.TileId
}

// RenderArgs is the argument record of RenderCommands. Loading is set the
// frame a tile becomes visible, Unloading the frame it is culled out or
// removed.
type RenderArgs struct {
	Coord     coord.TileCoord
	Id        id.TileId
	Loading   bool
	Unloading bool
}

// ConfigArgs is the argument record of TileConfig.
type ConfigArgs struct {
	Coord coord.TileCoord
	Id    id.TileId
}

// TileFunction is a tile's handler table: the compiled equivalent of the
// original's per-tile script. Nil fields mean the tile does not handle that
// message. Handlers mutate the passed state in place; a directive return of
// nil means "no directive".
type TileFunction struct {
	// Id identifies the function in logs.
	Id id.Id

	// DefaultScope seeds the tile's persistent handler scope on first use.
	DefaultScope data.DataMap

	HandleTick              func(st *TileState, args TickArgs) TileResult
	HandleTransaction       func(st *TileState, args TransactionArgs) TileTransactionResult
	HandleTransactionResult func(st *TileState, args TransactionResultArgs)
	HandleExtractRequest    func(st *TileState, args ExtractRequestArgs) TileResult
	RenderCommands          func(st *TileState, args RenderArgs) []RenderCommand
	TileConfig              func(st *TileState, args ConfigArgs) *UiUnit
}

// TileResult is a directive returned by tick and extract handlers.
type TileResult interface{ isTileResult() }

// MakeTransaction directs the runtime to send one Transaction per stack to
// the tile at Coord, rooted at the emitting tile.
type MakeTransaction struct {
	Coord       coord.TileCoord
	SourceId    id.TileId
	SourceCoord coord.TileCoord
	Stacks      []data.ItemStack
}

// MakeExtractRequest directs the runtime to ask the tile at Coord for
// items, carrying the recovery policy applied when Coord is empty.
type MakeExtractRequest struct {
	Coord              coord.TileCoord
	RequestedFromId    id.TileId
	RequestedFromCoord coord.TileCoord
	OnFail             OnFailAction
}

func (MakeTransaction) isTileResult()    {}
func (MakeExtractRequest) isTileResult() {}

// TileTransactionResult is a directive returned by transaction handlers.
type TileTransactionResult interface{ isTileTransactionResult() }

// PassOn forwards the stack to another tile, making the emitting tile the
// new source while preserving the root.
type PassOn struct {
	Coord       coord.TileCoord
	Stack       data.ItemStack
	SourceCoord coord.TileCoord
	RootCoord   coord.TileCoord
	RootId      id.TileId
}

// Proxy forwards the stack preserving the external source provenance.
type Proxy struct {
	Coord       coord.TileCoord
	Stack       data.ItemStack
	SourceId    id.TileId
	SourceCoord coord.TileCoord
	RootId      id.TileId
	RootCoord   coord.TileCoord
}

// Consume accepts the stack and notifies the root initiator of what was
// consumed.
type Consume struct {
	Consumed    data.ItemStack
	SourceCoord coord.TileCoord
	RootCoord   coord.TileCoord
}

func (PassOn) isTileTransactionResult()  {}
func (Proxy) isTileTransactionResult()   {}
func (Consume) isTileTransactionResult() {}

// OnFailKind selects the recovery applied to a message's source tile when
// the destination coordinate holds no tile.
type OnFailKind uint8

const (
	// OnFailNone ignores the failure.
	OnFailNone OnFailKind = iota
	// OnFailRemoveTile deletes the source tile.
	OnFailRemoveTile
	// OnFailRemoveAllData clears the source tile's data.
	OnFailRemoveAllData
	// OnFailRemoveData removes one key from the source tile's data.
	OnFailRemoveData
)

// OnFailAction is the recovery policy carried with forwarded tile messages.
type OnFailAction struct {
	Kind OnFailKind
	// Key is the data key removed by OnFailRemoveData.
	Key id.Id
}
