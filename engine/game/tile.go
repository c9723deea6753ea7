package game

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/lguibr/bollywood"

	"github.com/Carmen-Shannon/hexfab/common"
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// ErrNonExistent reports that a tile entity's definition id no longer
// resolves. It is the only tile-entity error kind the game actor reacts
// to: the coordinate is removed from the map.
type ErrNonExistent struct {
	Coord coord.TileCoord
}

func (e ErrNonExistent) Error() string {
	return fmt.Sprintf("the tile id at %s is no longer existent", e.Coord)
}

// TileEntity is the actor owning one tile's data map. It executes the
// tile's handler functions in response to messages and forwards their
// directives through the game actor.
type TileEntity struct {
	reg     *registry.Registry
	engine  *bollywood.Engine
	gamePID *bollywood.PID
	selfPID *bollywood.PID

	id    id.TileId
	coord coord.TileCoord

	state registry.TileState
	// scopeReady is set once the handler scope has been cloned from the
	// function's default scope.
	scopeReady bool
}

var _ bollywood.Actor = &TileEntity{}

// NewTileEntityProducer creates a producer for a tile entity actor.
func NewTileEntityProducer(reg *registry.Registry, engine *bollywood.Engine, gamePID *bollywood.PID, tileId id.TileId, c coord.TileCoord) bollywood.Producer {
	return func() bollywood.Actor {
		return &TileEntity{
			reg:     reg,
			engine:  engine,
			gamePID: gamePID,
			id:      tileId,
			coord:   c,
			state:   registry.TileState{Data: data.NewDataMap(), Scope: data.NewDataMap()},
		}
	}
}

// Receive is the tile entity's message handler. A panic anywhere in the
// handler is reported to the game actor as a TileFailed supervision event
// rather than crashing the process.
func (e *TileEntity) Receive(ctx bollywood.Context) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("tile entity panic: %v", r)
			}
			common.Logger().Error("tile entity failed", "coord", e.coord, "err", err)
			e.engine.Send(e.gamePID, TileFailed{Coord: e.coord, Err: err}, e.selfPID)
		}
	}()

	switch m := ctx.Message().(type) {
	case bollywood.Started:
		e.selfPID = ctx.Self()

	case bollywood.Stopping, bollywood.Stopped:

	case TileTick:
		if res := e.callTick(registry.TickArgs{Coord: e.coord, Id: e.id, Random: random()}); res != nil {
			e.dispatchTileResult(res)
		}

	case TileTransaction:
		record := e.transaction(m)
		if record != nil && !m.Hidden {
			e.engine.Send(e.gamePID, *record, e.selfPID)
		}

	case TileTransactionResult:
		e.callTransactionResult(registry.TransactionResultArgs{
			Coord:       e.coord,
			Id:          e.id,
			Random:      random(),
			Transferred: m.Stack,
		})

	case TileExtractRequest:
		if res := e.callExtractRequest(registry.ExtractRequestArgs{
			Coord:              e.coord,
			Id:                 e.id,
			Random:             random(),
			RequestedFromCoord: m.RequestedFromCoord,
			RequestedFromId:    m.RequestedFromId,
		}); res != nil {
			e.dispatchTileResult(res)
		}

	case TileSetData:
		e.state.Data = m.Data

	case TileSetDataValue:
		e.state.Data.Set(m.Key, m.Value)

	case TileRemoveData:
		e.state.Data.Remove(m.Key)

	case TileTakeData:
		taken := e.state.Data
		e.state.Data = data.NewDataMap()
		replySafe(m.Reply, taken)

	case TileGetData:
		replySafe(m.Reply, e.state.Data.Clone())

	case TileGetDataValue:
		var v data.Data
		if got := e.state.Data.Get(m.Key); got != nil {
			v = got.Clone()
		}
		replySafe(m.Reply, v)

	case TileGetDataWithCoord:
		replySafe(m.Reply, CoordData{Coord: e.coord, Data: e.state.Data.Clone()})

	case TileCollectRenderCommands:
		replySafe(m.Reply, e.callRenderCommands(registry.RenderArgs{
			Coord:     e.coord,
			Id:        e.id,
			Loading:   m.Loading,
			Unloading: m.Unloading,
		}))

	case TileGetConfigUi:
		replySafe(m.Reply, e.callTileConfig(registry.ConfigArgs{Coord: e.coord, Id: e.id}))
	}
}

// function resolves the tile's handler table, panicking with ErrNonExistent
// when the definition id no longer resolves. The panic is turned into a
// supervision event by Receive.
func (e *TileEntity) function() *registry.TileFunction {
	def, ok := e.reg.TileDef(e.id)
	if !ok {
		panic(ErrNonExistent{Coord: e.coord})
	}
	return def.Function
}

// ensureScope lazily clones the function's default scope into the tile.
func (e *TileEntity) ensureScope(fn *registry.TileFunction) {
	if e.scopeReady {
		return
	}
	if fn.DefaultScope != nil {
		e.state.Scope = fn.DefaultScope.Clone()
	}
	e.scopeReady = true
}

// invoke runs one handler with the restore-on-error contract: the state is
// snapshotted before the call and restored if the handler panics, and the
// failure is logged with the handler name and function id.
func (e *TileEntity) invoke(fn *registry.TileFunction, handler string, call func()) {
	e.ensureScope(fn)
	snapshot := e.state.Clone()

	defer func() {
		if r := recover(); r != nil {
			e.state = snapshot
			common.Logger().Error("tile handler failed",
				"handler", handler,
				"function", fn.Id,
				"coord", e.coord,
				"err", r,
			)
		}
	}()

	call()
}

func (e *TileEntity) callTick(args registry.TickArgs) registry.TileResult {
	fn := e.function()
	if fn == nil || fn.HandleTick == nil {
		return nil
	}
	var res registry.TileResult
	e.invoke(fn, "handle_tick", func() {
		res = fn.HandleTick(&e.state, args)
	})
	return res
}

func (e *TileEntity) callTransaction(args registry.TransactionArgs) registry.TileTransactionResult {
	fn := e.function()
	if fn == nil || fn.HandleTransaction == nil {
		return nil
	}
	var res registry.TileTransactionResult
	e.invoke(fn, "handle_transaction", func() {
		res = fn.HandleTransaction(&e.state, args)
	})
	return res
}

func (e *TileEntity) callTransactionResult(args registry.TransactionResultArgs) {
	fn := e.function()
	if fn == nil || fn.HandleTransactionResult == nil {
		return
	}
	e.invoke(fn, "handle_transaction_result", func() {
		fn.HandleTransactionResult(&e.state, args)
	})
}

func (e *TileEntity) callExtractRequest(args registry.ExtractRequestArgs) registry.TileResult {
	fn := e.function()
	if fn == nil || fn.HandleExtractRequest == nil {
		return nil
	}
	var res registry.TileResult
	e.invoke(fn, "handle_extract_request", func() {
		res = fn.HandleExtractRequest(&e.state, args)
	})
	return res
}

func (e *TileEntity) callRenderCommands(args registry.RenderArgs) []registry.RenderCommand {
	fn := e.function()
	if fn == nil || fn.RenderCommands == nil {
		return nil
	}
	var res []registry.RenderCommand
	e.invoke(fn, "render_commands", func() {
		res = fn.RenderCommands(&e.state, args)
	})
	return res
}

func (e *TileEntity) callTileConfig(args registry.ConfigArgs) *registry.UiUnit {
	fn := e.function()
	if fn == nil || fn.TileConfig == nil {
		return nil
	}
	var res *registry.UiUnit
	e.invoke(fn, "tile_config", func() {
		res = fn.TileConfig(&e.state, args)
	})
	return res
}

// transaction runs the transaction handler and dispatches its directive,
// returning the transfer record to report when the transaction is not
// hidden.
func (e *TileEntity) transaction(m TileTransaction) *RecordTransaction {
	res := e.callTransaction(registry.TransactionArgs{
		Coord:       e.coord,
		Id:          e.id,
		SourceCoord: m.SourceCoord,
		SourceId:    m.SourceId,
		RootCoord:   m.RootCoord,
		RootId:      m.RootId,
		Random:      random(),
		Stack:       m.Stack,
	})
	if res == nil {
		return nil
	}
	return e.dispatchTransactionResult(res)
}

// dispatchTileResult executes a tick/extract directive.
func (e *TileEntity) dispatchTileResult(res registry.TileResult) {
	switch d := res.(type) {
	case registry.MakeTransaction:
		for _, stack := range d.Stacks {
			e.sendToTile(d.SourceCoord, d.Coord, TileTransaction{
				Stack:       stack,
				SourceCoord: d.SourceCoord,
				SourceId:    d.SourceId,
				RootCoord:   d.SourceCoord,
				RootId:      d.SourceId,
			}, registry.OnFailAction{})
		}

	case registry.MakeExtractRequest:
		e.sendToTile(d.RequestedFromCoord, d.Coord, TileExtractRequest{
			RequestedFromId:    d.RequestedFromId,
			RequestedFromCoord: d.RequestedFromCoord,
		}, d.OnFail)
	}
}

// dispatchTransactionResult executes a transaction directive and returns
// the transfer record it implies.
func (e *TileEntity) dispatchTransactionResult(res registry.TileTransactionResult) *RecordTransaction {
	switch d := res.(type) {
	case registry.PassOn:
		e.sendToTile(e.coord, d.Coord, TileTransaction{
			Stack:       d.Stack,
			SourceCoord: e.coord,
			SourceId:    e.id,
			RootCoord:   d.RootCoord,
			RootId:      d.RootId,
		}, registry.OnFailAction{})

		return &RecordTransaction{Stack: d.Stack, SourceCoord: d.SourceCoord, DestCoord: e.coord}

	case registry.Proxy:
		e.sendToTile(e.coord, d.Coord, TileTransaction{
			Stack:       d.Stack,
			SourceCoord: d.SourceCoord,
			SourceId:    d.SourceId,
			RootCoord:   d.RootCoord,
			RootId:      d.RootId,
		}, registry.OnFailAction{})

		return &RecordTransaction{Stack: d.Stack, SourceCoord: e.coord, DestCoord: d.Coord}

	case registry.Consume:
		e.sendToTile(e.coord, d.RootCoord, TileTransactionResult{Stack: d.Consumed}, registry.OnFailAction{})

		return &RecordTransaction{Stack: d.Consumed, SourceCoord: d.SourceCoord, DestCoord: e.coord}
	}

	return nil
}

// sendToTile routes a tile message through the game actor so the on-fail
// policy can be applied when the destination is empty.
func (e *TileEntity) sendToTile(source, to coord.TileCoord, msg TileMsg, onFail registry.OnFailAction) {
	e.engine.Send(e.gamePID, ForwardMsgToTile{
		Source: source,
		To:     to,
		Msg:    msg,
		OnFail: onFail,
	}, e.selfPID)
}

// replySafe delivers a reply without ever blocking or panicking: the
// channel is buffered by the asker, and an abandoned (closed) reply is
// logged and swallowed.
func replySafe[T any](ch chan<- T, v T) {
	if ch == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Warn("reply channel closed", "err", r)
		}
	}()
	select {
	case ch <- v:
	default:
		common.Logger().Warn("reply channel full, dropping reply")
	}
}

// random draws the handler random argument.
func random() int32 {
	return int32(rand.Uint32())
}

// IsNonExistent reports whether err is a tile-nonexistence error and
// extracts the coordinate.
func IsNonExistent(err error) (coord.TileCoord, bool) {
	var ne ErrNonExistent
	if errors.As(err, &ne) {
		return ne.Coord, true
	}
	return coord.TileCoord{}, false
}
