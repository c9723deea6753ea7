package game

import (
	"fmt"
	"time"

	"github.com/lguibr/bollywood"

	"github.com/Carmen-Shannon/hexfab/common"
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// askTimeout bounds every ask the game actor makes against a tile actor.
// A timed-out ask is treated as "no reply" and logged.
const askTimeout = 1 * time.Second

type gamePhase uint8

const (
	phaseUnloaded gamePhase = iota
	phaseRunning
	phasePaused
	phaseStopped
)

// GameSystem is the actor owning the authoritative game world. It is the
// sole mutator of the tile map: every place, remove and move serializes
// through its mailbox, and all tile-to-tile routing passes through it so
// on-fail policies can be applied.
type GameSystem struct {
	reg     *registry.Registry
	engine  *bollywood.Engine
	selfPID *bollywood.PID
	saveDir string

	phase     gamePhase
	tickCount TickUnit
	gameMap   *GameMap

	undoSteps             undoRing
	cleanupRenderCommands map[coord.TileCoord][]registry.RenderCommand
	lastCullingBounds     coord.TileBounds
	transactions          map[TransactionKey]TransactionRecord

	// tileGen disambiguates actor names when a coordinate is reused.
	tileGen uint64

	tickLoop   bool
	stopTicker chan struct{}
}

var _ bollywood.Actor = &GameSystem{}

// GameSystemOption configures a GameSystem producer.
type GameSystemOption func(*GameSystem)

// WithoutTickLoop disables the built-in interval timer; ticks must then be
// driven by sending Tick messages explicitly. Used by tests and headless
// tools.
func WithoutTickLoop() GameSystemOption {
	return func(g *GameSystem) {
		g.tickLoop = false
	}
}

// NewGameSystemProducer creates a producer for the game actor. saveDir is
// the root directory maps are saved under.
func NewGameSystemProducer(reg *registry.Registry, engine *bollywood.Engine, saveDir string, options ...GameSystemOption) bollywood.Producer {
	return func() bollywood.Actor {
		g := &GameSystem{
			reg:                   reg,
			engine:                engine,
			saveDir:               saveDir,
			cleanupRenderCommands: make(map[coord.TileCoord][]registry.RenderCommand),
			transactions:          make(map[TransactionKey]TransactionRecord),
			tickLoop:              true,
			stopTicker:            make(chan struct{}),
		}
		for _, option := range options {
			option(g)
		}
		return g
	}
}

// Receive is the game actor's message handler.
func (g *GameSystem) Receive(ctx bollywood.Context) {
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("game actor recovered", "err", r)
		}
	}()

	switch m := ctx.Message().(type) {
	case bollywood.Started:
		g.selfPID = ctx.Self()
		if g.tickLoop {
			go g.runTickLoop()
		}

	case bollywood.Stopping:
		g.shutdown()

	case bollywood.Stopped:

	case Tick:
		if g.phase == phaseRunning {
			g.tick()
		}

	case Pause:
		if g.phase == phaseRunning {
			g.phase = phasePaused
		}

	case Resume:
		if g.phase == phasePaused {
			g.phase = phaseRunning
		}

	case LoadMap:
		g.handleLoadMap(m)

	case SaveMap:
		if g.gameMap != nil {
			g.saveMap()
		}
		replySafe(m.Reply, struct{}{})

	case SaveAndUnload:
		if g.gameMap != nil {
			g.saveMap()
			g.unloadMap()
		}
		replySafe(m.Reply, struct{}{})

	case GetMapIdAndData:
		if g.gameMap == nil {
			replySafe(m.Reply, MapIdAndData{})
			break
		}
		replySafe(m.Reply, MapIdAndData{
			Name: g.gameMap.Name,
			Info: g.gameMap.Info,
			Data: g.gameMap.MapData.Clone(),
		})

	case TileFailed:
		g.handleTileFailed(m)

	case RecordTransaction:
		g.handleRecordTransaction(m)

	case GetTransactionRecords:
		replySafe(m.Reply, g.liveTransactionRecords())

	default:
		if g.phase == phaseStopped || g.gameMap == nil {
			g.replyEmpty(ctx.Message())
			return
		}
		g.receiveLoaded(ctx.Message())
	}
}

// receiveLoaded handles the messages that require a loaded map.
func (g *GameSystem) receiveLoaded(msg any) {
	switch m := msg.(type) {
	case GetAllRenderCommands:
		g.handleGetAllRenderCommands(m)

	case PlaceTile:
		g.handlePlaceTile(m)

	case PlaceTiles:
		g.handlePlaceTiles(m)

	case MoveTiles:
		g.handleMoveTiles(m)

	case Undo:
		if step := g.undoSteps.Pop(); step != nil {
			for _, undoMsg := range step {
				g.engine.Send(g.selfPID, undoMsg, g.selfPID)
			}
		}

	case GetTile:
		if entry, ok := g.gameMap.Tiles[m.Coord]; ok {
			replySafe(m.Reply, &entry)
		} else {
			replySafe(m.Reply, (*TileEntry)(nil))
		}

	case GetTileFlat:
		g.handleGetTileFlat(m)

	case GetTiles:
		out := make(map[coord.TileCoord]TileEntry, len(m.Coords))
		for _, c := range m.Coords {
			if entry, ok := g.gameMap.Tiles[c]; ok {
				out[c] = entry
			}
		}
		replySafe(m.Reply, out)

	case GetTilesFlat:
		g.handleGetTilesFlat(m)

	case SetMapDataValue:
		g.gameMap.MapData.Set(m.Key, m.Value)

	case ForwardMsgToTile:
		g.handleForwardMsgToTile(m)

	case SendTileMsg:
		if g.phase != phaseRunning {
			return
		}
		if entry, ok := g.gameMap.Tiles[m.Coord]; ok {
			g.engine.Send(entry.PID, m.Msg, g.selfPID)
		}
	}
}

// replyEmpty answers ask-messages with defaults while no map is loaded, so
// callers never hang on their reply channels.
func (g *GameSystem) replyEmpty(msg any) {
	switch m := msg.(type) {
	case GetAllRenderCommands:
		replySafe(m.Reply, RenderCommandBatches{
			map[coord.TileCoord][]registry.RenderCommand{},
			map[coord.TileCoord][]registry.RenderCommand{},
		})
	case PlaceTile:
		replySafe(m.Reply, PlaceIgnored)
	case PlaceTiles:
		replySafe(m.Reply, []FlatTile(nil))
	case GetTile:
		replySafe(m.Reply, (*TileEntry)(nil))
	case GetTileFlat:
		replySafe(m.Reply, (*FlatTile)(nil))
	case GetTiles:
		replySafe(m.Reply, map[coord.TileCoord]TileEntry{})
	case GetTilesFlat:
		replySafe(m.Reply, []FlatTile(nil))
	}
}

// runTickLoop drives the fixed tick rate from its own goroutine, feeding
// Tick messages into the game actor's mailbox.
func (g *GameSystem) runTickLoop() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopTicker:
			return
		case <-ticker.C:
			g.engine.Send(g.selfPID, Tick{}, g.selfPID)
		}
	}
}

// tick fans TileTick out to every live tile, advances the tick counter,
// then warns when the tick cost exceeded the allowed maximum.
func (g *GameSystem) tick() {
	start := time.Now()

	for _, entry := range g.gameMap.Tiles {
		g.engine.Send(entry.PID, TileTick{TickCount: g.tickCount}, g.selfPID)
	}
	g.tickCount++ // wraps

	warnSlowTick(time.Since(start))
}

// warnSlowTick logs a warning when one tick cost more than the allowed
// maximum.
func warnSlowTick(tickTime time.Duration) {
	if tickTime >= MaxAllowedTickInterval {
		common.Logger().Warn("Tick took longer than the allowed maximum",
			"tick_time", tickTime,
			"maximum", MaxAllowedTickInterval,
		)
	}
}

// trackNone is the render-command pair presenting the skeleton background
// tile at an empty visible coordinate.
func (g *GameSystem) trackNone(c coord.TileCoord) []registry.RenderCommand {
	return []registry.RenderCommand{
		registry.Track{
			RenderId: id.RenderId(g.reg.DataIds.NoneTileRenderTag),
			ModelId:  g.reg.ModelIds.TileNone,
		},
		registry.Transform{
			RenderId:    id.RenderId(g.reg.DataIds.NoneTileRenderTag),
			ModelId:     g.reg.ModelIds.TileNone,
			ModelMatrix: c.AsTranslation(),
		},
	}
}

func (g *GameSystem) untrackNone() []registry.RenderCommand {
	return []registry.RenderCommand{
		registry.Untrack{
			RenderId: id.RenderId(g.reg.DataIds.NoneTileRenderTag),
			ModelId:  g.reg.ModelIds.TileNone,
		},
	}
}

// fillMapWithNone supplements the collected commands with background tiles
// for newly visible empty coordinates and removals for newly hidden ones.
func (g *GameSystem) fillMapWithNone(culling, last coord.TileBounds, commands map[coord.TileCoord][]registry.RenderCommand) {
	if culling == last {
		return
	}

	for c := range culling.All() {
		if _, ok := commands[c]; !ok && !last.Contains(c) {
			commands[c] = g.trackNone(c)
		}
	}
	for c := range last.All() {
		if _, ok := commands[c]; !ok && !culling.Contains(c) {
			commands[c] = g.untrackNone()
		}
	}
}

// collectRenderCommands multi-asks every live tile for its render deltas.
// Tiles that fail to reply within the shared deadline contribute nothing.
func (g *GameSystem) collectRenderCommands(loading, unloading func(coord.TileCoord) bool) map[coord.TileCoord][]registry.RenderCommand {
	replies := make(map[coord.TileCoord]chan []registry.RenderCommand, len(g.gameMap.Tiles))
	for c, entry := range g.gameMap.Tiles {
		ch := make(chan []registry.RenderCommand, 1)
		replies[c] = ch
		g.engine.Send(entry.PID, TileCollectRenderCommands{
			Loading:   loading(c),
			Unloading: unloading(c),
			Reply:     ch,
		}, g.selfPID)
	}

	out := make(map[coord.TileCoord][]registry.RenderCommand, len(replies))
	deadline := time.NewTimer(askTimeout)
	defer deadline.Stop()

	expired := false
	for c, ch := range replies {
		if expired {
			select {
			case cmds := <-ch:
				if cmds != nil {
					out[c] = cmds
				}
			default:
			}
			continue
		}
		select {
		case cmds := <-ch:
			if cmds != nil {
				out[c] = cmds
			}
		case <-deadline.C:
			expired = true
			common.Logger().Warn("render command collection timed out", "coord", c)
		}
	}
	return out
}

func (g *GameSystem) handleGetAllRenderCommands(m GetAllRenderCommands) {
	last := g.lastCullingBounds
	g.lastCullingBounds = m.CullingBounds

	commands := g.collectRenderCommands(
		func(c coord.TileCoord) bool { return m.CullingBounds.Contains(c) && !last.Contains(c) },
		func(c coord.TileCoord) bool { return last.Contains(c) && !m.CullingBounds.Contains(c) },
	)

	g.fillMapWithNone(m.CullingBounds, last, commands)

	cleanup := g.cleanupRenderCommands
	g.cleanupRenderCommands = make(map[coord.TileCoord][]registry.RenderCommand)

	replySafe(m.Reply, RenderCommandBatches{cleanup, commands})
}

// spawnTile creates a tile entity actor for a definition id at a
// coordinate.
func (g *GameSystem) spawnTile(c coord.TileCoord, tileId id.TileId) TileEntry {
	g.tileGen++
	name := fmt.Sprintf("tile-%s-%d", c.MinimalString(), g.tileGen)
	pid := g.engine.Spawn(NewTileEntityProducer(g.reg, g.engine, g.selfPID, tileId, c), name)
	return TileEntry{Id: tileId, PID: pid}
}

// removeTile stops and removes the tile at c, refunding its category item.
// It returns the detached tile plus the render commands cleaning up its
// instances (already terminated with a background fill).
func (g *GameSystem) removeTile(c coord.TileCoord) (FlatTile, []registry.RenderCommand, bool) {
	entry, ok := g.gameMap.Tiles[c]
	if !ok {
		return FlatTile{}, nil, false
	}
	delete(g.gameMap.Tiles, c)

	if item := g.reg.CategoryItem(entry.Id); item != 0 {
		g.gameMap.MapData.InventoryMut(g.reg.DataIds.PlayerInventory).Add(item, 1)
	}

	tileData, _ := askTile(g, entry.PID, func(ch chan<- data.DataMap) TileMsg {
		return TileTakeData{Reply: ch}
	})

	commands, _ := askTile(g, entry.PID, func(ch chan<- []registry.RenderCommand) TileMsg {
		return TileCollectRenderCommands{Loading: false, Unloading: true, Reply: ch}
	})
	commands = append(commands, g.trackNone(c)...)

	g.engine.Stop(entry.PID)

	return FlatTile{Coord: c, Id: entry.Id, Data: tileData}, commands, true
}

// insertNewTile implements the place_tile semantics: charge the category
// item, displace any prior tile, spawn the replacement and collect its
// loading render commands. placed is false when the placement was refused
// for a missing category item.
func (g *GameSystem) insertNewTile(c coord.TileCoord, tileId id.TileId, tileData data.DataMap) (old *FlatTile, placed bool) {
	if item := g.reg.CategoryItem(tileId); item != 0 {
		inv := g.gameMap.MapData.InventoryMut(g.reg.DataIds.PlayerInventory)
		if inv.Get(item) < 1 {
			return nil, false
		}
		inv.Take(item, 1)
	}

	if removed, cleanup, ok := g.removeTile(c); ok {
		g.appendCleanup(c, cleanup)
		old = &removed
	}

	if tileId == g.reg.None {
		return old, true
	}

	entry := g.spawnTile(c, tileId)
	if tileData != nil {
		g.engine.Send(entry.PID, TileSetData{Data: tileData}, g.selfPID)
	}

	g.appendCleanup(c, g.untrackNone())

	loadingCommands, _ := askTile(g, entry.PID, func(ch chan<- []registry.RenderCommand) TileMsg {
		return TileCollectRenderCommands{Loading: true, Unloading: false, Reply: ch}
	})
	g.appendCleanup(c, loadingCommands)

	g.gameMap.Tiles[c] = entry
	return old, true
}

func (g *GameSystem) appendCleanup(c coord.TileCoord, commands []registry.RenderCommand) {
	if len(commands) == 0 {
		return
	}
	g.cleanupRenderCommands[c] = append(g.cleanupRenderCommands[c], commands...)
}

func (g *GameSystem) handlePlaceTile(m PlaceTile) {
	if existing, ok := g.gameMap.Tiles[m.Coord]; ok && existing.Id == m.Id {
		replySafe(m.Reply, PlaceIgnored)
		return
	}
	if _, ok := g.gameMap.Tiles[m.Coord]; !ok && m.Id == g.reg.None {
		replySafe(m.Reply, PlaceIgnored)
		return
	}

	old, placed := g.insertNewTile(m.Coord, m.Id, m.Data)
	if !placed {
		replySafe(m.Reply, PlaceIgnored)
		return
	}

	if old != nil && m.Id == g.reg.None {
		replySafe(m.Reply, PlaceRemoved)
	} else {
		replySafe(m.Reply, PlacePlaced)
	}

	if m.Record && old != nil {
		g.undoSteps.Push([]GameMsg{PlaceTile{
			Coord:  m.Coord,
			Id:     old.Id,
			Data:   old.Data,
			Record: false,
		}})
	}
}

func (g *GameSystem) handlePlaceTiles(m PlaceTiles) {
	var old []FlatTile

	for _, tile := range m.Tiles {
		if !m.Replace {
			if _, present := g.gameMap.Tiles[tile.Coord]; present {
				continue
			}
		}
		removed, placed := g.insertNewTile(tile.Coord, tile.Id, tile.Data)
		if placed && removed != nil {
			flat := *removed
			if flat.Data != nil {
				flat.Data = g.copyAuxiliaryData(flat.Data)
			}
			old = append(old, flat)
		}
	}

	if m.Reply != nil {
		replySafe(m.Reply, old)
	} else if m.Record {
		g.undoSteps.Push([]GameMsg{PlaceTiles{
			Tiles:   old,
			Replace: false,
			Record:  false,
		}})
	}
}

func (g *GameSystem) handleMoveTiles(m MoveTiles) {
	type removedTile struct {
		from coord.TileCoord
		tile FlatTile
	}

	var removed []removedTile
	for _, c := range m.Coords {
		if tile, cleanup, ok := g.removeTile(c); ok {
			g.appendCleanup(c, cleanup)
			removed = append(removed, removedTile{from: c, tile: tile})
		}
	}

	undo := make([]coord.TileCoord, 0, len(removed))
	for _, r := range removed {
		newCoord := r.from.Add(m.Direction)
		g.insertNewTile(newCoord, r.tile.Id, r.tile.Data)
		undo = append(undo, newCoord)
	}

	if m.Record {
		g.undoSteps.Push([]GameMsg{MoveTiles{
			Coords:    undo,
			Direction: m.Direction.Neg(),
			Record:    false,
		}})
	}
}

func (g *GameSystem) handleGetTileFlat(m GetTileFlat) {
	entry, ok := g.gameMap.Tiles[m.Coord]
	if !ok {
		replySafe(m.Reply, (*FlatTile)(nil))
		return
	}

	tileData, ok := askTile(g, entry.PID, func(ch chan<- data.DataMap) TileMsg {
		return TileGetData{Reply: ch}
	})
	if !ok {
		replySafe(m.Reply, &FlatTile{Coord: m.Coord, Id: entry.Id})
		return
	}
	replySafe(m.Reply, &FlatTile{Coord: m.Coord, Id: entry.Id, Data: tileData})
}

// handleGetTilesFlat snapshots the requested tiles by fanning GetData asks
// out over their actors.
func (g *GameSystem) handleGetTilesFlat(m GetTilesFlat) {
	type pending struct {
		c     coord.TileCoord
		tile  id.TileId
		reply chan data.DataMap
	}

	var asks []pending
	var out []FlatTile

	for _, c := range m.Coords {
		entry, ok := g.gameMap.Tiles[c]
		if !ok {
			continue
		}
		ch := make(chan data.DataMap, 1)
		g.engine.Send(entry.PID, TileGetData{Reply: ch}, g.selfPID)
		asks = append(asks, pending{c: c, tile: entry.Id, reply: ch})
	}

	deadline := time.NewTimer(askTimeout)
	defer deadline.Stop()

	for _, ask := range asks {
		select {
		case tileData := <-ask.reply:
			out = append(out, FlatTile{
				Coord: ask.c,
				Id:    ask.tile,
				Data:  g.copyAuxiliaryData(tileData),
			})
		case <-deadline.C:
			common.Logger().Warn("tile snapshot timed out", "coord", ask.c)
			out = append(out, FlatTile{Coord: ask.c, Id: ask.tile})
		}
	}

	replySafe(m.Reply, out)
}

func (g *GameSystem) handleForwardMsgToTile(m ForwardMsgToTile) {
	if entry, ok := g.gameMap.Tiles[m.To]; ok {
		g.engine.Send(entry.PID, m.Msg, g.selfPID)
		return
	}

	switch m.OnFail.Kind {
	case registry.OnFailNone:

	case registry.OnFailRemoveTile:
		if _, cleanup, ok := g.removeTile(m.Source); ok {
			g.appendCleanup(m.Source, cleanup)
		}

	case registry.OnFailRemoveAllData:
		if entry, ok := g.gameMap.Tiles[m.Source]; ok {
			g.engine.Send(entry.PID, TileSetData{Data: data.NewDataMap()}, g.selfPID)
		}

	case registry.OnFailRemoveData:
		if entry, ok := g.gameMap.Tiles[m.Source]; ok {
			g.engine.Send(entry.PID, TileRemoveData{Key: m.OnFail.Key}, g.selfPID)
		}
	}
}

func (g *GameSystem) handleTileFailed(m TileFailed) {
	common.Logger().Error("tile entity failed, trying to remove", "coord", m.Coord, "err", m.Err)

	if g.gameMap == nil {
		return
	}
	if c, ok := IsNonExistent(m.Err); ok {
		if _, cleanup, removed := g.removeTile(c); removed {
			g.appendCleanup(c, cleanup)
		}
	}
}

func (g *GameSystem) handleRecordTransaction(m RecordTransaction) {
	key := TransactionKey{Source: m.SourceCoord, Dest: m.DestCoord}
	if rec, ok := g.transactions[key]; ok && time.Since(rec.At) < TransactionMinInterval {
		return
	}
	g.transactions[key] = TransactionRecord{At: time.Now(), Stack: m.Stack}
}

// liveTransactionRecords prunes expired transfer records and returns a
// copy of the survivors.
func (g *GameSystem) liveTransactionRecords() map[TransactionKey]TransactionRecord {
	out := make(map[TransactionKey]TransactionRecord, len(g.transactions))
	for key, rec := range g.transactions {
		if time.Since(rec.At) >= TransactionAnimationSpeed {
			delete(g.transactions, key)
			continue
		}
		out[key] = rec
	}
	return out
}

// copyAuxiliaryData keeps only the auxiliary keys of a detached tile data
// map: the fields that survive pick-up/re-place cycles.
func (g *GameSystem) copyAuxiliaryData(d data.DataMap) data.DataMap {
	copied := data.NewDataMap()
	for _, key := range []id.Id{
		g.reg.DataIds.Direction,
		g.reg.DataIds.Link,
		g.reg.DataIds.Script,
		g.reg.DataIds.Capacity,
		g.reg.DataIds.Item,
	} {
		if v := d.Remove(key); v != nil {
			copied.Set(key, v)
		}
	}
	return copied
}

// unloadMap stops every tile entity and returns to the unloaded state.
func (g *GameSystem) unloadMap() {
	for _, entry := range g.gameMap.Tiles {
		g.engine.Stop(entry.PID)
	}
	g.gameMap = nil
	g.undoSteps.Clear()
	g.phase = phaseUnloaded
}

// shutdown stops the tick loop and every tile entity; terminal.
func (g *GameSystem) shutdown() {
	select {
	case <-g.stopTicker:
	default:
		close(g.stopTicker)
	}

	if g.gameMap != nil {
		for _, entry := range g.gameMap.Tiles {
			g.engine.Stop(entry.PID)
		}
		g.gameMap = nil
	}
	g.phase = phaseStopped
}

// askTile sends an ask-message built around a fresh buffered reply channel
// and waits for the reply. On timeout the zero value is returned and the
// miss is logged.
func askTile[T any](g *GameSystem, pid *bollywood.PID, build func(chan<- T) TileMsg) (T, bool) {
	ch := make(chan T, 1)
	g.engine.Send(pid, build(ch), g.selfPID)

	select {
	case v := <-ch:
		return v, true
	case <-time.After(askTimeout):
		common.Logger().Warn("tile ask timed out")
		var zero T
		return zero, false
	}
}
