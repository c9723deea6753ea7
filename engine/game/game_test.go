package game

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lguibr/bollywood"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/hexfab/common"
	"github.com/Carmen-Shannon/hexfab/engine/behaviors"
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

const settle = 2 * time.Second

type testWorld struct {
	reg    *registry.Registry
	ids    behaviors.Ids
	engine *bollywood.Engine
	h      Handle
	dir    string
}

// newTestWorld spins a full actor world with the built-in behaviors, the
// tick loop disabled so ticks are driven explicitly.
func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	reg := registry.New()
	ids, err := behaviors.Register(reg, model.NewManager())
	require.NoError(t, err)

	engine := bollywood.NewEngine()
	dir := t.TempDir()
	pid := engine.Spawn(NewGameSystemProducer(reg, engine, dir, WithoutTickLoop()), "game")
	require.NotNil(t, pid)

	h := Handle{Engine: engine, PID: pid}
	require.True(t, h.LoadMap("test"), "fresh map must load")

	return &testWorld{reg: reg, ids: ids, engine: engine, h: h, dir: dir}
}

// grantGear puts placement currency into the player inventory.
func (w *testWorld) grantGear(t *testing.T, n int64) {
	t.Helper()
	w.h.Send(SetMapDataValue{
		Key:   w.reg.DataIds.PlayerInventory,
		Value: data.Inventory{w.ids.Gear: n},
	})
	// Synchronize on the mailbox before relying on the grant.
	w.h.GetTile(coord.Zero)
}

func TestPlaceNoneOnEmptyIsIgnored(t *testing.T) {
	w := newTestWorld(t)

	resp := w.h.PlaceTile(coord.Zero, w.reg.None, nil, false)
	assert.Equal(t, PlaceIgnored, resp)
	assert.Nil(t, w.h.GetTile(coord.Zero))
}

func TestPlaceSameIdIsIgnored(t *testing.T) {
	w := newTestWorld(t)

	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, nil, false))
	assert.Equal(t, PlaceIgnored, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, nil, false))

	entry := w.h.GetTile(coord.Zero)
	require.NotNil(t, entry)
	assert.Equal(t, w.ids.Conveyor, entry.Id)
}

func TestPlaceNoneRemoves(t *testing.T) {
	w := newTestWorld(t)

	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, nil, false))
	assert.Equal(t, PlaceRemoved, w.h.PlaceTile(coord.Zero, w.reg.None, nil, false))
	assert.Nil(t, w.h.GetTile(coord.Zero))
}

func TestCategoryItemAccounting(t *testing.T) {
	w := newTestWorld(t)
	w.grantGear(t, 1)

	// One gear: the first producer placement succeeds, the second is
	// refused.
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Producer, nil, false))
	assert.Equal(t, PlaceIgnored, w.h.PlaceTile(coord.Right, w.ids.Producer, nil, false))

	// Removing refunds, making the next placement succeed again.
	require.Equal(t, PlaceRemoved, w.h.PlaceTile(coord.Zero, w.reg.None, nil, false))
	assert.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Right, w.ids.Producer, nil, false))

	// Net placements minus removals is one: the inventory is empty again.
	info, ok := w.h.MapIdAndData()
	require.True(t, ok)
	assert.Equal(t, data.ItemAmount(0), info.Data.InventoryMut(w.reg.DataIds.PlayerInventory).Get(w.ids.Gear))
}

func TestPlaceRecordsUndo(t *testing.T) {
	w := newTestWorld(t)

	d := data.NewDataMap()
	d.Set(w.reg.DataIds.Direction, data.Coord(coord.TopLeft))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, d, true))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Void, nil, true))

	w.h.Undo()

	require.Eventually(t, func() bool {
		entry := w.h.GetTile(coord.Zero)
		return entry != nil && entry.Id == w.ids.Conveyor
	}, settle, 10*time.Millisecond, "undo must restore the conveyor")

	flat := w.h.GetTileFlat(coord.Zero)
	require.NotNil(t, flat)
	assert.Equal(t, data.Coord(coord.TopLeft), flat.Data.Get(w.reg.DataIds.Direction))
}

func TestMoveTilesAndUndo(t *testing.T) {
	w := newTestWorld(t)

	c1 := coord.New(0, 0)
	c2 := coord.New(0, 1)
	require.Equal(t, PlacePlaced, w.h.PlaceTile(c1, w.ids.Conveyor, nil, false))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(c2, w.ids.Void, nil, false))

	w.h.MoveTiles([]coord.TileCoord{c1, c2}, coord.Right, true)

	require.Eventually(t, func() bool {
		a := w.h.GetTile(c1.Add(coord.Right))
		b := w.h.GetTile(c2.Add(coord.Right))
		return a != nil && a.Id == w.ids.Conveyor && b != nil && b.Id == w.ids.Void
	}, settle, 10*time.Millisecond)
	assert.Nil(t, w.h.GetTile(c1))
	assert.Nil(t, w.h.GetTile(c2))

	w.h.Undo()

	require.Eventually(t, func() bool {
		a := w.h.GetTile(c1)
		b := w.h.GetTile(c2)
		return a != nil && a.Id == w.ids.Conveyor && b != nil && b.Id == w.ids.Void
	}, settle, 10*time.Millisecond, "undo must move the tiles back")
	assert.Nil(t, w.h.GetTile(c1.Add(coord.Right)))
	assert.Nil(t, w.h.GetTile(c2.Add(coord.Right)))
}

func TestNoneFillOnFirstCull(t *testing.T) {
	w := newTestWorld(t)

	bounds := coord.NewTileBounds(coord.Zero, 1)
	batches := w.h.GetAllRenderCommands(bounds)

	current := batches[1]
	assert.Len(t, current, bounds.Size())
	for c := range bounds.All() {
		commands, ok := current[c]
		require.True(t, ok, "coord %s missing from none-fill", c)
		require.Len(t, commands, 2)
		track, isTrack := commands[0].(registry.Track)
		require.True(t, isTrack)
		assert.Equal(t, w.reg.ModelIds.TileNone, track.ModelId)
		_, isTransform := commands[1].(registry.Transform)
		assert.True(t, isTransform)
	}
}

func TestUnchangedBoundsEmitNoFill(t *testing.T) {
	w := newTestWorld(t)

	bounds := coord.NewTileBounds(coord.Zero, 2)
	w.h.GetAllRenderCommands(bounds)

	batches := w.h.GetAllRenderCommands(bounds)
	assert.Empty(t, batches[1], "same bounds must emit no none-fill")
}

func TestShrinkingBoundsUntracksNone(t *testing.T) {
	w := newTestWorld(t)

	w.h.GetAllRenderCommands(coord.NewTileBounds(coord.Zero, 2))
	batches := w.h.GetAllRenderCommands(coord.NewTileBounds(coord.Zero, 1))

	inner := coord.NewTileBounds(coord.Zero, 1)
	outer := coord.NewTileBounds(coord.Zero, 2)
	untracked := 0
	for c, commands := range batches[1] {
		if inner.Contains(c) {
			continue
		}
		require.True(t, outer.Contains(c))
		require.Len(t, commands, 1)
		_, isUntrack := commands[0].(registry.Untrack)
		assert.True(t, isUntrack)
		untracked++
	}
	assert.Equal(t, outer.Size()-inner.Size(), untracked)
}

func TestPlacedTileRenderLifecycle(t *testing.T) {
	w := newTestWorld(t)

	bounds := coord.NewTileBounds(coord.Zero, 1)
	w.h.GetAllRenderCommands(bounds)

	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, nil, false))

	// The placement's render delta lands in the cleanup batch: untrack the
	// background, then the tile's own track+transform.
	batches := w.h.GetAllRenderCommands(bounds)
	cleanup := batches[0][coord.Zero]
	require.NotEmpty(t, cleanup)

	var sawUntrackNone, sawTrackSelf bool
	for _, command := range cleanup {
		switch cmd := command.(type) {
		case registry.Untrack:
			if cmd.ModelId == w.reg.ModelIds.TileNone {
				sawUntrackNone = true
			}
		case registry.Track:
			if cmd.ModelId == w.ids.ConveyorModel {
				sawTrackSelf = true
			}
		}
	}
	assert.True(t, sawUntrackNone, "background must be untracked")
	assert.True(t, sawTrackSelf, "tile model must be tracked")

	// Removing emits exactly one untrack per tracked pair plus the
	// background restore.
	require.Equal(t, PlaceRemoved, w.h.PlaceTile(coord.Zero, w.reg.None, nil, false))
	batches = w.h.GetAllRenderCommands(bounds)
	cleanup = batches[0][coord.Zero]
	require.NotEmpty(t, cleanup)

	untracks := 0
	var sawTrackNone bool
	for _, command := range cleanup {
		switch cmd := command.(type) {
		case registry.Untrack:
			if cmd.ModelId == w.ids.ConveyorModel {
				untracks++
			}
		case registry.Track:
			if cmd.ModelId == w.reg.ModelIds.TileNone {
				sawTrackNone = true
			}
		}
	}
	assert.Equal(t, 1, untracks)
	assert.True(t, sawTrackNone, "background must be restored")
}

func TestTransactionFlowProducerToStorage(t *testing.T) {
	w := newTestWorld(t)

	producerData := data.NewDataMap()
	producerData.Set(w.reg.DataIds.Item, data.Id(w.ids.Ore))
	producerData.Set(w.reg.DataIds.Capacity, data.Amount(1))
	producerData.Set(w.reg.DataIds.Direction, data.Coord(coord.Right))

	w.grantGear(t, 2)
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Producer, producerData, false))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Right, w.ids.Storage, nil, false))

	for i := 0; i < 3; i++ {
		w.h.Send(Tick{})
	}

	require.Eventually(t, func() bool {
		flat := w.h.GetTileFlat(coord.Right)
		if flat == nil || flat.Data == nil {
			return false
		}
		return flat.Data.InventoryMut(w.reg.DataIds.Buffer).Get(w.ids.Ore) > 0
	}, settle, 10*time.Millisecond, "storage must receive ore")

	records := w.h.TransactionRecords()
	key := TransactionKey{Source: coord.Zero, Dest: coord.Right}
	rec, ok := records[key]
	require.True(t, ok, "transfer must be recorded for animation")
	assert.Equal(t, w.ids.Ore, rec.Stack.Id)
}

func TestOnFailRemoveTile(t *testing.T) {
	w := newTestWorld(t)

	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, nil, false))

	w.h.Send(ForwardMsgToTile{
		Source: coord.Zero,
		To:     coord.New(9, 9), // empty
		Msg:    TileTick{},
		OnFail: registry.OnFailAction{Kind: registry.OnFailRemoveTile},
	})

	require.Eventually(t, func() bool {
		return w.h.GetTile(coord.Zero) == nil
	}, settle, 10*time.Millisecond, "source tile must be removed")
}

func TestOnFailRemoveData(t *testing.T) {
	w := newTestWorld(t)

	d := data.NewDataMap()
	d.Set(w.reg.DataIds.Link, data.Coord(coord.Right))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, d, false))

	w.h.Send(ForwardMsgToTile{
		Source: coord.Zero,
		To:     coord.New(9, 9),
		Msg:    TileTick{},
		OnFail: registry.OnFailAction{Kind: registry.OnFailRemoveData, Key: w.reg.DataIds.Link},
	})

	require.Eventually(t, func() bool {
		flat := w.h.GetTileFlat(coord.Zero)
		return flat != nil && flat.Data != nil && flat.Data.Get(w.reg.DataIds.Link) == nil
	}, settle, 10*time.Millisecond, "link key must be removed")
}

func TestSupervisorRemovesNonExistentTile(t *testing.T) {
	w := newTestWorld(t)

	doomed := id.TileId(w.reg.Interner.Intern("test:tile/doomed"))
	w.reg.Tiles[doomed] = registry.TileDef{}
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.New(3, 4), doomed, nil, false))

	// Yank the definition; the next handler lookup panics with the
	// non-existence error and the supervisor removes the coordinate.
	delete(w.reg.Tiles, doomed)
	w.h.SendTileMsg(coord.New(3, 4), TileTick{})

	require.Eventually(t, func() bool {
		return w.h.GetTile(coord.New(3, 4)) == nil
	}, settle, 10*time.Millisecond, "failed tile must be removed")
}

func TestGetTilesFlatCopiesAuxiliaryData(t *testing.T) {
	w := newTestWorld(t)

	d := data.NewDataMap()
	d.Set(w.reg.DataIds.Direction, data.Coord(coord.TopRight))
	d.Set(w.reg.DataIds.Buffer, data.Inventory{w.ids.Ore: 5})
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Conveyor, d, false))

	flats := w.h.GetTilesFlat([]coord.TileCoord{coord.Zero, coord.New(5, 5)})
	require.Len(t, flats, 1)
	require.NotNil(t, flats[0].Data)

	// Auxiliary keys survive; the buffer inventory does not.
	assert.Equal(t, data.Coord(coord.TopRight), flats[0].Data.Get(w.reg.DataIds.Direction))
	assert.Nil(t, flats[0].Data.Get(w.reg.DataIds.Buffer))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	w := newTestWorld(t)

	d := data.NewDataMap()
	d.Set(w.reg.DataIds.Direction, data.Coord(coord.BottomLeft))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.New(2, -1), w.ids.Conveyor, d, false))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.New(0, 3), w.ids.Void, nil, false))

	w.h.SaveMap()

	// A second game actor sharing the registry and save dir reloads it.
	pid := w.engine.Spawn(NewGameSystemProducer(w.reg, w.engine, w.dir, WithoutTickLoop()), "game2")
	h2 := Handle{Engine: w.engine, PID: pid}
	require.True(t, h2.LoadMap("test"))

	entry := h2.GetTile(coord.New(2, -1))
	require.NotNil(t, entry)
	assert.Equal(t, w.ids.Conveyor, entry.Id)

	flat := h2.GetTileFlat(coord.New(2, -1))
	require.NotNil(t, flat)
	assert.Equal(t, data.Coord(coord.BottomLeft), flat.Data.Get(w.reg.DataIds.Direction))

	entry = h2.GetTile(coord.New(0, 3))
	require.NotNil(t, entry)
	assert.Equal(t, w.ids.Void, entry.Id)
}

func TestPauseBlocksTicks(t *testing.T) {
	w := newTestWorld(t)

	producerData := data.NewDataMap()
	producerData.Set(w.reg.DataIds.Item, data.Id(w.ids.Ore))
	producerData.Set(w.reg.DataIds.Capacity, data.Amount(1))
	producerData.Set(w.reg.DataIds.Direction, data.Coord(coord.Right))

	w.grantGear(t, 2)
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Producer, producerData, false))
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Right, w.ids.Storage, nil, false))

	storedOre := func() data.ItemAmount {
		flat := w.h.GetTileFlat(coord.Right)
		if flat == nil || flat.Data == nil {
			return 0
		}
		return flat.Data.InventoryMut(w.reg.DataIds.Buffer).Get(w.ids.Ore)
	}

	w.h.Pause()
	w.h.Send(Tick{})
	w.h.SendTileMsg(coord.Zero, TileTick{}) // dropped while paused

	// Reads still work while paused, and no tick reached the producer.
	assert.NotNil(t, w.h.GetTile(coord.Zero))
	assert.Equal(t, data.ItemAmount(0), storedOre())

	w.h.Resume()
	w.h.Send(Tick{})
	require.Eventually(t, func() bool {
		return storedOre() > 0
	}, settle, 10*time.Millisecond, "ticks must resume after Resume")
}

func TestSlowTickWarning(t *testing.T) {
	var mu sync.Mutex
	var records []slog.Record
	common.SetLogger(slog.New(captureHandler{mu: &mu, records: &records}))
	defer common.SetLogger(nil)

	// Sleeping 100ms inside the measured window pushes the tick cost past
	// the allowed maximum.
	start := time.Now()
	time.Sleep(100 * time.Millisecond)
	warnSlowTick(time.Since(start))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, slog.LevelWarn, rec.Level)
	assert.Equal(t, "Tick took longer than the allowed maximum", rec.Message)

	var tickTime time.Duration
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == "tick_time" {
			tickTime = a.Value.Any().(time.Duration)
		}
		return true
	})
	assert.GreaterOrEqual(t, tickTime, 83*time.Millisecond)
}

func TestFastTickDoesNotWarn(t *testing.T) {
	var mu sync.Mutex
	var records []slog.Record
	common.SetLogger(slog.New(captureHandler{mu: &mu, records: &records}))
	defer common.SetLogger(nil)

	warnSlowTick(time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, records)
}

// captureHandler collects log records for assertions.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func (captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r)
	return nil
}

func (h captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h captureHandler) WithGroup(string) slog.Handler      { return h }

func TestResearchProgressionKeys(t *testing.T) {
	w := newTestWorld(t)

	research := w.reg.Interner.Intern("test:research/smelting")
	w.h.Send(SetMapDataValue{
		Key:   w.reg.DataIds.UnlockedResearches,
		Value: data.SetId{}.Insert(research),
	})
	w.h.Send(SetMapDataValue{
		Key:   w.reg.DataIds.ResearchPuzzleCompleted,
		Value: data.SetId{}.Insert(research),
	})

	info, ok := w.h.MapIdAndData()
	require.True(t, ok)
	assert.True(t, info.Data.ContainsId(w.reg.DataIds.UnlockedResearches, research))
	assert.True(t, info.Data.ContainsId(w.reg.DataIds.ResearchPuzzleCompleted, research))

	// The progression survives a save/load cycle.
	w.h.SaveMap()
	pid := w.engine.Spawn(NewGameSystemProducer(w.reg, w.engine, w.dir, WithoutTickLoop()), "game3")
	h2 := Handle{Engine: w.engine, PID: pid}
	require.True(t, h2.LoadMap("test"))

	info, ok = h2.MapIdAndData()
	require.True(t, ok)
	assert.True(t, info.Data.ContainsId(w.reg.DataIds.UnlockedResearches, research))
}

func TestCorruptMapAborts(t *testing.T) {
	w := newTestWorld(t)

	dir := filepath.Join(w.dir, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, headerFile), []byte("{not json"), 0o644))

	assert.False(t, w.h.LoadMap("broken"), "corrupt header must abort the load")

	rec, ok := w.reg.Errors.Pop()
	require.True(t, ok, "a user-visible error must be queued")
	assert.Equal(t, w.reg.ErrIds.InvalidMapData, rec.Id)

	// The caller falls back to a fresh map.
	assert.True(t, w.h.LoadMap("fresh"))
}

func TestTileConfigUiRoundTrip(t *testing.T) {
	w := newTestWorld(t)

	w.grantGear(t, 1)
	require.Equal(t, PlacePlaced, w.h.PlaceTile(coord.Zero, w.ids.Storage, nil, false))

	ui := w.h.GetTileConfigUi(coord.Zero)
	require.NotNil(t, ui)
	assert.Equal(t, registry.UiColumn, ui.Kind)
	assert.NotEmpty(t, ui.Children)
}
