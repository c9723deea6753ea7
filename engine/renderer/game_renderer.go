package renderer

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/Carmen-Shannon/hexfab/engine/camera"
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/game"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
	"github.com/Carmen-Shannon/hexfab/engine/renderer/instance"
)

// noColorOffset resets a tinted instance.
var noColorOffset = [4]float32{}

// pairKey is one tracked (render id, model id) pair of a coordinate.
type pairKey struct {
	RenderId id.RenderId
	ModelId  id.ModelId
}

// transferAnim animates one recorded item transfer along its lane.
type transferAnim struct {
	tween   *gween.Tween
	drawId  instance.DrawId
	source  coord.TileCoord
	dest    coord.TileCoord
	tracked bool
	done    bool
}

// TakeItemAnim is one GUI item-pickup flash; the GUI layer consumes these.
type TakeItemAnim struct {
	At    time.Time
	Stack data.ItemStack
}

// GameRenderer is the per-frame driver: it pulls render commands from the
// game actor under the camera's culling bounds, applies tile tints and
// transfer-animation overlays, and hands the resulting draw lists to the
// GPU renderer.
type GameRenderer struct {
	gameHandle game.Handle
	cam        camera.Camera
	reg        *registry.Registry
	modelMan   model.Manager
	r          Renderer

	man *instance.DrawInstanceManager

	// drawIds remembers what each coordinate currently draws, so tints can
	// be applied and reset without re-asking the simulation.
	drawIds map[coord.TileCoord]map[pairKey]struct{}

	// TileTints is filled by the caller (selection, build preview, errors)
	// before each Render and consumed by it.
	TileTints     map[coord.TileCoord][4]float32
	lastTileTints map[coord.TileCoord][4]float32

	transfers map[game.TransactionKey]*transferAnim

	takeItemAnimations map[id.Id][]TakeItemAnim

	passes []RenderPass

	startInstant time.Time
	lastFrame    time.Time
}

// NewGameRenderer creates the per-frame driver and its draw-instance
// manager bound to the renderer's device buffers.
func NewGameRenderer(gameHandle game.Handle, cam camera.Camera, reg *registry.Registry, modelMan model.Manager, r Renderer) *GameRenderer {
	return &GameRenderer{
		gameHandle: gameHandle,
		cam:        cam,
		reg:        reg,
		modelMan:   modelMan,
		r:          r,

		man: instance.NewDrawInstanceManager(reg, modelMan, r.Uploader()),

		drawIds:            make(map[coord.TileCoord]map[pairKey]struct{}),
		TileTints:          make(map[coord.TileCoord][4]float32),
		lastTileTints:      make(map[coord.TileCoord][4]float32),
		transfers:          make(map[game.TransactionKey]*transferAnim),
		takeItemAnimations: make(map[id.Id][]TakeItemAnim),

		startInstant: time.Now(),
		lastFrame:    time.Now(),
	}
}

// Resize forwards a surface resize to the GPU renderer.
func (g *GameRenderer) Resize(width, height int) {
	g.r.Resize(width, height)
}

// SetPasses installs the external follow-up passes recorded after the game
// pass, in order (lighting, post-processing, antialiasing, GUI).
func (g *GameRenderer) SetPasses(passes ...RenderPass) {
	g.passes = passes
}

// PushTakeItemAnimation records an item-pickup flash for the GUI layer.
func (g *GameRenderer) PushTakeItemAnimation(item id.Id, stack data.ItemStack) {
	g.takeItemAnimations[item] = append(g.takeItemAnimations[item], TakeItemAnim{
		At:    time.Now(),
		Stack: stack,
	})
}

// LiveTakeItemAnimations prunes expired pickup flashes and returns the
// survivors for an item.
func (g *GameRenderer) LiveTakeItemAnimations(item id.Id) []TakeItemAnim {
	live := g.takeItemAnimations[item][:0]
	for _, anim := range g.takeItemAnimations[item] {
		if time.Since(anim.At) < game.TakeItemAnimationSpeed {
			live = append(live, anim)
		}
	}
	if len(live) == 0 {
		delete(g.takeItemAnimations, item)
		return nil
	}
	g.takeItemAnimations[item] = live
	return live
}

// Render runs one frame: render-command ingestion, tints, overlays, buffer
// uploads and pass recording.
func (g *GameRenderer) Render() error {
	now := time.Now()
	dt := float32(now.Sub(g.lastFrame).Seconds())
	g.lastFrame = now

	g.cam.Update()

	lastTints := g.lastTileTints
	tints := g.TileTints
	g.TileTints = make(map[coord.TileCoord][4]float32)

	batches := g.gameHandle.GetAllRenderCommands(g.cam.CullingBounds())

	world := g.cam.Matrix()
	g.man.SetAllWorldMatrix(world)

	for _, batch := range batches {
		for c, commands := range batch {
			for _, command := range commands {
				g.applyCommand(c, command, world)
			}
		}
		g.man.Flush()
	}

	// Reset tints that disappeared, then apply the fresh ones.
	for c := range lastTints {
		if _, still := tints[c]; still {
			continue
		}
		g.tintCoord(c, noColorOffset)
	}
	for c, tint := range tints {
		g.tintCoord(c, tint)
	}
	g.lastTileTints = tints

	g.updateTransfers(dt, world)

	g.man.Flush()
	g.man.UploadAnimation(g.startInstant)
	draws := g.man.CollectDrawCalls()

	pos := g.cam.Pos()
	bounds := g.cam.CullingBounds()
	minX, minY := coord.New(bounds.Center().Q-bounds.Radius(), bounds.Center().R-bounds.Radius()).WorldPos()
	maxX, maxY := coord.New(bounds.Center().Q+bounds.Radius(), bounds.Center().R+bounds.Radius()).WorldPos()

	return g.r.RenderFrame(FrameData{
		CameraPos:      [2]float32{pos.X(), pos.Y()},
		CameraBounds:   [4]float32{minX, minY, maxX, maxY},
		OpaqueDraws:    draws[0],
		NonOpaqueDraws: draws[1],
		Passes:         g.passes,
	})
}

// applyCommand dispatches one render command against the instance manager
// and the per-coordinate draw bookkeeping.
func (g *GameRenderer) applyCommand(c coord.TileCoord, command registry.RenderCommand, world mgl32.Mat4) {
	switch cmd := command.(type) {
	case registry.Track:
		pairs, ok := g.drawIds[c]
		if !ok {
			pairs = make(map[pairKey]struct{})
			g.drawIds[c] = pairs
		}
		pairs[pairKey{RenderId: cmd.RenderId, ModelId: cmd.ModelId}] = struct{}{}

		g.man.Insert(
			instance.DrawId{Coord: c, RenderId: cmd.RenderId, ModelId: cmd.ModelId},
			instance.DefaultGameDrawInstance(world),
		)

	case registry.Untrack:
		if pairs, ok := g.drawIds[c]; ok {
			delete(pairs, pairKey{RenderId: cmd.RenderId, ModelId: cmd.ModelId})
			if len(pairs) == 0 {
				delete(g.drawIds, c)
			}
		}

		g.man.Remove(instance.DrawId{Coord: c, RenderId: cmd.RenderId, ModelId: cmd.ModelId})

	case registry.Transform:
		matrix := cmd.ModelMatrix
		g.man.SetMatrix(
			instance.DrawId{Coord: c, RenderId: cmd.RenderId, ModelId: cmd.ModelId},
			&matrix, nil,
		)
	}
}

// tintCoord writes a color offset onto every instance drawn at a
// coordinate.
func (g *GameRenderer) tintCoord(c coord.TileCoord, tint [4]float32) {
	pairs, ok := g.drawIds[c]
	if !ok {
		return
	}
	for pair := range pairs {
		g.man.ModifyInstances(
			instance.DrawId{Coord: c, RenderId: pair.RenderId, ModelId: pair.ModelId},
			func(_ instance.InstanceId, inst *instance.GpuDrawInstance) {
				inst.ColorOffset = tint
			},
		)
	}
}

// transferModel picks the model drawn for a transferred item.
func (g *GameRenderer) transferModel(item id.Id) id.ModelId {
	if def, ok := g.reg.Items[item]; ok && def.Model != 0 {
		return def.Model
	}
	return g.reg.ModelIds.TileMissing
}

// laneRenderId derives a stable render tag for one transfer lane, so
// concurrent transfers never collide in the instance manager.
func (g *GameRenderer) laneRenderId(key game.TransactionKey) id.RenderId {
	return id.RenderId(g.reg.Interner.Intern(
		fmt.Sprintf("hexfab:render/transfer/%s>%s", key.Source.MinimalString(), key.Dest.MinimalString()),
	))
}

// updateTransfers animates recorded item transfers along their lanes with
// an eased tween over the transaction animation window.
func (g *GameRenderer) updateTransfers(dt float32, world mgl32.Mat4) {
	records := g.gameHandle.TransactionRecords()

	for key, record := range records {
		if _, running := g.transfers[key]; running {
			continue
		}
		g.transfers[key] = &transferAnim{
			tween: gween.New(0, 1, float32(game.TransactionAnimationSpeed.Seconds()), ease.InOutQuad),
			drawId: instance.DrawId{
				Coord:    key.Source,
				RenderId: g.laneRenderId(key),
				ModelId:  g.transferModel(record.Stack.Id),
			},
			source: key.Source,
			dest:   key.Dest,
		}
	}

	for key, anim := range g.transfers {
		progress, finished := anim.tween.Update(dt)

		if !anim.tracked {
			g.man.Insert(anim.drawId, instance.DefaultGameDrawInstance(world))
			anim.tracked = true
		}

		sx, sy := anim.source.WorldPos()
		dx, dy := anim.dest.WorldPos()
		matrix := mgl32.Translate3D(
			sx+(dx-sx)*progress,
			sy+(dy-sy)*progress,
			0.25,
		).Mul4(mgl32.Scale3D(0.3, 0.3, 0.3))
		g.man.SetMatrix(anim.drawId, &matrix, nil)

		if finished {
			g.man.Remove(anim.drawId)
			delete(g.transfers, key)
		}
	}
}
