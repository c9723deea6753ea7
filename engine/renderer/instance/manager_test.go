package instance

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// fakeUploader records uploads and applies the min-grow resize policy.
type fakeUploader struct {
	capacities map[BufferKind]uint64
	uploads    map[BufferKind]int
	recreates  map[BufferKind]int
}

func newFakeUploader(initial uint64) *fakeUploader {
	capacities := map[BufferKind]uint64{}
	for _, kind := range []BufferKind{
		ModelMatrixBuffer, WorldMatrixBuffer, AnimationMatrixBuffer,
		OpaqueInstanceBuffer, NonOpaqueInstanceBuffer,
	} {
		capacities[kind] = initial
	}
	return &fakeUploader{
		capacities: capacities,
		uploads:    map[BufferKind]int{},
		recreates:  map[BufferKind]int{},
	}
}

func (f *fakeUploader) EnsureCapacity(kind BufferKind, size uint64) bool {
	if size <= f.capacities[kind] {
		return false
	}
	grown := f.capacities[kind] * 2
	if grown < size {
		grown = size
	}
	f.capacities[kind] = grown
	f.recreates[kind]++
	return true
}

func (f *fakeUploader) Upload(kind BufferKind, data []byte) {
	f.uploads[kind]++
	if uint64(len(data)) > f.capacities[kind] {
		panic("upload exceeds buffer capacity")
	}
}

type fixture struct {
	reg      *registry.Registry
	modelMan model.Manager
	uploader *fakeUploader
	man      *DrawInstanceManager

	hexModel   id.ModelId // one opaque mesh
	lampModel  id.ModelId // opaque base + non-opaque glow
	spinModel  id.ModelId // one opaque animated mesh
	hexMesh    model.GlobalMeshId
	lampMeshes []model.GlobalMeshId
	spinMesh   model.GlobalMeshId
}

func newFixture(t *testing.T, bufferSize uint64) *fixture {
	t.Helper()

	reg := registry.New()
	modelMan := model.NewManager()

	mesh := func(opaque bool) model.MeshDef {
		return model.MeshDef{
			Vertices: make([]model.GPUVertex, 3),
			Indices:  []uint32{0, 1, 2},
			Opaque:   opaque,
		}
	}

	// The missing-tile fallback must exist first.
	_, err := modelMan.RegisterModel(reg.ModelIds.TileMissing, []model.MeshDef{mesh(true)})
	require.NoError(t, err)
	_, err = modelMan.RegisterModel(reg.ModelIds.TileNone, []model.MeshDef{mesh(true)})
	require.NoError(t, err)

	f := &fixture{reg: reg, modelMan: modelMan}

	f.hexModel = id.ModelId(reg.Interner.Intern("test:model/hex"))
	hexMeshes, err := modelMan.RegisterModel(f.hexModel, []model.MeshDef{mesh(true)})
	require.NoError(t, err)
	f.hexMesh = hexMeshes[0]

	f.lampModel = id.ModelId(reg.Interner.Intern("test:model/lamp"))
	f.lampMeshes, err = modelMan.RegisterModel(f.lampModel, []model.MeshDef{mesh(true), mesh(false)})
	require.NoError(t, err)

	f.spinModel = id.ModelId(reg.Interner.Intern("test:model/spin"))
	spin := mesh(true)
	spin.Animation = &model.AnimationChannel{
		Duration: 1,
		Keyframes: []model.Keyframe{
			{Input: 0, Matrix: mgl32.Ident4()},
			{Input: 0.5, Matrix: mgl32.HomogRotate3DZ(1)},
		},
	}
	spinMeshes, err := modelMan.RegisterModel(f.spinModel, []model.MeshDef{spin})
	require.NoError(t, err)
	f.spinMesh = spinMeshes[0]

	f.uploader = newFakeUploader(bufferSize)
	f.man = NewDrawInstanceManager(reg, modelMan, f.uploader)
	return f
}

func drawId(m id.ModelId, q, r int32) DrawId {
	return DrawId{Coord: coord.New(q, r), RenderId: id.RenderId(7), ModelId: m}
}

// checkIndices asserts I-1: every live instance's matrix indices are valid
// arena indices.
func checkIndices(t *testing.T, f *fixture) {
	t.Helper()
	check := func(c *InstanceCollection) {
		c.Each(func(instanceId InstanceId, inst *GpuDrawInstance) {
			assert.Less(t, int(inst.ModelMatrixIndex), f.man.ModelMatrixCount(), "model index of %s", instanceId)
			assert.Less(t, int(inst.WorldMatrixIndex), f.man.WorldMatrixCount(), "world index of %s", instanceId)
			assert.Less(t, int(inst.AnimationMatrixIndex), len(f.man.animations.Buffer()), "animation index of %s", instanceId)
		})
	}
	check(&f.man.opaque)
	check(&f.man.nonOpaque)
}

func TestInsertPartitionsByMeshOpacity(t *testing.T) {
	f := newFixture(t, 1<<16)

	f.man.Insert(drawId(f.lampModel, 0, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Flush()

	assert.Equal(t, 1, f.man.OpaqueLen())
	assert.Equal(t, 1, f.man.NonOpaqueLen())
	checkIndices(t, f)
}

func TestMissingModelFallsBackToTileMissing(t *testing.T) {
	f := newFixture(t, 1<<16)

	unknown := id.ModelId(f.reg.Interner.Intern("test:model/unknown"))
	f.man.Insert(drawId(unknown, 0, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Flush()

	assert.Equal(t, 1, f.man.OpaqueLen())
}

func TestTrackUntrackFlushRestoresState(t *testing.T) {
	f := newFixture(t, 1<<16)
	world := mgl32.Ident4()

	f.man.Insert(drawId(f.hexModel, 1, 1), DefaultGameDrawInstance(world))
	f.man.Flush()

	x := drawId(f.hexModel, 5, 5)
	f.man.Insert(x, DefaultGameDrawInstance(world))
	f.man.Remove(x)
	f.man.Flush()

	assert.Equal(t, 1, f.man.OpaqueLen())
	checkIndices(t, f)

	// Removing again is idempotent.
	f.man.Remove(x)
	f.man.Flush()
	assert.Equal(t, 1, f.man.OpaqueLen())
}

func TestSetMatrixRewritesIndices(t *testing.T) {
	f := newFixture(t, 1<<16)
	world := mgl32.Ident4()

	a := drawId(f.hexModel, 0, 0)
	b := drawId(f.hexModel, 1, 0)
	f.man.Insert(a, DefaultGameDrawInstance(world))
	f.man.Insert(b, DefaultGameDrawInstance(world))
	f.man.Flush()

	// Both instances dedup'd onto the same model matrix slot; modifying
	// one must not disturb the other.
	moved := coord.New(9, 9).AsTranslation()
	f.man.SetMatrix(a, &moved, nil)
	f.man.Flush()

	instA, ok := f.man.opaque.Lookup(InstanceId{GlobalMeshId: f.hexMesh, RenderId: id.RenderId(7), Coord: coord.New(0, 0)})
	require.True(t, ok)
	instB, ok := f.man.opaque.Lookup(InstanceId{GlobalMeshId: f.hexMesh, RenderId: id.RenderId(7), Coord: coord.New(1, 0)})
	require.True(t, ok)

	assert.NotEqual(t, instA.ModelMatrixIndex, instB.ModelMatrixIndex)
	assert.Equal(t, moved, f.man.modelMatrices.Buffer()[instA.ModelMatrixIndex])
	checkIndices(t, f)
}

func TestModifyInstancesAppliesTint(t *testing.T) {
	f := newFixture(t, 1<<16)

	a := drawId(f.lampModel, 0, 0)
	f.man.Insert(a, DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Flush()

	tint := [4]float32{1, 0.2, 0.2, 0}
	count := 0
	f.man.ModifyInstances(a, func(_ InstanceId, inst *GpuDrawInstance) {
		inst.ColorOffset = tint
		count++
	})

	assert.Equal(t, 2, count, "one call per mesh of the model")
	for _, c := range []*InstanceCollection{&f.man.opaque, &f.man.nonOpaque} {
		c.Each(func(_ InstanceId, inst *GpuDrawInstance) {
			assert.Equal(t, tint, inst.ColorOffset)
		})
	}
}

func TestBulkRemovalRemapsSurvivors(t *testing.T) {
	f := newFixture(t, 1<<16)

	// Distinct model matrices per coordinate so removals force remaps.
	var all []DrawId
	for q := int32(0); q < 6; q++ {
		d := drawId(f.hexModel, q, -q)
		all = append(all, d)
		inst := DefaultGameDrawInstance(mgl32.Ident4())
		inst.ModelMatrix = d.Coord.AsTranslation()
		f.man.Insert(d, inst)
	}
	f.man.Flush()
	require.Equal(t, 6, f.man.ModelMatrixCount())

	f.man.Remove(all[0])
	f.man.Remove(all[2])
	f.man.Remove(all[4])
	f.man.Flush()

	assert.Equal(t, 3, f.man.OpaqueLen())
	assert.Equal(t, 3, f.man.ModelMatrixCount())
	checkIndices(t, f)

	// Survivors still point at their own translation.
	for _, d := range []DrawId{all[1], all[3], all[5]} {
		inst, ok := f.man.opaque.Lookup(InstanceId{GlobalMeshId: f.hexMesh, RenderId: id.RenderId(7), Coord: d.Coord})
		require.True(t, ok)
		assert.Equal(t, d.Coord.AsTranslation(), f.man.modelMatrices.Buffer()[inst.ModelMatrixIndex])
	}
}

func TestRangesCoverBuffersAfterFlush(t *testing.T) {
	f := newFixture(t, 1<<16)

	for q := int32(0); q < 3; q++ {
		f.man.Insert(drawId(f.hexModel, q, 0), DefaultGameDrawInstance(mgl32.Ident4()))
		f.man.Insert(drawId(f.lampModel, q, 1), DefaultGameDrawInstance(mgl32.Ident4()))
	}
	f.man.Flush()

	for _, c := range []*InstanceCollection{&f.man.opaque, &f.man.nonOpaque} {
		total := uint32(0)
		for _, mr := range c.Ranges() {
			assert.Equal(t, total, mr.Range.Start)
			total += mr.Range.Count
		}
		assert.Equal(t, int(total), len(c.Buffer()))
	}
}

func TestSetAllWorldMatrixIsIdempotent(t *testing.T) {
	f := newFixture(t, 1<<16)

	f.man.Insert(drawId(f.hexModel, 0, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	cam := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})

	f.man.SetAllWorldMatrix(cam)
	first := append([]mgl32.Mat4(nil), f.man.worldMatrices.Buffer()...)
	f.man.SetAllWorldMatrix(cam)

	assert.Equal(t, first, f.man.worldMatrices.Buffer())
}

func TestAnimationSlots(t *testing.T) {
	f := newFixture(t, 1<<16)

	f.man.Insert(drawId(f.spinModel, 0, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Insert(drawId(f.hexModel, 1, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Flush()

	// Identity slot + one animated slot.
	assert.Len(t, f.man.animations.Buffer(), 2)

	spin, ok := f.man.opaque.Lookup(InstanceId{GlobalMeshId: f.spinMesh, RenderId: id.RenderId(7), Coord: coord.New(0, 0)})
	require.True(t, ok)
	assert.Equal(t, uint16(1), spin.AnimationMatrixIndex)

	hex, ok := f.man.opaque.Lookup(InstanceId{GlobalMeshId: f.hexMesh, RenderId: id.RenderId(7), Coord: coord.New(1, 0)})
	require.True(t, ok)
	assert.Equal(t, uint16(0), hex.AnimationMatrixIndex)

	// Advancing past the second keyframe rewrites the slot.
	f.man.UploadAnimation(time.Now().Add(-750 * time.Millisecond))
	assert.Equal(t, mgl32.HomogRotate3DZ(1), f.man.animations.Buffer()[1])
	assert.Equal(t, mgl32.Ident4(), f.man.animations.Buffer()[0])
}

func TestCollectDrawCallsBuildsArgs(t *testing.T) {
	f := newFixture(t, 1<<16)

	f.man.Insert(drawId(f.hexModel, 0, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Insert(drawId(f.hexModel, 1, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Insert(drawId(f.lampModel, 2, 0), DefaultGameDrawInstance(mgl32.Ident4()))
	f.man.Flush()

	draws := f.man.CollectDrawCalls()

	// Opaque: hex mesh (2 instances) + lamp base (1). Non-opaque: glow (1).
	require.Len(t, draws[0], 2)
	require.Len(t, draws[1], 1)

	for _, d := range append(draws[0], draws[1]...) {
		meshRange := f.modelMan.IndexRange(f.hexMesh)
		assert.Equal(t, meshRange.Count, d.IndexCount, "all test meshes share one index count")
	}

	var hexDraw *DrawIndexedIndirectArgs
	for i := range draws[0] {
		if draws[0][i].InstanceCount == 2 {
			hexDraw = &draws[0][i]
		}
	}
	require.NotNil(t, hexDraw)
	assert.Equal(t, f.modelMan.IndexRange(f.hexMesh).First, hexDraw.FirstIndex)
}

func TestBufferOverflowResizesAndReuploadsAllMatrices(t *testing.T) {
	// Tiny initial buffers: four matrices (256 bytes) overflow.
	f := newFixture(t, 256)

	for q := int32(0); q < 8; q++ {
		d := drawId(f.hexModel, q, 0)
		inst := DefaultGameDrawInstance(mgl32.Ident4())
		inst.ModelMatrix = d.Coord.AsTranslation()
		f.man.Insert(d, inst)
	}
	f.man.Flush()
	require.Greater(t, f.man.ModelMatrixCount(), 4)

	draws := f.man.CollectDrawCalls()

	assert.GreaterOrEqual(t, f.uploader.recreates[ModelMatrixBuffer], 1)
	assert.GreaterOrEqual(t, f.uploader.capacities[ModelMatrixBuffer], uint64(f.man.ModelMatrixCount()*64))
	// The shared resize fate: all three matrix buffers re-uploaded.
	assert.GreaterOrEqual(t, f.uploader.uploads[WorldMatrixBuffer], 1)
	assert.GreaterOrEqual(t, f.uploader.uploads[AnimationMatrixBuffer], 1)

	// Draw args stay correct after the resize.
	require.Len(t, draws[0], 1)
	assert.Equal(t, uint32(8), draws[0][0].InstanceCount)
}

func TestMarshalDrawArgsLayout(t *testing.T) {
	buf := MarshalDrawArgs([]DrawIndexedIndirectArgs{{
		IndexCount:    6,
		InstanceCount: 2,
		FirstIndex:    12,
		BaseVertex:    -4,
		FirstInstance: 3,
	}})

	require.Len(t, buf, 20)
	assert.Equal(t, byte(6), buf[0])
	assert.Equal(t, byte(2), buf[4])
	assert.Equal(t, byte(12), buf[8])
	assert.Equal(t, byte(0xfc), buf[12])
	assert.Equal(t, byte(3), buf[16])
}
