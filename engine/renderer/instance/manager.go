package instance

import (
	"encoding/binary"
	"math"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// DrawId identifies one tracked tile draw: every model fans out to one
// instance per mesh.
type DrawId struct {
	Coord    coord.TileCoord
	RenderId id.RenderId
	ModelId  id.ModelId
}

// GameDrawInstance is the simulation-facing instance description; the
// manager expands it into per-mesh GPU records.
type GameDrawInstance struct {
	ColorOffset [4]float32
	Alpha       float32
	ModelMatrix mgl32.Mat4
	WorldMatrix mgl32.Mat4
}

// DefaultGameDrawInstance is a fresh, untinted instance at the origin.
func DefaultGameDrawInstance(world mgl32.Mat4) GameDrawInstance {
	return GameDrawInstance{
		Alpha:       1,
		ModelMatrix: mgl32.Ident4(),
		WorldMatrix: world,
	}
}

// BufferKind names one of the device buffers the manager maintains.
type BufferKind uint8

const (
	ModelMatrixBuffer BufferKind = iota
	WorldMatrixBuffer
	AnimationMatrixBuffer
	OpaqueInstanceBuffer
	NonOpaqueInstanceBuffer
)

// Uploader is the device-buffer backend. EnsureCapacity grows a buffer to
// at least the requested size using the min-grow policy
// (new = max(2 × current, requested)) and reports whether the buffer was
// recreated; recreating any matrix buffer rebinds the shared descriptor
// set, so the manager re-uploads all three matrix arenas in that case.
type Uploader interface {
	// EnsureCapacity grows the named buffer if size exceeds its capacity.
	//
	// Parameters:
	//   - kind: the buffer to size
	//   - size: the required byte size
	//
	// Returns:
	//   - bool: whether the buffer was recreated
	EnsureCapacity(kind BufferKind, size uint64) bool

	// Upload writes data into the named buffer at offset zero.
	//
	// Parameters:
	//   - kind: the destination buffer
	//   - data: the bytes to write
	Upload(kind BufferKind, data []byte)
}

// DrawIndexedIndirectArgs is the GPU indirect argument record for one
// indexed draw. Layout matches the indirect-indexed draw primitive:
// 20 bytes, little-endian.
type DrawIndexedIndirectArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// MarshalDrawArgs serializes indirect draw arguments for GPU upload.
func MarshalDrawArgs(draws []DrawIndexedIndirectArgs) []byte {
	buf := make([]byte, len(draws)*20)
	for i, d := range draws {
		off := i * 20
		binary.LittleEndian.PutUint32(buf[off:], d.IndexCount)
		binary.LittleEndian.PutUint32(buf[off+4:], d.InstanceCount)
		binary.LittleEndian.PutUint32(buf[off+8:], d.FirstIndex)
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(d.BaseVertex))
		binary.LittleEndian.PutUint32(buf[off+16:], d.FirstInstance)
	}
	return buf
}

// DrawInstanceManager consumes render-command batches and maintains the
// CPU mirrors of the instance, matrix and animation buffers, keeping
// CPU and GPU state synchronized as tiles come and go.
type DrawInstanceManager struct {
	reg      *registry.Registry
	modelMan model.Manager
	uploader Uploader

	toRemove map[DrawId]struct{}

	opaque    InstanceCollection
	nonOpaque InstanceCollection

	modelMatrices MatrixArena[uint32]
	worldMatrices MatrixArena[uint16]

	animations AnimationCollection
}

// NewDrawInstanceManager creates an empty manager bound to the registry,
// mesh catalog and device-buffer backend.
func NewDrawInstanceManager(reg *registry.Registry, modelMan model.Manager, uploader Uploader) *DrawInstanceManager {
	return &DrawInstanceManager{
		reg:      reg,
		modelMan: modelMan,
		uploader: uploader,

		toRemove: make(map[DrawId]struct{}),

		opaque:    NewInstanceCollection(),
		nonOpaque: NewInstanceCollection(),

		modelMatrices: NewMatrixArena[uint32](256),
		worldMatrices: NewMatrixArena[uint16](16),

		animations: NewAnimationCollection(),
	}
}

// meshes expands a model into its global mesh handles, falling back to the
// missing-tile model.
func (m *DrawInstanceManager) meshes(modelId id.ModelId) []model.GlobalMeshId {
	return m.modelMan.GlobalModelMeshIds(modelId, m.reg.ModelIds.TileMissing)
}

// collectionFor picks the opaque or non-opaque collection by mesh
// metadata. The choice never changes for a live instance.
func (m *DrawInstanceManager) collectionFor(mesh model.GlobalMeshId) *InstanceCollection {
	if m.modelMan.MeshMetadata(mesh).Opaque {
		return &m.opaque
	}
	return &m.nonOpaque
}

// Insert begins tracking a draw id, appending one GPU instance per mesh of
// the model. Inserting a draw id twice without an intervening removal is a
// programmer error (the collections panic on duplicate instances).
func (m *DrawInstanceManager) Insert(drawId DrawId, inst GameDrawInstance) {
	for _, mesh := range m.meshes(drawId.ModelId) {
		instanceId := InstanceId{GlobalMeshId: mesh, RenderId: drawId.RenderId, Coord: drawId.Coord}

		m.animations.EnsureAnimationExists(m.modelMan, mesh)

		m.collectionFor(mesh).Add(instanceId, GpuDrawInstance{
			ColorOffset:          inst.ColorOffset,
			Alpha:                inst.Alpha,
			ModelMatrixIndex:     m.modelMatrices.InsertMatrix(inst.ModelMatrix),
			WorldMatrixIndex:     m.worldMatrices.InsertMatrix(inst.WorldMatrix),
			AnimationMatrixIndex: m.animations.Get(mesh),
		})
	}
}

// Remove schedules a draw id for deletion on the next Flush. Idempotent.
func (m *DrawInstanceManager) Remove(drawId DrawId) {
	m.toRemove[drawId] = struct{}{}
}

// ModifyInstances calls f for every mesh-instance of a draw id. Used to
// apply tile tints.
func (m *DrawInstanceManager) ModifyInstances(drawId DrawId, f func(InstanceId, *GpuDrawInstance)) {
	for _, mesh := range m.meshes(drawId.ModelId) {
		instanceId := InstanceId{GlobalMeshId: mesh, RenderId: drawId.RenderId, Coord: drawId.Coord}

		if inst, ok := m.collectionFor(mesh).Lookup(instanceId); ok {
			f(instanceId, inst)
		}
	}
}

// SetMatrix updates a draw id's model and/or world matrix through the
// arenas, rewriting each instance's indices.
func (m *DrawInstanceManager) SetMatrix(drawId DrawId, modelMatrix, worldMatrix *mgl32.Mat4) {
	for _, mesh := range m.meshes(drawId.ModelId) {
		instanceId := InstanceId{GlobalMeshId: mesh, RenderId: drawId.RenderId, Coord: drawId.Coord}

		inst, ok := m.collectionFor(mesh).Lookup(instanceId)
		if !ok {
			continue
		}

		if modelMatrix != nil {
			inst.ModelMatrixIndex = m.modelMatrices.ModifyMatrix(inst.ModelMatrixIndex, *modelMatrix)
		}
		if worldMatrix != nil {
			inst.WorldMatrixIndex = m.worldMatrices.ModifyMatrix(inst.WorldMatrixIndex, *worldMatrix)
		}
	}
}

// SetAllWorldMatrix broadcasts one world matrix to every arena slot: the
// game draws every tile under a single camera matrix, so this is the fast
// path.
func (m *DrawInstanceManager) SetAllWorldMatrix(world mgl32.Mat4) {
	m.worldMatrices.SetAll(world)
}

// Flush applies the pending removals: matrix holders are released with the
// bulk swap-remove remap applied to every surviving instance, then both
// collections compact and rebuild their per-mesh ranges.
func (m *DrawInstanceManager) Flush() {
	if len(m.toRemove) > 0 {
		m.opaque.Flush()
		m.nonOpaque.Flush()

		var modelToRemove []uint32
		var worldToRemove []uint16

		for drawId := range m.toRemove {
			for _, mesh := range m.meshes(drawId.ModelId) {
				instanceId := InstanceId{GlobalMeshId: mesh, RenderId: drawId.RenderId, Coord: drawId.Coord}

				collection := m.collectionFor(mesh)
				inst, ok := collection.Lookup(instanceId)
				if !ok {
					continue
				}
				modelToRemove = append(modelToRemove, inst.ModelMatrixIndex)
				worldToRemove = append(worldToRemove, inst.WorldMatrixIndex)

				collection.MarkRemoval(instanceId)
			}
		}
		clear(m.toRemove)

		slices.SortFunc(modelToRemove, descending[uint32])
		slices.SortFunc(worldToRemove, descending[uint16])

		modelMapping := make(map[uint32]uint32)
		worldMapping := make(map[uint16]uint16)
		m.modelMatrices.RemoveMatrices(modelToRemove, modelMapping)
		m.worldMatrices.RemoveMatrices(worldToRemove, worldMapping)

		remap := func(inst *GpuDrawInstance) {
			inst.ModelMatrixIndex = Resolve(modelMapping, inst.ModelMatrixIndex)
			inst.WorldMatrixIndex = Resolve(worldMapping, inst.WorldMatrixIndex)
		}
		for i := range m.opaque.buffer {
			remap(&m.opaque.buffer[i])
		}
		for i := range m.nonOpaque.buffer {
			remap(&m.nonOpaque.buffer[i])
		}

		m.opaque.FlushRemoval()
		m.nonOpaque.FlushRemoval()
	}

	m.opaque.Flush()
	m.nonOpaque.Flush()
}

func descending[I MatrixIndex](a, b I) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// UploadAnimation advances the animation poses to the elapsed time and
// uploads them, growing (and then fully re-uploading) the shared matrix
// buffers when the animation buffer outgrew its device allocation.
func (m *DrawInstanceManager) UploadAnimation(startInstant time.Time) {
	elapsed := float32(time.Since(startInstant).Seconds())
	m.animations.ProgressAnimation(m.modelMan, elapsed)

	if m.uploader.EnsureCapacity(AnimationMatrixBuffer, matrixBytes(len(m.animations.Buffer()))) {
		m.uploadAllMatrices()
	} else {
		m.uploader.Upload(AnimationMatrixBuffer, marshalMatrices(m.animations.Buffer()))
	}
}

// CollectDrawCalls sizes and uploads the matrix and instance buffers, then
// assembles the per-mesh indirect draw arguments for the opaque and
// non-opaque passes.
func (m *DrawInstanceManager) CollectDrawCalls() [2][]DrawIndexedIndirectArgs {
	if m.uploader.EnsureCapacity(ModelMatrixBuffer, matrixBytes(m.modelMatrices.Len())) {
		m.uploadAllMatrices()
	} else {
		m.uploader.Upload(ModelMatrixBuffer, marshalMatrices(m.modelMatrices.Buffer()))
	}

	if m.uploader.EnsureCapacity(WorldMatrixBuffer, matrixBytes(m.worldMatrices.Len())) {
		m.uploadAllMatrices()
	} else {
		m.uploader.Upload(WorldMatrixBuffer, marshalMatrices(m.worldMatrices.Buffer()))
	}

	m.uploader.EnsureCapacity(OpaqueInstanceBuffer, uint64(len(m.opaque.Buffer())*32))
	m.uploader.Upload(OpaqueInstanceBuffer, m.opaque.Marshal())
	m.uploader.EnsureCapacity(NonOpaqueInstanceBuffer, uint64(len(m.nonOpaque.Buffer())*32))
	m.uploader.Upload(NonOpaqueInstanceBuffer, m.nonOpaque.Marshal())

	return [2][]DrawIndexedIndirectArgs{
		m.collectDraws(&m.opaque),
		m.collectDraws(&m.nonOpaque),
	}
}

func (m *DrawInstanceManager) collectDraws(collection *InstanceCollection) []DrawIndexedIndirectArgs {
	draws := make([]DrawIndexedIndirectArgs, 0, len(collection.Ranges()))
	for _, meshRange := range collection.Ranges() {
		indexRange := m.modelMan.IndexRange(meshRange.Mesh)

		draws = append(draws, DrawIndexedIndirectArgs{
			IndexCount:    indexRange.Count,
			InstanceCount: meshRange.Range.Count,
			FirstIndex:    indexRange.First,
			BaseVertex:    indexRange.BaseVertex,
			FirstInstance: meshRange.Range.Start,
		})
	}
	return draws
}

// uploadAllMatrices re-uploads all three matrix arenas; they share resize
// fates because recreating one rebinds the descriptor set.
func (m *DrawInstanceManager) uploadAllMatrices() {
	m.uploader.Upload(ModelMatrixBuffer, marshalMatrices(m.modelMatrices.Buffer()))
	m.uploader.Upload(WorldMatrixBuffer, marshalMatrices(m.worldMatrices.Buffer()))
	m.uploader.Upload(AnimationMatrixBuffer, marshalMatrices(m.animations.Buffer()))
}

// Clear drops every instance, matrix and animation slot.
func (m *DrawInstanceManager) Clear() {
	clear(m.toRemove)
	m.opaque.Clear()
	m.nonOpaque.Clear()
	m.modelMatrices.Clear()
	m.worldMatrices.Clear()
	m.animations.Clear()
}

// OpaqueLen and NonOpaqueLen report live instance counts.
func (m *DrawInstanceManager) OpaqueLen() int {
	return m.opaque.Len()
}

func (m *DrawInstanceManager) NonOpaqueLen() int {
	return m.nonOpaque.Len()
}

// ModelMatrixCount returns the live model-matrix slot count.
func (m *DrawInstanceManager) ModelMatrixCount() int {
	return m.modelMatrices.Len()
}

// WorldMatrixCount returns the live world-matrix slot count.
func (m *DrawInstanceManager) WorldMatrixCount() int {
	return m.worldMatrices.Len()
}

func matrixBytes(n int) uint64 {
	return uint64(n) * 64
}

func marshalMatrices(matrices []mgl32.Mat4) []byte {
	buf := make([]byte, len(matrices)*64)
	for i, mat := range matrices {
		off := i * 64
		for j := 0; j < 16; j++ {
			binary.LittleEndian.PutUint32(buf[off+j*4:], math.Float32bits(mat[j]))
		}
	}
	return buf
}
