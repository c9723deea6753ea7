package model

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// GlobalMeshId is a unique handle for one mesh of one model across the
// whole asset catalog. Handles are assigned sequentially at registration
// and stay stable for the life of the process.
type GlobalMeshId uint32

// MeshMetadata carries per-mesh draw properties.
type MeshMetadata struct {
	// Opaque selects the opaque draw pass; non-opaque meshes render in the
	// second, blended pass.
	Opaque bool
}

// IndexRange locates one mesh inside the combined index/vertex buffers.
type IndexRange struct {
	// First is the mesh's first index in the combined index buffer.
	First uint32
	// Count is the mesh's index count.
	Count uint32
	// BaseVertex is added to every index when drawing.
	BaseVertex int32
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu sync.RWMutex

	modelMeshes map[id.ModelId][]GlobalMeshId
	meshMeta    map[GlobalMeshId]MeshMetadata
	indexRanges map[GlobalMeshId]IndexRange
	animations  map[GlobalMeshId]AnimationChannel

	vertices []GPUVertex
	indices  []uint32
	meshes   int
}

// Manager defines the interface for the mesh catalog. It owns the combined
// vertex/index data of every registered model and the per-mesh metadata the
// draw-instance manager keys its work off of. Registration happens during
// startup loading; reads are safe from any goroutine afterwards.
type Manager interface {
	// RegisterModel registers a model's meshes and returns their global
	// handles, in a stable order that is identical across loads for the
	// same registration sequence.
	//
	// Parameters:
	//   - model: the model identifier to register under
	//   - meshes: the model's mesh definitions, in model order
	//
	// Returns:
	//   - []GlobalMeshId: one handle per mesh, in definition order
	//   - error: if the model is already registered or has no meshes
	RegisterModel(model id.ModelId, meshes []MeshDef) ([]GlobalMeshId, error)

	// GlobalModelMeshIds returns the global mesh handles of a model. When
	// the model is unknown the fallback model's meshes are returned, so a
	// missing asset renders as the fallback instead of failing.
	//
	// Parameters:
	//   - model: the model to look up
	//   - fallback: the model substituted on a miss
	//
	// Returns:
	//   - []GlobalMeshId: the mesh handles; empty if both models are unknown
	GlobalModelMeshIds(model, fallback id.ModelId) []GlobalMeshId

	// MeshMetadata returns a mesh's draw properties.
	//
	// Parameters:
	//   - mesh: the global mesh handle
	//
	// Returns:
	//   - MeshMetadata: the mesh's draw properties
	MeshMetadata(mesh GlobalMeshId) MeshMetadata

	// IndexRange returns a mesh's location in the combined buffers.
	//
	// Parameters:
	//   - mesh: the global mesh handle
	//
	// Returns:
	//   - IndexRange: the mesh's index range
	IndexRange(mesh GlobalMeshId) IndexRange

	// AnimationChannel returns a mesh's animation channel, if it has one.
	//
	// Parameters:
	//   - mesh: the global mesh handle
	//
	// Returns:
	//   - AnimationChannel: the channel, zero-valued on a miss
	//   - bool: whether the mesh is animated
	AnimationChannel(mesh GlobalMeshId) (AnimationChannel, bool)

	// VertexData returns the combined vertex buffer bytes for GPU upload.
	//
	// Returns:
	//   - []byte: little-endian GPUVertex stream
	VertexData() []byte

	// IndexData returns the combined index buffer bytes for GPU upload.
	//
	// Returns:
	//   - []byte: little-endian uint32 index stream
	IndexData() []byte

	// MeshCount returns the number of registered meshes.
	//
	// Returns:
	//   - int: the mesh count
	MeshCount() int
}

var _ Manager = &manager{}

// MeshDef is one mesh of a model pending registration.
type MeshDef struct {
	Vertices []GPUVertex
	Indices  []uint32
	Opaque   bool
	// Animation is the mesh's keyframed pose channel, or nil for static
	// meshes.
	Animation *AnimationChannel
}

// NewManager creates an empty mesh catalog.
//
// Returns:
//   - Manager: a new, empty catalog
func NewManager() Manager {
	return &manager{
		modelMeshes: make(map[id.ModelId][]GlobalMeshId),
		meshMeta:    make(map[GlobalMeshId]MeshMetadata),
		indexRanges: make(map[GlobalMeshId]IndexRange),
		animations:  make(map[GlobalMeshId]AnimationChannel),
	}
}

func (m *manager) RegisterModel(model id.ModelId, meshes []MeshDef) ([]GlobalMeshId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modelMeshes[model]; exists {
		return nil, fmt.Errorf("model %d already registered", model)
	}
	if len(meshes) == 0 {
		return nil, fmt.Errorf("model %d has no meshes", model)
	}

	handles := make([]GlobalMeshId, 0, len(meshes))
	for _, mesh := range meshes {
		global := GlobalMeshId(m.meshes)
		m.meshes++

		m.meshMeta[global] = MeshMetadata{Opaque: mesh.Opaque}
		m.indexRanges[global] = IndexRange{
			First:      uint32(len(m.indices)),
			Count:      uint32(len(mesh.Indices)),
			BaseVertex: int32(len(m.vertices)),
		}

		m.vertices = append(m.vertices, mesh.Vertices...)
		m.indices = append(m.indices, mesh.Indices...)

		if mesh.Animation != nil {
			m.animations[global] = *mesh.Animation
		}

		handles = append(handles, global)
	}

	m.modelMeshes[model] = handles
	return handles, nil
}

func (m *manager) GlobalModelMeshIds(model, fallback id.ModelId) []GlobalMeshId {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if meshes, ok := m.modelMeshes[model]; ok {
		return meshes
	}
	return m.modelMeshes[fallback]
}

func (m *manager) MeshMetadata(mesh GlobalMeshId) MeshMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meshMeta[mesh]
}

func (m *manager) IndexRange(mesh GlobalMeshId) IndexRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexRanges[mesh]
}

func (m *manager) AnimationChannel(mesh GlobalMeshId) (AnimationChannel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.animations[mesh]
	return ch, ok
}

func (m *manager) VertexData() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf := make([]byte, 0, len(m.vertices)*48)
	for i := range m.vertices {
		buf = append(buf, m.vertices[i].Marshal()...)
	}
	return buf
}

func (m *manager) IndexData() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf := make([]byte, len(m.indices)*4)
	for i, idx := range m.indices {
		buf[i*4] = byte(idx)
		buf[i*4+1] = byte(idx >> 8)
		buf[i*4+2] = byte(idx >> 16)
		buf[i*4+3] = byte(idx >> 24)
	}
	return buf
}

func (m *manager) MeshCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meshes
}
