package instance

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/hexfab/engine/model"
)

// noAnimation is the reserved identity slot meaning "no animation".
const noAnimation uint16 = 0

// AnimationCollection maintains the per-mesh "current animation pose"
// matrices. Slot 0 is reserved as identity and never removed; animated
// meshes get a slot on first insert and keep it for the life of the
// collection. Slot contents are recomputed each frame from the mesh's
// keyframe channel.
type AnimationCollection struct {
	buffer       []mgl32.Mat4
	animationIds map[model.GlobalMeshId]uint16
}

// NewAnimationCollection creates a collection holding only the identity
// slot.
func NewAnimationCollection() AnimationCollection {
	buffer := make([]mgl32.Mat4, 1, 16)
	buffer[noAnimation] = mgl32.Ident4()

	return AnimationCollection{
		buffer:       buffer,
		animationIds: make(map[model.GlobalMeshId]uint16),
	}
}

// Buffer returns the pose matrix slots.
func (a *AnimationCollection) Buffer() []mgl32.Mat4 {
	return a.buffer
}

// EnsureAnimationExists allocates a slot for the mesh if it is animated
// and has none yet.
func (a *AnimationCollection) EnsureAnimationExists(modelMan model.Manager, mesh model.GlobalMeshId) {
	if _, ok := a.animationIds[mesh]; ok {
		return
	}
	if _, animated := modelMan.AnimationChannel(mesh); !animated {
		return
	}
	a.buffer = append(a.buffer, mgl32.Ident4())
	a.animationIds[mesh] = uint16(len(a.buffer) - 1)
}

// Get returns the mesh's slot, or the identity slot for static meshes.
func (a *AnimationCollection) Get(mesh model.GlobalMeshId) uint16 {
	if index, ok := a.animationIds[mesh]; ok {
		return index
	}
	return noAnimation
}

// ProgressAnimation recomputes every allocated slot for the given elapsed
// time.
func (a *AnimationCollection) ProgressAnimation(modelMan model.Manager, elapsed float32) {
	for mesh, index := range a.animationIds {
		channel, ok := modelMan.AnimationChannel(mesh)
		if !ok {
			continue
		}
		a.buffer[index] = channel.Sample(elapsed)
	}
}

// Clear drops every slot including identity; only used when tearing the
// whole manager down.
func (a *AnimationCollection) Clear() {
	a.buffer = a.buffer[:0]
	clear(a.animationIds)
}
