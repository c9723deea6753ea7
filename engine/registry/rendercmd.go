package registry

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// RenderCommand is one deltaful instruction a tile emits to steer the GPU
// instance buffers. For a given (render id, model id) pair Track precedes
// any Transform and Untrack is terminal; the renderer applies a coord's
// commands in order.
type RenderCommand interface{ isRenderCommand() }

// Track begins drawing (render id, model id) at the emitting coordinate.
type Track struct {
	RenderId id.RenderId
	ModelId  id.ModelId
}

// Untrack stops drawing the pair.
type Untrack struct {
	RenderId id.RenderId
	ModelId  id.ModelId
}

// Transform updates the pair's per-instance model matrix.
type Transform struct {
	RenderId    id.RenderId
	ModelId     id.ModelId
	ModelMatrix mgl32.Mat4
}

func (Track) isRenderCommand()     {}
func (Untrack) isRenderCommand()   {}
func (Transform) isRenderCommand() {}

// UiKind discriminates config-UI tree nodes.
type UiKind uint8

const (
	UiRow UiKind = iota
	UiColumn
	UiLabel
	UiSelectDirection
	UiSelectItem
	UiInventorySlot
	UiAmountSlider
)

// UiUnit is an opaque description tree for a tile's config panel. The GUI
// layer renders it; the simulation only builds and carries it.
type UiUnit struct {
	Kind UiKind
	// Key is the data key the widget edits, when it edits one.
	Key id.Id
	// Text is the label or translation key.
	Text string
	// Value carries the widget's current numeric value.
	Value int64
	// Max bounds sliders.
	Max int64

	Children []UiUnit
}
