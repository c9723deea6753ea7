package renderer

import (
	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/renderer/instance"
)

// RendererBackend is the GPU-API-specific half of the renderer. One
// implementation exists per backend API; WGPU is the default.
type RendererBackend interface {
	// ConfigureSurface (re)configures the swapchain and the MSAA/depth
	// attachments for a new surface size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	ConfigureSurface(width, height int)

	// SetPresentMode sets the surface present mode. Takes effect on the
	// next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// InitGameResources uploads the combined mesh buffers and creates the
	// opaque and non-opaque game pipelines from the WGSL source.
	//
	// Parameters:
	//   - modelMan: the mesh catalog to upload
	//   - shaderSource: the WGSL source of the game shaders
	//
	// Returns:
	//   - error: an error if buffer or pipeline creation fails
	InitGameResources(modelMan model.Manager, shaderSource string) error

	// Uploader returns the device-buffer backend for the draw-instance
	// manager.
	//
	// Returns:
	//   - instance.Uploader: the uploader bound to this device
	Uploader() instance.Uploader

	// RenderFrame encodes and submits one frame.
	//
	// Parameters:
	//   - frame: this frame's uniform data, draw lists, and passes
	//
	// Returns:
	//   - error: an error if the swapchain texture could not be acquired
	RenderFrame(frame FrameData) error

	// Release frees every GPU resource held by the backend.
	Release()
}
