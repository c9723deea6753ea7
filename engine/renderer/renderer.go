// Package renderer drives the fixed per-frame render sequence of the game:
// it asks the game actor for render commands, feeds them through the
// draw-instance manager, and records the game pass plus the follow-up
// passes as two lists of indexed indirect draws.
package renderer

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/renderer/instance"
	"github.com/Carmen-Shannon/hexfab/engine/window"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backend RendererBackend

	// Pre-creation config collected from builder options.
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API wrapping the GPU backend behind the fixed needs
// of the game: a mesh buffer pair, the instance/matrix storage buffers
// managed through the draw-instance manager's Uploader, and a frame made
// of the game pass followed by externally-provided passes.
type Renderer interface {
	// Resize configures the underlying backend for a new surface size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SetPresentMode sets how frames are delivered to the display. A call
	// to Resize is required for the new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// InitGameResources uploads the mesh catalog's combined vertex/index
	// buffers and builds the game render pipelines from the given WGSL
	// source. Must be called once before the first RenderFrame.
	//
	// Parameters:
	//   - modelMan: the mesh catalog to upload
	//   - shaderSource: the WGSL source of the game vertex+fragment shaders
	//
	// Returns:
	//   - error: an error if buffer or pipeline creation fails
	InitGameResources(modelMan model.Manager, shaderSource string) error

	// Uploader returns the device-buffer backend handed to the
	// draw-instance manager.
	//
	// Returns:
	//   - instance.Uploader: the uploader bound to this renderer's device
	Uploader() instance.Uploader

	// RenderFrame acquires the swapchain texture, encodes the game pass
	// issuing one indexed indirect draw per argument entry (opaque first,
	// then non-opaque), runs the external follow-up passes, submits and
	// presents.
	//
	// Parameters:
	//   - frame: this frame's uniform data, draw lists, and passes
	//
	// Returns:
	//   - error: an error if the swapchain texture could not be acquired
	RenderFrame(frame FrameData) error

	// Release frees the GPU resources held by the renderer.
	Release()
}

// FrameData carries everything one frame draws.
type FrameData struct {
	// CameraPos is the camera world position fed to the game uniform.
	CameraPos [2]float32
	// CameraBounds is the visible world rectangle fed to the game uniform.
	CameraBounds [4]float32
	// OpaqueDraws and NonOpaqueDraws are the per-mesh indirect arguments
	// produced by the draw-instance manager.
	OpaqueDraws    []instance.DrawIndexedIndirectArgs
	NonOpaqueDraws []instance.DrawIndexedIndirectArgs
	// Passes are the external follow-up passes (lighting, post-processing,
	// antialiasing, GUI) recorded after the game pass, in order.
	Passes []RenderPass
}

// RenderPass is an externally-provided render pass recorded between the
// game pass and present.
type RenderPass interface {
	// Encode records the pass into the frame's command encoder targeting
	// the swapchain view.
	//
	// Parameters:
	//   - encoder: the frame's command encoder
	//   - view: the swapchain texture view
	Encode(encoder *wgpu.CommandEncoder, view *wgpu.TextureView)
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer targeting the given window's surface.
//
// Parameters:
//   - win: the window providing the surface descriptor and initial size
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the options
func NewRenderer(win window.Window, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu: &sync.Mutex{},
	}

	// Apply options first so config flags are available before the backend
	// requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	msaa := MSAA4x // default
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	r.backend = newWGPURendererBackend(win.SurfaceDescriptor(), r.forceFallbackAdapter, msaa)

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	r.backend.ConfigureSurface(win.Width(), win.Height())
	return r
}

func (r *renderer) Resize(width, height int) {
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) InitGameResources(modelMan model.Manager, shaderSource string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.InitGameResources(modelMan, shaderSource)
}

func (r *renderer) Uploader() instance.Uploader {
	return r.backend.Uploader()
}

func (r *renderer) RenderFrame(frame FrameData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.RenderFrame(frame)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.Release()
}
