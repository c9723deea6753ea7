package renderer

// PresentMode controls how finished frames are delivered to the display.
type PresentMode int

const (
	// PresentModeVSync waits for the display's vertical blank (Fifo).
	PresentModeVSync PresentMode = iota
	// PresentModeUncapped presents immediately, allowing tearing.
	PresentModeUncapped
	// PresentModeTripleBuffered uses mailbox presentation when available.
	PresentModeTripleBuffered
)

// MSAASampleCount is the multisample count of the main render pass.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisampling.
	MSAAOff MSAASampleCount = 1
	// MSAA4x renders with 4 samples per pixel.
	MSAA4x MSAASampleCount = 4
)

// RendererBuilderOption is a functional option for configuring a renderer.
// Use the With* functions to create options.
type RendererBuilderOption func(r *renderer)

// WithForceFallbackAdapter forces the software fallback GPU adapter.
// Useful for headless environments and CI.
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithForceFallbackAdapter() RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = true
	}
}

// WithPresentMode sets the initial present mode.
//
// Parameters:
//   - mode: the PresentMode to use
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the multisample count of the main render pass.
//
// Parameters:
//   - samples: the MSAA sample count
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithMSAA(samples MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &samples
	}
}
