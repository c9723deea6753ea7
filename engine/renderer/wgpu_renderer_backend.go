package renderer

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/renderer/instance"
)

// gameUniformSize is the byte size of the game uniform: camera position
// (vec4) plus camera bounds (vec4).
const gameUniformSize = 32

// indirectArgsSize is the byte stride of one indexed indirect argument
// record.
const indirectArgsSize = 20

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat        *wgpu.TextureFormat
	msaaTextureView      *wgpu.TextureView
	depthTextureView     *wgpu.TextureView
	renderPassDescriptor *wgpu.RenderPassDescriptor

	presentMode wgpu.PresentMode
	sampleCount MSAASampleCount

	// Mesh geometry shared by every tile draw.
	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer

	// Game pipelines: opaque pass then blended non-opaque pass.
	opaquePipeline    *wgpu.RenderPipeline
	nonOpaquePipeline *wgpu.RenderPipeline

	uniformBuffer   *wgpu.Buffer
	bindGroupLayout *wgpu.BindGroupLayout
	bindGroup       *wgpu.BindGroup
	bindGroupDirty  bool

	// Resizable storage/instance buffers keyed by kind, with their byte
	// capacities.
	buffers    map[instance.BufferKind]*wgpu.Buffer
	capacities map[instance.BufferKind]uint64

	opaqueIndirectBuffer    *wgpu.Buffer
	nonOpaqueIndirectBuffer *wgpu.Buffer
	opaqueIndirectCap       uint64
	nonOpaqueIndirectCap    uint64
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, sampleCount MSAASampleCount) RendererBackend {
	runtime.LockOSThread()
	b := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		sampleCount: sampleCount,
		buffers:     make(map[instance.BufferKind]*wgpu.Buffer),
		capacities:  make(map[instance.BufferKind]uint64),
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		panic(err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		panic(err)
	}
	b.device = d
	b.queue = d.GetQueue()

	return b
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeTripleBuffered:
		b.presentMode = wgpu.PresentModeMailbox
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	count := uint32(b.sampleCount)
	msaaEnabled := count > 1

	if msaaEnabled {
		// The render pass draws into the MSAA texture; the resolved result
		// goes to the swapchain view as the ResolveTarget.
		msaaTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label: "MSAA Texture",
			Size: wgpu.Extent3D{
				Width:              uint32(width),
				Height:             uint32(height),
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        *b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			panic(err)
		}
		b.msaaTextureView, err = msaaTexture.CreateView(nil)
		if err != nil {
			panic(err)
		}
	} else {
		b.msaaTextureView = nil
	}

	depthTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		panic(err)
	}
	b.depthTextureView, err = depthTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}

	storeOp := wgpu.StoreOpStore
	if msaaEnabled {
		storeOp = wgpu.StoreOpDiscard
	}
	b.renderPassDescriptor = &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:          b.msaaTextureView, // nil when MSAA is off; set per frame
				ResolveTarget: nil,               // set per frame when MSAA is on
				LoadOp:        wgpu.LoadOpClear,
				StoreOp:       storeOp,
				ClearValue: wgpu.Color{
					R: 0.05, G: 0.05, B: 0.08, A: 1.0,
				},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthTextureView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	}
}

// bufferUsage returns the usage flags of a managed buffer kind. Matrix
// arenas bind as read-only storage; instance data streams in as a second
// vertex buffer.
func bufferUsage(kind instance.BufferKind) wgpu.BufferUsage {
	switch kind {
	case instance.OpaqueInstanceBuffer, instance.NonOpaqueInstanceBuffer:
		return wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst
	default:
		return wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	}
}

func bufferLabel(kind instance.BufferKind) string {
	switch kind {
	case instance.ModelMatrixBuffer:
		return "Model Matrix Buffer"
	case instance.WorldMatrixBuffer:
		return "World Matrix Buffer"
	case instance.AnimationMatrixBuffer:
		return "Animation Matrix Buffer"
	case instance.OpaqueInstanceBuffer:
		return "Opaque Instance Buffer"
	default:
		return "Non-Opaque Instance Buffer"
	}
}

// initialCapacity is the starting byte size of each managed buffer:
// 256 matrices worth.
const initialCapacity = 256 * 64

func (b *wgpuRendererBackendImpl) ensureBuffer(kind instance.BufferKind, size uint64) bool {
	if _, ok := b.buffers[kind]; ok && size <= b.capacities[kind] {
		return false
	}

	capacity := b.capacities[kind] * 2
	if capacity == 0 {
		capacity = initialCapacity
	}
	if capacity < size {
		capacity = size
	}

	if old, ok := b.buffers[kind]; ok {
		old.Release()
	}

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: bufferLabel(kind),
		Size:  capacity,
		Usage: bufferUsage(kind),
	})
	if err != nil {
		panic(err)
	}
	b.buffers[kind] = buf
	b.capacities[kind] = capacity

	switch kind {
	case instance.ModelMatrixBuffer, instance.WorldMatrixBuffer, instance.AnimationMatrixBuffer:
		// Recreating a storage buffer invalidates the shared bind group.
		b.bindGroupDirty = true
	}
	return true
}

// wgpuUploader adapts the backend to the draw-instance manager's Uploader.
type wgpuUploader struct {
	backend *wgpuRendererBackendImpl
}

var _ instance.Uploader = wgpuUploader{}

func (u wgpuUploader) EnsureCapacity(kind instance.BufferKind, size uint64) bool {
	u.backend.mu.Lock()
	defer u.backend.mu.Unlock()
	return u.backend.ensureBuffer(kind, size)
}

func (u wgpuUploader) Upload(kind instance.BufferKind, data []byte) {
	u.backend.mu.Lock()
	defer u.backend.mu.Unlock()

	if len(data) == 0 {
		return
	}
	u.backend.ensureBuffer(kind, uint64(len(data)))
	u.backend.queue.WriteBuffer(u.backend.buffers[kind], 0, data)
}

func (b *wgpuRendererBackendImpl) Uploader() instance.Uploader {
	return wgpuUploader{backend: b}
}

func (b *wgpuRendererBackendImpl) InitGameResources(modelMan model.Manager, shaderSource string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vertexData := modelMan.VertexData()
	indexData := modelMan.IndexData()
	if len(vertexData) == 0 || len(indexData) == 0 {
		return fmt.Errorf("mesh catalog is empty")
	}

	vertexBuffer, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Mesh Vertex Buffer",
		Size:  uint64(len(vertexData)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(vertexBuffer, 0, vertexData)
	b.vertexBuffer = vertexBuffer

	indexBuffer, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Mesh Index Buffer",
		Size:  uint64(len(indexData)),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(indexBuffer, 0, indexData)
	b.indexBuffer = indexBuffer

	uniformBuffer, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Game Uniform Buffer",
		Size:  gameUniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.uniformBuffer = uniformBuffer

	// The storage buffers must exist before the first bind group build.
	for _, kind := range []instance.BufferKind{
		instance.ModelMatrixBuffer,
		instance.WorldMatrixBuffer,
		instance.AnimationMatrixBuffer,
		instance.OpaqueInstanceBuffer,
		instance.NonOpaqueInstanceBuffer,
	} {
		b.ensureBuffer(kind, initialCapacity)
	}

	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Game Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageVertex,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageVertex,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    3,
				Visibility: wgpu.ShaderStageVertex,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return err
	}
	b.bindGroupLayout = layout
	b.bindGroupDirty = true

	shaderModule, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Game Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: shaderSource,
		},
	})
	if err != nil {
		return err
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Game Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return err
	}

	vertexLayouts := []wgpu.VertexBufferLayout{
		{
			// Mesh vertex stream: model.GPUVertex, 48 bytes.
			ArrayStride: 48,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{ShaderLocation: 0, Offset: 0, Format: wgpu.VertexFormatFloat32x3},
				{ShaderLocation: 1, Offset: 12, Format: wgpu.VertexFormatFloat32x3},
				{ShaderLocation: 2, Offset: 24, Format: wgpu.VertexFormatFloat32x2},
				{ShaderLocation: 3, Offset: 32, Format: wgpu.VertexFormatFloat32x4},
			},
		},
		{
			// Instance stream: instance.GpuDrawInstance, 32 bytes. The
			// world and animation indices are packed into one uint32.
			ArrayStride: 32,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes: []wgpu.VertexAttribute{
				{ShaderLocation: 4, Offset: 0, Format: wgpu.VertexFormatFloat32x4},
				{ShaderLocation: 5, Offset: 16, Format: wgpu.VertexFormatFloat32},
				{ShaderLocation: 6, Offset: 20, Format: wgpu.VertexFormatUint32},
				{ShaderLocation: 7, Offset: 24, Format: wgpu.VertexFormatUint32},
			},
		},
	}

	makePipeline := func(label string, blend *wgpu.BlendState, depthWrite bool) (*wgpu.RenderPipeline, error) {
		return b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  label,
			Layout: pipelineLayout,
			Vertex: wgpu.VertexState{
				Module:     shaderModule,
				EntryPoint: "vs_main",
				Buffers:    vertexLayouts,
			},
			Fragment: &wgpu.FragmentState{
				Module:     shaderModule,
				EntryPoint: "fs_main",
				Targets: []wgpu.ColorTargetState{
					{
						Format:    *b.surfaceFormat,
						Blend:     blend,
						WriteMask: wgpu.ColorWriteMaskAll,
					},
				},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeBack,
			},
			Multisample: wgpu.MultisampleState{
				Count: uint32(b.sampleCount),
				Mask:  0xFFFFFFFF,
			},
			DepthStencil: &wgpu.DepthStencilState{
				Format:            wgpu.TextureFormatDepth24Plus,
				DepthWriteEnabled: depthWrite,
				DepthCompare:      wgpu.CompareFunctionLess,
				StencilFront: wgpu.StencilFaceState{
					Compare: wgpu.CompareFunctionAlways,
				},
				StencilBack: wgpu.StencilFaceState{
					Compare: wgpu.CompareFunctionAlways,
				},
			},
		})
	}

	opaque, err := makePipeline("Game Opaque Pipeline", nil, true)
	if err != nil {
		return err
	}
	b.opaquePipeline = opaque

	alphaBlend := &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}

	nonOpaque, err := makePipeline("Game Non-Opaque Pipeline", alphaBlend, false)
	if err != nil {
		return err
	}
	b.nonOpaquePipeline = nonOpaque

	return nil
}

// ensureBindGroup rebuilds the shared bind group after any storage buffer
// was recreated.
func (b *wgpuRendererBackendImpl) ensureBindGroup() error {
	if b.bindGroup != nil && !b.bindGroupDirty {
		return nil
	}
	if b.bindGroup != nil {
		b.bindGroup.Release()
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Game Bind Group",
		Layout: b.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.uniformBuffer, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: b.buffers[instance.ModelMatrixBuffer], Size: wgpu.WholeSize},
			{Binding: 2, Buffer: b.buffers[instance.WorldMatrixBuffer], Size: wgpu.WholeSize},
			{Binding: 3, Buffer: b.buffers[instance.AnimationMatrixBuffer], Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return err
	}
	b.bindGroup = bindGroup
	b.bindGroupDirty = false
	return nil
}

// ensureIndirect sizes and fills one indirect argument buffer.
func (b *wgpuRendererBackendImpl) ensureIndirect(buf **wgpu.Buffer, capacity *uint64, label string, data []byte) error {
	needed := uint64(len(data))
	if needed == 0 {
		return nil
	}
	if *buf == nil || needed > *capacity {
		grown := *capacity * 2
		if grown < needed {
			grown = needed
		}
		if *buf != nil {
			(*buf).Release()
		}
		created, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  grown,
			Usage: wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		*buf = created
		*capacity = grown
	}
	b.queue.WriteBuffer(*buf, 0, data)
	return nil
}

func (b *wgpuRendererBackendImpl) RenderFrame(frame FrameData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureBindGroup(); err != nil {
		return err
	}

	uniform := make([]byte, gameUniformSize)
	binary.LittleEndian.PutUint32(uniform[0:], math.Float32bits(frame.CameraPos[0]))
	binary.LittleEndian.PutUint32(uniform[4:], math.Float32bits(frame.CameraPos[1]))
	for i, v := range frame.CameraBounds {
		binary.LittleEndian.PutUint32(uniform[16+i*4:], math.Float32bits(v))
	}
	b.queue.WriteBuffer(b.uniformBuffer, 0, uniform)

	if err := b.ensureIndirect(&b.opaqueIndirectBuffer, &b.opaqueIndirectCap,
		"Opaque Indirect Buffer", instance.MarshalDrawArgs(frame.OpaqueDraws)); err != nil {
		return err
	}
	if err := b.ensureIndirect(&b.nonOpaqueIndirectBuffer, &b.nonOpaqueIndirectCap,
		"Non-Opaque Indirect Buffer", instance.MarshalDrawArgs(frame.NonOpaqueDraws)); err != nil {
		return err
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	if b.sampleCount > 1 {
		b.renderPassDescriptor.ColorAttachments[0].ResolveTarget = view
	} else {
		b.renderPassDescriptor.ColorAttachments[0].View = view
	}

	pass := encoder.BeginRenderPass(b.renderPassDescriptor)

	encodeDraws := func(pipeline *wgpu.RenderPipeline, instanceKind instance.BufferKind, indirect *wgpu.Buffer, count int) {
		if count == 0 || indirect == nil {
			return
		}
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, b.bindGroup, nil)
		pass.SetVertexBuffer(0, b.vertexBuffer, 0, wgpu.WholeSize)
		pass.SetVertexBuffer(1, b.buffers[instanceKind], 0, wgpu.WholeSize)
		pass.SetIndexBuffer(b.indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		for i := 0; i < count; i++ {
			pass.DrawIndexedIndirect(indirect, uint64(i*indirectArgsSize))
		}
	}

	encodeDraws(b.opaquePipeline, instance.OpaqueInstanceBuffer, b.opaqueIndirectBuffer, len(frame.OpaqueDraws))
	encodeDraws(b.nonOpaquePipeline, instance.NonOpaqueInstanceBuffer, b.nonOpaqueIndirectBuffer, len(frame.NonOpaqueDraws))

	pass.End()

	// Follow-up passes (lighting, post-processing, antialiasing, GUI) are
	// external collaborators recorded against the resolved swapchain view.
	for _, p := range frame.Passes {
		p.Encode(encoder, view)
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.queue.Submit(commandBuffer)
	b.surface.Present()

	commandBuffer.Release()
	encoder.Release()
	view.Release()
	surfaceTexture.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, buf := range b.buffers {
		buf.Release()
	}
	clear(b.buffers)

	for _, buf := range []*wgpu.Buffer{
		b.vertexBuffer, b.indexBuffer, b.uniformBuffer,
		b.opaqueIndirectBuffer, b.nonOpaqueIndirectBuffer,
	} {
		if buf != nil {
			buf.Release()
		}
	}
	if b.bindGroup != nil {
		b.bindGroup.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
}
