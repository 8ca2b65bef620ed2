//go:build !nogpu

package gpu

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stipple"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

//go:embed shaders/cone.wgsl
var coneShaderSource string

// maxTextureDimension is the WebGPU default limit for 2D textures.
const maxTextureDimension = 8192

// fenceTimeout bounds the wait for one Voronoi pass.
const fenceTimeout = 5 * time.Second

var errNotReady = errors.New("gpu-cone: device not initialized")

// ConeBackend computes the discrete Voronoi partition with hardware
// rasterization. Every site is drawn as an instanced cone into an R32Uint
// color target with a Depth32Float depth target; the depth compare is
// strictly less, so in each pixel the nearest cone survives and, on equal
// depth, the one drawn first (lowest site index). It implements
// stipple.VoronoiBackend.
type ConeBackend struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	coneBuf   hal.Buffer
	coneVerts uint32
	paramsBuf hal.Buffer
	bindGroup hal.BindGroup

	siteBuf   hal.Buffer
	siteCap   uint64
	siteBytes []byte
	siteCount uint32

	targets targetSet

	readback []byte
	rendered bool

	gpuReady       bool
	externalDevice bool // shared device, not destroyed on Close
}

var (
	_ stipple.VoronoiBackend      = (*ConeBackend)(nil)
	_ stipple.DeviceProviderAware = (*ConeBackend)(nil)
)

// NewConeBackend returns an uninitialized backend. Init opens a device.
func NewConeBackend() *ConeBackend {
	return &ConeBackend{}
}

// Name returns "wgpu-cone".
func (b *ConeBackend) Name() string { return "wgpu-cone" }

// SetLogger receives the logger from stipple.SetLogger.
func (b *ConeBackend) SetLogger(l *slog.Logger) { setLogger(l) }

// Init opens the first hardware adapter and builds the cone pipeline.
func (b *ConeBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gpuReady {
		return nil
	}
	return b.initGPU()
}

// Close releases every GPU resource. A shared device is left alive.
func (b *ConeBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseDevice()
}

func (b *ConeBackend) releaseDevice() {
	if b.device != nil {
		b.targets.destroy(b.device)
		b.destroySites()
		b.destroyPipeline()
	}
	if !b.externalDevice {
		if b.device != nil {
			b.device.Destroy()
		}
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.device = nil
	b.instance = nil
	b.queue = nil
	b.rendered = false
	b.gpuReady = false
	b.externalDevice = false
}

// SetDeviceProvider switches the backend to a shared GPU device from an
// external provider. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func (b *ConeBackend) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu-cone: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu-cone: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu-cone: provider HalQueue is not hal.Queue")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	w, h := b.targets.width, b.targets.height
	b.releaseDevice()

	b.device = device
	b.queue = queue
	b.externalDevice = true
	if err := b.createPipeline(); err != nil {
		return fmt.Errorf("gpu-cone: create pipeline with shared device: %w", err)
	}
	b.gpuReady = true
	if w > 0 && h > 0 {
		if err := b.configure(w, h); err != nil {
			return err
		}
	}
	slogger().Info("gpu-cone: switched to shared GPU device")
	return nil
}

// Configure creates the color, depth and staging resources for a w×h grid.
func (b *ConeBackend) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", stipple.ErrEmptyImage, width, height)
	}
	if width > maxTextureDimension || height > maxTextureDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", stipple.ErrFallbackToCPU, width, height, maxTextureDimension)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.gpuReady {
		return fmt.Errorf("%w: %w", stipple.ErrFallbackToCPU, errNotReady)
	}
	return b.configure(uint32(width), uint32(height)) //nolint:gosec // bounded above
}

func (b *ConeBackend) configure(w, h uint32) error {
	if b.targets.width == w && b.targets.height == h && b.targets.colorTex != nil {
		return nil
	}
	if err := b.targets.ensure(b.device, w, h); err != nil {
		return err
	}
	b.queue.WriteBuffer(b.paramsBuf, 0, makeParams(w, h, coneRadius(int(w), int(h), coneSegments)))
	b.rendered = false
	slogger().Debug("gpu-cone: targets configured",
		"width", w, "height", h, "staging", b.targets.stagingSize)
	return nil
}

// Upload writes the site positions to the instance buffer.
func (b *ConeBackend) Upload(sites []stipple.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.gpuReady || b.targets.colorTex == nil {
		return errNotReady
	}
	if len(sites) == 0 {
		return stipple.ErrNoSites
	}

	b.siteBytes = packSites(b.siteBytes, sites)
	size := uint64(len(b.siteBytes))
	if size > b.siteCap {
		b.destroySites()
		buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "cone_sites",
			Size:  size,
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create site buffer: %w", err)
		}
		b.siteBuf = buf
		b.siteCap = size
	}
	b.queue.WriteBuffer(b.siteBuf, 0, b.siteBytes)
	b.siteCount = uint32(len(sites)) //nolint:gosec // checked by the engine
	return nil
}

func (b *ConeBackend) destroySites() {
	if b.siteBuf != nil {
		b.device.DestroyBuffer(b.siteBuf)
		b.siteBuf = nil
	}
	b.siteCap = 0
}

// Rasterize draws all cones, copies the color target into the staging
// buffer and waits on a fence.
func (b *ConeBackend) Rasterize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.gpuReady || b.targets.colorTex == nil {
		return errNotReady
	}
	if b.siteCount == 0 {
		return stipple.ErrNoSites
	}

	t := &b.targets
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "cone_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("cone_voronoi"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "cone_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{},
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            t.depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	rp.SetPipeline(b.pipeline)
	rp.SetBindGroup(0, b.bindGroup, nil)
	rp.SetVertexBuffer(0, b.coneBuf, 0)
	rp.SetVertexBuffer(1, b.siteBuf, 0)
	rp.Draw(b.coneVerts, b.siteCount, 0, 0)
	rp.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.colorTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.colorTex, t.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: t.pitch, RowsPerImage: t.height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.colorTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.colorTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer b.device.DestroyFence(fence)

	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := b.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	b.rendered = true
	return nil
}

// Readback copies the last rasterized ownership into dst.
func (b *ConeBackend) Readback(dst *stipple.Ownership) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.rendered {
		return fmt.Errorf("gpu-cone: readback before rasterize")
	}

	t := &b.targets
	if uint64(cap(b.readback)) < t.stagingSize {
		b.readback = make([]byte, t.stagingSize)
	}
	b.readback = b.readback[:t.stagingSize]
	if err := b.queue.ReadBuffer(t.staging, 0, b.readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}

	dst.Resize(int(t.width), int(t.height))
	unpadOwners(b.readback, dst.Owner, t.width, t.height, t.pitch)
	return nil
}

func (b *ConeBackend) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("gpu-cone: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("gpu-cone: create instance: %w", err)
	}
	b.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		b.releaseDevice()
		return fmt.Errorf("gpu-cone: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		b.releaseDevice()
		return fmt.Errorf("gpu-cone: open device: %w", err)
	}
	b.device = openDev.Device
	b.queue = openDev.Queue
	if err := b.createPipeline(); err != nil {
		b.releaseDevice()
		return fmt.Errorf("gpu-cone: create pipeline: %w", err)
	}
	b.gpuReady = true
	slogger().Info("gpu-cone: backend initialized", "adapter", selected.Info.Name)
	return nil
}

func (b *ConeBackend) createPipeline() error {
	shader, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "cone",
		Source: hal.ShaderSource{WGSL: coneShaderSource},
	})
	if err != nil {
		return fmt.Errorf("compile cone shader: %w", err)
	}
	b.shader = shader

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "cone_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageVertex, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return fmt.Errorf("create cone bind group layout: %w", err)
	}
	b.bindLayout = bindLayout

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "cone_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create cone pipeline layout: %w", err)
	}
	b.pipeLayout = pipeLayout

	pipeline, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "cone_pipeline",
		Layout: b.pipeLayout,
		Vertex: hal.VertexState{
			Module:     b.shader,
			EntryPoint: "vs_main",
			Buffers:    coneVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     b.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatR32Uint,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:       hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return fmt.Errorf("create cone pipeline: %w", err)
	}
	b.pipeline = pipeline

	verts := float32Bytes(coneVertices(coneSegments))
	coneBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "cone_mesh",
		Size:  uint64(len(verts)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create cone mesh buffer: %w", err)
	}
	b.coneBuf = coneBuf
	b.coneVerts = uint32(len(verts) / coneVertexStride) //nolint:gosec // fixed mesh
	b.queue.WriteBuffer(b.coneBuf, 0, verts)

	paramsBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "cone_params",
		Size:  paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create cone params buffer: %w", err)
	}
	b.paramsBuf = paramsBuf

	bindGroup, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "cone_bind",
		Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.paramsBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create cone bind group: %w", err)
	}
	b.bindGroup = bindGroup
	return nil
}

func (b *ConeBackend) destroyPipeline() {
	if b.bindGroup != nil {
		b.device.DestroyBindGroup(b.bindGroup)
		b.bindGroup = nil
	}
	if b.paramsBuf != nil {
		b.device.DestroyBuffer(b.paramsBuf)
		b.paramsBuf = nil
	}
	if b.coneBuf != nil {
		b.device.DestroyBuffer(b.coneBuf)
		b.coneBuf = nil
	}
	if b.pipeline != nil {
		b.device.DestroyRenderPipeline(b.pipeline)
		b.pipeline = nil
	}
	if b.pipeLayout != nil {
		b.device.DestroyPipelineLayout(b.pipeLayout)
		b.pipeLayout = nil
	}
	if b.bindLayout != nil {
		b.device.DestroyBindGroupLayout(b.bindLayout)
		b.bindLayout = nil
	}
	if b.shader != nil {
		b.device.DestroyShaderModule(b.shader)
		b.shader = nil
	}
}

// coneVertexLayout binds the cone mesh per vertex and the site positions
// per instance.
func coneVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: coneVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			},
		},
		{
			ArrayStride: siteStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 1},
			},
		},
	}
}
