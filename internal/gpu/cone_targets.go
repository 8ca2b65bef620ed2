//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// targetSet holds the per-size resources of a Voronoi pass:
//   - Color: R32Uint site indices, RenderAttachment | CopySrc
//   - Depth: Depth32Float cone depth, RenderAttachment
//   - Staging: MapRead buffer with rows padded to 256 bytes
type targetSet struct {
	colorTex  hal.Texture
	colorView hal.TextureView
	depthTex  hal.Texture
	depthView hal.TextureView

	staging     hal.Buffer
	stagingSize uint64
	pitch       uint32

	width, height uint32
}

// ensure recreates the targets when the size changed.
func (ts *targetSet) ensure(device hal.Device, w, h uint32) error {
	if ts.width == w && ts.height == h && ts.colorTex != nil {
		return nil
	}
	ts.destroy(device)

	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}

	colorTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "cone_owner",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatR32Uint,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create owner texture: %w", err)
	}
	ts.colorTex = colorTex

	colorView, err := device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{Label: "cone_owner_view"})
	if err != nil {
		ts.destroy(device)
		return fmt.Errorf("create owner view: %w", err)
	}
	ts.colorView = colorView

	depthTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "cone_depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth32Float,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		ts.destroy(device)
		return fmt.Errorf("create depth texture: %w", err)
	}
	ts.depthTex = depthTex

	depthView, err := device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{Label: "cone_depth_view"})
	if err != nil {
		ts.destroy(device)
		return fmt.Errorf("create depth view: %w", err)
	}
	ts.depthView = depthView

	pitch := alignedRowBytes(w)
	stagingSize := uint64(pitch) * uint64(h)
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "cone_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		ts.destroy(device)
		return fmt.Errorf("create staging buffer: %w", err)
	}
	ts.staging = staging
	ts.stagingSize = stagingSize
	ts.pitch = pitch

	ts.width = w
	ts.height = h
	return nil
}

func (ts *targetSet) destroy(device hal.Device) {
	if ts.staging != nil {
		device.DestroyBuffer(ts.staging)
		ts.staging = nil
	}
	if ts.depthView != nil {
		device.DestroyTextureView(ts.depthView)
		ts.depthView = nil
	}
	if ts.depthTex != nil {
		device.DestroyTexture(ts.depthTex)
		ts.depthTex = nil
	}
	if ts.colorView != nil {
		device.DestroyTextureView(ts.colorView)
		ts.colorView = nil
	}
	if ts.colorTex != nil {
		device.DestroyTexture(ts.colorTex)
		ts.colorTex = nil
	}
	ts.stagingSize = 0
	ts.pitch = 0
	ts.width = 0
	ts.height = 0
}
