//go:build !nogpu

// Package gpu registers the hardware Voronoi backend and gg's GPU dot
// renderer.
//
// Import this package to run the cone rasterization on the GPU and to draw
// exported dots with SDF circles. The backend uses wgpu/hal render
// pipelines.
//
// If GPU initialization fails (no Vulkan adapter available), registration
// is skipped with a warning and engines use the software backend.
//
// Usage:
//
//	import _ "github.com/gogpu/stipple/gpu" // enable GPU Voronoi
package gpu

import (
	gggpu "github.com/gogpu/gg/gpu"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/stipple"
	gpuimpl "github.com/gogpu/stipple/internal/gpu"
)

func init() {
	if err := stipple.RegisterBackend(gpuimpl.NewConeBackend()); err != nil {
		stipple.Logger().Warn("GPU voronoi backend not available", "err", err)
	}
}

// SetDeviceProvider makes the Voronoi backend and gg's dot accelerator use
// a shared GPU device from an external provider instead of their own.
//
// The provider should also implement HalDevice() any and HalQueue() any for
// direct HAL access.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	if err := stipple.SetBackendDeviceProvider(provider); err != nil {
		return err
	}
	return gggpu.SetDeviceProvider(provider)
}
