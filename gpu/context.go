package gpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/openfluke/typepack/detector"
)

// Context holds the single WebGPU context for the application
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Limits   detector.Limits
	once     sync.Once
}

var (
	ctx           Context
	preferAdapter string
)

// PreferAdapter makes the first GetContext call pick the adapter whose name or
// vendor contains name. It has no effect once the context exists.
func PreferAdapter(name string) {
	preferAdapter = strings.ToLower(strings.TrimSpace(name))
}

// GetContext returns the singleton GPU context, initializing it if necessary
func GetContext() (*Context, error) {
	var initErr error
	ctx.once.Do(func() {
		log := Logger()
		ctx.Instance = wgpu.CreateInstance(nil)
		if ctx.Instance == nil {
			initErr = fmt.Errorf("failed to create WebGPU instance")
			return
		}

		// 0. Named or discrete adapter from the enumeration
		for _, a := range ctx.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			log.Debug("adapter found",
				zap.String("name", info.Name),
				zap.String("vendor", info.VendorName),
				zap.String("type", info.AdapterType.String()))
			name := strings.ToLower(info.Name + " " + info.VendorName)
			if preferAdapter != "" && strings.Contains(name, preferAdapter) {
				ctx.Adapter = a
				break
			}
			if preferAdapter == "" && info.AdapterType.String() == "discrete-gpu" {
				ctx.Adapter = a
				break
			}
		}

		tryInit := func(opts *wgpu.RequestAdapterOptions) error {
			if ctx.Adapter != nil {
				return nil
			}
			var err error
			ctx.Adapter, err = ctx.Instance.RequestAdapter(opts)
			return err
		}

		// 1. High performance
		if ctx.Adapter == nil {
			initErr = tryInit(&wgpu.RequestAdapterOptions{
				PowerPreference: wgpu.PowerPreferenceHighPerformance,
			})
		}
		// 2. Low power
		if initErr != nil && ctx.Adapter == nil {
			log.Warn("high performance adapter failed, falling back", zap.Error(initErr))
			initErr = tryInit(&wgpu.RequestAdapterOptions{
				PowerPreference: wgpu.PowerPreferenceLowPower,
			})
		}
		// 3. Default
		if initErr != nil && ctx.Adapter == nil {
			log.Warn("low power adapter failed, trying default", zap.Error(initErr))
			initErr = tryInit(nil)
		}

		if ctx.Adapter == nil {
			initErr = fmt.Errorf("all adapter attempts failed: %v", initErr)
			return
		}

		info := ctx.Adapter.GetInfo()
		ctx.Limits = detector.FromSupported(ctx.Adapter.GetLimits())
		log.Info("using GPU adapter",
			zap.String("name", info.Name),
			zap.String("vendor", info.VendorName),
			zap.Uint32("max_groups_per_dim", ctx.Limits.MaxComputeWorkgroupsPerDimension))

		var err error
		ctx.Device, err = ctx.Adapter.RequestDevice(nil)
		if err != nil {
			initErr = err
			return
		}

		ctx.Queue = ctx.Device.GetQueue()
	})

	if initErr != nil {
		return nil, initErr
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("WebGPU device or queue not initialized")
	}

	return &ctx, nil
}
