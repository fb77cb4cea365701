//go:build !js

package detector

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

const budgetEnv = "TYPEPACK_BUDGET_MB"

// Detect probes the default adapter/device and synthesizes a report.
func Detect() (*Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("no adapter")
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	limits := FromSupported(adapter.GetLimits())

	var feats []string
	for _, f := range adapter.EnumerateFeatures() {
		feats = append(feats, f.String())
	}

	budget := uint64(128 * 1024 * 1024)
	if mbStr := os.Getenv(budgetEnv); mbStr != "" {
		if mb, err := strconv.Atoi(mbStr); err == nil && mb > 0 {
			budget = uint64(mb) * 1024 * 1024
		}
	}

	gs := limits.GroupSize()
	return &Report{
		WhenISO:     time.Now().UTC().Format(time.RFC3339),
		Runtime:     detectRuntime(),
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Limits:      limits,
		Features:    feats,
		Recommended: Recommendations{
			GroupSize:   gs,
			MaxUnits:    limits.MaxUnits(gs),
			BudgetBytes: budget,
		},
		Env: pickEnv([]string{budgetEnv, "TYPEPACK_MAX_NESTING_LEVEL"}),
	}, nil
}

// FromSupported copies the limits kernels depend on.
func FromSupported(l wgpu.SupportedLimits) Limits {
	return Limits{
		MaxComputeInvocationsPerWorkgroup: l.Limits.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupSizeX:          l.Limits.MaxComputeWorkgroupSizeX,
		MaxComputeWorkgroupsPerDimension:  l.Limits.MaxComputeWorkgroupsPerDimension,
		MaxStorageBufferBindingSize:       l.Limits.MaxStorageBufferBindingSize,
		MaxBufferSize:                     l.Limits.MaxBufferSize,
	}
}

func detectRuntime() string {
	return runtime.GOOS + "/" + runtime.GOARCH + " " + runtime.Version()
}

func pickEnv(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
