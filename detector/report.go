package detector

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Report is a portable summary of the current adapter/device caps.
type Report struct {
	WhenISO     string            `json:"when_iso" yaml:"when_iso"`
	Runtime     string            `json:"runtime" yaml:"runtime"` // GOOS/GOARCH and Go version
	Backend     string            `json:"backend" yaml:"backend"`
	AdapterType string            `json:"adapter_type" yaml:"adapter_type"`
	VendorID    string            `json:"vendor_id_hex" yaml:"vendor_id_hex"`
	DeviceID    string            `json:"device_id_hex" yaml:"device_id_hex"`
	Name        string            `json:"name" yaml:"name"`
	Driver      string            `json:"driver" yaml:"driver"`
	Recommended Recommendations   `json:"recommended" yaml:"recommended"`
	Limits      Limits            `json:"limits" yaml:"limits"`
	Features    []string          `json:"features" yaml:"features"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup" yaml:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x" yaml:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension" yaml:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size" yaml:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size" yaml:"max_buffer_size"`
}

type Recommendations struct {
	// GroupSize is the 1-D workgroup size pack kernels are compiled with.
	GroupSize uint32 `json:"group_size" yaml:"group_size"`
	// MaxUnits is the largest grid one launch can cover with a 2-D dispatch.
	MaxUnits uint64 `json:"max_units" yaml:"max_units"`
	// Soft budget in bytes for scattered plus packed buffers of one transfer.
	BudgetBytes uint64 `json:"budget_bytes" yaml:"budget_bytes"`
}

// JSON renders the report indented.
func (r *Report) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Report) YAML() (string, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GroupSize picks the largest power-of-two group the device accepts, at most 256.
func (l Limits) GroupSize() uint32 {
	candidates := []uint32{256, 128, 64, 32, 16, 8, 4, 1}
	for _, c := range candidates {
		if c <= l.MaxComputeWorkgroupSizeX && c <= l.MaxComputeInvocationsPerWorkgroup {
			return c
		}
	}
	// absolute portability fallback
	return 1
}

// MaxUnits is the number of units a 2-D dispatch of groupSize-wide groups can
// address, capped to the 32-bit unit index kernels compute.
func (l Limits) MaxUnits(groupSize uint32) uint64 {
	d := uint64(l.MaxComputeWorkgroupsPerDimension)
	return min(d*d*uint64(groupSize), math.MaxUint32)
}

// SplitGrid lays groups out as x*y >= groups with x within the per-dimension
// limit. Grids needing more than a square of the limit are rejected.
func (l Limits) SplitGrid(groups uint64) (x, y uint32, err error) {
	maxDim := uint64(l.MaxComputeWorkgroupsPerDimension)
	if maxDim == 0 {
		return 0, 0, fmt.Errorf("device reports no compute workgroups per dimension")
	}
	if groups == 0 {
		return 0, 0, nil
	}
	if groups <= maxDim {
		return uint32(groups), 1, nil
	}
	rows := (groups + maxDim - 1) / maxDim
	if rows > maxDim {
		return 0, 0, fmt.Errorf("%d groups exceed a %dx%d dispatch", groups, maxDim, maxDim)
	}
	return uint32(maxDim), uint32(rows), nil
}
