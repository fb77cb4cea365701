package pup

import (
	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
)

// DefaultGroupSize is the number of units per group.
const DefaultGroupSize = 256

// Buffer is memory a device can address.
type Buffer interface {
	// Len is the size in bytes.
	Len() int
}

// Routine is a specialized transformation a device can launch.
type Routine interface {
	Name() string
}

// Resident is metadata placed in device-accessible memory.
type Resident interface {
	Release()
}

// LaunchSpec describes one grid launch.
type LaunchSpec struct {
	Routine   Routine
	Dir       offset.Direction
	Metadata  *metadata.Metadata
	Resident  Resident
	Src, Dst  Buffer
	Count     int64
	Total     int64
	GroupSize int
	Groups    int64
}

// Completion identifies one launched grid until it is synchronized.
type Completion uint64

// Device is an execution backend. A device may be shared by concurrent transfers;
// each waits only on its own Completion.
type Device interface {
	Name() string
	// Catalog holds the routines the device can launch.
	Catalog() *dispatch.Catalog[Routine]
	// GroupSize is the number of units per group, at most DefaultGroupSize.
	GroupSize() int
	// Alloc returns a zeroed buffer of size bytes.
	Alloc(size int) (Buffer, error)
	// Upload makes md resident for launches.
	Upload(md *metadata.Metadata) (Resident, error)
	// Launch submits a grid. It may return before the grid completes.
	Launch(spec LaunchSpec) (Completion, error)
	// Synchronize blocks until the grid identified by c has completed and reports
	// its outcome. Each Completion is synchronized once.
	Synchronize(c Completion) error
}

// Groups returns the number of groups needed to cover total units.
func Groups(total int64, groupSize int) int64 {
	if total <= 0 {
		return 0
	}
	g := int64(groupSize)
	return (total + g - 1) / g
}
