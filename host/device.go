// Package host runs pack and unpack grids on goroutines.
package host

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

// Bytes is host memory.
type Bytes []byte

func (b Bytes) Len() int { return len(b) }

type resident struct {
	md *metadata.Metadata
}

func (r *resident) Release() { r.md = nil }

type launch struct {
	off       offsetFunc
	dir       offset.Direction
	md        *metadata.Metadata
	src, dst  []byte
	total     int64
	groupSize int64
}

// Device executes groups of units concurrently, at most Workers at a time.
type Device struct {
	workers   int
	groupSize int
	catalog   *dispatch.Catalog[pup.Routine]

	allocFault  error
	launchFault error
	syncFault   error

	mu       sync.Mutex
	next     pup.Completion
	inflight map[pup.Completion]chan error
}

type Option func(*Device)

// WithWorkers bounds concurrently running groups. n <= 0 selects GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// WithGroupSize sets the units per group, clamped to [1, pup.DefaultGroupSize].
func WithGroupSize(n int) Option {
	return func(d *Device) { d.groupSize = n }
}

// FailAlloc makes Alloc and Upload return err.
func FailAlloc(err error) Option {
	return func(d *Device) { d.allocFault = err }
}

// FailLaunch makes Launch return err without running anything.
func FailLaunch(err error) Option {
	return func(d *Device) { d.launchFault = err }
}

// FailSync makes Synchronize return err after the grid has run to completion.
func FailSync(err error) Option {
	return func(d *Device) { d.syncFault = err }
}

func New(opts ...Option) *Device {
	d := &Device{
		groupSize: pup.DefaultGroupSize,
		inflight:  make(map[pup.Completion]chan error),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers <= 0 {
		d.workers = runtime.GOMAXPROCS(0)
	}
	d.groupSize = min(max(d.groupSize, 1), pup.DefaultGroupSize)
	d.catalog = newCatalog()
	return d
}

func newCatalog() *dispatch.Catalog[pup.Routine] {
	c := dispatch.NewCatalog[pup.Routine]("host")
	c.RegisterAll(dispatch.MaxCatalogDepth, layout.StorageClasses,
		func(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction) pup.Routine {
			return &routine{name: routineName(kinds, class, dir, false), off: offset.Offset}
		})
	for _, fp := range fastPaths {
		for _, class := range layout.StorageClasses {
			for _, dir := range []offset.Direction{offset.Pack, offset.Unpack} {
				c.Register(fp.kinds, class, dir, &routine{
					name: routineName(fp.kinds, class, dir, true),
					off:  fp.off,
					fast: true,
				})
			}
		}
	}
	return c
}

func (d *Device) Name() string                            { return "host" }
func (d *Device) Catalog() *dispatch.Catalog[pup.Routine] { return d.catalog }
func (d *Device) GroupSize() int                          { return d.groupSize }
func (d *Device) Workers() int                            { return d.workers }

func (d *Device) Alloc(size int) (pup.Buffer, error) {
	if d.allocFault != nil {
		return nil, d.allocFault
	}
	if size < 0 {
		return nil, fmt.Errorf("negative buffer size %d", size)
	}
	return make(Bytes, size), nil
}

func (d *Device) Upload(md *metadata.Metadata) (pup.Resident, error) {
	if d.allocFault != nil {
		return nil, d.allocFault
	}
	return &resident{md: md}, nil
}

// Launch starts the grid in the background and returns its completion.
func (d *Device) Launch(spec pup.LaunchSpec) (pup.Completion, error) {
	if d.launchFault != nil {
		return 0, d.launchFault
	}
	r, ok := spec.Routine.(*routine)
	if !ok {
		return 0, fmt.Errorf("routine %s does not belong to the host device", spec.Routine.Name())
	}
	src, ok1 := spec.Src.(Bytes)
	dst, ok2 := spec.Dst.(Bytes)
	if !ok1 || !ok2 {
		return 0, errors.New("host device requires host buffers")
	}
	l := &launch{
		off:       r.off,
		dir:       spec.Dir,
		md:        spec.Metadata,
		src:       src,
		dst:       dst,
		total:     spec.Total,
		groupSize: int64(spec.GroupSize),
	}

	done := make(chan error, 1)
	d.mu.Lock()
	d.next++
	c := d.next
	d.inflight[c] = done
	d.mu.Unlock()

	go func() {
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(d.workers)
		for grp := int64(0); grp < spec.Groups; grp++ {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error { return runGroup(l, grp) })
		}
		done <- g.Wait()
	}()
	pup.Logger().Debug("host grid launched",
		zap.String("routine", r.name),
		zap.Bool("fast", r.fast),
		zap.Int64("groups", spec.Groups),
		zap.Int("workers", d.workers),
		zap.Uint64("completion", uint64(c)))
	return c, nil
}

// Synchronize waits for the grid of c. Grids launched by other callers are not
// waited on.
func (d *Device) Synchronize(c pup.Completion) error {
	d.mu.Lock()
	done, ok := d.inflight[c]
	delete(d.inflight, c)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown completion %d", c)
	}
	if err := <-done; err != nil {
		return err
	}
	return d.syncFault
}
