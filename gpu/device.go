package gpu

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

// StorageClasses are the element widths kernels move as whole 32-bit words.
var StorageClasses = []layout.StorageClass{4, 8, 16}

type routine struct {
	name  string
	kinds []layout.Kind
	words int
	dir   offset.Direction
}

func (r *routine) Name() string { return "webgpu_" + r.name }

type resident struct {
	buf *Buffer
}

func (r *resident) Release() { r.buf.Destroy() }

// Device runs pack kernels on the WebGPU context.
type Device struct {
	c         *Context
	groupSize int
	timeout   time.Duration
	catalog   *dispatch.Catalog[pup.Routine]

	mu      sync.Mutex
	kernels map[string]*Kernel
	next    pup.Completion
	pending map[pup.Completion]func()
	fence   *wgpu.Buffer
}

type Option func(*Device)

// WithSyncTimeout bounds how long Synchronize waits for the device.
func WithSyncTimeout(d time.Duration) Option {
	return func(dev *Device) { dev.timeout = d }
}

// New opens the shared WebGPU context and prepares the kernel catalog. Kernels are
// compiled on first launch.
func New(opts ...Option) (*Device, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	d := &Device{
		c:         c,
		groupSize: min(int(c.Limits.GroupSize()), pup.DefaultGroupSize),
		timeout:   2 * time.Second,
		kernels:   make(map[string]*Kernel),
		pending:   make(map[pup.Completion]func()),
		catalog:   NewCatalog(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.fence, err = c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Fence",
		Size:  4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return d, nil
}

// NewCatalog lists a kernel for every shape up to the catalog depth over the
// word-sized storage classes. Layouts whose byte quantities are not word multiples
// or do not fit 32-bit addressing are filtered out as unspecialized.
func NewCatalog() *dispatch.Catalog[pup.Routine] {
	c := dispatch.NewCatalog[pup.Routine]("webgpu")
	c.RegisterAll(dispatch.MaxCatalogDepth, StorageClasses,
		func(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction) pup.Routine {
			words := int(class) / 4
			return &routine{name: ShaderName(kinds, words, dir), kinds: kinds, words: words, dir: dir}
		})
	c.SetFilter(wordAddressable)
	return c
}

func wordAddressable(n *layout.Node) error {
	md, err := metadata.Build(n)
	if err != nil {
		return err
	}
	if a := md.Align(); a%4 != 0 {
		return fmt.Errorf("layout is only %d-byte aligned", a)
	}
	if _, err := md.Words(); err != nil {
		return err
	}
	return nil
}

func (d *Device) Name() string                            { return "webgpu" }
func (d *Device) Catalog() *dispatch.Catalog[pup.Routine] { return d.catalog }
func (d *Device) GroupSize() int                          { return d.groupSize }

func (d *Device) Alloc(size int) (pup.Buffer, error) {
	return NewBuffer(size, "Alloc")
}

func (d *Device) Upload(md *metadata.Metadata) (pup.Resident, error) {
	image, err := md.Bytes()
	if err != nil {
		return nil, err
	}
	buf, err := NewBufferInit(image, "Metadata")
	if err != nil {
		return nil, err
	}
	return &resident{buf: buf}, nil
}

// kernel returns the compiled pipeline for r, compiling it on first use.
func (d *Device) kernel(r *routine) (*Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if k, ok := d.kernels[r.name]; ok {
		return k, nil
	}
	src := GenerateShader(r.kinds, r.words, r.dir, d.groupSize)
	k, err := CompileKernel(d.c, r.name, src)
	if err != nil {
		return nil, err
	}
	d.kernels[r.name] = k
	Logger().Debug("compiled kernel", zap.String("name", r.name), zap.Int("group_size", d.groupSize))
	return k, nil
}

// Launch records and submits one dispatch. Its completion is observed by Synchronize.
func (d *Device) Launch(spec pup.LaunchSpec) (pup.Completion, error) {
	r, ok := spec.Routine.(*routine)
	if !ok {
		return 0, fmt.Errorf("routine %s does not belong to the webgpu device", spec.Routine.Name())
	}
	res, ok := spec.Resident.(*resident)
	if !ok {
		return 0, errors.New("metadata is not resident on the webgpu device")
	}
	src, ok1 := spec.Src.(*Buffer)
	dst, ok2 := spec.Dst.(*Buffer)
	if !ok1 || !ok2 {
		return 0, errors.New("webgpu device requires webgpu buffers")
	}
	if err := checkAddressing(spec); err != nil {
		return 0, err
	}
	x, y, err := d.c.Limits.SplitGrid(uint64(spec.Groups))
	if err != nil {
		return 0, err
	}

	k, err := d.kernel(r)
	if err != nil {
		return 0, err
	}
	params, err := d.c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    r.name + "_Params",
		Contents: wgpu.ToBytes([]uint32{uint32(spec.Total), x * uint32(spec.GroupSize), 0, 0}),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("params buffer: %w", err)
	}
	bg, err := k.BindGroup(d.c, res.buf.Raw(), src.Raw(), dst.Raw(), params)
	if err != nil {
		params.Destroy()
		return 0, fmt.Errorf("bind group: %w", err)
	}

	enc, err := d.c.Device.CreateCommandEncoder(nil)
	if err != nil {
		bg.Release()
		params.Destroy()
		return 0, fmt.Errorf("command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	k.Dispatch(pass, bg, x, y)
	pass.End()
	cmd, err := enc.Finish(nil)
	if err != nil {
		bg.Release()
		params.Destroy()
		return 0, fmt.Errorf("finish: %w", err)
	}
	d.c.Queue.Submit(cmd)

	d.mu.Lock()
	d.next++
	c := d.next
	d.pending[c] = func() {
		bg.Release()
		params.Destroy()
	}
	d.mu.Unlock()

	Logger().Debug("webgpu grid submitted",
		zap.String("kernel", r.name),
		zap.Uint32("groups_x", x),
		zap.Uint32("groups_y", y),
		zap.Uint64("completion", uint64(c)))
	return c, nil
}

// checkAddressing rejects launches whose unit index, scattered offset or packed
// offset would wrap in the kernel's 32-bit arithmetic. Offsets are i32 on device.
func checkAddressing(spec pup.LaunchSpec) error {
	if spec.Total > math.MaxUint32 {
		return fmt.Errorf("%d units exceed 32-bit unit indexing", spec.Total)
	}
	if span := spec.Metadata.Span(spec.Count); span > math.MaxInt32 {
		return fmt.Errorf("%d scattered bytes exceed 32-bit signed offsets", span)
	}
	if packed := spec.Total * spec.Metadata.ElemSize; packed > math.MaxUint32 {
		return fmt.Errorf("%d packed bytes exceed 32-bit addressing", packed)
	}
	return nil
}

// Synchronize maps a fence copy queued behind c and waits for the mapping, up to
// the sync timeout. The queue executes in order, so the mapping confirms c.
func (d *Device) Synchronize(c pup.Completion) error {
	d.mu.Lock()
	release, ok := d.pending[c]
	delete(d.pending, c)
	fence := d.fence
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown completion %d", c)
	}
	defer release()

	if fence == nil {
		return errors.New("device closed")
	}
	if _, err := readBuffer(fence, 4, d.timeout); err != nil {
		return err
	}
	return nil
}

// Close releases compiled kernels and the fence.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, k := range d.kernels {
		k.Cleanup()
		delete(d.kernels, name)
	}
	if d.fence != nil {
		d.fence.Destroy()
		d.fence = nil
	}
}
