package pup

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/offset"
)

var errFreed = errors.New("type has been freed")

// Engine commits layouts against one device and runs transfers on it. It owns
// every Type it commits.
type Engine struct {
	dev      Device
	maxDepth int

	mu    sync.Mutex
	types map[*Type]struct{}
}

type Option func(*Engine)

// WithMaxDepth sets the deepest layout routed to a specialized routine.
func WithMaxDepth(d int) Option {
	return func(e *Engine) { e.maxDepth = d }
}

func NewEngine(dev Device, opts ...Option) *Engine {
	e := &Engine{
		dev:      dev,
		maxDepth: dispatch.DefaultMaxDepth,
		types:    make(map[*Type]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Device() Device { return e.dev }
func (e *Engine) MaxDepth() int  { return e.maxDepth }

// Commit registers n and selects its routines. A layout without a routine is
// still committed; transfers on it report Unspecialized.
func (e *Engine) Commit(n *layout.Node) (*Type, error) {
	if n == nil {
		return nil, newError("commit", InvalidArgument, nil, "nil layout", nil)
	}
	t := &Type{node: n}
	for _, dir := range []offset.Direction{offset.Pack, offset.Unpack} {
		r, key, err := dispatch.Select(e.dev.Catalog(), n, dir, e.maxDepth)
		t.key = key
		if err != nil {
			t.reasons[dir] = err
			continue
		}
		t.routines[dir] = r
	}

	fields := []zap.Field{
		zap.String("type", t.key.String()),
		zap.String("device", e.dev.Name()),
		zap.Int("max_depth", e.maxDepth),
	}
	if r := t.routines[offset.Pack]; r != nil {
		fields = append(fields, zap.String("pack", r.Name()))
	}
	if r := t.routines[offset.Unpack]; r != nil {
		fields = append(fields, zap.String("unpack", r.Name()))
	}
	Logger().Debug("committed layout", fields...)

	e.mu.Lock()
	e.types[t] = struct{}{}
	e.mu.Unlock()
	return t, nil
}

// Free releases the metadata of t. Further transfers on t fail.
func (e *Engine) Free(t *Type) {
	if t == nil {
		return
	}
	e.mu.Lock()
	delete(e.types, t)
	e.mu.Unlock()
	t.free()
}

// Close frees every type still committed.
func (e *Engine) Close() {
	e.mu.Lock()
	types := e.types
	e.types = make(map[*Type]struct{})
	e.mu.Unlock()
	for t := range types {
		t.free()
	}
}

// Pack gathers count repetitions of t from the scattered buffer src into the linear
// buffer dst.
func (e *Engine) Pack(src, dst Buffer, count int64, t *Type) error {
	return e.transfer("pack", offset.Pack, src, dst, count, t)
}

// Unpack scatters count repetitions of t from the linear buffer src into dst.
func (e *Engine) Unpack(src, dst Buffer, count int64, t *Type) error {
	return e.transfer("unpack", offset.Unpack, src, dst, count, t)
}

func (e *Engine) transfer(op string, dir offset.Direction, src, dst Buffer, count int64, t *Type) error {
	if t == nil {
		return newError(op, InvalidArgument, nil, "nil type", nil)
	}
	r := t.routines[dir]
	if r == nil {
		return newError(op, Unspecialized, t, "", t.reasons[dir])
	}
	if err := e.validate(op, dir, src, dst, count, t); err != nil {
		return err
	}

	md, res, err := t.residentOn(e.dev)
	if errors.Is(err, errFreed) {
		return newError(op, InvalidArgument, t, "", err)
	}
	if err != nil {
		return newError(op, AllocationFailure, t, "metadata", err)
	}

	total := count * md.NumElements
	if total == 0 {
		return nil
	}
	gs := e.dev.GroupSize()
	spec := LaunchSpec{
		Routine:   r,
		Dir:       dir,
		Metadata:  md,
		Resident:  res,
		Src:       src,
		Dst:       dst,
		Count:     count,
		Total:     total,
		GroupSize: gs,
		Groups:    Groups(total, gs),
	}
	c, err := e.dev.Launch(spec)
	if err != nil {
		return newError(op, LaunchFailure, t, r.Name(), err)
	}
	if err := e.dev.Synchronize(c); err != nil {
		return newError(op, SynchronizationFailure, t, r.Name(), err)
	}

	Logger().Debug("transfer complete",
		zap.String("op", op),
		zap.String("routine", r.Name()),
		zap.Int64("units", total),
		zap.Int64("groups", spec.Groups))
	return nil
}

func (e *Engine) validate(op string, dir offset.Direction, src, dst Buffer, count int64, t *Type) error {
	if src == nil || dst == nil {
		return newError(op, InvalidArgument, t, "nil buffer", nil)
	}
	if count < 0 {
		return newError(op, InvalidArgument, t, fmt.Sprintf("negative count %d", count), nil)
	}
	n := t.node
	if per := bytesPerRepetition(n); per > 0 && count > math.MaxInt64/per {
		return newError(op, InvalidArgument, t,
			fmt.Sprintf("count %d overflows byte addressing", count), nil)
	}
	if n.TrueLB() < 0 {
		return newError(op, InvalidArgument, t,
			fmt.Sprintf("layout touches %d bytes before the buffer origin", -n.TrueLB()), nil)
	}
	scattered, packed := src, dst
	if dir == offset.Unpack {
		scattered, packed = dst, src
	}
	if need := n.Span(count); int64(scattered.Len()) < need {
		return newError(op, InvalidArgument, t,
			fmt.Sprintf("scattered buffer holds %d bytes, layout spans %d", scattered.Len(), need), nil)
	}
	if need := count * n.NumElements() * int64(n.Element().Size()); int64(packed.Len()) < need {
		return newError(op, InvalidArgument, t,
			fmt.Sprintf("packed buffer holds %d bytes, need %d", packed.Len(), need), nil)
	}
	return nil
}

// bytesPerRepetition bounds the scattered and packed bytes one repetition adds, so
// count*bytesPerRepetition bounds every size derived from count.
func bytesPerRepetition(n *layout.Node) int64 {
	return max(n.Extent(), n.TrueUB(), n.NumElements()*int64(n.Element().Size()))
}
