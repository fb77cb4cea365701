// Package metadata flattens a layout tree into a pointer-free snapshot that
// parallel execution units can read without walking host-owned nodes.
package metadata

import (
	"errors"
	"fmt"

	"github.com/openfluke/typepack/layout"
)

var ErrNilLayout = errors.New("metadata: nil layout")

// Range locates an array inside the shared Pool.
type Range struct {
	Off int
	Len int
}

// Level is the flattened form of one non-leaf node.
type Level struct {
	Kind          layout.Kind
	Count         int64
	Blocklength   int64
	Stride        int64
	Extent        int64
	NumElements   int64
	ChildExtent   int64
	ChildElements int64
	Displs        Range
	Blocklens     Range
}

// Metadata is the read-only snapshot of one layout. It is never mutated after Build.
type Metadata struct {
	Element     layout.ElementType
	ElemSize    int64
	NumElements int64
	Extent      int64
	TrueLB      int64
	TrueUB      int64

	// Levels holds every non-leaf node, outermost first.
	Levels []Level
	// Pool backs the displacement and blocklength arrays of all levels.
	Pool []int64
}

// Build produces the snapshot for the tree rooted at n.
func Build(n *layout.Node) (*Metadata, error) {
	if n == nil {
		return nil, ErrNilLayout
	}
	md := &Metadata{
		Element:     n.Element(),
		ElemSize:    int64(n.Element().Size()),
		NumElements: n.NumElements(),
		Extent:      n.Extent(),
		TrueLB:      n.TrueLB(),
		TrueUB:      n.TrueUB(),
		Levels:      make([]Level, 0, n.Depth()),
	}
	for cur := n; cur.Kind() != layout.KindBuiltin; cur = cur.Child() {
		child := cur.Child()
		lv := Level{
			Kind:          cur.Kind(),
			Count:         cur.Count(),
			Blocklength:   cur.Blocklength(),
			Stride:        cur.Stride(),
			Extent:        cur.Extent(),
			NumElements:   cur.NumElements(),
			ChildExtent:   child.Extent(),
			ChildElements: child.NumElements(),
		}
		switch cur.Kind() {
		case layout.KindBlockIndexed:
			lv.Displs = md.appendPool(cur.Displacements())
		case layout.KindIndexed:
			lv.Displs = md.appendPool(cur.Displacements())
			lv.Blocklens = md.appendPool(cur.Blocklengths())
		}
		md.Levels = append(md.Levels, lv)
	}
	if md.ElemSize == 0 {
		return nil, fmt.Errorf("metadata: leaf element %q has no size", md.Element)
	}
	return md, nil
}

func (md *Metadata) appendPool(vals []int64) Range {
	r := Range{Off: len(md.Pool), Len: len(vals)}
	md.Pool = append(md.Pool, vals...)
	return r
}

// Displs returns the displacement array of lv. The slice aliases the pool and must
// not be modified.
func (md *Metadata) Displs(lv *Level) []int64 {
	return md.Pool[lv.Displs.Off : lv.Displs.Off+lv.Displs.Len]
}

// Blocklens returns the blocklength array of an Indexed level.
func (md *Metadata) Blocklens(lv *Level) []int64 {
	return md.Pool[lv.Blocklens.Off : lv.Blocklens.Off+lv.Blocklens.Len]
}

// Kinds returns the level kinds, outermost first.
func (md *Metadata) Kinds() []layout.Kind {
	kinds := make([]layout.Kind, len(md.Levels))
	for i := range md.Levels {
		kinds[i] = md.Levels[i].Kind
	}
	return kinds
}

// Depth is the number of non-leaf levels.
func (md *Metadata) Depth() int { return len(md.Levels) }

// Span is the scattered buffer size needed for count repetitions.
func (md *Metadata) Span(count int64) int64 {
	if count <= 0 || md.NumElements == 0 {
		return 0
	}
	return (count-1)*md.Extent + md.TrueUB
}

// Align returns the greatest common divisor of every byte quantity an offset is
// built from. All computed offsets are multiples of it.
func (md *Metadata) Align() int64 {
	g := md.ElemSize
	add := func(v int64) {
		if v < 0 {
			v = -v
		}
		if v != 0 {
			g = gcd(g, v)
		}
	}
	add(md.Extent)
	for i := range md.Levels {
		lv := &md.Levels[i]
		add(lv.ChildExtent)
		switch lv.Kind {
		case layout.KindVector:
			add(lv.Stride)
		case layout.KindBlockIndexed, layout.KindIndexed:
			for _, d := range md.Displs(lv) {
				add(d)
			}
		}
	}
	return g
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
