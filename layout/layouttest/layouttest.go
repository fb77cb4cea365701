// Package layouttest provides layout fixtures and a recursive reference
// enumeration for tests of the offset engine and its backends.
package layouttest

import (
	"fmt"
	"strings"

	"github.com/openfluke/typepack/layout"
)

// resizePad is added to the child extent by Resized fixtures; it keeps every
// storage class aligned.
const resizePad = 16

// Shapes returns every kind sequence with exactly depth derived levels.
func Shapes(depth int) [][]layout.Kind {
	if depth == 0 {
		return [][]layout.Kind{nil}
	}
	var out [][]layout.Kind
	for _, inner := range Shapes(depth - 1) {
		for _, k := range layout.DerivedKinds {
			shape := append([]layout.Kind{k}, inner...)
			out = append(out, shape)
		}
	}
	return out
}

// ShapesUpTo returns every kind sequence of depth 0 through maxDepth.
func ShapesUpTo(maxDepth int) [][]layout.Kind {
	var out [][]layout.Kind
	for d := 0; d <= maxDepth; d++ {
		out = append(out, Shapes(d)...)
	}
	return out
}

// Name renders a shape for subtest names.
func Name(kinds []layout.Kind, e layout.ElementType) string {
	parts := make([]string, 0, len(kinds)+1)
	for _, k := range kinds {
		parts = append(parts, k.String())
	}
	parts = append(parts, string(e))
	return strings.Join(parts, "_")
}

// Build constructs a layout with the given kinds outermost first. Parameters are
// small, non-overlapping and declare blocks out of displacement order.
func Build(kinds []layout.Kind, e layout.ElementType) *layout.Node {
	n := layout.Must(layout.NewBuiltin(e))
	for i := len(kinds) - 1; i >= 0; i-- {
		n = wrap(kinds[i], n)
	}
	return n
}

func wrap(k layout.Kind, child *layout.Node) *layout.Node {
	ext := child.Extent()
	switch k {
	case layout.KindContiguous:
		return layout.Must(layout.NewContiguous(3, child))
	case layout.KindDuplicate:
		return layout.Must(layout.NewDuplicate(child))
	case layout.KindResized:
		return layout.Must(layout.NewResized(0, ext+resizePad, child))
	case layout.KindVector:
		return layout.Must(layout.NewVector(3, 2, 3*ext, child))
	case layout.KindBlockIndexed:
		return layout.Must(layout.NewBlockIndexed(2, []int64{6 * ext, 0, 3 * ext}, child))
	case layout.KindIndexed:
		return layout.Must(layout.NewIndexed([]int64{1, 3, 2}, []int64{7 * ext, 0, 4 * ext}, child))
	}
	panic(fmt.Sprintf("layouttest: cannot wrap %s", k))
}

// Offsets enumerates the byte offset of every element of count repetitions of n,
// in flat-index order, by recursing the tree directly.
func Offsets(n *layout.Node, count int64) []int64 {
	var out []int64
	emit := func(off int64) { out = append(out, off) }
	for r := int64(0); r < count; r++ {
		visit(n, r*n.Extent(), emit)
	}
	return out
}

func visit(n *layout.Node, base int64, emit func(int64)) {
	c := n.Child()
	switch n.Kind() {
	case layout.KindBuiltin:
		emit(base)
	case layout.KindDuplicate, layout.KindResized:
		visit(c, base, emit)
	case layout.KindContiguous:
		for i := int64(0); i < n.Count(); i++ {
			visit(c, base+i*c.Extent(), emit)
		}
	case layout.KindVector:
		for b := int64(0); b < n.Count(); b++ {
			for k := int64(0); k < n.Blocklength(); k++ {
				visit(c, base+b*n.Stride()+k*c.Extent(), emit)
			}
		}
	case layout.KindBlockIndexed:
		for _, d := range n.Displacements() {
			for k := int64(0); k < n.Blocklength(); k++ {
				visit(c, base+d+k*c.Extent(), emit)
			}
		}
	case layout.KindIndexed:
		bls := n.Blocklengths()
		for b, d := range n.Displacements() {
			for k := int64(0); k < bls[b]; k++ {
				visit(c, base+d+k*c.Extent(), emit)
			}
		}
	}
}

// Pattern returns size bytes of a position-dependent, non-repeating pattern.
func Pattern(size int, seed byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i*7+i/251) ^ seed
	}
	return buf
}
