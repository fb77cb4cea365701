package layout

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNilChild      = errors.New("layout: nil child")
	ErrNegativeCount = errors.New("layout: negative count")
	ErrLengthMatch   = errors.New("layout: blocklengths and displacements differ in length")
)

// Node is one level of a nested memory layout. Nodes are immutable once built; every
// derived field is computed by the constructor from the child and never recomputed.
type Node struct {
	kind Kind
	elem ElementType

	count       int64
	blocklength int64
	stride      int64
	displs      []int64
	blocklens   []int64

	child *Node

	numElements int64
	lb, ub      int64
	trueLB      int64
	trueUB      int64
}

// NewBuiltin returns a leaf holding one element of type e.
func NewBuiltin(e ElementType) (*Node, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("layout: unknown element type %q", e)
	}
	size := int64(e.Size())
	return &Node{
		kind:        KindBuiltin,
		elem:        e,
		numElements: 1,
		ub:          size,
		trueUB:      size,
	}, nil
}

// NewContiguous repeats child count times back to back.
func NewContiguous(count int64, child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNilChild
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: contiguous count %d", ErrNegativeCount, count)
	}
	n := &Node{kind: KindContiguous, count: count, child: child}
	n.numElements = count * child.numElements
	n.setBlockBounds([]int64{0}, []int64{count})
	return n, nil
}

// NewDuplicate wraps child without changing its layout.
func NewDuplicate(child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNilChild
	}
	return &Node{
		kind:        KindDuplicate,
		child:       child,
		numElements: child.numElements,
		lb:          child.lb,
		ub:          child.ub,
		trueLB:      child.trueLB,
		trueUB:      child.trueUB,
	}, nil
}

// NewResized overrides the lower bound and extent of child. The bytes actually touched
// are still those of the child.
func NewResized(lb, extent int64, child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNilChild
	}
	if extent < 0 {
		return nil, fmt.Errorf("layout: negative resized extent %d", extent)
	}
	return &Node{
		kind:        KindResized,
		child:       child,
		numElements: child.numElements,
		lb:          lb,
		ub:          lb + extent,
		trueLB:      child.trueLB,
		trueUB:      child.trueUB,
	}, nil
}

// NewVector places count blocks of blocklength children, stride bytes apart.
func NewVector(count, blocklength, stride int64, child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNilChild
	}
	if count < 0 || blocklength < 0 {
		return nil, fmt.Errorf("%w: vector count %d blocklength %d", ErrNegativeCount, count, blocklength)
	}
	n := &Node{
		kind:        KindVector,
		count:       count,
		blocklength: blocklength,
		stride:      stride,
		child:       child,
		numElements: count * blocklength * child.numElements,
	}
	starts := make([]int64, count)
	lens := make([]int64, count)
	for i := range starts {
		starts[i] = int64(i) * stride
		lens[i] = blocklength
	}
	n.setBlockBounds(starts, lens)
	return n, nil
}

// NewBlockIndexed places one block of blocklength children at each byte displacement.
func NewBlockIndexed(blocklength int64, displs []int64, child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNilChild
	}
	if blocklength < 0 {
		return nil, fmt.Errorf("%w: blockindexed blocklength %d", ErrNegativeCount, blocklength)
	}
	count := int64(len(displs))
	n := &Node{
		kind:        KindBlockIndexed,
		count:       count,
		blocklength: blocklength,
		displs:      slices.Clone(displs),
		child:       child,
		numElements: count * blocklength * child.numElements,
	}
	lens := make([]int64, count)
	for i := range lens {
		lens[i] = blocklength
	}
	n.setBlockBounds(n.displs, lens)
	return n, nil
}

// NewIndexed places blocks of varying length at byte displacements. Blocks are
// enumerated in declaration order regardless of their displacement.
func NewIndexed(blocklens, displs []int64, child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNilChild
	}
	if len(blocklens) != len(displs) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMatch, len(blocklens), len(displs))
	}
	var total int64
	for i, bl := range blocklens {
		if bl < 0 {
			return nil, fmt.Errorf("%w: indexed blocklength[%d] = %d", ErrNegativeCount, i, bl)
		}
		total += bl
	}
	n := &Node{
		kind:        KindIndexed,
		count:       int64(len(displs)),
		displs:      slices.Clone(displs),
		blocklens:   slices.Clone(blocklens),
		child:       child,
		numElements: total * child.numElements,
	}
	n.setBlockBounds(n.displs, n.blocklens)
	return n, nil
}

// setBlockBounds computes bounds for blocks of lens[i] children starting at starts[i].
// Empty blocks do not contribute.
func (n *Node) setBlockBounds(starts, lens []int64) {
	c := n.child
	extent := c.Extent()
	first := true
	for i, d := range starts {
		if lens[i] == 0 || c.numElements == 0 {
			continue
		}
		span := (lens[i] - 1) * extent
		lb := d + c.lb
		ub := d + span + c.ub
		tlb := d + c.trueLB
		tub := d + span + c.trueUB
		if first {
			n.lb, n.ub, n.trueLB, n.trueUB = lb, ub, tlb, tub
			first = false
			continue
		}
		n.lb = min(n.lb, lb)
		n.ub = max(n.ub, ub)
		n.trueLB = min(n.trueLB, tlb)
		n.trueUB = max(n.trueUB, tub)
	}
}

// Must panics if err is non-nil. Intended for literals in tests and examples.
func Must(n *Node, err error) *Node {
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Node) Kind() Kind             { return n.kind }
func (n *Node) Child() *Node           { return n.child }
func (n *Node) Count() int64           { return n.count }
func (n *Node) Blocklength() int64     { return n.blocklength }
func (n *Node) Stride() int64          { return n.stride }
func (n *Node) NumElements() int64     { return n.numElements }
func (n *Node) LB() int64              { return n.lb }
func (n *Node) UB() int64              { return n.ub }
func (n *Node) TrueLB() int64          { return n.trueLB }
func (n *Node) TrueUB() int64          { return n.trueUB }
func (n *Node) Extent() int64          { return n.ub - n.lb }
func (n *Node) Displacements() []int64 { return slices.Clone(n.displs) }
func (n *Node) Blocklengths() []int64  { return slices.Clone(n.blocklens) }

// Element returns the element type of the leaf this path ends in.
func (n *Node) Element() ElementType {
	return n.Leaf().elem
}

// Leaf walks to the Builtin node terminating the path.
func (n *Node) Leaf() *Node {
	for n.kind != KindBuiltin {
		n = n.child
	}
	return n
}

// Path returns the kinds of all non-leaf levels, outermost first.
func (n *Node) Path() []Kind {
	var kinds []Kind
	for ; n.kind != KindBuiltin; n = n.child {
		kinds = append(kinds, n.kind)
	}
	return kinds
}

// Depth is the number of non-leaf levels above the Builtin leaf.
func (n *Node) Depth() int {
	d := 0
	for ; n.kind != KindBuiltin; n = n.child {
		d++
	}
	return d
}

// Span returns the number of bytes a scattered buffer must hold for count
// repetitions, assuming the buffer starts at the layout origin.
func (n *Node) Span(count int64) int64 {
	if count <= 0 || n.numElements == 0 {
		return 0
	}
	return (count-1)*n.Extent() + n.trueUB
}

func (n *Node) String() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.child {
		parts = append(parts, cur.label())
	}
	return strings.Join(parts, " -> ")
}

func (n *Node) label() string {
	switch n.kind {
	case KindBuiltin:
		return fmt.Sprintf("builtin(%s)", n.elem)
	case KindContiguous:
		return fmt.Sprintf("contiguous(%d)", n.count)
	case KindDuplicate:
		return "duplicate"
	case KindResized:
		return fmt.Sprintf("resized(lb=%d,extent=%d)", n.lb, n.Extent())
	case KindVector:
		return fmt.Sprintf("vector(%d,%d,%d)", n.count, n.blocklength, n.stride)
	case KindBlockIndexed:
		return fmt.Sprintf("blockindexed(%d,%v)", n.blocklength, n.displs)
	case KindIndexed:
		return fmt.Sprintf("indexed(%v,%v)", n.blocklens, n.displs)
	}
	return n.kind.String()
}
