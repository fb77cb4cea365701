// Package offset converts flat element indices into byte offsets inside a
// scattered buffer described by layout metadata.
package offset

import (
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
)

// Direction selects which side of a transfer is addressed through the layout.
type Direction uint8

const (
	// Pack reads scattered memory and writes the linear buffer.
	Pack Direction = iota
	// Unpack reads the linear buffer and writes scattered memory.
	Unpack
)

func (d Direction) String() string {
	if d == Unpack {
		return "unpack"
	}
	return "pack"
}

// Step records the indices extracted at one level.
type Step struct {
	Kind    layout.Kind
	Index   int64 // repetition or block index
	InBlock int64 // only meaningful for blocked kinds
}

// Decomposition is the full breakdown of one flat index.
type Decomposition struct {
	Repetition int64
	Steps      []Step
	Leaf       int64
	Offset     int64
}

// Offset returns the byte offset of flat element g. g must lie in
// [0, count*md.NumElements) and md.NumElements must be non-zero.
func Offset(md *metadata.Metadata, g int64) int64 {
	off, _ := walk(md, g, nil)
	return off
}

// Decompose returns the per-level indices used to compute the offset of g.
func Decompose(md *metadata.Metadata, g int64) Decomposition {
	d := Decomposition{Steps: make([]Step, 0, len(md.Levels))}
	d.Offset, d.Leaf = walk(md, g, &d)
	return d
}

// walk is the generic engine: one tagged-variant branch per level, outermost first.
func walk(md *metadata.Metadata, g int64, rec *Decomposition) (off, leaf int64) {
	rep := g / md.NumElements
	res := g % md.NumElements
	off = rep * md.Extent
	if rec != nil {
		rec.Repetition = rep
	}

	for i := range md.Levels {
		lv := &md.Levels[i]
		var x, j int64
		switch lv.Kind {
		case layout.KindContiguous:
			x = res / lv.ChildElements
			res %= lv.ChildElements
			off += x * lv.ChildExtent

		case layout.KindVector:
			per := lv.Blocklength * lv.ChildElements
			x = res / per
			res %= per
			j = res / lv.ChildElements
			res %= lv.ChildElements
			off += x*lv.Stride + j*lv.ChildExtent

		case layout.KindBlockIndexed:
			per := lv.Blocklength * lv.ChildElements
			x = res / per
			res %= per
			j = res / lv.ChildElements
			res %= lv.ChildElements
			off += md.Displs(lv)[x] + j*lv.ChildExtent

		case layout.KindIndexed:
			x, res = findBlock(md.Blocklens(lv), lv.ChildElements, res)
			j = res / lv.ChildElements
			res %= lv.ChildElements
			off += md.Displs(lv)[x] + j*lv.ChildExtent

		case layout.KindDuplicate, layout.KindResized:
			// no offset term; the child extent already reflects any override
		}
		if rec != nil {
			rec.Steps = append(rec.Steps, Step{Kind: lv.Kind, Index: x, InBlock: j})
		}
	}

	leaf = res
	off += leaf * md.ElemSize
	return off, leaf
}

// findBlock scans blocks in declaration order until res falls inside one. It is
// linear in the number of blocks.
func findBlock(blocklens []int64, childElements, res int64) (block, rest int64) {
	for i, bl := range blocklens {
		in := bl * childElements
		if res < in {
			return int64(i), res
		}
		res -= in
	}
	// unreachable for g inside the layout; clamp to the last block
	return int64(len(blocklens) - 1), res
}

// Transfer moves the element of flat index g. For Pack, src is scattered and dst
// linear; for Unpack the roles invert.
func Transfer(md *metadata.Metadata, dir Direction, src, dst []byte, g int64) {
	off := Offset(md, g)
	lin := g * md.ElemSize
	size := md.ElemSize
	if dir == Pack {
		copy(dst[lin:lin+size], src[off:off+size])
		return
	}
	copy(dst[off:off+size], src[lin:lin+size])
}
