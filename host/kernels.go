package host

import (
	"fmt"

	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
)

// offsetFunc maps flat unit index g to a byte offset in the scattered buffer.
type offsetFunc func(md *metadata.Metadata, g int64) int64

// routine is a host kernel. Direction is applied by the grid, so one offset
// function serves both.
type routine struct {
	name string
	off  offsetFunc
	fast bool
}

func (r *routine) Name() string { return r.name }

func routineName(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction, fast bool) string {
	name := "host_" + dir.String()
	for _, k := range kinds {
		name += "_" + k.String()
	}
	name += "_" + class.String()
	if fast {
		name += "_fast"
	}
	return name
}

// Fast paths assume the innermost listed level sits directly on the Builtin leaf.
var fastPaths = []struct {
	kinds []layout.Kind
	off   offsetFunc
}{
	{nil, builtinOffset},
	{[]layout.Kind{layout.KindContiguous}, contigOffset},
	{[]layout.Kind{layout.KindVector}, vectorOffset},
	{[]layout.Kind{layout.KindBlockIndexed}, blkidxOffset},
	{[]layout.Kind{layout.KindVector, layout.KindVector}, vectorVectorOffset},
	{[]layout.Kind{layout.KindContiguous, layout.KindVector}, contigVectorOffset},
}

func builtinOffset(md *metadata.Metadata, g int64) int64 {
	return g * md.Extent
}

func contigOffset(md *metadata.Metadata, g int64) int64 {
	lv := &md.Levels[0]
	return (g/md.NumElements)*md.Extent + (g%md.NumElements)*lv.ChildExtent
}

func vectorOffset(md *metadata.Metadata, g int64) int64 {
	lv := &md.Levels[0]
	res := g % md.NumElements
	return (g/md.NumElements)*md.Extent + (res/lv.Blocklength)*lv.Stride + (res%lv.Blocklength)*lv.ChildExtent
}

func blkidxOffset(md *metadata.Metadata, g int64) int64 {
	lv := &md.Levels[0]
	res := g % md.NumElements
	displs := md.Pool[lv.Displs.Off : lv.Displs.Off+lv.Displs.Len]
	return (g/md.NumElements)*md.Extent + displs[res/lv.Blocklength] + (res%lv.Blocklength)*lv.ChildExtent
}

func vectorVectorOffset(md *metadata.Metadata, g int64) int64 {
	outer, inner := &md.Levels[0], &md.Levels[1]
	res := g % md.NumElements
	per := outer.Blocklength * outer.ChildElements
	off := (g/md.NumElements)*md.Extent + (res/per)*outer.Stride
	res %= per
	off += (res / outer.ChildElements) * outer.ChildExtent
	res %= outer.ChildElements
	return off + (res/inner.Blocklength)*inner.Stride + (res%inner.Blocklength)*inner.ChildExtent
}

func contigVectorOffset(md *metadata.Metadata, g int64) int64 {
	outer, inner := &md.Levels[0], &md.Levels[1]
	res := g % md.NumElements
	off := (g/md.NumElements)*md.Extent + (res/outer.ChildElements)*outer.ChildExtent
	res %= outer.ChildElements
	return off + (res/inner.Blocklength)*inner.Stride + (res%inner.Blocklength)*inner.ChildExtent
}

// runGroup executes units [grp*size, (grp+1)*size) of a launch. Units past total
// return without touching memory.
func runGroup(l *launch, grp int64) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("group %d: %v", grp, p)
		}
	}()
	size := l.md.ElemSize
	base := grp * l.groupSize
	for u := int64(0); u < l.groupSize; u++ {
		g := base + u
		if g >= l.total {
			return nil
		}
		off := l.off(l.md, g)
		lin := g * size
		if l.dir == offset.Pack {
			copy(l.dst[lin:lin+size], l.src[off:off+size])
		} else {
			copy(l.dst[off:off+size], l.src[lin:lin+size])
		}
	}
	return nil
}
