package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Device image layout, in 32-bit words. Kernels index the image with these constants.
const (
	HeaderWords = 8
	LevelWords  = 8
)

// Header word offsets.
const (
	HdrNumLevels = iota
	HdrElemSize
	HdrNumElements
	HdrExtent
	HdrTrueLB
	HdrTrueUB
	HdrPoolBase
	HdrReserved
)

// Level record word offsets.
const (
	LvKind = iota
	LvCount
	LvBlocklength
	LvStride
	LvChildExtent
	LvChildElements
	LvDispls
	LvBlocklens
)

var ErrDeviceRange = errors.New("metadata: value exceeds 32-bit device addressing")

// Words encodes the snapshot as a flat uint32 image. Unsigned quantities must fit in
// 32 bits and signed byte quantities in int32.
func (md *Metadata) Words() ([]uint32, error) {
	poolBase := HeaderWords + LevelWords*len(md.Levels)
	words := make([]uint32, poolBase+len(md.Pool))

	var err error
	u := func(field string, v int64) uint32 {
		if v < 0 || v > math.MaxUint32 {
			if err == nil {
				err = fmt.Errorf("%w: %s = %d", ErrDeviceRange, field, v)
			}
			return 0
		}
		return uint32(v)
	}
	s := func(field string, v int64) uint32 {
		if v < math.MinInt32 || v > math.MaxInt32 {
			if err == nil {
				err = fmt.Errorf("%w: %s = %d", ErrDeviceRange, field, v)
			}
			return 0
		}
		return uint32(int32(v))
	}

	words[HdrNumLevels] = uint32(len(md.Levels))
	words[HdrElemSize] = u("element size", md.ElemSize)
	words[HdrNumElements] = u("num elements", md.NumElements)
	words[HdrExtent] = s("extent", md.Extent)
	words[HdrTrueLB] = s("true lb", md.TrueLB)
	words[HdrTrueUB] = s("true ub", md.TrueUB)
	words[HdrPoolBase] = uint32(poolBase)

	for i := range md.Levels {
		lv := &md.Levels[i]
		rec := words[HeaderWords+LevelWords*i:]
		rec[LvKind] = uint32(lv.Kind)
		rec[LvCount] = u("count", lv.Count)
		rec[LvBlocklength] = u("blocklength", lv.Blocklength)
		rec[LvStride] = s("stride", lv.Stride)
		rec[LvChildExtent] = s("child extent", lv.ChildExtent)
		rec[LvChildElements] = u("child elements", lv.ChildElements)
		rec[LvDispls] = uint32(poolBase + lv.Displs.Off)
		rec[LvBlocklens] = uint32(poolBase + lv.Blocklens.Off)
	}
	for i, v := range md.Pool {
		words[poolBase+i] = s("pool", v)
	}
	// per-level block products are computed on device; they must fit as well
	for i := range md.Levels {
		lv := &md.Levels[i]
		u("block elements", lv.Blocklength*lv.ChildElements)
	}
	if err != nil {
		return nil, err
	}
	return words, nil
}

// Bytes returns the little-endian byte form of Words.
func (md *Metadata) Bytes() ([]byte, error) {
	words, err := md.Words()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out, nil
}
