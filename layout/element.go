package layout

import (
	"fmt"
	"sort"
	"strings"
)

// ElementType is the primitive type stored at a Builtin leaf.
type ElementType string

const (
	Byte       ElementType = "byte"
	Int8       ElementType = "int8"
	Int16      ElementType = "int16"
	Int32      ElementType = "int32"
	Int64      ElementType = "int64"
	Uint8      ElementType = "uint8"
	Uint16     ElementType = "uint16"
	Uint32     ElementType = "uint32"
	Uint64     ElementType = "uint64"
	Float16    ElementType = "float16"
	Float32    ElementType = "float32"
	Float64    ElementType = "float64"
	Complex64  ElementType = "complex64"
	Complex128 ElementType = "complex128"
	LongDouble ElementType = "longdouble"
)

var elementSizes = map[ElementType]int{
	Byte:       1,
	Int8:       1,
	Uint8:      1,
	Int16:      2,
	Uint16:     2,
	Float16:    2,
	Int32:      4,
	Uint32:     4,
	Float32:    4,
	Int64:      8,
	Uint64:     8,
	Float64:    8,
	Complex64:  8,
	Complex128: 16,
	LongDouble: 16,
}

// aliases accepted in layout descriptions
var elementAliases = map[string]ElementType{
	"char":               Int8,
	"unsigned_char":      Uint8,
	"short":              Int16,
	"unsigned_short":     Uint16,
	"int":                Int32,
	"unsigned":           Uint32,
	"long":               Int64,
	"unsigned_long":      Uint64,
	"long_long":          Int64,
	"unsigned_long_long": Uint64,
	"float":              Float32,
	"double":             Float64,
	"c_complex":          Complex64,
	"c_double_complex":   Complex128,
}

// Size returns the element width in bytes, or 0 for an unknown type.
func (e ElementType) Size() int {
	return elementSizes[e]
}

// Valid reports whether e is a known element type.
func (e ElementType) Valid() bool {
	_, ok := elementSizes[e]
	return ok
}

// StorageClass is the element width routines are specialized on. Element types of
// equal width share routines since transfers never interpret the bits.
func (e ElementType) StorageClass() StorageClass {
	return StorageClass(elementSizes[e])
}

// ParseElementType resolves a type name or one of its C-style aliases.
func ParseElementType(s string) (ElementType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, " ", "_")
	if e := ElementType(name); e.Valid() {
		return e, nil
	}
	if e, ok := elementAliases[name]; ok {
		return e, nil
	}
	return "", fmt.Errorf("unknown element type %q", s)
}

// ElementTypes returns all known element types sorted by name.
func ElementTypes() []ElementType {
	out := make([]ElementType, 0, len(elementSizes))
	for e := range elementSizes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StorageClass is an element width in bytes.
type StorageClass int

// StorageClasses lists every width an element type can have.
var StorageClasses = []StorageClass{1, 2, 4, 8, 16}

func (c StorageClass) String() string {
	return fmt.Sprintf("w%d", int(c))
}
