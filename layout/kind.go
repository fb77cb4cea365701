package layout

import "fmt"

// Kind tags the variant of a layout node.
type Kind uint8

const (
	KindBuiltin Kind = iota
	KindContiguous
	KindDuplicate
	KindResized
	KindVector
	KindBlockIndexed
	KindIndexed
)

// DerivedKinds lists every non-leaf kind in catalog order.
var DerivedKinds = []Kind{
	KindVector,
	KindBlockIndexed,
	KindIndexed,
	KindDuplicate,
	KindContiguous,
	KindResized,
}

var kindNames = map[Kind]string{
	KindBuiltin:      "builtin",
	KindContiguous:   "contiguous",
	KindDuplicate:    "duplicate",
	KindResized:      "resized",
	KindVector:       "vector",
	KindBlockIndexed: "blockindexed",
	KindIndexed:      "indexed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a kind name as written in layout descriptions.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	switch s {
	case "contig":
		return KindContiguous, nil
	case "dup":
		return KindDuplicate, nil
	case "hvector":
		return KindVector, nil
	case "blkhindx", "block_indexed":
		return KindBlockIndexed, nil
	case "hindexed":
		return KindIndexed, nil
	}
	return 0, fmt.Errorf("unknown layout kind %q", s)
}

// Transparent reports whether the kind contributes no offset term of its own.
func (k Kind) Transparent() bool {
	return k == KindDuplicate || k == KindResized
}

// Blocked reports whether the kind splits its index into block and in-block parts.
func (k Kind) Blocked() bool {
	return k == KindVector || k == KindBlockIndexed || k == KindIndexed
}
