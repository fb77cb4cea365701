// Package dispatch matches the runtime shape of a layout against a bounded
// catalog of specialized routines.
package dispatch

import (
	"strings"

	"github.com/openfluke/typepack/layout"
)

const (
	// DefaultMaxDepth is the nesting limit used when none is configured.
	DefaultMaxDepth = 3
	// MaxCatalogDepth is the deepest kind sequence a generated catalog covers.
	MaxCatalogDepth = 3
)

// Key is the specialization key of a layout: its kind sequence outermost first,
// leaf element type, and whether the walk was cut short by the depth limit.
type Key struct {
	Kinds     []layout.Kind
	Element   layout.ElementType
	Truncated bool
}

// KeyOf walks n outermost first, collecting kinds until the Builtin leaf. The walk
// stops as soon as more than maxDepth kinds have been seen.
func KeyOf(n *layout.Node, maxDepth int) Key {
	k := Key{Element: n.Element()}
	for cur := n; cur.Kind() != layout.KindBuiltin; cur = cur.Child() {
		k.Kinds = append(k.Kinds, cur.Kind())
		if len(k.Kinds) > maxDepth {
			k.Truncated = true
			break
		}
	}
	return k
}

// Depth is the number of kinds collected.
func (k Key) Depth() int { return len(k.Kinds) }

// Class is the storage class routines are selected by.
func (k Key) Class() layout.StorageClass { return k.Element.StorageClass() }

func (k Key) String() string {
	var b strings.Builder
	for i, kind := range k.Kinds {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(kind.String())
	}
	if k.Truncated {
		b.WriteString("...")
	}
	if b.Len() > 0 {
		b.WriteByte(':')
	}
	b.WriteString(string(k.Element))
	return b.String()
}
