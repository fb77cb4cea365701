package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/offset"
)

// ErrUnspecialized signals that no routine matches a layout. It is not a failure:
// callers route such layouts to a generic fallback.
var ErrUnspecialized = errors.New("unspecialized layout")

// Filter can veto a layout whose key matches but whose parameters a backend cannot
// address. A non-nil error is reported as unspecialized.
type Filter func(n *layout.Node) error

// Catalog holds the routines of one backend, keyed by kind sequence, storage class
// and direction.
type Catalog[R any] struct {
	name    string
	entries map[string]R
	filter  Filter
}

// NewCatalog returns an empty catalog.
func NewCatalog[R any](name string) *Catalog[R] {
	return &Catalog[R]{name: name, entries: make(map[string]R)}
}

func entryKey(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction) string {
	var b strings.Builder
	b.WriteString(dir.String())
	for _, k := range kinds {
		b.WriteByte('_')
		b.WriteString(k.String())
	}
	b.WriteByte('_')
	b.WriteString(class.String())
	return b.String()
}

// Name identifies the backend the catalog belongs to.
func (c *Catalog[R]) Name() string { return c.name }

// Len is the number of registered routines.
func (c *Catalog[R]) Len() int { return len(c.entries) }

// SetFilter installs a layout filter applied after a key matches.
func (c *Catalog[R]) SetFilter(f Filter) { c.filter = f }

// Register adds or replaces the routine for one exact shape.
func (c *Catalog[R]) Register(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction, r R) {
	c.entries[entryKey(kinds, class, dir)] = r
}

// RegisterAll registers gen's routine for every kind sequence of depth 0 through
// maxDepth, every class in classes and both directions.
func (c *Catalog[R]) RegisterAll(maxDepth int, classes []layout.StorageClass, gen func(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction) R) {
	var walk func(prefix []layout.Kind)
	walk = func(prefix []layout.Kind) {
		kinds := append([]layout.Kind(nil), prefix...)
		for _, class := range classes {
			for _, dir := range []offset.Direction{offset.Pack, offset.Unpack} {
				c.Register(kinds, class, dir, gen(kinds, class, dir))
			}
		}
		if len(prefix) == maxDepth {
			return
		}
		for _, k := range layout.DerivedKinds {
			walk(append(kinds, k))
		}
	}
	walk(nil)
}

// Lookup returns the routine registered for a shape.
func (c *Catalog[R]) Lookup(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction) (R, bool) {
	r, ok := c.entries[entryKey(kinds, class, dir)]
	return r, ok
}

// Select computes the key of n and returns the matching routine. Layouts deeper
// than maxDepth, shapes absent from the catalog and layouts rejected by the filter
// yield an error wrapping ErrUnspecialized. Select never matches a prefix of a
// longer path.
func Select[R any](c *Catalog[R], n *layout.Node, dir offset.Direction, maxDepth int) (R, Key, error) {
	var zero R
	if maxDepth < 0 {
		maxDepth = 0
	}
	key := KeyOf(n, maxDepth)
	if key.Truncated {
		return zero, key, fmt.Errorf("%w: %s exceeds nesting level %d", ErrUnspecialized, key, maxDepth)
	}
	r, ok := c.Lookup(key.Kinds, key.Class(), dir)
	if !ok {
		return zero, key, fmt.Errorf("%w: %s has no %s routine for %s", ErrUnspecialized, c.name, dir, key)
	}
	if c.filter != nil {
		if err := c.filter(n); err != nil {
			return zero, key, fmt.Errorf("%w: %s: %v", ErrUnspecialized, key, err)
		}
	}
	return r, key, nil
}
