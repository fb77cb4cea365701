package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/layout/layouttest"
	"github.com/openfluke/typepack/offset"
)

func nameOf(kinds []layout.Kind, class layout.StorageClass, dir offset.Direction) string {
	return fmt.Sprintf("%s/%s/%s", dir, layouttest.Name(kinds, ""), class)
}

func fullCatalog() *Catalog[string] {
	c := NewCatalog[string]("test")
	c.RegisterAll(MaxCatalogDepth, layout.StorageClasses, nameOf)
	return c
}

func TestKeyOf(t *testing.T) {
	n := layouttest.Build([]layout.Kind{layout.KindVector, layout.KindResized, layout.KindIndexed}, layout.Int32)

	k := KeyOf(n, 3)
	assert.False(t, k.Truncated)
	assert.Equal(t, []layout.Kind{layout.KindVector, layout.KindResized, layout.KindIndexed}, k.Kinds)
	assert.Equal(t, layout.Int32, k.Element)
	assert.Equal(t, layout.StorageClass(4), k.Class())
	assert.Equal(t, "vector.resized.indexed:int32", k.String())

	k = KeyOf(n, 1)
	assert.True(t, k.Truncated)
	assert.Equal(t, 2, k.Depth(), "walk stops one level past the limit")
	assert.Equal(t, "vector.resized...:int32", k.String())

	leaf := layout.Must(layout.NewBuiltin(layout.Float64))
	assert.Equal(t, "float64", KeyOf(leaf, 0).String())
}

func TestRegisterAllSize(t *testing.T) {
	c := fullCatalog()
	// 1 + 6 + 36 + 216 kind sequences, 5 classes, 2 directions
	assert.Equal(t, (1+6+36+216)*5*2, c.Len())
}

// The catalog contains every shape up to depth 3; D alone decides which ones are
// reachable.
func TestDepthLimit(t *testing.T) {
	c := fullCatalog()
	for maxDepth := 0; maxDepth <= 4; maxDepth++ {
		for depth := 0; depth <= 4; depth++ {
			for _, kinds := range layouttest.Shapes(depth) {
				n := layouttest.Build(kinds, layout.Int32)
				r, key, err := Select(c, n, offset.Pack, maxDepth)
				name := fmt.Sprintf("D=%d/%s", maxDepth, layouttest.Name(kinds, layout.Int32))
				if depth > maxDepth || depth > MaxCatalogDepth {
					if !errors.Is(err, ErrUnspecialized) {
						t.Fatalf("%s: expected unspecialized, got %v (%q)", name, err, r)
					}
					continue
				}
				if err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				if want := nameOf(kinds, 4, offset.Pack); r != want {
					t.Fatalf("%s: selected %q, want %q", name, r, want)
				}
				if key.Truncated || key.Depth() != depth {
					t.Fatalf("%s: key %v", name, key)
				}
			}
		}
	}
}

func TestNoPrefixMatch(t *testing.T) {
	c := NewCatalog[string]("prefix")
	c.Register([]layout.Kind{layout.KindVector}, 4, offset.Pack, "vector")

	n := layouttest.Build([]layout.Kind{layout.KindVector, layout.KindContiguous}, layout.Int32)
	_, _, err := Select(c, n, offset.Pack, 3)
	require.ErrorIs(t, err, ErrUnspecialized)

	n = layouttest.Build([]layout.Kind{layout.KindVector}, layout.Int32)
	r, _, err := Select(c, n, offset.Pack, 3)
	require.NoError(t, err)
	assert.Equal(t, "vector", r)

	_, _, err = Select(c, n, offset.Unpack, 3)
	require.ErrorIs(t, err, ErrUnspecialized)
}

func TestTransparentKindsCounted(t *testing.T) {
	c := NewCatalog[string]("dup")
	c.RegisterAll(1, layout.StorageClasses, nameOf)

	n := layouttest.Build([]layout.Kind{layout.KindDuplicate, layout.KindVector}, layout.Int8)
	_, key, err := Select(c, n, offset.Pack, 3)
	require.ErrorIs(t, err, ErrUnspecialized)
	assert.Equal(t, 2, key.Depth())
}

func TestExactRegistrationWins(t *testing.T) {
	c := fullCatalog()
	c.Register([]layout.Kind{layout.KindVector}, 8, offset.Unpack, "fast")

	r, _, err := Select(c, layouttest.Build([]layout.Kind{layout.KindVector}, layout.Float64), offset.Unpack, 3)
	require.NoError(t, err)
	assert.Equal(t, "fast", r)

	r, _, err = Select(c, layouttest.Build([]layout.Kind{layout.KindVector}, layout.Int64), offset.Unpack, 3)
	require.NoError(t, err)
	assert.Equal(t, "fast", r, "aliases share a storage class")
}

func TestUnsupportedClass(t *testing.T) {
	c := NewCatalog[string]("wide")
	c.RegisterAll(MaxCatalogDepth, []layout.StorageClass{4, 8, 16}, nameOf)

	_, _, err := Select(c, layouttest.Build(nil, layout.Int16), offset.Pack, 3)
	require.ErrorIs(t, err, ErrUnspecialized)

	_, _, err = Select(c, layouttest.Build(nil, layout.Complex128), offset.Pack, 3)
	require.NoError(t, err)
}

func TestFilter(t *testing.T) {
	c := fullCatalog()
	veto := errors.New("odd stride")
	c.SetFilter(func(n *layout.Node) error {
		if n.Kind() == layout.KindVector && n.Stride()%2 != 0 {
			return veto
		}
		return nil
	})

	odd := layout.Must(layout.NewVector(2, 1, 3, layout.Must(layout.NewBuiltin(layout.Int8))))
	_, _, err := Select(c, odd, offset.Pack, 3)
	require.ErrorIs(t, err, ErrUnspecialized)
	assert.Contains(t, err.Error(), "odd stride")

	even := layout.Must(layout.NewVector(2, 1, 4, layout.Must(layout.NewBuiltin(layout.Int8))))
	_, _, err = Select(c, even, offset.Pack, 3)
	require.NoError(t, err)
}

func TestNegativeDepthActsAsZero(t *testing.T) {
	c := fullCatalog()
	_, _, err := Select(c, layouttest.Build(nil, layout.Int32), offset.Pack, -1)
	require.NoError(t, err)
	_, _, err = Select(c, layouttest.Build([]layout.Kind{layout.KindContiguous}, layout.Int32), offset.Pack, -1)
	require.ErrorIs(t, err, ErrUnspecialized)
}
