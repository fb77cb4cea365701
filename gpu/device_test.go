package gpu

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfluke/typepack/dispatch"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/layout/layouttest"
	"github.com/openfluke/typepack/pup"
)

// newTestDevice needs a real adapter. Set TYPEPACK_GPU_TESTS=1 to run.
func newTestDevice(t *testing.T) *Device {
	t.Helper()
	if os.Getenv("TYPEPACK_GPU_TESTS") == "" {
		t.Skip("TYPEPACK_GPU_TESTS not set")
	}
	d, err := New()
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestDeviceRoundTrip(t *testing.T) {
	d := newTestDevice(t)
	eng := pup.NewEngine(d)
	defer eng.Close()

	for _, kinds := range layouttest.ShapesUpTo(2) {
		for _, e := range []layout.ElementType{layout.Float32, layout.Float64, layout.Complex128} {
			n := layouttest.Build(kinds, e)
			t.Run(layouttest.Name(kinds, e), func(t *testing.T) {
				typ, err := eng.Commit(n)
				require.NoError(t, err)

				const count = 3
				want := layouttest.Pattern(int(n.Span(count)), 4)
				src, err := NewBufferInit(want, "src")
				require.NoError(t, err)
				defer src.Destroy()
				packed, err := NewBuffer(int(count*n.NumElements())*e.Size(), "packed")
				require.NoError(t, err)
				defer packed.Destroy()
				out, err := NewBuffer(len(want), "out")
				require.NoError(t, err)
				defer out.Destroy()

				require.NoError(t, eng.Pack(src, packed, count, typ))
				require.NoError(t, eng.Unpack(packed, out, count, typ))

				got, err := out.Read()
				require.NoError(t, err)
				size := int64(e.Size())
				for _, off := range layouttest.Offsets(n, count) {
					require.Equal(t, want[off:off+size], got[off:off+size], "offset %d", off)
				}
			})
		}
	}
}

func TestDeviceGridSplit(t *testing.T) {
	d := newTestDevice(t)
	eng := pup.NewEngine(d)
	n := layout.Must(layout.NewBuiltin(layout.Float32))
	typ, err := eng.Commit(n)
	require.NoError(t, err)

	// enough units to need a second grid row on small per-dimension limits
	count := int64(d.c.Limits.MaxComputeWorkgroupsPerDimension)*int64(d.GroupSize()) + 5
	if count*4 > 256<<20 {
		t.Skip("per-dimension limit too large for this test")
	}
	want := layouttest.Pattern(int(count*4), 1)
	src, err := NewBufferInit(want, "src")
	require.NoError(t, err)
	defer src.Destroy()
	dst, err := NewBuffer(len(want), "dst")
	require.NoError(t, err)
	defer dst.Destroy()

	require.NoError(t, eng.Pack(src, dst, count, typ))
	got, err := dst.Read()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDeviceRejectsUnaligned(t *testing.T) {
	d := newTestDevice(t)
	eng := pup.NewEngine(d, pup.WithMaxDepth(dispatch.DefaultMaxDepth))
	typ, err := eng.Commit(layouttest.Build([]layout.Kind{layout.KindVector}, layout.Int16))
	require.NoError(t, err)
	err = eng.Pack(&Buffer{size: 64}, &Buffer{size: 64}, 1, typ)
	require.Equal(t, pup.Unspecialized, pup.StatusOf(err))
}
