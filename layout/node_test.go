package layout

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuiltinBounds(t *testing.T) {
	for _, e := range ElementTypes() {
		n, err := NewBuiltin(e)
		if err != nil {
			t.Fatalf("NewBuiltin(%s): %v", e, err)
		}
		if n.NumElements() != 1 {
			t.Errorf("%s: NumElements = %d, want 1", e, n.NumElements())
		}
		if n.Extent() != int64(e.Size()) || n.TrueUB() != int64(e.Size()) {
			t.Errorf("%s: extent %d trueUB %d, want %d", e, n.Extent(), n.TrueUB(), e.Size())
		}
	}

	if _, err := NewBuiltin("quad"); err == nil {
		t.Error("expected error for unknown element type")
	}
}

func TestDerivedBounds(t *testing.T) {
	i8 := Must(NewBuiltin(Int8))
	i32 := Must(NewBuiltin(Int32))

	tests := []struct {
		name        string
		node        *Node
		numElements int64
		lb, ub      int64
		trueLB      int64
		trueUB      int64
	}{
		{"contiguous", Must(NewContiguous(5, i32)), 5, 0, 20, 0, 20},
		{"empty contiguous", Must(NewContiguous(0, i32)), 0, 0, 0, 0, 0},
		{"vector", Must(NewVector(3, 2, 10, i8)), 6, 0, 22, 0, 22},
		{"vector negative stride", Must(NewVector(2, 1, -8, i32)), 2, -8, 4, -8, 4},
		{"blockindexed", Must(NewBlockIndexed(2, []int64{0, 5, 12}, i8)), 6, 0, 14, 0, 14},
		{"indexed", Must(NewIndexed([]int64{1, 3}, []int64{0, 4}, i8)), 4, 0, 7, 0, 7},
		{"indexed out of order", Must(NewIndexed([]int64{2, 1}, []int64{16, 0}, i32)), 3, 0, 24, 0, 24},
		{"indexed empty block", Must(NewIndexed([]int64{0, 1}, []int64{-100, 8}, i32)), 1, 8, 12, 8, 12},
		{"resized", Must(NewResized(0, 16, i32)), 1, 0, 16, 0, 4},
		{"resized lb", Must(NewResized(-4, 12, i32)), 1, -4, 8, 0, 4},
		{"duplicate", Must(NewDuplicate(Must(NewVector(2, 1, 8, i32)))), 2, 0, 12, 0, 12},
		{"vector of resized", Must(NewVector(2, 2, 64, Must(NewResized(0, 8, i32)))), 4, 0, 80, 0, 76},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := tc.node
			if n.NumElements() != tc.numElements {
				t.Errorf("NumElements = %d, want %d", n.NumElements(), tc.numElements)
			}
			if n.LB() != tc.lb || n.UB() != tc.ub {
				t.Errorf("bounds = [%d,%d), want [%d,%d)", n.LB(), n.UB(), tc.lb, tc.ub)
			}
			if n.TrueLB() != tc.trueLB || n.TrueUB() != tc.trueUB {
				t.Errorf("true bounds = [%d,%d), want [%d,%d)", n.TrueLB(), n.TrueUB(), tc.trueLB, tc.trueUB)
			}
			if n.Extent() != tc.ub-tc.lb {
				t.Errorf("Extent = %d, want %d", n.Extent(), tc.ub-tc.lb)
			}
		})
	}
}

func TestConstructorErrors(t *testing.T) {
	i32 := Must(NewBuiltin(Int32))

	if _, err := NewContiguous(1, nil); !errors.Is(err, ErrNilChild) {
		t.Errorf("nil child: got %v", err)
	}
	if _, err := NewVector(-1, 1, 4, i32); !errors.Is(err, ErrNegativeCount) {
		t.Errorf("negative count: got %v", err)
	}
	if _, err := NewBlockIndexed(-2, []int64{0}, i32); !errors.Is(err, ErrNegativeCount) {
		t.Errorf("negative blocklength: got %v", err)
	}
	if _, err := NewIndexed([]int64{1}, []int64{0, 4}, i32); !errors.Is(err, ErrLengthMatch) {
		t.Errorf("length mismatch: got %v", err)
	}
	if _, err := NewIndexed([]int64{1, -1}, []int64{0, 4}, i32); !errors.Is(err, ErrNegativeCount) {
		t.Errorf("negative indexed blocklength: got %v", err)
	}
	if _, err := NewResized(0, -1, i32); err == nil {
		t.Error("expected error for negative resized extent")
	}
}

func TestConstructorsCopyArrays(t *testing.T) {
	displs := []int64{0, 8}
	n := Must(NewBlockIndexed(1, displs, Must(NewBuiltin(Int32))))
	displs[1] = 1000
	if got := n.Displacements(); got[1] != 8 {
		t.Errorf("node shares caller's displacement slice: %v", got)
	}
	got := n.Displacements()
	got[0] = 99
	if n.Displacements()[0] != 0 {
		t.Error("Displacements exposes internal storage")
	}
}

func TestPathAndDepth(t *testing.T) {
	n := Must(NewVector(2, 1, 64,
		Must(NewResized(0, 16,
			Must(NewBlockIndexed(1, []int64{0, 8},
				Must(NewBuiltin(Float64))))))))

	want := []Kind{KindVector, KindResized, KindBlockIndexed}
	if got := n.Path(); !reflect.DeepEqual(got, want) {
		t.Errorf("Path = %v, want %v", got, want)
	}
	if n.Depth() != 3 {
		t.Errorf("Depth = %d, want 3", n.Depth())
	}
	if n.Element() != Float64 {
		t.Errorf("Element = %s, want float64", n.Element())
	}
	if leaf := n.Leaf(); leaf.Kind() != KindBuiltin {
		t.Errorf("Leaf kind = %s", leaf.Kind())
	}

	b := Must(NewBuiltin(Int16))
	if b.Depth() != 0 || len(b.Path()) != 0 {
		t.Errorf("builtin depth %d path %v", b.Depth(), b.Path())
	}
}

func TestSpan(t *testing.T) {
	v := Must(NewVector(3, 2, 10, Must(NewBuiltin(Int8))))
	if got := v.Span(1); got != 22 {
		t.Errorf("Span(1) = %d, want 22", got)
	}
	if got := v.Span(2); got != 44 {
		t.Errorf("Span(2) = %d, want 44", got)
	}
	if got := v.Span(0); got != 0 {
		t.Errorf("Span(0) = %d, want 0", got)
	}

	r := Must(NewResized(0, 32, Must(NewBuiltin(Int32))))
	if got := r.Span(3); got != 68 {
		t.Errorf("resized Span(3) = %d, want 68", got)
	}
}

func TestString(t *testing.T) {
	n := Must(NewVector(3, 2, 10, Must(NewBuiltin(Int8))))
	if got, want := n.String(), "vector(3,2,10) -> builtin(int8)"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range append([]Kind{KindBuiltin}, DerivedKinds...) {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	aliases := map[string]Kind{"hvector": KindVector, "blkhindx": KindBlockIndexed, "hindexed": KindIndexed, "dup": KindDuplicate, "contig": KindContiguous}
	for s, want := range aliases {
		if got, err := ParseKind(s); err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := ParseKind("struct"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestElementTypes(t *testing.T) {
	tests := []struct {
		in    string
		want  ElementType
		class StorageClass
	}{
		{"int32", Int32, 4},
		{"unsigned", Uint32, 4},
		{"long long", Int64, 8},
		{"double", Float64, 8},
		{"c_complex", Complex64, 8},
		{"complex128", Complex128, 16},
		{"char", Int8, 1},
		{"float16", Float16, 2},
	}
	for _, tc := range tests {
		got, err := ParseElementType(tc.in)
		if err != nil {
			t.Errorf("ParseElementType(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want || got.StorageClass() != tc.class {
			t.Errorf("ParseElementType(%q) = %s (class %s), want %s (class %s)", tc.in, got, got.StorageClass(), tc.want, tc.class)
		}
	}
	if _, err := ParseElementType("bfloat"); err == nil {
		t.Error("expected error for unknown element type")
	}
}
