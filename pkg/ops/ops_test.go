package ops

import (
	"testing"

	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

func withArena(t *testing.T, fn func(w *gcheap.Witness)) {
	t.Helper()
	arena := gcheap.New()
	arena.Mutate(fn)
}

func TestBinaryLiftElementwise(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		a, _ := values.NewList(w, values.Num(values.Int(1)), values.Num(values.Int(2)), values.Num(values.Int(3)))
		rv, err := BinaryLift(w, Add, a, values.Num(values.Int(10)), false)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		h, _ := rv.Handle()
		l := w.Get(h).(*values.List)
		if l.Len() != 3 {
			t.Fatalf("expected length 3, got %d", l.Len())
		}
		n, _ := l.At(0).AsNumber()
		if n.Float() != 11 {
			t.Fatalf("expected 11, got %v", n.Float())
		}
	})
}

func TestBinaryLiftMatrixMode(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		row1, _ := values.NewList(w, values.Num(values.Int(1)), values.Num(values.Int(2)))
		row2, _ := values.NewList(w, values.Num(values.Int(3)), values.Num(values.Int(4)))
		matrix, _ := values.NewList(w, row1, row2)

		rv, err := BinaryLift(w, Mul, matrix, values.Num(values.Int(2)), true)
		if err != nil {
			t.Fatalf("Mul: %v", err)
		}
		h, _ := rv.Handle()
		l := w.Get(h).(*values.List)
		r0h, _ := l.At(0).Handle()
		r0 := w.Get(r0h).(*values.List)
		n, _ := r0.At(0).AsNumber()
		if n.Float() != 2 {
			t.Fatalf("expected 2, got %v", n.Float())
		}
	})
}

func TestCyclicListLiftTerminates(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		lv, l := values.NewList(w, values.Num(values.Int(1)))
		l.PushBack(lv) // self-reference

		// A synchronous call: returning at all shows the lift terminated.
		// lv is [1, lv], so the result is [2, result].
		rv, err := BinaryLift(w, Add, lv, values.Num(values.Int(1)), false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h, _ := rv.Handle()
		res := w.Get(h).(*values.List)
		if res.Len() != 2 {
			t.Fatalf("expected length 2, got %d", res.Len())
		}
		inner, _ := res.At(1).Handle()
		if inner != h {
			t.Fatalf("expected the result to contain itself at index 1")
		}
	})
}

func TestCheckEqIsSymmetricOnCycles(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		av, al := values.NewList(w, values.Num(values.Int(1)))
		al.PushBack(av)
		bv, bl := values.NewList(w, values.Num(values.Int(1)))
		bl.PushBack(bv)

		if CheckEq(w, av, bv) != CheckEq(w, bv, av) {
			t.Fatalf("CheckEq must be symmetric on cyclic inputs")
		}
	})
}

func TestCheckEqCaseInsensitiveStrings(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		if !CheckEq(w, values.Str("Hello"), values.Str("hello")) {
			t.Fatalf("expected case-insensitive equality")
		}
	})
}

func TestCheckEqNumericString(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		if !CheckEq(w, values.Num(values.Int(5)), values.Str("5")) {
			t.Fatalf("expected numeric/string equality")
		}
	})
}

func TestCheckRefEqNumbersByValue(t *testing.T) {
	if !CheckRefEq(values.Num(values.Int(5)), values.Num(values.Int(5))) {
		t.Fatalf("expected numbers to be ref-eq by bitwise value")
	}
}

func TestModSignFollowsRightOperand(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		rv, err := scalarBinary(Mod, w, values.Num(values.MustNumber(-7)), values.Num(values.MustNumber(3)))
		if err != nil {
			t.Fatalf("mod: %v", err)
		}
		n, _ := rv.AsNumber()
		if n.Float() != 2 {
			t.Fatalf("expected -7 mod 3 == 2, got %v", n.Float())
		}
	})
}

func TestReshapeZeroDimYieldsEmpty(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		src, _ := values.NewList(w, values.Num(values.Int(1)), values.Num(values.Int(2)))
		rv, err := Reshape(w, src, []int{0, 5})
		if err != nil {
			t.Fatalf("Reshape: %v", err)
		}
		h, _ := rv.Handle()
		l := w.Get(h).(*values.List)
		if l.Len() != 0 {
			t.Fatalf("expected empty list, got len %d", l.Len())
		}
	})
}

func TestFlattenReshapeRoundTrip(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		src, _ := values.NewList(w, values.Num(values.Int(1)), values.Num(values.Int(2)), values.Num(values.Int(3)))
		reshaped, err := Reshape(w, src, []int{2, 3})
		if err != nil {
			t.Fatalf("Reshape: %v", err)
		}
		flat, err := Flatten(w, reshaped)
		if err != nil {
			t.Fatalf("Flatten: %v", err)
		}
		if len(flat) != 6 {
			t.Fatalf("expected 6 elements, got %d", len(flat))
		}
		for i, v := range flat {
			n, _ := v.AsNumber()
			want := float64((i % 3) + 1)
			if n.Float() != want {
				t.Fatalf("index %d: expected %v got %v", i, want, n.Float())
			}
		}
	})
}

func TestIndexOutOfBoundsAndNonInteger(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		_, l := values.NewList(w, values.Num(values.Int(1)), values.Num(values.Int(2)))
		if _, err := Index(l, values.MustNumber(0)); err == nil {
			t.Fatalf("expected error indexing at 0")
		}
		if _, err := Index(l, values.MustNumber(3)); err == nil {
			t.Fatalf("expected error indexing past end")
		}
		if _, err := Index(l, values.MustNumber(1.5)); err == nil {
			t.Fatalf("expected error for non-integer index")
		}
	})
}

func TestCartesianProductEmptyInput(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		rv, err := CartesianProduct(w, nil)
		if err != nil {
			t.Fatalf("CartesianProduct: %v", err)
		}
		h, _ := rv.Handle()
		if w.Get(h).(*values.List).Len() != 0 {
			t.Fatalf("expected empty result for empty input")
		}
	})
}

func TestVariadicAddEmptyIsZero(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		rv, err := Variadic(w, VAdd, nil)
		if err != nil {
			t.Fatalf("Variadic: %v", err)
		}
		n, _ := rv.AsNumber()
		if n.Float() != 0 {
			t.Fatalf("expected 0, got %v", n.Float())
		}
	})
}

func TestSplitCSVSingleLineIsFlat(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		rv, err := LiftUnary(w, SplitCSV, values.Str("a,b,c"))
		if err != nil {
			t.Fatalf("SplitCSV: %v", err)
		}
		h, _ := rv.Handle()
		l, ok := w.Get(h).(*values.List)
		if !ok {
			t.Fatalf("result is not a list: %#v", rv)
		}
		if l.Len() != 3 {
			t.Fatalf("expected 3 fields, got %d", l.Len())
		}
		s, _ := l.At(1).AsString()
		if s != "b" {
			t.Fatalf("field 1 = %q, want %q", s, "b")
		}
	})
}

func TestSplitCSVMultiLineIsListOfRows(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		rv, err := LiftUnary(w, SplitCSV, values.Str("a,b\nc,d"))
		if err != nil {
			t.Fatalf("SplitCSV: %v", err)
		}
		h, _ := rv.Handle()
		outer, ok := w.Get(h).(*values.List)
		if !ok {
			t.Fatalf("result is not a list: %#v", rv)
		}
		if outer.Len() != 2 {
			t.Fatalf("expected 2 rows, got %d", outer.Len())
		}
		rowHandle, ok := outer.At(1).Handle()
		if !ok {
			t.Fatal("row 1 is not a heap value")
		}
		row, ok := w.Get(rowHandle).(*values.List)
		if !ok {
			t.Fatalf("row 1 is not a list: %#v", outer.At(1))
		}
		if row.Len() != 2 {
			t.Fatalf("expected 2 fields in row 1, got %d", row.Len())
		}
		s, _ := row.At(0).AsString()
		if s != "c" {
			t.Fatalf("row 1 field 0 = %q, want %q", s, "c")
		}
	})
}

func TestSplitJSONParsesObjectsAndArrays(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		rv, err := LiftUnary(w, SplitJSON, values.Str(`[1, "two", true]`))
		if err != nil {
			t.Fatalf("SplitJSON: %v", err)
		}
		h, _ := rv.Handle()
		l, ok := w.Get(h).(*values.List)
		if !ok {
			t.Fatalf("result is not a list: %#v", rv)
		}
		if l.Len() != 3 {
			t.Fatalf("expected 3 elements, got %d", l.Len())
		}
		n, ok := l.At(0).AsNumber()
		if !ok || n.Float() != 1 {
			t.Fatalf("element 0 = %#v, want Number(1)", l.At(0))
		}
		b, ok := l.At(2).AsBool()
		if !ok || !b {
			t.Fatalf("element 2 = %#v, want Bool(true)", l.At(2))
		}
	})
}

func TestSplitJSONRejectsInvalidInput(t *testing.T) {
	withArena(t, func(w *gcheap.Witness) {
		_, err := LiftUnary(w, SplitJSON, values.Str("not json"))
		if err == nil {
			t.Fatal("expected an error for invalid JSON input")
		}
	})
}
