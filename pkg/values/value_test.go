package values

import (
	"testing"

	"github.com/kristofer/scriptvm/pkg/gcheap"
)

func TestNumberRejectsNaN(t *testing.T) {
	if _, err := NewNumber(nan()); err == nil {
		t.Fatalf("expected NaN to be rejected")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestNumberAcceptsInfinity(t *testing.T) {
	n, err := NewNumber(posInf())
	if err != nil {
		t.Fatalf("expected +Inf to be accepted: %v", err)
	}
	if n.String() != "Infinity" {
		t.Fatalf("expected Infinity rendering, got %q", n.String())
	}
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}

func TestStringIdentitySeparateAllocations(t *testing.T) {
	a := Str("hi")
	b := Str("hi")
	ia, _ := a.Identity()
	ib, _ := b.Identity()
	if ia == ib {
		t.Fatalf("separately constructed strings must not share identity")
	}
	c := a
	ic, _ := c.Identity()
	if ia != ic {
		t.Fatalf("copying a Value must preserve identity")
	}
}

func TestListJSONRoundTrip(t *testing.T) {
	arena := gcheap.New()
	var out Value
	arena.Mutate(func(w *gcheap.Witness) {
		lv, _ := NewList(w, Bool(true), Num(Int(3)), Str("x"))
		out = lv
	})
	arena.Mutate(func(w *gcheap.Witness) {
		j, err := ToJSON(w, out)
		if err != nil {
			t.Fatalf("ToJSON: %v", err)
		}
		back, err := FromJSON(w, j)
		if err != nil {
			t.Fatalf("FromJSON: %v", err)
		}
		h1, _ := out.Handle()
		h2, _ := back.Handle()
		l1 := w.Get(h1).(*List)
		l2 := w.Get(h2).(*List)
		if l1.Len() != l2.Len() {
			t.Fatalf("round trip changed length: %d vs %d", l1.Len(), l2.Len())
		}
	})
}

func TestToJSONDetectsCycles(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		lv, l := NewList(w, Bool(true))
		l.PushBack(lv)
		if _, err := ToJSON(w, lv); err != Cyclic {
			t.Fatalf("expected Cyclic error, got %v", err)
		}
	})
}
