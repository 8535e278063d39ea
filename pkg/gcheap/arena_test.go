package gcheap

import "testing"

type node struct {
	next Handle
}

func (n *node) Trace(visit func(Handle)) {
	if n.next != 0 {
		visit(n.next)
	}
}

func TestCollectReclaimsUnreachable(t *testing.T) {
	a := New()
	var h1 Handle
	a.Mutate(func(w *Witness) {
		h1 = w.Alloc(&node{})
	})
	a.Mutate(func(w *Witness) {
		w.Alloc(&node{}) // never rooted
	})

	a.Root(h1)
	reclaimed := a.Collect()
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed object, got %d", reclaimed)
	}
	if a.Live() != 1 {
		t.Fatalf("expected 1 live object, got %d", a.Live())
	}
}

func TestCollectTracesCycles(t *testing.T) {
	a := New()
	var h1, h2 Handle
	a.Mutate(func(w *Witness) {
		h1 = w.Alloc(&node{})
		h2 = w.Alloc(&node{next: h1})
		w.Get(h1).(*node).next = h2 // close the cycle
	})

	a.Root(h1)
	reclaimed := a.Collect()
	if reclaimed != 0 {
		t.Fatalf("cyclic pair rooted via h1 should survive, reclaimed=%d", reclaimed)
	}
	if a.Live() != 2 {
		t.Fatalf("expected both cycle members live, got %d", a.Live())
	}

	a.Unroot(h1)
	reclaimed = a.Collect()
	if reclaimed != 2 {
		t.Fatalf("unrooted cycle should be fully reclaimed, got %d", reclaimed)
	}
}

func TestUnrootAllowsCollection(t *testing.T) {
	a := New()
	var h Handle
	a.Mutate(func(w *Witness) {
		h = w.Alloc(&node{})
	})
	a.Root(h)
	a.Collect()
	if a.Live() != 1 {
		t.Fatalf("expected rooted object to survive")
	}
	a.Unroot(h)
	a.Collect()
	if a.Live() != 0 {
		t.Fatalf("expected unrooted object to be reclaimed")
	}
}
