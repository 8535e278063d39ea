// Package gcheap owns every collectable object in a running engine.
//
// A collectable object is anything with reference semantics that can
// participate in a cycle: lists, closures, entities, and the aliased
// storage cells symbol tables promote variables into. Value types
// (bool, Number) and shared-immutable leaves (String, Image, Audio,
// Native) never live here.
//
// The arena is the only thing that allocates these objects and the only
// thing that frees them. Mutation of anything it owns — allocating a new
// cell, writing through a handle, tracing for collection — requires a
// Witness, a token handed to a callback passed to Mutate. No collectable
// handle obtained through a Witness is safe to retain past the callback
// that produced it; treat it the way you'd treat a slice borrowed from a
// buffer that's about to be reused.
package gcheap

// Handle is an opaque reference to a collectable object. Its zero value
// refers to nothing and is never returned by Alloc.
type Handle uint64

// Cell is anything the arena can own and trace. Trace must call visit
// once for every Handle reachable directly from this cell (not
// transitively — the arena's tracer handles transitive closure).
type Cell interface {
	Trace(visit func(Handle))
}

type slot struct {
	obj    Cell
	marked bool
	free   bool
}

// Arena owns a graph of Cells rooted in a set of Handles and reclaims
// anything unreachable from those roots when Collect runs. Cycles and
// back-edges between cells are fine; the tracer is not reference
// counted.
type Arena struct {
	slots []slot
	freed []Handle
	roots map[Handle]struct{}
	bytes int64 // best-effort accounting, used to decide when to Collect
}

// New returns an empty arena.
func New() *Arena {
	return &Arena{
		roots: make(map[Handle]struct{}),
	}
}

// Witness is proof that the holder is inside an Arena.Mutate callback.
// It carries no data; its only job is to make "you may only touch
// collectable objects during a mutation" a type-level requirement
// instead of a convention. Do not store a Witness past the callback
// that received it.
type Witness struct {
	arena *Arena
}

// Mutate runs fn with a Witness scoped to this call. Allocations and
// writes performed through that Witness are visible immediately; the
// Witness itself must not escape fn.
func (a *Arena) Mutate(fn func(w *Witness)) {
	fn(&Witness{arena: a})
}

// Alloc adds obj to the arena and returns a handle to it. The object is
// unreachable (and eligible for collection on the very next Collect)
// unless something reachable from a root points to it, or Root is
// called on the returned handle.
func (w *Witness) Alloc(obj Cell) Handle {
	a := w.arena
	a.bytes++
	for i := range a.slots {
		if a.slots[i].free {
			a.slots[i] = slot{obj: obj}
			return Handle(i + 1)
		}
	}
	a.slots = append(a.slots, slot{obj: obj})
	return Handle(len(a.slots))
}

// Get returns the Cell behind h, or nil if h does not currently name a
// live object (it was never allocated, or has since been collected).
func (w *Witness) Get(h Handle) Cell {
	return w.arena.get(h)
}

func (a *Arena) get(h Handle) Cell {
	if h == 0 || int(h) > len(a.slots) {
		return nil
	}
	s := a.slots[h-1]
	if s.free {
		return nil
	}
	return s.obj
}

// Root brands h as a GC root: it and everything transitively reachable
// from it survives every Collect until Unroot is called with the same
// handle. Rooting is how a caller outside any single Mutate callback
// (a global variable, a running Process's value stack) keeps its
// collectable state alive.
func (a *Arena) Root(h Handle) {
	a.roots[h] = struct{}{}
}

// Unroot removes a previously rooted handle. The object it names may be
// reclaimed on the next Collect if nothing else keeps it reachable.
func (a *Arena) Unroot(h Handle) {
	delete(a.roots, h)
}

// Collect traces from every rooted handle and frees every slot it did
// not mark. It is safe to call between mutations (never during one —
// Collect takes no Witness, so it cannot be called from inside Mutate).
// Returns the number of objects reclaimed.
func (a *Arena) Collect() int {
	for i := range a.slots {
		a.slots[i].marked = false
	}
	var stack []Handle
	for h := range a.roots {
		stack = append(stack, h)
	}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == 0 || int(h) > len(a.slots) {
			continue
		}
		s := &a.slots[h-1]
		if s.free || s.marked {
			continue
		}
		s.marked = true
		if s.obj != nil {
			s.obj.Trace(func(child Handle) { stack = append(stack, child) })
		}
	}
	reclaimed := 0
	for i := range a.slots {
		if !a.slots[i].free && !a.slots[i].marked {
			a.slots[i] = slot{free: true}
			reclaimed++
		}
	}
	return reclaimed
}

// Live reports how many objects the arena currently holds (live or not
// yet swept — an upper bound, exact immediately after Collect).
func (a *Arena) Live() int {
	n := 0
	for _, s := range a.slots {
		if !s.free {
			n++
		}
	}
	return n
}

// Allocs reports the running total of slots ever allocated (not
// currently-live count), which a host can use to trigger Collect on an
// allocation-count threshold rather than a wall-clock timer.
func (a *Arena) Allocs() int64 {
	return a.bytes
}
