// Package symtab implements named variable storage: SymbolTable maps
// names to Shared cells, and Shared implements the Unique/Aliased
// sharing discipline that lets closures capture the same mutable
// binding their defining scope still sees (spec §3, §4.4).
package symtab

import (
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// cell is the collectable storage an Aliased Shared promotes into. It
// is allocated exactly once per promotion; every Shared handed out by
// Alias after that points at the same cell.
type cell struct {
	v values.Value
}

// Trace implements gcheap.Cell.
func (c *cell) Trace(visit func(gcheap.Handle)) {
	if h, ok := c.v.Handle(); ok {
		visit(h)
	}
}

// Shared holds a variable's value either inline (Unique, the common
// case — no allocation) or through a collectable cell shared by every
// alias of it (Aliased, created the first time something captures the
// variable). Promotion is one-directional and permanent.
type Shared struct {
	aliased    bool
	unique     values.Value
	cellHandle gcheap.Handle
}

// NewUnique wraps v as an unaliased (inline) Shared.
func NewUnique(v values.Value) Shared {
	return Shared{unique: v}
}

// Get reads the current value, following the cell if Aliased.
func (s Shared) Get(w *gcheap.Witness) values.Value {
	if !s.aliased {
		return s.unique
	}
	c, _ := w.Get(s.cellHandle).(*cell)
	if c == nil {
		return values.Value{}
	}
	return c.v
}

// Set writes a new value in place: through the shared cell if Aliased,
// otherwise into the inline slot.
func (s *Shared) Set(w *gcheap.Witness, v values.Value) {
	if s.aliased {
		if c, ok := w.Get(s.cellHandle).(*cell); ok {
			c.v = v
			return
		}
	}
	s.unique = v
}

// Alias promotes s to Aliased if it is not already, allocating the
// backing cell the first time, then returns a second Shared pointing
// at the same cell. Every further call — on s or on any Shared it has
// already produced — shares that one cell; promotion never relocates
// an existing cell.
func (s *Shared) Alias(w *gcheap.Witness) Shared {
	if !s.aliased {
		h := w.Alloc(&cell{v: s.unique})
		s.aliased = true
		s.cellHandle = h
	}
	return Shared{aliased: true, cellHandle: s.cellHandle}
}

// Trace implements gcheap.Cell-shaped tracing for a single binding:
// an Aliased Shared keeps its cell (and transitively whatever the cell
// holds) alive; a Unique Shared keeps whatever its inline value
// directly references alive.
func (s Shared) Trace(visit func(gcheap.Handle)) {
	if s.aliased {
		visit(s.cellHandle)
		return
	}
	if h, ok := s.unique.Handle(); ok {
		visit(h)
	}
}

// SymbolTable maps names to Shared bindings. Tables can be chained via
// parent to form a hierarchical lookup group (e.g. a block's locals
// sitting in front of its enclosing method's locals); SetOrDefine and
// Lookup search from the most-local table outward. A table does not
// trace into its parent — parents are rooted independently by whatever
// constructed the hierarchy (a call frame's locals and the globals
// table each have their own root), so a table only needs to account
// for its own bindings.
type SymbolTable struct {
	vars   map[string]*Shared
	parent *SymbolTable
}

// New returns an empty table, optionally chained in front of parent
// for hierarchical lookups.
func New(parent *SymbolTable) *SymbolTable {
	return &SymbolTable{vars: make(map[string]*Shared), parent: parent}
}

// DeclareLocal creates or redefines name as a fresh Unique binding in
// this table specifically (never searches parents).
func (t *SymbolTable) DeclareLocal(name string, v values.Value) {
	t.vars[name] = &Shared{unique: v}
}

// Lookup searches this table, then its parent chain, for name.
func (t *SymbolTable) Lookup(name string) (*Shared, bool) {
	for cur := t; cur != nil; cur = cur.parent {
		if s, ok := cur.vars[name]; ok {
			return s, true
		}
	}
	return nil, false
}

// SetOrDefine writes through the first binding found searching from
// this table outward to the most-global table; if none exists, it
// defines name locally in this table. If the found binding is Aliased,
// the write is visible through every alias of it.
func (t *SymbolTable) SetOrDefine(w *gcheap.Witness, name string, v values.Value) {
	for cur := t; cur != nil; cur = cur.parent {
		if s, ok := cur.vars[name]; ok {
			s.Set(w, v)
			return
		}
	}
	t.DeclareLocal(name, v)
}

// RedefineOrDefine unconditionally replaces name's binding in this
// table with s, even if the previous binding was Aliased — any
// existing alias of the old cell keeps seeing the old value, since
// it's a different cell now.
func (t *SymbolTable) RedefineOrDefine(name string, s Shared) {
	t.vars[name] = &s
}

// Alias promotes name's binding (found via Lookup) to Aliased and
// returns a second Shared over the same cell, for use as a Closure
// capture. ok is false if name is not bound anywhere in the chain.
func (t *SymbolTable) Alias(w *gcheap.Witness, name string) (Shared, bool) {
	s, ok := t.Lookup(name)
	if !ok {
		return Shared{}, false
	}
	return s.Alias(w), true
}

// Clone returns a new table with the same names, each rebound as a
// fresh Unique binding holding the current value — dropping aliasing
// but preserving reference-type identity (spec §3: "a clone of a
// SymbolTable is always shallow").
func (t *SymbolTable) Clone(w *gcheap.Witness) *SymbolTable {
	nt := New(t.parent)
	for name, s := range t.vars {
		nt.vars[name] = &Shared{unique: s.Get(w)}
	}
	return nt
}

// Trace implements values.Tracer so a SymbolTable can serve directly as
// a Closure's Captures or an Entity's Fields.
func (t *SymbolTable) Trace(visit func(gcheap.Handle)) {
	for _, s := range t.vars {
		s.Trace(visit)
	}
}
