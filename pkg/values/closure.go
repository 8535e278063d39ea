package values

import "github.com/kristofer/scriptvm/pkg/gcheap"

// Closure is a collectable reference to a bytecode entry point plus
// the symbol table of variables it captured at creation time. Captures
// are aliased (not copied) from the defining scope via Shared::alias,
// so a closure and its defining frame observe the same mutations to a
// shared local after the closure escapes — see package symtab.
type Closure struct {
	Entry    int      // bytecode instruction offset where the closure body starts
	Params   []string // formal parameter names, in order
	Captures Tracer   // typically a *symtab.SymbolTable
}

// NewClosure allocates a fresh *Closure through w and returns the
// Closure Value naming it together with the *Closure itself.
func NewClosure(w *gcheap.Witness, entry int, params []string, captures Tracer) (Value, *Closure) {
	c := &Closure{Entry: entry, Params: append([]string(nil), params...), Captures: captures}
	h := w.Alloc(c)
	return ClosureV(h), c
}

// Trace implements gcheap.Cell: a closure keeps its captured bindings
// (and anything collectable those bindings reach) alive.
func (c *Closure) Trace(visit func(gcheap.Handle)) {
	if c.Captures != nil {
		c.Captures.Trace(visit)
	}
}
