package entity

import (
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/symtab"
	"github.com/kristofer/scriptvm/pkg/values"
)

// Costume names one entry of an Entity's costume list: a display name
// plus the image data a host renders. The engine never inspects Image
// beyond handing it back to the host.
type Costume struct {
	Name  string
	Image *values.MediaData
}

// Entity is a sprite or the stage (spec §3): a collectable allocated
// like a List or Closure, holding its identity, costume state, a
// host-opaque State blob, liveness, an optional reference to the entity
// it was cloned from, and its own field storage. Stages and sprites
// differ only in their starting Properties; clones carry ParentRoot.
type Entity struct {
	Name        string
	CostumeList []Costume
	ActiveIndex int // 0-based into CostumeList; meaningless if CostumeList is empty
	State       interface{}
	Alive       bool
	ParentRoot  gcheap.Handle // zero if this entity was not produced by cloning
	Fields      *symtab.SymbolTable
	Properties  Properties
}

// New allocates a fresh Entity through w and returns the Handle and
// Entity naming it. fields may be nil, in which case an empty table
// with no parent is created.
func New(w *gcheap.Witness, name string, props Properties, fields *symtab.SymbolTable) (values.Value, *Entity) {
	if fields == nil {
		fields = symtab.New(nil)
	}
	e := &Entity{
		Name:       name,
		Alive:      true,
		Fields:     fields,
		Properties: props,
	}
	h := w.Alloc(e)
	return values.EntityV(h), e
}

// Trace implements gcheap.Cell: an entity keeps its field table and
// (if it is a clone) its parent root alive. Costume images are
// shared-immutable MediaData, not collectable, so they need no trace.
func (e *Entity) Trace(visit func(gcheap.Handle)) {
	if e.Fields != nil {
		e.Fields.Trace(visit)
	}
	if e.ParentRoot != 0 {
		visit(e.ParentRoot)
	}
}

// ActiveCostume returns the currently selected costume and whether one
// exists (false if CostumeList is empty).
func (e *Entity) ActiveCostume() (Costume, bool) {
	if len(e.CostumeList) == 0 {
		return Costume{}, false
	}
	return e.CostumeList[e.ActiveIndex], true
}

// SetCostume selects costume index i, wrapping modulo len(CostumeList)
// (spec's supplemented behavior: a stage or costume-less sprite simply
// ignores SetCostume rather than erroring, so "no costumes" is a valid
// steady state rather than a host-integration failure).
func (e *Entity) SetCostume(i int) {
	n := len(e.CostumeList)
	if n == 0 {
		return
	}
	i %= n
	if i < 0 {
		i += n
	}
	e.ActiveIndex = i
}

// AddCostume appends c to the costume list. If this is the entity's
// first costume, it becomes active.
func (e *Entity) AddCostume(c Costume) {
	e.CostumeList = append(e.CostumeList, c)
}

// Clone returns a new Entity carrying this entity's name, a
// shallow copy of its costume list, fresh Properties copied by value,
// a shallow-cloned Fields table, and ParentRoot set to self (or, if
// self is itself a clone, to self's own ParentRoot — clones form a
// flat generation, not a chain, matching the spec's "clones carry a
// reference to the parent entity" rather than to their immediate
// clone-source).
func (e *Entity) Clone(w *gcheap.Witness, selfHandle gcheap.Handle) *Entity {
	root := selfHandle
	if e.ParentRoot != 0 {
		root = e.ParentRoot
	}
	return &Entity{
		Name:        e.Name,
		CostumeList: append([]Costume(nil), e.CostumeList...),
		ActiveIndex: e.ActiveIndex,
		State:       e.State,
		Alive:       true,
		ParentRoot:  root,
		Fields:      e.Fields.Clone(w),
		Properties:  e.Properties,
	}
}
