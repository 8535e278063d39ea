package values

import (
	"fmt"

	"github.com/kristofer/scriptvm/pkg/gcheap"
)

// List is a mutable, ordered, collectable sequence of Values. It is
// the only mutable aggregate in the value model and is what lets the
// language build cyclic data (a list containing itself).
type List struct {
	items []Value
}

// NewList allocates a fresh *List through w and returns the List Value
// naming it together with the *List itself.
func NewList(w *gcheap.Witness, items ...Value) (Value, *List) {
	l := &List{items: append([]Value(nil), items...)}
	h := w.Alloc(l)
	return ListV(h), l
}

// Trace implements gcheap.Cell: a list keeps every collectable element
// it holds alive.
func (l *List) Trace(visit func(gcheap.Handle)) {
	for _, v := range l.items {
		if h, ok := v.Handle(); ok {
			visit(h)
		}
	}
}

// Len returns the number of elements.
func (l *List) Len() int { return len(l.items) }

// At returns the element at 0-based index i.
func (l *List) At(i int) Value { return l.items[i] }

// Items returns the backing slice. Callers must not retain it past
// the current mutation witness scope, and must not mutate it directly
// except through the List's own methods (which keep length bookkeeping
// consistent for anything else aliasing this List).
func (l *List) Items() []Value { return l.items }

// Set overwrites the element at 0-based index i.
func (l *List) Set(i int, v Value) { l.items[i] = v }

// PushBack appends v to the end.
func (l *List) PushBack(v Value) { l.items = append(l.items, v) }

// PushFront prepends v to the front.
func (l *List) PushFront(v Value) {
	l.items = append(l.items, Value{})
	copy(l.items[1:], l.items)
	l.items[0] = v
}

// PopBack removes and returns the last element. err is non-nil if the
// list is empty.
func (l *List) PopBack() (Value, error) {
	if len(l.items) == 0 {
		return Value{}, fmt.Errorf("values: PopBack on empty list")
	}
	v := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return v, nil
}

// PopFront removes and returns the first element. err is non-nil if
// the list is empty.
func (l *List) PopFront() (Value, error) {
	if len(l.items) == 0 {
		return Value{}, fmt.Errorf("values: PopFront on empty list")
	}
	v := l.items[0]
	l.items = l.items[1:]
	return v, nil
}

// InsertAt inserts v so it becomes element i (0-based); i == Len()
// appends.
func (l *List) InsertAt(i int, v Value) error {
	if i < 0 || i > len(l.items) {
		return fmt.Errorf("values: InsertAt index %d out of range [0,%d]", i, len(l.items))
	}
	l.items = append(l.items, Value{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
	return nil
}

// RemoveAt removes and returns the element at 0-based index i.
func (l *List) RemoveAt(i int) (Value, error) {
	if i < 0 || i >= len(l.items) {
		return Value{}, fmt.Errorf("values: RemoveAt index %d out of range [0,%d)", i, len(l.items))
	}
	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	return v, nil
}

// RemoveAll empties the list.
func (l *List) RemoveAll() { l.items = l.items[:0] }
