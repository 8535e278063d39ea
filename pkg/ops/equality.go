package ops

import (
	"strings"

	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// CheckEq is the language's general equality: content-equal over
// lists (recursively), case-insensitive over strings, numeric if
// either side parses as a number, reference-based for the remaining
// reference types (Image/Audio/Native/Closure/Entity), and never true
// across a Bool and anything but another Bool. It is cycle-tolerant:
// re-entering a pair already on the call path short-circuits to equal
// (spec §4.2, §8).
func CheckEq(w *gcheap.Witness, a, b values.Value) bool {
	return checkEq(w, a, b, map[unorderedPair]bool{})
}

// unorderedPair is CheckEq's memo key: the two operand identities in
// the order they were first inserted. Lookups probe both (a,b) and
// (b,a) so that CheckEq(a,b) and CheckEq(b,a) observe the same memo
// regardless of insertion order (original_source/src/test/process.rs
// tests exactly this symmetry for cyclic inputs), without needing a
// total order over arbitrary identity values.
type unorderedPair struct {
	x, y interface{}
}

func identitiesFor(a, b values.Value) (interface{}, interface{}, bool) {
	ia, aok := a.Identity()
	ib, bok := b.Identity()
	if !aok || !bok {
		return nil, nil, false
	}
	return ia, ib, true
}

func checkEq(w *gcheap.Witness, a, b values.Value, onPath map[unorderedPair]bool) bool {
	if ia, ib, ok := identitiesFor(a, b); ok {
		fwd, rev := unorderedPair{ia, ib}, unorderedPair{ib, ia}
		if onPath[fwd] || onPath[rev] {
			return true // re-entering a pair already being compared: short-circuit to equal
		}
		onPath[fwd] = true
		defer delete(onPath, fwd)
	}

	la, aIsList := asList(w, a)
	lb, bIsList := asList(w, b)
	if aIsList || bIsList {
		if !aIsList || !bIsList {
			return false
		}
		if la.Len() != lb.Len() {
			return false
		}
		for i := 0; i < la.Len(); i++ {
			if !checkEq(w, la.At(i), lb.At(i), onPath) {
				return false
			}
		}
		return true
	}

	if a.Kind() == values.KindBool || b.Kind() == values.KindBool {
		ab, aok := a.AsBool()
		bb, bok := b.AsBool()
		return aok && bok && ab == bb
	}

	if a.Kind() == values.KindString || b.Kind() == values.KindString {
		// Case-insensitive if both sides render as strings; numeric if
		// either side parses as a number and the other does too.
		na, aNum := tryNumber(a)
		nb, bNum := tryNumber(b)
		if aNum && bNum {
			return values.CompareNumbers(na, nb) == 0
		}
		sa, errA := coerceString(a)
		sb, errB := coerceString(b)
		if errA != nil || errB != nil {
			return false
		}
		return strings.EqualFold(sa, sb)
	}

	if a.Kind() == values.KindNumber && b.Kind() == values.KindNumber {
		na, _ := a.AsNumber()
		nb, _ := b.AsNumber()
		return values.CompareNumbers(na, nb) == 0
	}

	// Image/Audio/Native/Closure/Entity: reference-based.
	ia, aok := a.Identity()
	ib, bok := b.Identity()
	return aok && bok && ia == ib && a.Kind() == b.Kind()
}

// CheckRefEq is strict reference equality: booleans and numbers
// compare by bitwise (here: direct) value; every other kind compares
// by identity of the referent (spec §4.2).
func CheckRefEq(a, b values.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case values.KindBool:
		ab, _ := a.AsBool()
		bb, _ := b.AsBool()
		return ab == bb
	case values.KindNumber:
		na, _ := a.AsNumber()
		nb, _ := b.AsNumber()
		return na.Float() == nb.Float()
	default:
		ia, aok := a.Identity()
		ib, bok := b.Identity()
		return aok && bok && ia == ib
	}
}
