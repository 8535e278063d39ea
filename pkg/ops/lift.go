// Package ops implements the value operations described in spec §4.2:
// scalar arithmetic/comparison primitives lifted elementwise (and, in
// matrix mode, row-wise) over lists, plus equality, indexing, reshape,
// cartesian product, flatten, and dimensions. Every operation that
// walks a List takes a *gcheap.Witness to dereference list handles, and
// every operation that can revisit the same pair of lists (because the
// input is cyclic) carries an identity-keyed memo so it terminates.
package ops

import (
	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// ScalarBinOp computes a binary primitive over two non-list leaves.
type ScalarBinOp func(w *gcheap.Witness, a, b values.Value) (values.Value, error)

type liftKey struct {
	a, b   interface{}
	matrix bool
}

func identityOrValue(v values.Value) interface{} {
	if id, ok := v.Identity(); ok {
		return id
	}
	switch v.Kind() {
	case values.KindBool:
		b, _ := v.AsBool()
		return b
	case values.KindNumber:
		n, _ := v.AsNumber()
		return n.Float()
	default:
		return nil
	}
}

func asList(w *gcheap.Witness, v values.Value) (*values.List, bool) {
	h, ok := v.Handle()
	if !ok {
		return nil, false
	}
	l, ok := w.Get(h).(*values.List)
	return l, ok
}

// isMatrixOperand reports whether v is a list whose first element is
// itself a list — the per-spec test for "is this operand a matrix".
func isMatrixOperand(w *gcheap.Witness, v values.Value) (*values.List, bool) {
	l, ok := asList(w, v)
	if !ok || l.Len() == 0 {
		return nil, false
	}
	if _, ok := asList(w, l.At(0)); !ok {
		return nil, false
	}
	return l, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Lift applies scalar over a and b, broadcasting across lists per spec
// §4.2: in matrix mode, two matrices zip row-by-row (recursing with
// matrix mode still on for each row pair); a matrix against a
// non-matrix broadcasts the non-matrix against every row; anything
// else falls through to plain elementwise-list mode, recursing at
// scalar leaves. A memo keyed by the ordered pair of operand identities
// and the mode lets cyclic inputs produce cyclic (and not infinite)
// output.
func Lift(w *gcheap.Witness, a, b values.Value, matrixMode bool, scalar ScalarBinOp) (values.Value, error) {
	return lift(w, a, b, matrixMode, scalar, make(map[liftKey]values.Value))
}

func lift(w *gcheap.Witness, a, b values.Value, matrixMode bool, scalar ScalarBinOp, memo map[liftKey]values.Value) (values.Value, error) {
	la, aIsList := asList(w, a)
	lb, bIsList := asList(w, b)

	if matrixMode {
		aMatList, aIsMatrix := isMatrixOperand(w, a)
		bMatList, bIsMatrix := isMatrixOperand(w, b)
		if aIsMatrix || bIsMatrix {
			key := liftKey{identityOrValue(a), identityOrValue(b), true}
			if v, ok := memo[key]; ok {
				return v, nil
			}
			resV, resList := values.NewList(w)
			memo[key] = resV

			switch {
			case aIsMatrix && bIsMatrix:
				n := minInt(aMatList.Len(), bMatList.Len())
				for i := 0; i < n; i++ {
					rv, err := lift(w, aMatList.At(i), bMatList.At(i), true, scalar, memo)
					if err != nil {
						return values.Value{}, err
					}
					resList.PushBack(rv)
				}
			case aIsMatrix:
				for i := 0; i < aMatList.Len(); i++ {
					rv, err := lift(w, aMatList.At(i), b, true, scalar, memo)
					if err != nil {
						return values.Value{}, err
					}
					resList.PushBack(rv)
				}
			default: // bIsMatrix
				for i := 0; i < bMatList.Len(); i++ {
					rv, err := lift(w, a, bMatList.At(i), true, scalar, memo)
					if err != nil {
						return values.Value{}, err
					}
					resList.PushBack(rv)
				}
			}
			return resV, nil
		}
		// neither side is a matrix: fall through to elementwise-list mode
	}

	if aIsList || bIsList {
		key := liftKey{identityOrValue(a), identityOrValue(b), false}
		if v, ok := memo[key]; ok {
			return v, nil
		}
		resV, resList := values.NewList(w)
		memo[key] = resV

		var n int
		switch {
		case aIsList && bIsList:
			n = minInt(la.Len(), lb.Len())
		case aIsList:
			n = la.Len()
		default:
			n = lb.Len()
		}
		for i := 0; i < n; i++ {
			ea, eb := a, b
			if aIsList {
				ea = la.At(i)
			}
			if bIsList {
				eb = lb.At(i)
			}
			rv, err := lift(w, ea, eb, matrixMode, scalar, memo)
			if err != nil {
				return values.Value{}, err
			}
			resList.PushBack(rv)
		}
		return resV, nil
	}

	return scalar(w, a, b)
}

// toNumber coerces v to Number: direct if already a Number, parsed if
// a String, ConversionError otherwise.
func toNumber(v values.Value) (values.Number, error) {
	if n, ok := v.AsNumber(); ok {
		return n, nil
	}
	if s, ok := v.AsString(); ok {
		if n, ok := values.ParseNumber(s); ok {
			return n, nil
		}
	}
	return values.Number{}, errs.Newf(errs.ConversionError, "cannot convert %s to Number", v.TypeTag())
}

// coerceString renders v the way string concatenation and split-by
// coerce their operands: strings pass through, numbers use their
// literal rendering, booleans as "true"/"false".
func coerceString(v values.Value) (string, error) {
	switch v.Kind() {
	case values.KindString:
		s, _ := v.AsString()
		return s, nil
	case values.KindNumber:
		n, _ := v.AsNumber()
		return n.String(), nil
	case values.KindBool:
		b, _ := v.AsBool()
		if b {
			return "true", nil
		}
		return "false", nil
	default:
		return "", errs.Newf(errs.ConversionError, "cannot convert %s to String", v.TypeTag())
	}
}
