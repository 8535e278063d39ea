package ops

import (
	"math"
	"math/rand"
	"strings"

	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// BinOp names one of the elementwise binary primitives (spec §4.2).
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Pow
	Log
	Atan2
	Greater
	Less
	GreaterEq
	LessEq
	Min
	Max
	Mod
	SplitBy
	RangeOp
	RandomOp
	StrGet
)

// Scalar returns the leaf-level implementation of op, suitable for
// passing to Lift so callers get elementwise/matrix broadcasting for
// free.
func Scalar(op BinOp) ScalarBinOp {
	return func(w *gcheap.Witness, a, b values.Value) (values.Value, error) {
		return scalarBinary(op, w, a, b)
	}
}

// BinaryLift is Lift(op's scalar form) — the common case of applying a
// BinOp with full elementwise/matrix lifting.
func BinaryLift(w *gcheap.Witness, op BinOp, a, b values.Value, matrixMode bool) (values.Value, error) {
	return Lift(w, a, b, matrixMode, Scalar(op))
}

func scalarBinary(op BinOp, w *gcheap.Witness, a, b values.Value) (values.Value, error) {
	switch op {
	case Add, Sub, Mul, Div, Pow, Min, Max, Mod:
		na, err := toNumber(a)
		if err != nil {
			return values.Value{}, err
		}
		nb, err := toNumber(b)
		if err != nil {
			return values.Value{}, err
		}
		return numericBinary(op, na, nb)
	case Log:
		base, err := toNumber(a)
		if err != nil {
			return values.Value{}, err
		}
		arg, err := toNumber(b)
		if err != nil {
			return values.Value{}, err
		}
		n, err := values.NewNumber(math.Log(arg.Float()) / math.Log(base.Float()))
		if err != nil {
			return values.Value{}, errs.New(errs.NumberError, "log produced NaN")
		}
		return values.Num(n), nil
	case Atan2:
		na, err := toNumber(a)
		if err != nil {
			return values.Value{}, err
		}
		nb, err := toNumber(b)
		if err != nil {
			return values.Value{}, err
		}
		deg := math.Atan2(na.Float(), nb.Float()) * 180 / math.Pi
		return values.Num(values.MustNumber(deg)), nil
	case Greater, Less, GreaterEq, LessEq:
		return compareValues(op, a, b)
	case SplitBy:
		s, err := coerceString(a)
		if err != nil {
			return values.Value{}, err
		}
		sep, err := coerceString(b)
		if err != nil {
			return values.Value{}, err
		}
		parts := strings.Split(s, sep)
		items := make([]values.Value, len(parts))
		for i, p := range parts {
			items[i] = values.Str(p)
		}
		lv, _ := values.NewList(w, items...)
		return lv, nil
	case RangeOp:
		return rangeOp(w, a, b)
	case RandomOp:
		return randomOp(a, b)
	case StrGet:
		return strGet(a, b)
	default:
		return values.Value{}, errs.Newf(errs.NotSupported, "unknown binary op %d", op)
	}
}

func numericBinary(op BinOp, a, b values.Number) (values.Value, error) {
	af, bf := a.Float(), b.Float()
	var r float64
	switch op {
	case Add:
		r = af + bf
	case Sub:
		r = af - bf
	case Mul:
		r = af * bf
	case Div:
		r = af / bf
	case Pow:
		r = math.Pow(af, bf)
	case Min:
		r = math.Min(af, bf)
	case Max:
		r = math.Max(af, bf)
	case Mod:
		// sign follows the right operand (spec §4.2): a%b if signs
		// match, else b + (a mod -b).
		if signOf(af) == signOf(bf) || bf == 0 {
			r = math.Mod(af, bf)
		} else {
			r = bf + math.Mod(af, -bf)
		}
	}
	n, err := values.NewNumber(r)
	if err != nil {
		return values.Value{}, errs.New(errs.NumberError, "operation produced NaN")
	}
	return values.Num(n), nil
}

func signOf(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}

// compareValues implements the language's ordering: numeric comparison
// when both sides have a numeric representation (Number, or a String
// that parses as one), lexicographic (case-sensitive) string
// comparison otherwise (spec §4.5).
func compareValues(op BinOp, a, b values.Value) (values.Value, error) {
	na, aNum := tryNumber(a)
	nb, bNum := tryNumber(b)
	var less, greater bool
	if aNum && bNum {
		c := values.CompareNumbers(na, nb)
		less, greater = c < 0, c > 0
	} else {
		sa, err := coerceString(a)
		if err != nil {
			return values.Value{}, errs.Newf(errs.Incomparable, "cannot compare %s and %s", a.TypeTag(), b.TypeTag())
		}
		sb, err := coerceString(b)
		if err != nil {
			return values.Value{}, errs.Newf(errs.Incomparable, "cannot compare %s and %s", a.TypeTag(), b.TypeTag())
		}
		less, greater = sa < sb, sa > sb
	}
	switch op {
	case Greater:
		return values.Bool(greater), nil
	case Less:
		return values.Bool(less), nil
	case GreaterEq:
		return values.Bool(!less), nil
	case LessEq:
		return values.Bool(!greater), nil
	}
	return values.Value{}, errs.New(errs.NotSupported, "not a comparison op")
}

func tryNumber(v values.Value) (values.Number, bool) {
	if n, ok := v.AsNumber(); ok {
		return n, true
	}
	if s, ok := v.AsString(); ok {
		if n, ok := values.ParseNumber(s); ok {
			return n, true
		}
	}
	return values.Number{}, false
}

// rangeOp builds the finite inclusive integer sequence from a to b
// (length |b-a|+1, direction by sign of b-a).
func rangeOp(w *gcheap.Witness, a, b values.Value) (values.Value, error) {
	na, err := toNumber(a)
	if err != nil {
		return values.Value{}, err
	}
	nb, err := toNumber(b)
	if err != nil {
		return values.Value{}, err
	}
	from, to := int64(na.Float()), int64(nb.Float())
	step := int64(1)
	if to < from {
		step = -1
	}
	n := to - from
	if n < 0 {
		n = -n
	}
	items := make([]values.Value, 0, n+1)
	for i, v := int64(0), from; i <= n; i, v = i+1, v+step {
		items = append(items, values.Num(values.Int(v)))
	}
	lv, _ := values.NewList(w, items...)
	return lv, nil
}

// randomOp returns a uniform random value in [min(a,b), max(a,b)],
// integral if both endpoints are integers, real otherwise.
func randomOp(a, b values.Value) (values.Value, error) {
	na, err := toNumber(a)
	if err != nil {
		return values.Value{}, err
	}
	nb, err := toNumber(b)
	if err != nil {
		return values.Value{}, err
	}
	lo, hi := na.Float(), nb.Float()
	if lo > hi {
		lo, hi = hi, lo
	}
	if na.IsInteger() && nb.IsInteger() {
		lo64, hi64 := int64(lo), int64(hi)
		span := hi64 - lo64 + 1
		if span <= 0 {
			return values.Num(values.Int(lo64)), nil
		}
		return values.Num(values.Int(lo64 + rand.Int63n(span))), nil
	}
	r := lo + rand.Float64()*(hi-lo)
	return values.Num(values.MustNumber(r)), nil
}

// strGet returns the 1-based character at index b within string a.
func strGet(a, b values.Value) (values.Value, error) {
	s, err := coerceString(a)
	if err != nil {
		return values.Value{}, err
	}
	n, err := toNumber(b)
	if err != nil {
		return values.Value{}, err
	}
	runes := []rune(s)
	return indexRunes(runes, n)
}

func indexRunes(runes []rune, n values.Number) (values.Value, error) {
	if !n.IsInteger() {
		return values.Value{}, errs.New(errs.IndexNotInteger, "string index must be an integer")
	}
	i := n.Int64()
	if i < 1 || int(i) > len(runes) {
		return values.Value{}, errs.Newf(errs.IndexOutOfBounds, "index %d out of range [1,%d]", i, len(runes))
	}
	return values.Str(string(runes[i-1])), nil
}
