package ops

import (
	"math"
	"strings"

	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// VariadicOp names one of the variadic operations reachable from
// bytecode's VariadicOp instruction (spec §4.3).
type VariadicOp int

const (
	VAdd VariadicOp = iota
	VMul
	VMin
	VMax
	VStrCat
	VMakeList
	VListCat
)

// Variadic applies op across args. For VAdd/VMul/VMin/VMax the
// identity elements are 0/1/+Inf/-Inf respectively, so a zero-length
// args is well-defined. VStrCat coerces every arg to its string form
// and concatenates. VMakeList builds a List of args. VListCat expects
// every arg to be a List and concatenates their contents.
func Variadic(w *gcheap.Witness, op VariadicOp, args []values.Value) (values.Value, error) {
	switch op {
	case VAdd:
		return foldNumeric(args, 0, func(a, b float64) float64 { return a + b })
	case VMul:
		return foldNumeric(args, 1, func(a, b float64) float64 { return a * b })
	case VMin:
		return foldNumeric(args, math.Inf(1), math.Min)
	case VMax:
		return foldNumeric(args, math.Inf(-1), math.Max)
	case VStrCat:
		var b strings.Builder
		for _, a := range args {
			s, err := coerceString(a)
			if err != nil {
				return values.Value{}, err
			}
			b.WriteString(s)
		}
		return values.Str(b.String()), nil
	case VMakeList:
		lv, _ := values.NewList(w, args...)
		return lv, nil
	case VListCat:
		lv, out := values.NewList(w)
		for _, a := range args {
			l, ok := asList(w, a)
			if !ok {
				return values.Value{}, errs.Newf(errs.VariadicConversionError, "listcat expects a List, got %s", a.TypeTag())
			}
			for i := 0; i < l.Len(); i++ {
				out.PushBack(l.At(i))
			}
		}
		return lv, nil
	default:
		return values.Value{}, errs.Newf(errs.NotSupported, "unknown variadic op %d", op)
	}
}

func foldNumeric(args []values.Value, identity float64, combine func(a, b float64) float64) (values.Value, error) {
	acc := identity
	for _, a := range args {
		n, err := toNumber(a)
		if err != nil {
			return values.Value{}, errs.Newf(errs.VariadicConversionError, "%s is not numeric: %v", a.TypeTag(), err)
		}
		acc = combine(acc, n.Float())
	}
	n, err := values.NewNumber(acc)
	if err != nil {
		return values.Value{}, errs.New(errs.NumberError, "variadic operation produced NaN")
	}
	return values.Num(n), nil
}

// ArgsFromList pops a variadic operation's dynamic-arity form: a List
// whose elements become the operation's arguments.
func ArgsFromList(w *gcheap.Witness, v values.Value) ([]values.Value, error) {
	l, ok := asList(w, v)
	if !ok {
		return nil, errs.Newf(errs.VariadicConversionError, "expected a List of arguments, got %s", v.TypeTag())
	}
	return append([]values.Value(nil), l.Items()...), nil
}
