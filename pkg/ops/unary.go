package ops

import (
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// UnOp names one of the unary primitives (spec §4.2). Trigonometric
// ops take/return degrees, matching the rest of the elementwise set
// (Atan2) and entity heading conventions (spec §4.6).
type UnOp int

const (
	Not UnOp = iota
	Abs
	Neg
	Sqrt
	Round
	Floor
	Ceil
	Sin
	Cos
	Tan
	Asin
	Acos
	Atan
	StrLen
	LastChar
	RandomChar
	SplitLetter
	SplitWord
	SplitTab
	SplitCR
	SplitLF
	SplitCSV
	SplitJSON
	UnicodeOf
	CharOf
)

// ScalarUnOp computes a unary primitive over one non-list leaf.
type ScalarUnOp func(w *gcheap.Witness, a values.Value) (values.Value, error)

// LiftUnary applies op to a, broadcasting over lists elementwise (no
// matrix mode — the unary set has no two-operand shape to test for
// matrix-ness, so it always recurses on bare lists).
func LiftUnary(w *gcheap.Witness, op UnOp, a values.Value) (values.Value, error) {
	return liftUnary(w, op, a, make(map[interface{}]values.Value))
}

func liftUnary(w *gcheap.Witness, op UnOp, a values.Value, memo map[interface{}]values.Value) (values.Value, error) {
	if l, ok := asList(w, a); ok {
		key := identityOrValue(a)
		if v, ok := memo[key]; ok {
			return v, nil
		}
		resV, resList := values.NewList(w)
		memo[key] = resV
		for i := 0; i < l.Len(); i++ {
			rv, err := liftUnary(w, op, l.At(i), memo)
			if err != nil {
				return values.Value{}, err
			}
			resList.PushBack(rv)
		}
		return resV, nil
	}
	return scalarUnary(w, op, a)
}

func scalarUnary(w *gcheap.Witness, op UnOp, a values.Value) (values.Value, error) {
	switch op {
	case Not:
		b, ok := a.AsBool()
		if !ok {
			return values.Value{}, errs.Newf(errs.ConversionError, "cannot negate %s", a.TypeTag())
		}
		return values.Bool(!b), nil
	case Abs, Neg, Sqrt, Round, Floor, Ceil, Sin, Cos, Tan, Asin, Acos, Atan:
		n, err := toNumber(a)
		if err != nil {
			return values.Value{}, err
		}
		return numericUnary(op, n)
	case StrLen:
		s, err := coerceString(a)
		if err != nil {
			return values.Value{}, err
		}
		return values.Num(values.Int(int64(utf8.RuneCountInString(s)))), nil
	case LastChar:
		s, err := coerceString(a)
		if err != nil {
			return values.Value{}, err
		}
		runes := []rune(s)
		if len(runes) == 0 {
			return values.Value{}, errs.New(errs.EmptyList, "last character of empty string")
		}
		return values.Str(string(runes[len(runes)-1])), nil
	case RandomChar:
		s, err := coerceString(a)
		if err != nil {
			return values.Value{}, err
		}
		runes := []rune(s)
		if len(runes) == 0 {
			return values.Value{}, errs.New(errs.EmptyList, "random character of empty string")
		}
		return values.Str(string(runes[rand.Intn(len(runes))])), nil
	case SplitLetter, SplitWord, SplitTab, SplitCR, SplitLF, SplitCSV, SplitJSON:
		return splitString(w, op, a)
	case UnicodeOf:
		s, err := coerceString(a)
		if err != nil {
			return values.Value{}, err
		}
		runes := []rune(s)
		if len(runes) == 0 {
			return values.Value{}, errs.New(errs.EmptyList, "unicode of empty string")
		}
		return values.Num(values.Int(int64(runes[0]))), nil
	case CharOf:
		n, err := toNumber(a)
		if err != nil {
			return values.Value{}, err
		}
		if !n.IsInteger() || n.Int64() < 0 || n.Int64() > 0x10FFFF {
			return values.Value{}, errs.Newf(errs.InvalidUnicode, "%v is not a valid code point", n.Float())
		}
		return values.Str(string(rune(n.Int64()))), nil
	default:
		return values.Value{}, errs.Newf(errs.NotSupported, "unknown unary op %d", op)
	}
}

func numericUnary(op UnOp, n values.Number) (values.Value, error) {
	f := n.Float()
	var r float64
	switch op {
	case Abs:
		r = math.Abs(f)
	case Neg:
		r = -f
	case Sqrt:
		r = math.Sqrt(f)
	case Round:
		// half-away-from-zero
		if f >= 0 {
			r = math.Floor(f + 0.5)
		} else {
			r = math.Ceil(f - 0.5)
		}
	case Floor:
		r = math.Floor(f)
	case Ceil:
		r = math.Ceil(f)
	case Sin:
		r = math.Sin(f * math.Pi / 180)
	case Cos:
		r = math.Cos(f * math.Pi / 180)
	case Tan:
		r = math.Tan(f * math.Pi / 180)
	case Asin:
		r = math.Asin(f) * 180 / math.Pi
	case Acos:
		r = math.Acos(f) * 180 / math.Pi
	case Atan:
		r = math.Atan(f) * 180 / math.Pi
	}
	nv, err := values.NewNumber(r)
	if err != nil {
		return values.Value{}, errs.New(errs.NumberError, "operation produced NaN")
	}
	return values.Num(nv), nil
}

func splitString(w *gcheap.Witness, op UnOp, a values.Value) (values.Value, error) {
	s, err := coerceString(a)
	if err != nil {
		return values.Value{}, err
	}

	switch op {
	case SplitCSV:
		return splitCSV(w, s)
	case SplitJSON:
		return splitJSON(w, s)
	}

	var parts []string
	switch op {
	case SplitLetter:
		for _, r := range s {
			parts = append(parts, string(r))
		}
	case SplitWord:
		parts = strings.Fields(s)
	case SplitTab:
		parts = strings.Split(s, "\t")
	case SplitCR:
		parts = strings.Split(s, "\r")
	case SplitLF:
		parts = strings.Split(s, "\n")
	}
	items := make([]values.Value, len(parts))
	for i, p := range parts {
		items[i] = values.Str(p)
	}
	lv, _ := values.NewList(w, items...)
	return lv, nil
}

// splitLines splits s the way Rust's str::lines() does: on "\n",
// stripping a trailing "\r" from each line, with no trailing empty
// line produced by a final newline. Unlike str::lines(), an empty s
// yields one empty line rather than none.
func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// splitCSV splits s into comma-separated fields per line, returning a
// flat list for single-line input and a list of per-line lists for
// multi-line input.
func splitCSV(w *gcheap.Witness, s string) (values.Value, error) {
	lines := splitLines(s)
	rowValues := make([]values.Value, len(lines))
	for i, line := range lines {
		fields := strings.Split(line, ",")
		items := make([]values.Value, len(fields))
		for j, f := range fields {
			items[j] = values.Str(f)
		}
		rv, _ := values.NewList(w, items...)
		rowValues[i] = rv
	}
	if len(rowValues) == 1 {
		return rowValues[0], nil
	}
	outer, _ := values.NewList(w, rowValues...)
	return outer, nil
}

// splitJSON parses s as JSON and converts it to a Value via
// values.FromJSON, reporting NotJson on any parse or conversion
// failure (a JSON null, for instance, has no Value representation).
func splitJSON(w *gcheap.Witness, s string) (values.Value, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return values.Value{}, errs.Newf(errs.NotJson, "invalid json: %v", err)
	}
	v, err := values.FromJSON(w, raw)
	if err != nil {
		return values.Value{}, errs.Newf(errs.NotJson, "invalid json: %v", err)
	}
	return v, nil
}
