package ops

import (
	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

// Flatten walks v depth-first, in order, collecting every non-list
// leaf once. Cycles raise CyclicValue.
func Flatten(w *gcheap.Witness, v values.Value) ([]values.Value, error) {
	var out []values.Value
	onPath := map[gcheap.Handle]bool{}
	if err := flatten(w, v, &out, onPath); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(w *gcheap.Witness, v values.Value, out *[]values.Value, onPath map[gcheap.Handle]bool) error {
	l, isList := asList(w, v)
	if !isList {
		*out = append(*out, v)
		return nil
	}
	h, _ := v.Handle()
	if onPath[h] {
		return errs.New(errs.CyclicValue, "flatten: cyclic list")
	}
	onPath[h] = true
	defer delete(onPath, h)
	for i := 0; i < l.Len(); i++ {
		if err := flatten(w, l.At(i), out, onPath); err != nil {
			return err
		}
	}
	return nil
}

// Dimensions returns the depth-wise maxima of nested list lengths: a
// sequence whose length is the rank of v. Cycles raise CyclicValue.
func Dimensions(w *gcheap.Witness, v values.Value) ([]int, error) {
	onPath := map[gcheap.Handle]bool{}
	return dimensions(w, v, onPath)
}

func dimensions(w *gcheap.Witness, v values.Value, onPath map[gcheap.Handle]bool) ([]int, error) {
	l, isList := asList(w, v)
	if !isList {
		return nil, nil
	}
	h, _ := v.Handle()
	if onPath[h] {
		return nil, errs.New(errs.CyclicValue, "dimensions: cyclic list")
	}
	onPath[h] = true
	defer delete(onPath, h)

	dims := []int{l.Len()}
	for i := 0; i < l.Len(); i++ {
		sub, err := dimensions(w, l.At(i), onPath)
		if err != nil {
			return nil, err
		}
		for d := 0; d < len(sub); d++ {
			if d+1 >= len(dims) {
				dims = append(dims, sub[d])
			} else if sub[d] > dims[d+1] {
				dims[d+1] = sub[d]
			}
		}
	}
	return dims, nil
}

// Reshape takes a source value and a list of non-negative integer
// dimensions, and builds a new nested list of that shape, cycling
// through src's flattened contents. Any zero dimension yields an empty
// list. If the flattened source is empty, a single empty string is
// injected so cycling has something to repeat (spec §4.2).
func Reshape(w *gcheap.Witness, src values.Value, dims []int) (values.Value, error) {
	for _, d := range dims {
		if d < 0 {
			return values.Value{}, errs.Newf(errs.InvalidSize, "negative reshape dimension %d", d)
		}
		if d == 0 {
			lv, _ := values.NewList(w)
			return lv, nil
		}
	}
	flat, err := Flatten(w, src)
	if err != nil {
		return values.Value{}, err
	}
	if len(flat) == 0 {
		flat = []values.Value{values.Str("")}
	}
	idx := 0
	var build func(level int) values.Value
	build = func(level int) values.Value {
		if level == len(dims) {
			v := flat[idx%len(flat)]
			idx++
			return v
		}
		lv, l := values.NewList(w)
		for i := 0; i < dims[level]; i++ {
			l.PushBack(build(level + 1))
		}
		return lv
	}
	return build(0), nil
}

// CartesianProduct returns every ordered tuple choosing one element
// from each input list, in lexicographic order of the input list
// order. Returns an empty list if lists is empty.
func CartesianProduct(w *gcheap.Witness, lists []*values.List) (values.Value, error) {
	if len(lists) == 0 {
		lv, _ := values.NewList(w)
		return lv, nil
	}
	var tuples [][]values.Value
	tuples = append(tuples, nil)
	for _, l := range lists {
		var next [][]values.Value
		for _, prefix := range tuples {
			for i := 0; i < l.Len(); i++ {
				tuple := append(append([]values.Value(nil), prefix...), l.At(i))
				next = append(next, tuple)
			}
		}
		tuples = next
	}
	items := make([]values.Value, len(tuples))
	for i, tup := range tuples {
		tv, _ := values.NewList(w, tup...)
		items[i] = tv
	}
	lv, _ := values.NewList(w, items...)
	return lv, nil
}

// Index performs 1-based indexing into l. A real index must be
// integer-valued within [1, len]; out-of-range raises
// IndexOutOfBounds, non-integer raises IndexNotInteger.
func Index(l *values.List, n values.Number) (values.Value, error) {
	if !n.IsInteger() {
		return values.Value{}, errs.New(errs.IndexNotInteger, "list index must be an integer")
	}
	i := n.Int64()
	if i < 1 || int(i) > l.Len() {
		return values.Value{}, errs.Newf(errs.IndexOutOfBounds, "index %d out of range [1,%d]", i, l.Len())
	}
	return l.At(int(i) - 1), nil
}
