package values

import (
	"fmt"
	"math"

	"github.com/kristofer/scriptvm/pkg/gcheap"
)

// FromJSONError is the taxonomy of reasons Value.FromJSON can fail.
type FromJSONError string

const (
	// HadNull reports that a JSON null was encountered; the language
	// has no null/nil Value variant to represent it.
	HadNull FromJSONError = "had null"
	// HadNonFiniteNumber reports a JSON number that decoded to NaN or
	// +/-Inf, which Number's constructor rejects (NaN) or which JSON
	// itself cannot represent (Inf never actually reaches here via
	// encoding/json, kept for defensive symmetry with ToJSON).
	HadNonFiniteNumber FromJSONError = "non-finite number"
)

func (e FromJSONError) Error() string { return "values: from_json: " + string(e) }

// ToJSONError is the taxonomy of reasons Value.ToJSON can fail.
type ToJSONError string

const (
	// Cyclic reports that the list graph being serialized contains a
	// cycle, which JSON cannot represent.
	Cyclic ToJSONError = "cyclic value"
	// ComplexType reports a reference type other than String or List
	// (Image, Audio, Native, Closure, Entity) with no JSON
	// representation.
	ComplexType ToJSONError = "complex type has no JSON representation"
)

func (e ToJSONError) Error() string { return "values: to_json: " + string(e) }

// FromJSON decodes a parsed JSON value (as produced by encoding/json's
// Unmarshal into interface{}) into a Value: null is rejected, bool and
// string are direct, numbers become Number, arrays become List, and
// objects become a List of 2-element [key, value] Lists preserving the
// object's key order as reported by the caller (encoding/json erases
// object key order, so callers that need it preserved must decode with
// an ordered-map decoder and pass [][2]interface{} for objects instead
// of map[string]interface{}).
func FromJSON(w *gcheap.Witness, raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, HadNull
	case bool:
		return Bool(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, HadNonFiniteNumber
		}
		return Num(MustNumber(t)), nil
	case string:
		return Str(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := FromJSON(w, e)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		lv, _ := NewList(w, items...)
		return lv, nil
	case map[string]interface{}:
		items := make([]Value, 0, len(t))
		for k, e := range t {
			v, err := FromJSON(w, e)
			if err != nil {
				return Value{}, err
			}
			pair, _ := NewList(w, Str(k), v)
			items = append(items, pair)
		}
		lv, _ := NewList(w, items...)
		return lv, nil
	case [][2]interface{}:
		items := make([]Value, len(t))
		for i, kv := range t {
			k, _ := kv[0].(string)
			v, err := FromJSON(w, kv[1])
			if err != nil {
				return Value{}, err
			}
			pair, _ := NewList(w, Str(k), v)
			items[i] = pair
		}
		lv, _ := NewList(w, items...)
		return lv, nil
	default:
		return Value{}, fmt.Errorf("values: from_json: unsupported Go type %T", raw)
	}
}

// ToJSON encodes v into a JSON-ready interface{} tree (bool, float64,
// string, []interface{}), suitable for encoding/json.Marshal. Lists are
// walked recursively with cycle detection; any reference type other
// than String or List raises ComplexType.
func ToJSON(w *gcheap.Witness, v Value) (interface{}, error) {
	return toJSON(w, v, map[gcheap.Handle]bool{})
}

func toJSON(w *gcheap.Witness, v Value, onStack map[gcheap.Handle]bool) (interface{}, error) {
	switch v.Kind() {
	case KindBool:
		b, _ := v.AsBool()
		return b, nil
	case KindNumber:
		n, _ := v.AsNumber()
		return n.Float(), nil
	case KindString:
		s, _ := v.AsString()
		return s, nil
	case KindList:
		h, _ := v.Handle()
		if onStack[h] {
			return nil, Cyclic
		}
		onStack[h] = true
		defer delete(onStack, h)
		l, ok := w.Get(h).(*List)
		if !ok {
			return nil, fmt.Errorf("values: to_json: dangling list handle")
		}
		out := make([]interface{}, l.Len())
		for i, e := range l.Items() {
			jv, err := toJSON(w, e, onStack)
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	default:
		return nil, ComplexType
	}
}
