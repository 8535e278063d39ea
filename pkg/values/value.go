// Package values implements the runtime value model: a tagged union
// with primitive, shared-immutable, and collectable-reference variants,
// plus the Number type and the JSON bridge. Collectable variants (List,
// Closure; Entity lives in package entity) are allocated through a
// gcheap.Witness and referenced from a Value by gcheap.Handle — a Value
// itself never holds a direct pointer into the collectable graph, so
// copying a Value is always cheap and never bypasses the arena.
package values

import "github.com/kristofer/scriptvm/pkg/gcheap"

// Kind tags which variant a Value holds.
type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindString
	KindImage
	KindAudio
	KindNative
	KindList
	KindClosure
	KindEntity
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindImage:
		return "Image"
	case KindAudio:
		return "Audio"
	case KindNative:
		return "Native"
	case KindList:
		return "List"
	case KindClosure:
		return "Closure"
	case KindEntity:
		return "Entity"
	default:
		return "Unknown"
	}
}

// MediaData is the opaque binary payload behind Image and Audio
// values: a shared-immutable buffer with a host-defined format tag
// (e.g. "png", "wav"). Two Values built from the same *MediaData are
// reference-equal and content-equal; two Values built from separately
// allocated MediaData with identical bytes are content-equal (by
// identity, since media has no defined structural comparison) only if
// they share the pointer.
type MediaData struct {
	Format string
	Bytes  []byte
}

// Native is a host-defined opaque handle carrying its own type tag.
// The engine never interprets Data; it exists so a host can round-trip
// device handles, file descriptors, or similar through the value stack.
type Native struct {
	TypeTag string
	Data    interface{}
}

// Tracer is implemented by anything a Closure or Entity captures that
// may itself reach into the collectable graph (a SymbolTable with
// Aliased cells, chiefly). It lets values.Closure and entity.Entity
// participate in gcheap tracing without this package importing symtab.
type Tracer interface {
	Trace(visit func(gcheap.Handle))
}

// Value is the tagged union described by spec §3. Value is a small
// struct intended to be copied by value; it never needs to be collected
// itself, only what it may point to (handle-backed List/Closure/Entity
// variants) does.
type Value struct {
	kind   Kind
	b      bool
	num    Number
	str    *string
	media  *MediaData
	native *Native
	handle gcheap.Handle
}

// Bool constructs a Bool Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num constructs a Number Value.
func Num(n Number) Value { return Value{kind: KindNumber, num: n} }

// Str constructs a String Value with its own fresh identity. Copying
// the returned Value (e.g. storing it in another variable or list slot)
// shares that identity, since the payload is a pointer.
func Str(s string) Value { return Value{kind: KindString, str: &s} }

// Img constructs an Image Value over shared media data.
func Img(m *MediaData) Value { return Value{kind: KindImage, media: m} }

// Audio constructs an Audio Value over shared media data.
func Audio(m *MediaData) Value { return Value{kind: KindAudio, media: m} }

// NativeV constructs a Native Value.
func NativeV(n *Native) Value { return Value{kind: KindNative, native: n} }

// ListV wraps a gcheap.Handle naming a *List as a List Value.
func ListV(h gcheap.Handle) Value { return Value{kind: KindList, handle: h} }

// ClosureV wraps a gcheap.Handle naming a *Closure as a Closure Value.
func ClosureV(h gcheap.Handle) Value { return Value{kind: KindClosure, handle: h} }

// EntityV wraps a gcheap.Handle naming an entity.Entity as an Entity
// Value. Defined here (rather than requiring callers to reach into
// package entity) so ops and process can build Entity values without
// importing the entity package just for this.
func EntityV(h gcheap.Handle) Value { return Value{kind: KindEntity, handle: h} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the bool payload and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the Number payload and whether v is a Number.
func (v Value) AsNumber() (Number, bool) { return v.num, v.kind == KindNumber }

// AsString returns the string payload and whether v is a String.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return *v.str, true
}

// AsMedia returns the media payload and whether v is an Image or Audio.
func (v Value) AsMedia() (*MediaData, bool) {
	if v.kind != KindImage && v.kind != KindAudio {
		return nil, false
	}
	return v.media, true
}

// AsNative returns the native payload and whether v is a Native.
func (v Value) AsNative() (*Native, bool) {
	if v.kind != KindNative {
		return nil, false
	}
	return v.native, true
}

// Handle returns the collectable handle and whether v is a
// List, Closure, or Entity.
func (v Value) Handle() (gcheap.Handle, bool) {
	switch v.kind {
	case KindList, KindClosure, KindEntity:
		return v.handle, true
	default:
		return 0, false
	}
}

// Identity returns a comparable key unique to v's referent, for
// reference types (String, Image, Audio, Native, List, Closure,
// Entity). It returns (nil, false) for Bool and Number, whose identity
// is their stored slot rather than a shared referent — check_ref_eq
// handles those by bitwise value instead (spec §4.2).
func (v Value) Identity() (interface{}, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindImage, KindAudio:
		return v.media, true
	case KindNative:
		return v.native, true
	case KindList, KindClosure, KindEntity:
		return identityKey{kind: v.kind, handle: v.handle}, true
	default:
		return nil, false
	}
}

type identityKey struct {
	kind   Kind
	handle gcheap.Handle
}

// TypeTag returns the name used to describe v's variant in error
// messages and the debugger, e.g. for "wrong type" diagnostics.
func (v Value) TypeTag() string {
	if v.kind == KindNative && v.native != nil && v.native.TypeTag != "" {
		return v.native.TypeTag
	}
	return v.kind.String()
}
