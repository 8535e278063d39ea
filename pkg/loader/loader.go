// Package loader materializes a compiled bytecode.Bytecode artifact
// into a running world: globals declared in a GlobalContext, entities
// allocated on a gcheap.Arena, and every RefValue (string/image/list)
// given a heap shell before list contents are populated, so a self-
// referencing literal list resolves (spec §6 "Bytecode artifact").
package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/kristofer/scriptvm/pkg/bytecode"
	"github.com/kristofer/scriptvm/pkg/entity"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/process"
	"github.com/kristofer/scriptvm/pkg/symtab"
	"github.com/kristofer/scriptvm/pkg/values"
)

// argbToHSV converts an 0xAARRGGBB starting color (spec §6
// EntityInit.ColorARGB) into the Hue/[0,360), Sat/[0,100], Val/[0,100]
// triple entity.Pen stores its color as, discarding alpha (Pen's own
// Alpha field tracks pen transparency, a separate knob from a starting
// tint).
func argbToHSV(argb uint32) (h, s, v float64) {
	r := float64((argb>>16)&0xff) / 255
	g := float64((argb>>8)&0xff) / 255
	b := float64(argb&0xff) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max * 100
	delta := max - min
	if max == 0 {
		return 0, 0, v
	}
	s = delta / max * 100
	if delta == 0 {
		return 0, s, v
	}
	switch max {
	case r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// ReadArtifact decodes a bytecode.Bytecode from JSON. The underlying
// compiler that produces these files is outside this module's scope
// (spec §6 calls it simply "the external compiler"); JSON was chosen
// over a bespoke binary encoding (the teacher's own .sg gob-like
// format) because InitInfo's RefValues already carry arbitrarily
// nested, self-referential structure that a hand-authored test
// artifact needs to be easy to write and diff by hand, and
// encoding/json's native support for byte-slice base64 (ImageBytes)
// and nested structs covers the format with no custom framing.
func ReadArtifact(r io.Reader) (*bytecode.Bytecode, error) {
	var bc bytecode.Bytecode
	if err := json.NewDecoder(r).Decode(&bc); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &bc, nil
}

// LoadArtifactFile opens path and decodes it as a bytecode.Bytecode.
func LoadArtifactFile(path string) (*bytecode.Bytecode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadArtifact(f)
}

// World holds the materialized result of running InitInfo against a
// fresh Arena: the global scope (ready to hand to process.New as every
// Process's shared GlobalContext) and each named entity's handle.
type World struct {
	Global   *process.GlobalContext
	Entities map[string]gcheap.Handle
}

// Materialize runs the two-pass InitInfo fixup described in spec §6
// inside a single Arena.Mutate call: pass one allocates a heap shell
// for every RefValue (so an InitRef pointing at a not-yet-populated
// list still resolves to a valid Handle), pass two fills in each
// RefList's items now that every shell exists, then globals and entity
// fields are declared against the now-resolvable InitValues.
func Materialize(arena *gcheap.Arena, data bytecode.InitInfo) (*World, error) {
	global := process.NewGlobalContext()
	world := &World{Global: global, Entities: map[string]gcheap.Handle{}}

	var resolveErr error
	arena.Mutate(func(w *gcheap.Witness) {
		refs := make([]values.Value, len(data.RefValues))

		// Pass one: allocate a shell for every ref value so an
		// InitRef can resolve regardless of declaration order.
		for i, rv := range data.RefValues {
			switch rv.Kind {
			case bytecode.RefString:
				refs[i] = values.Str(rv.Str)
			case bytecode.RefImage:
				refs[i] = values.Img(&values.MediaData{Format: rv.ImageFmt, Bytes: rv.ImageBytes})
			case bytecode.RefList:
				v, _ := values.NewList(w, make([]values.Value, len(rv.ListItems))...)
				refs[i] = v
			default:
				resolveErr = fmt.Errorf("ref value %d: unknown kind %d", i, rv.Kind)
				return
			}
			if h, ok := refs[i].Handle(); ok {
				arena.Root(h)
			}
		}

		resolve := func(iv bytecode.InitValue) (values.Value, error) {
			switch iv.Kind {
			case bytecode.InitBool:
				return values.Bool(iv.Bool), nil
			case bytecode.InitNumber:
				n, err := values.NewNumber(iv.Number)
				if err != nil {
					return values.Value{}, err
				}
				return values.Num(n), nil
			case bytecode.InitRef:
				if iv.Ref < 0 || iv.Ref >= len(refs) {
					return values.Value{}, fmt.Errorf("ref index %d out of range", iv.Ref)
				}
				return refs[iv.Ref], nil
			default:
				return values.Value{}, fmt.Errorf("unknown InitValue kind %d", iv.Kind)
			}
		}

		// Pass two: populate list contents now every shell exists,
		// so a list that references itself (or a sibling list built
		// in the same RefValues batch) sees a live Handle.
		for i, rv := range data.RefValues {
			if rv.Kind != bytecode.RefList {
				continue
			}
			h, _ := refs[i].Handle()
			list, ok := w.Get(h).(*values.List)
			if !ok {
				resolveErr = fmt.Errorf("ref value %d: expected *values.List shell", i)
				return
			}
			for j, item := range rv.ListItems {
				v, err := resolve(item)
				if err != nil {
					resolveErr = fmt.Errorf("ref value %d item %d: %w", i, j, err)
					return
				}
				list.Set(j, v)
			}
		}

		for _, g := range data.Globals {
			v, err := resolve(g.Value)
			if err != nil {
				resolveErr = fmt.Errorf("global %q: %w", g.Name, err)
				return
			}
			global.Vars.DeclareLocal(g.Name, v)
		}

		for _, ei := range data.Entities {
			fields := symtab.New(global.Vars)
			for name, iv := range ei.Fields {
				v, err := resolve(iv)
				if err != nil {
					resolveErr = fmt.Errorf("entity %q field %q: %w", ei.Name, name, err)
					return
				}
				fields.DeclareLocal(name, v)
			}

			props := entity.DefaultProperties()
			props.X, props.Y = ei.X, ei.Y
			props.Heading = ei.Heading
			props.Visible = ei.Visible
			if ei.Size > 0 {
				props.Size = ei.Size
			}
			props.Pen.Hue, props.Pen.Sat, props.Pen.Val = argbToHSV(ei.ColorARGB)

			entVal, e := entity.New(w, ei.Name, props, fields)
			for _, refIdx := range ei.CostumeRefs {
				if refIdx < 0 || refIdx >= len(data.RefValues) {
					resolveErr = fmt.Errorf("entity %q: costume ref %d out of range", ei.Name, refIdx)
					return
				}
				img, ok := refs[refIdx].AsMedia()
				if !ok {
					resolveErr = fmt.Errorf("entity %q: costume ref %d is not media", ei.Name, refIdx)
					return
				}
				e.CostumeList = append(e.CostumeList, entity.Costume{Image: img})
			}
			if ei.ActiveCostume >= 0 && ei.ActiveCostume < len(e.CostumeList) {
				e.ActiveIndex = ei.ActiveCostume
			}
			entHandle, _ := entVal.Handle()
			arena.Root(entHandle)
			world.Entities[ei.Name] = entHandle
		}
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return world, nil
}
