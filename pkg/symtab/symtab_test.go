package symtab

import (
	"testing"

	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

func TestAliasSharesMutation(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		t1 := New(nil)
		t1.DeclareLocal("x", values.Num(values.Int(1)))

		captured, ok := t1.Alias(w, "x")
		if !ok {
			t.Fatalf("expected x to be aliasable")
		}

		// Mutate through the original table's binding.
		t1.SetOrDefine(w, "x", values.Num(values.Int(42)))

		got := captured.Get(w)
		n, _ := got.AsNumber()
		if n.Float() != 42 {
			t.Fatalf("alias did not observe mutation, got %v", n.Float())
		}
	})
}

func TestSetOrDefineWritesThroughHierarchy(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		globals := New(nil)
		globals.DeclareLocal("g", values.Num(values.Int(1)))
		locals := New(globals)

		locals.SetOrDefine(w, "g", values.Num(values.Int(99)))

		s, ok := globals.Lookup("g")
		if !ok {
			t.Fatalf("expected g in globals")
		}
		n, _ := s.Get(w).AsNumber()
		if n.Float() != 99 {
			t.Fatalf("expected write-through to globals, got %v", n.Float())
		}
	})
}

func TestSetOrDefineDefinesLocallyWhenUnbound(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		globals := New(nil)
		locals := New(globals)
		locals.SetOrDefine(w, "y", values.Bool(true))

		if _, ok := globals.Lookup("y"); ok {
			t.Fatalf("y should not have been defined globally")
		}
		s, ok := locals.Lookup("y")
		if !ok {
			t.Fatalf("expected y defined locally")
		}
		b, _ := s.Get(w).AsBool()
		if !b {
			t.Fatalf("expected true")
		}
	})
}

func TestCloneIsShallowAndDropsAliasing(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		t1 := New(nil)
		t1.DeclareLocal("x", values.Num(values.Int(5)))
		alias, _ := t1.Alias(w, "x")

		clone := t1.Clone(w)
		clone.SetOrDefine(w, "x", values.Num(values.Int(7)))

		n, _ := alias.Get(w).AsNumber()
		if n.Float() != 5 {
			t.Fatalf("clone mutation leaked into original's alias: got %v", n.Float())
		}
	})
}

func TestRedefineOrDefineOrphansOldAlias(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		t1 := New(nil)
		t1.DeclareLocal("x", values.Num(values.Int(1)))
		alias, _ := t1.Alias(w, "x")

		t1.RedefineOrDefine("x", NewUnique(values.Num(values.Int(2))))
		t1.SetOrDefine(w, "x", values.Num(values.Int(3)))

		n, _ := alias.Get(w).AsNumber()
		if n.Float() != 1 {
			t.Fatalf("old alias should still see the original value, got %v", n.Float())
		}
	})
}
