package entity

import (
	"math"
	"testing"

	"github.com/kristofer/scriptvm/pkg/gcheap"
)

func TestSetCostumeWrapsAndToleratesEmpty(t *testing.T) {
	e := &Entity{}
	e.SetCostume(5) // no costumes: must not panic
	if e.ActiveIndex != 0 {
		t.Fatalf("expected no-op on empty costume list")
	}
	e.AddCostume(Costume{Name: "a"})
	e.AddCostume(Costume{Name: "b"})
	e.AddCostume(Costume{Name: "c"})
	e.SetCostume(4) // wraps to 1
	if e.ActiveIndex != 1 {
		t.Fatalf("expected wrap to index 1, got %d", e.ActiveIndex)
	}
	e.SetCostume(-1) // wraps to 2
	if e.ActiveIndex != 2 {
		t.Fatalf("expected wrap to index 2, got %d", e.ActiveIndex)
	}
}

func TestPointTowardsXYCompassConvention(t *testing.T) {
	p := DefaultProperties()
	p.GotoXY(0, 0)
	p.PointTowardsXY(0, 10) // straight up (north) -> heading 0
	if math.Abs(p.Heading) > 1e-9 {
		t.Fatalf("expected heading 0, got %v", p.Heading)
	}
	p.PointTowardsXY(10, 0) // due east -> heading 90
	if math.Abs(p.Heading-90) > 1e-9 {
		t.Fatalf("expected heading 90, got %v", p.Heading)
	}
}

func TestForwardUsesHeadingConvention(t *testing.T) {
	p := DefaultProperties()
	p.GotoXY(0, 0)
	p.SetHeading(90) // facing east
	p.Forward(10)
	if math.Abs(p.X-10) > 1e-9 || math.Abs(p.Y) > 1e-9 {
		t.Fatalf("expected (10,0), got (%v,%v)", p.X, p.Y)
	}
}

func TestHeadingWrapsTo360(t *testing.T) {
	p := DefaultProperties()
	p.SetHeading(370)
	if p.Heading != 10 {
		t.Fatalf("expected wrap to 10, got %v", p.Heading)
	}
	p.SetHeading(-10)
	if p.Heading != 350 {
		t.Fatalf("expected wrap to 350, got %v", p.Heading)
	}
}

func TestSizeAndPenSizeClampAtZero(t *testing.T) {
	p := DefaultProperties()
	p.SetSize(-50)
	if p.Size != 0 {
		t.Fatalf("expected size clamped to 0, got %v", p.Size)
	}
	p.SetPenSize(-1)
	if p.Pen.Size != 0 {
		t.Fatalf("expected pen size clamped to 0, got %v", p.Pen.Size)
	}
}

func TestEffectsClampAndClear(t *testing.T) {
	p := DefaultProperties()
	p.SetEffect("ghost", 150)
	if p.Effects.ColorT != 100 {
		t.Fatalf("expected ghost clamped to 100, got %v", p.Effects.ColorT)
	}
	p.SetEffect("whirl", 720) // unbounded
	if p.Effects.Whirl != 720 {
		t.Fatalf("expected whirl to stay unbounded, got %v", p.Effects.Whirl)
	}
	p.ClearEffects()
	if p.Effects != (Effects{}) {
		t.Fatalf("expected all effects reset, got %+v", p.Effects)
	}
}

func TestPenColorARGBRoundTrip(t *testing.T) {
	p := DefaultProperties()
	p.SetPenColorARGB(0xFF3366CC)
	got := p.PenColorARGB()
	// Allow small rounding slack from the HSV<->RGB conversion.
	diff := func(a, b uint32, shift uint) int {
		return int(int32((a>>shift)&0xFF) - int32((b>>shift)&0xFF))
	}
	for _, shift := range []uint{24, 16, 8, 0} {
		if d := diff(got, 0xFF3366CC, shift); d < -2 || d > 2 {
			t.Fatalf("channel at shift %d drifted too far: got %08x want %08x", shift, got, uint32(0xFF3366CC))
		}
	}
}

func TestCloneSharesNameAndRootsParent(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		ev, e := New(w, "Sprite1", DefaultProperties(), nil)
		e.AddCostume(Costume{Name: "costume1"})
		eh, _ := ev.Handle()

		clone := e.Clone(w, eh)
		if clone.Name != "Sprite1" {
			t.Fatalf("expected clone to share name")
		}
		if clone.ParentRoot != eh {
			t.Fatalf("expected clone's ParentRoot to be the original entity handle")
		}
		if len(clone.CostumeList) != 1 {
			t.Fatalf("expected cloned costume list")
		}

		clone2 := clone.Clone(w, 0)
		if clone2.ParentRoot != eh {
			t.Fatalf("expected clone-of-clone to still root the original, got %v", clone2.ParentRoot)
		}
	})
}

func TestEntityTraceVisitsFieldsAndParent(t *testing.T) {
	arena := gcheap.New()
	arena.Mutate(func(w *gcheap.Witness) {
		_, e := New(w, "Stage", DefaultProperties(), nil)
		e.ParentRoot = gcheap.Handle(7)
		var visited []gcheap.Handle
		e.Trace(func(h gcheap.Handle) { visited = append(visited, h) })
		found := false
		for _, h := range visited {
			if h == gcheap.Handle(7) {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected Trace to visit ParentRoot")
		}
	})
}
