package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/scriptvm/pkg/bytecode"
	"github.com/kristofer/scriptvm/pkg/entity"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/values"
)

func TestMaterializeScalarGlobals(t *testing.T) {
	data := bytecode.InitInfo{
		ProjectName: "scalars",
		Globals: []bytecode.GlobalInit{
			{Name: "flag", Value: bytecode.InitValue{Kind: bytecode.InitBool, Bool: true}},
			{Name: "count", Value: bytecode.InitValue{Kind: bytecode.InitNumber, Number: 42}},
		},
	}

	arena := gcheap.New()
	world, err := Materialize(arena, data)
	require.NoError(t, err)

	shared, ok := world.Global.Vars.Lookup("flag")
	require.True(t, ok)
	arena.Mutate(func(w *gcheap.Witness) {
		b, ok := shared.Get(w).AsBool()
		assert.True(t, ok)
		assert.True(t, b)
	})

	shared, ok = world.Global.Vars.Lookup("count")
	require.True(t, ok)
	arena.Mutate(func(w *gcheap.Witness) {
		n, ok := shared.Get(w).AsNumber()
		assert.True(t, ok)
		assert.Equal(t, float64(42), n.Float())
	})
}

// TestMaterializeCyclicList builds a one-element list whose sole item
// points back at itself (spec §6 "letting compiled programs embed
// cyclic literal data") and checks the shell/fixup two-pass resolves
// it rather than deadlocking or erroring.
func TestMaterializeCyclicList(t *testing.T) {
	data := bytecode.InitInfo{
		RefValues: []bytecode.RefValue{
			{Kind: bytecode.RefList, ListItems: []bytecode.InitValue{
				{Kind: bytecode.InitRef, Ref: 0},
			}},
		},
		Globals: []bytecode.GlobalInit{
			{Name: "loop", Value: bytecode.InitValue{Kind: bytecode.InitRef, Ref: 0}},
		},
	}

	arena := gcheap.New()
	world, err := Materialize(arena, data)
	require.NoError(t, err)

	shared, ok := world.Global.Vars.Lookup("loop")
	require.True(t, ok)
	arena.Mutate(func(w *gcheap.Witness) {
		v := shared.Get(w)
		h, ok := v.Handle()
		require.True(t, ok)
		list, ok := w.Get(h).(*values.List)
		require.True(t, ok)
		require.Equal(t, 1, list.Len())

		itemHandle, ok := list.At(0).Handle()
		require.True(t, ok)
		assert.Equal(t, h, itemHandle, "list item must point back at its own shell")
	})
}

func TestMaterializeEntityWithFields(t *testing.T) {
	data := bytecode.InitInfo{
		Entities: []bytecode.EntityInit{
			{
				Name: "Sprite1",
				Fields: map[string]bytecode.InitValue{
					"score": {Kind: bytecode.InitNumber, Number: 7},
				},
				Visible: true,
				X:       10, Y: 20, Heading: 90,
			},
		},
	}

	arena := gcheap.New()
	world, err := Materialize(arena, data)
	require.NoError(t, err)

	h, ok := world.Entities["Sprite1"]
	require.True(t, ok)
	arena.Mutate(func(w *gcheap.Witness) {
		e, ok := w.Get(h).(*entity.Entity)
		require.True(t, ok)
		assert.Equal(t, "Sprite1", e.Name)
		assert.Equal(t, 90.0, e.Properties.Heading)

		shared, ok := e.Fields.Lookup("score")
		require.True(t, ok)
		n, ok := shared.Get(w).AsNumber()
		require.True(t, ok)
		assert.Equal(t, float64(7), n.Float())
	})
}

func TestReadArtifactRoundTrip(t *testing.T) {
	const doc = `{
		"Code": [{"Op": 0, "A": 1}],
		"Strings": ["x"],
		"Data": {"ProjectName": "demo"}
	}`
	bc, err := ReadArtifact(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "demo", bc.Data.ProjectName)
	assert.Equal(t, []string{"x"}, bc.Strings)
	require.Len(t, bc.Code, 1)
	assert.Equal(t, 1, bc.Code[0].A)
}
