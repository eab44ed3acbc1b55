package ecs_test

import (
	"testing"

	"github.com/plus3/ecsrt/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	t.Run("spawn is deferred until flush", func(t *testing.T) {
		rt := newTestRuntime(t)
		cmds := rt.Commands()

		id := cmds.Spawn(Position{X: 1, Y: 2}, Velocity{DX: 0.5, DY: 0.5})
		assert.True(t, id.Valid())
		assert.False(t, rt.Exists(id))
		assert.Equal(t, 1, cmds.Len())

		require.NoError(t, cmds.Flush())
		assert.True(t, rt.Exists(id))
		assert.Equal(t, 0, cmds.Len())

		pos, ok := ecs.Get[Position](rt, id)
		require.True(t, ok)
		assert.Equal(t, float32(2), pos.Y)
	})

	t.Run("reserved ids are usable by later commands", func(t *testing.T) {
		rt := newTestRuntime(t)
		cmds := rt.Commands()

		parent := cmds.Spawn(Name{Value: "parent"})
		child := cmds.SpawnChild(parent, Name{Value: "child"})
		cmds.AddComponent(child, Health{Current: 1, Max: 1})
		require.NoError(t, cmds.Flush())

		assert.Equal(t, parent, rt.GetParent(child))
		assert.True(t, rt.HasComponent(child, "Health"))
	})

	t.Run("fifo order", func(t *testing.T) {
		rt := newTestRuntime(t)
		id, _ := rt.Spawn(Position{})
		cmds := rt.Commands()

		cmds.AddComponent(id, Velocity{DX: 1})
		cmds.RemoveComponent(id, "Velocity")
		cmds.AddComponent(id, Health{Current: 3})
		cmds.AddNamed(id, "Health", Health{Current: 4})
		require.NoError(t, cmds.Flush())

		assert.False(t, rt.HasComponent(id, "Velocity"))
		hp, _ := ecs.Get[Health](rt, id)
		assert.Equal(t, 4, hp.Current)
	})

	t.Run("commands for removed entities are skipped", func(t *testing.T) {
		rt := newTestRuntime(t)
		id, _ := rt.Spawn(Position{})
		other, _ := rt.Spawn(Position{})
		cmds := rt.Commands()

		cmds.RemoveEntity(id)
		cmds.AddComponent(id, Velocity{})
		cmds.SetParent(id, other)
		cmds.AddComponent(other, Velocity{})
		require.NoError(t, cmds.Flush())

		assert.False(t, rt.Exists(id))
		assert.True(t, rt.HasComponent(other, "Velocity"))
	})

	t.Run("other failures are reported after the queue drains", func(t *testing.T) {
		rt := newTestRuntime(t)
		a, _ := rt.Spawn(Position{})
		b, _ := rt.Spawn(Position{})
		cmds := rt.Commands()

		cmds.SetParent(a, a)
		cmds.AddNamed(b, "Position", Velocity{})
		cmds.AddComponent(b, Velocity{DX: 7})

		err := cmds.Flush()
		assert.ErrorIs(t, err, ecs.ErrSelfParent)
		assert.ErrorIs(t, err, ecs.ErrComponentType)
		vel, ok := ecs.Get[Velocity](rt, b)
		require.True(t, ok)
		assert.Equal(t, float32(7), vel.DX)
	})

	t.Run("commands queued during flush run in the same flush", func(t *testing.T) {
		rt := newTestRuntime(t)
		cmds := rt.Commands()

		var spawned ecs.EntityId
		cmds.Defer(func() {
			spawned = cmds.Spawn(Score(1))
		})
		require.NoError(t, cmds.Flush())
		assert.True(t, rt.Exists(spawned))
		assert.Equal(t, 0, cmds.Len())
	})

	t.Run("remove entity cascade option", func(t *testing.T) {
		rt := newTestRuntime(t)
		parent, _ := rt.Spawn(Name{})
		child, _ := rt.SpawnChild(parent, Name{})
		other, _ := rt.Spawn(Name{})
		otherChild, _ := rt.SpawnChild(other, Name{})
		cmds := rt.Commands()

		cmds.RemoveEntity(parent)
		cmds.RemoveEntity(other, ecs.RemoveOptions{Cascade: false})
		require.NoError(t, cmds.Flush())

		assert.False(t, rt.Exists(child))
		assert.True(t, rt.Exists(otherChild))
		assert.Equal(t, ecs.NoEntity, rt.GetParent(otherChild))
	})

	t.Run("mark changed and remove parent", func(t *testing.T) {
		rt := newTestRuntime(t)
		parent, _ := rt.Spawn(Name{})
		child, _ := rt.SpawnChild(parent, Position{})
		before := rt.Storage().ChangeSeq(child, "Position")
		cmds := rt.Commands()

		cmds.MarkChanged(child, "Position")
		cmds.RemoveParent(child)
		require.NoError(t, cmds.Flush())

		assert.Greater(t, rt.Storage().ChangeSeq(child, "Position"), before)
		assert.Equal(t, ecs.NoEntity, rt.GetParent(child))
	})
}

func TestCommandsAppliedBetweenPhases(t *testing.T) {
	rt := newTestRuntime(t)
	var seenInUpdate int

	require.NoError(t, rt.AddSystem("spawner").InPhase("preUpdate").
		SetProcess(func(frame *ecs.UpdateFrame) error {
			frame.Commands.Spawn(Position{}, Velocity{})
			frame.Commands.Spawn(Position{})
			return nil
		}).Build())
	require.NoError(t, rt.AddSystem("counter").InPhase("update").
		AddQuery("all", ecs.Filter{With: []string{"Position"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			seenInUpdate = frame.Query("all").Len()
			return nil
		}).Build())

	require.NoError(t, rt.Update(0))
	assert.Equal(t, 2, seenInUpdate)
}

func TestCommandsNotVisibleWithinSamePhase(t *testing.T) {
	rt := newTestRuntime(t)
	var counts []int

	require.NoError(t, rt.AddSystem("spawner").SetPriority(10).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			frame.Commands.Spawn(Position{})
			return nil
		}).Build())
	require.NoError(t, rt.AddSystem("counter").SetPriority(0).
		AddQuery("all", ecs.Filter{With: []string{"Position"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			counts = append(counts, frame.Query("all").Len())
			return nil
		}).Build())

	require.NoError(t, rt.Update(0))
	require.NoError(t, rt.Update(0))
	assert.Equal(t, []int{0, 1}, counts)
}
