package ecs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plus3/ecsrt/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type GameTime struct {
	Elapsed float64
}

func TestResourcesValues(t *testing.T) {
	res := ecs.NewResources(zaptest.NewLogger(t))

	require.NoError(t, res.Add("time", &GameTime{}))
	gt, ok := ecs.Resource[*GameTime](res, "time")
	require.True(t, ok)
	gt.Elapsed = 2

	again, _ := ecs.Resource[*GameTime](res, "time")
	assert.Equal(t, 2.0, again.Elapsed)

	_, ok = ecs.Resource[int](res, "time")
	assert.False(t, ok)
	_, ok = res.Get("missing")
	assert.False(t, ok)

	status, err := res.Status("time")
	assert.Equal(t, ecs.ResourceReady, status)
	assert.NoError(t, err)
	assert.Equal(t, "ready", status.String())
	assert.Equal(t, ecs.ResourceMissing, func() ecs.ResourceStatus { s, _ := res.Status("nope"); return s }())

	assert.True(t, res.Remove("time"))
	assert.False(t, res.Has("time"))
	assert.Empty(t, res.Names())
}

func TestResourcesFactoryLoad(t *testing.T) {
	res := ecs.NewResources(zaptest.NewLogger(t))
	calls := 0
	res.AddFactory("config", func(ctx context.Context) (any, error) {
		calls++
		return "loaded", nil
	})

	status, _ := res.Status("config")
	assert.Equal(t, ecs.ResourcePending, status)
	assert.False(t, res.Has("config"))

	require.NoError(t, res.Load(context.Background(), "config"))
	require.NoError(t, res.Load(context.Background(), "config"))
	assert.Equal(t, 1, calls)

	value, ok := ecs.Resource[string](res, "config")
	require.True(t, ok)
	assert.Equal(t, "loaded", value)

	assert.ErrorIs(t, res.Load(context.Background(), "unknown"), ecs.ErrResourceNotFound)
}

func TestResourcesFailureIsRecordedAndRetried(t *testing.T) {
	res := ecs.NewResources(zaptest.NewLogger(t))
	boom := errors.New("disk on fire")
	fail := true
	res.AddFactory("atlas", func(ctx context.Context) (any, error) {
		if fail {
			return nil, boom
		}
		return 42, nil
	})

	err := res.Load(context.Background(), "atlas")
	require.ErrorIs(t, err, boom)
	status, lastErr := res.Status("atlas")
	assert.Equal(t, ecs.ResourceFailed, status)
	assert.ErrorIs(t, lastErr, boom)

	fail = false
	require.NoError(t, res.Load(context.Background(), "atlas"))
	status, lastErr = res.Status("atlas")
	assert.Equal(t, ecs.ResourceReady, status)
	assert.NoError(t, lastErr)
}

func TestResourcesLoadAll(t *testing.T) {
	res := ecs.NewResources(zaptest.NewLogger(t))
	boom := errors.New("boom")

	require.NoError(t, res.Add("ready", 1))
	res.AddFactory("good", func(ctx context.Context) (any, error) { return 2, nil })
	res.AddFactory("bad", func(ctx context.Context) (any, error) { return nil, boom })

	err := res.LoadAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Has("good"))
	assert.False(t, res.Has("bad"))
	assert.Equal(t, []string{"ready", "good", "bad"}, res.Names())
}

func TestRuntimeInitializeToleratesResourceFailures(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Resources().AddFactory("bad", func(ctx context.Context) (any, error) {
		return nil, errors.New("nope")
	})
	rt.Resources().AddFactory("good", func(ctx context.Context) (any, error) {
		return &GameTime{}, nil
	})

	require.NoError(t, rt.Initialize(context.Background()))
	assert.True(t, rt.Resources().Has("good"))
	status, _ := rt.Resources().Status("bad")
	assert.Equal(t, ecs.ResourceFailed, status)
}

func TestRuntimeInitializeCancelled(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rt.Initialize(ctx), context.Canceled)
}
