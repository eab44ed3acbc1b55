package ecs_test

import (
	"context"
	"fmt"

	"github.com/plus3/ecsrt/ecs"
)

type Clock struct {
	Frames  int
	Elapsed float64
}

// ExampleResources demonstrates runtime-wide values that are not attached to
// an entity. A pointer resource can be mutated in place by systems.
func ExampleResources() {
	rt := ecs.NewRuntime(ecs.NewComponentRegistry())
	_ = rt.Resources().Add("clock", &Clock{})

	_ = rt.AddSystem("tick").
		SetProcess(func(frame *ecs.UpdateFrame) error {
			clock, _ := ecs.Resource[*Clock](frame.Runtime.Resources(), "clock")
			clock.Frames++
			clock.Elapsed += frame.DeltaTime
			return nil
		}).Build()

	for i := 0; i < 3; i++ {
		_ = rt.Update(0.5)
	}

	clock, _ := ecs.Resource[*Clock](rt.Resources(), "clock")
	fmt.Printf("frames=%d elapsed=%.1f\n", clock.Frames, clock.Elapsed)

	// Output:
	// frames=3 elapsed=1.5
}

// ExampleResources_AddFactory shows deferred resources. Factories run when
// the runtime is initialized; a failed load is recorded on the resource.
func ExampleResources_AddFactory() {
	rt := ecs.NewRuntime(ecs.NewComponentRegistry())
	rt.Resources().AddFactory("level", func(ctx context.Context) (any, error) {
		return "forest", nil
	})
	rt.Resources().AddFactory("music", func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("no audio device")
	})

	status, _ := rt.Resources().Status("level")
	fmt.Println("level:", status)

	_ = rt.Initialize(context.Background())

	level, _ := ecs.Resource[string](rt.Resources(), "level")
	status, err := rt.Resources().Status("music")
	fmt.Println("level:", level)
	fmt.Println("music:", status, err)

	// Output:
	// level: pending
	// level: forest
	// music: failed no audio device
}
