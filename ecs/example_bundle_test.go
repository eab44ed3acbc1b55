package ecs_test

import (
	"fmt"

	"github.com/plus3/ecsrt/ecs"
)

// ExampleMergeBundles composes two feature bundles and installs them. The
// combined contract registers every component the bundles declare.
func ExampleMergeBundles() {
	movement := ecs.NewBundle("movement")
	ecs.ProvideComponent[Position](movement.Contract(), "Position")
	ecs.ProvideComponent[Velocity](movement.Contract(), "Velocity")
	movement.AddRequired("Velocity", "Position", func() any { return Position{} })
	_ = movement.AddSystem("move").
		AddQuery("movers", ecs.Filter{With: []string{"Position", "Velocity"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			for _, m := range ecs.Each[struct {
				*Position
				*Velocity
			}](frame.Query("movers")) {
				m.Position.X += m.Velocity.DX * float32(frame.DeltaTime)
			}
			return nil
		}).Build()

	labels := ecs.NewBundle("labels")
	ecs.ProvideComponent[Name](labels.Contract(), "Name")
	ecs.ProvideComponent[Position](labels.Contract(), "Position")
	_ = labels.AddSystem("print").InPhase("postUpdate").
		AddQuery("named", ecs.Filter{With: []string{"Name", "Position"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			for _, n := range ecs.Each[struct {
				*Name
				*Position
			}](frame.Query("named")) {
				fmt.Printf("%s at x=%.0f\n", n.Name.Value, n.Position.X)
			}
			return nil
		}).Build()

	game, err := ecs.MergeBundles("game", movement, labels)
	if err != nil {
		fmt.Println(err)
		return
	}

	rt := ecs.NewRuntime(ecs.NewComponentRegistry())
	if err := rt.Install(game); err != nil {
		fmt.Println(err)
		return
	}
	rt.Spawn(Name{Value: "rocket"}, Velocity{DX: 3})
	_ = rt.Update(2)

	// Output:
	// rocket at x=6
}
