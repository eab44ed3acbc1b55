package main

import (
	"math/rand/v2"

	"github.com/plus3/ecsrt/ecs"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	DX, DY float64
}

// Lifetime counts down in seconds; the entity and its children are removed
// when it reaches zero.
type Lifetime struct {
	Remaining float64
}

type Health struct {
	Current, Max int
}

// Emitter spawns trail particles as children of its entity.
type Emitter struct {
	Rate        float64
	Accumulated float64
}

type DamageEvent struct {
	Target ecs.EntityId
	Amount int
}

const eventDamage = "damage"

// Counters collects what the simulation did, for the report.
type Counters struct {
	Spawned       int64
	Expired       int64
	Entered       int64
	Exited        int64
	DamageEvents  int64
	HealthUpdates int64
	Frames        int64
}

func newWorldBundle(target int, counters *Counters) (*ecs.BundleSpec, error) {
	b := ecs.NewBundle("stress")
	c := b.Contract()
	ecs.ProvideComponent[Position](c, "Position")
	ecs.ProvideComponent[Velocity](c, "Velocity")
	ecs.ProvideComponent[Lifetime](c, "Lifetime")
	ecs.ProvideComponent[Health](c, "Health")
	ecs.ProvideComponent[Emitter](c, "Emitter")
	ecs.ProvideEvent[DamageEvent](c, eventDamage)
	ecs.ProvideResource[*Counters](c, "counters")

	b.AddResource("counters", counters)
	b.AddRequired("Velocity", "Position", func() any { return Position{} })
	b.AddRequired("Emitter", "Lifetime", func() any { return Lifetime{Remaining: 5} })

	err := b.AddSystem("populate").InPhase("preUpdate").SetPriority(100).
		AddQuery("mortal", ecs.Filter{With: []string{"Lifetime"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			missing := target - frame.Query("mortal").Len()
			for i := 0; i < missing; i++ {
				spawnRandomEntity(frame.Commands)
				counters.Spawned++
			}
			return nil
		}).Build()
	if err != nil {
		return nil, err
	}

	err = b.AddSystem("emit").InPhase("preUpdate").
		AddQuery("emitters", ecs.Filter{With: []string{"Emitter", "Position"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			for id, e := range ecs.Each[struct {
				*Emitter
				*Position
			}](frame.Query("emitters")) {
				e.Emitter.Accumulated += e.Emitter.Rate * frame.DeltaTime
				for ; e.Emitter.Accumulated >= 1; e.Emitter.Accumulated-- {
					frame.Commands.SpawnChild(id,
						Position{X: e.Position.X, Y: e.Position.Y},
						Lifetime{Remaining: 0.25})
					counters.Spawned++
				}
			}
			return nil
		}).Build()
	if err != nil {
		return nil, err
	}

	err = b.AddSystem("movement").SetPriority(50).
		AddQuery("movers", ecs.Filter{With: []string{"Position", "Velocity"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			for _, m := range ecs.Each[struct {
				*Position
				*Velocity
			}](frame.Query("movers")) {
				m.Position.X += m.Velocity.DX * frame.DeltaTime
				m.Position.Y += m.Velocity.DY * frame.DeltaTime
			}
			return nil
		}).Build()
	if err != nil {
		return nil, err
	}

	err = b.AddSystem("lifetime").SetPriority(10).
		AddQuery("mortal", ecs.Filter{With: []string{"Lifetime"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			for id, l := range ecs.Each[struct{ *Lifetime }](frame.Query("mortal")) {
				l.Lifetime.Remaining -= frame.DeltaTime
				if l.Lifetime.Remaining <= 0 {
					frame.Commands.RemoveEntity(id)
					counters.Expired++
				}
			}
			return nil
		}).Build()
	if err != nil {
		return nil, err
	}

	err = b.AddSystem("hazards").InGroup("combat").
		AddQuery("vulnerable", ecs.Filter{With: []string{"Health"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			for id := range frame.Query("vulnerable").Iter() {
				if rand.IntN(10) != 0 {
					continue
				}
				if err := frame.Runtime.Publish(eventDamage, DamageEvent{Target: id, Amount: 1 + rand.IntN(5)}); err != nil {
					return err
				}
			}
			return nil
		}).Build()
	if err != nil {
		return nil, err
	}

	err = b.AddSystem("damage").InGroup("combat").
		SetEventHandlers(map[string]ecs.SystemEventHandler{
			eventDamage: func(payload any, rt *ecs.Runtime) error {
				ev := payload.(DamageEvent)
				hp, ok := ecs.Get[Health](rt, ev.Target)
				if !ok {
					return nil
				}
				hp.Current -= ev.Amount
				rt.MarkChanged(ev.Target, "Health")
				counters.DamageEvents++
				if hp.Current <= 0 {
					rt.Commands().RemoveEntity(ev.Target)
				}
				return nil
			},
		}).Build()
	if err != nil {
		return nil, err
	}

	err = b.AddSystem("healthbars").InPhase("postUpdate").
		AddQuery("hurt", ecs.Filter{With: []string{"Health"}, Changed: []string{"Health"}}).
		SetProcess(func(frame *ecs.UpdateFrame) error {
			counters.HealthUpdates += int64(frame.Query("hurt").Len())
			return nil
		}).Build()
	if err != nil {
		return nil, err
	}
	return b, nil
}

func spawnRandomEntity(cmds *ecs.Commands) ecs.EntityId {
	components := []any{
		Velocity{DX: rand.Float64()*20 - 10, DY: rand.Float64()*20 - 10},
		Lifetime{Remaining: 0.5 + rand.Float64()*4},
	}
	if rand.IntN(3) == 0 {
		components = append(components, Health{Current: 20, Max: 20})
	}
	if rand.IntN(20) == 0 {
		components = append(components, Emitter{Rate: 10})
	}
	return cmds.Spawn(components...)
}

// watchMortals counts entities entering and leaving the set of entities
// with a lifetime.
func watchMortals(rt *ecs.Runtime, counters *Counters) error {
	return rt.AddReactiveQuery("mortals", ecs.ReactiveQueryDef{
		With:    []string{"Lifetime"},
		OnEnter: func(ecs.EntityId, map[string]any) { counters.Entered++ },
		OnExit:  func(ecs.EntityId) { counters.Exited++ },
	})
}
