package events

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []Event
	bus.Subscribe(ModuleRun, func(e Event) { got = append(got, e) })

	bus.Publish(Event{Name: ModuleRun, Module: "Rectangle"})
	bus.Publish(Event{Name: ModuleAdded, Module: "Prism"})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].Module != "Rectangle" {
		t.Errorf("event module = %q", got[0].Module)
	}
}

func TestWildcardSubscriptions(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var all, modules int
	bus.Subscribe("*", func(Event) { all++ })
	bus.Subscribe("module.*", func(Event) { modules++ })

	bus.Publish(Event{Name: ModuleRun})
	bus.Publish(Event{Name: ModuleAdded})
	bus.Publish(Event{Name: CacheHit})

	if all != 3 {
		t.Errorf("* handler called %d times, want 3", all)
	}
	if modules != 2 {
		t.Errorf("module.* handler called %d times, want 2", modules)
	}
}

func TestMultipleHandlersInOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var order []int
	bus.Subscribe(CacheHit, func(Event) { order = append(order, 1) })
	bus.Subscribe(CacheHit, func(Event) { order = append(order, 2) })

	bus.Publish(Event{Name: CacheHit})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("handler order = %v", order)
	}
}
