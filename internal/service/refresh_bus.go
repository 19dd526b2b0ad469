package service

import "sync"

// RefreshBus asks the catalog pipeline to run again. It holds at most one pending tick,
// so triggers arriving while a run is in flight collapse into a single extra run.
type RefreshBus struct {
	ticks      chan struct{}
	subscribed sync.Once
}

// NewRefreshBus builds an idle bus.
func NewRefreshBus() *RefreshBus {
	return &RefreshBus{ticks: make(chan struct{}, 1)}
}

// Trigger schedules a run. It never blocks.
func (b *RefreshBus) Trigger() {
	select {
	case b.ticks <- struct{}{}:
	default:
	}
}

// Subscribe returns the tick stream. The first subscription is seeded with one tick so the
// consumer runs immediately. The bus is meant for a single consumer.
func (b *RefreshBus) Subscribe() <-chan struct{} {
	b.subscribed.Do(b.Trigger)
	return b.ticks
}
