package config

import "sync"

// Subscriber receives events published on the in-process notification bus.
// Delivery is best-effort and synchronous; subscribers must not block.
type Subscriber func(event any)

// InProcessBus fans events out to UI observers (badge counters and the like)
// on the same device. Publish never fails and never reports failure: observers
// are a convenience, not a correctness dependency.
type InProcessBus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func (b *InProcessBus) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *InProcessBus) Publish(event any) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				// A panicking observer must not take down a flush pass.
				_ = recover()
			}()
			fn(event)
		}()
	}
}

var bus = &InProcessBus{}

func GetNotificationBus() *InProcessBus {
	return bus
}
