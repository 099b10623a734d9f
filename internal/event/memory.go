package event

import (
	"sync"
)

// MemoryBus is an in-process Bus for single-node deployments and tests.
// Handlers run on their own goroutines to match the asynchronous delivery of
// the NATS-backed bus.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]Handler)}
}

var _ Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for _, h := range b.subs[subject] {
		handler := h
		go handler(data)
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]Handler)
	}
	b.nextID++
	id := b.nextID
	b.subs[subject][id] = h

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[subject]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, subject)
				}
			}
		})
	}
	return cancel, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}
