// Package dispatch fans the update channels of all adapters into one stream
// and fans it out to any number of subscribers.
package dispatch

import (
	"context"
	"sync"

	"perpdepth/internal/exchange"
	"perpdepth/internal/logger"
)

const defaultSubscriberBuffer = 256

// Bus delivers every adapter Update to all subscribers. A slow subscriber
// loses updates instead of stalling the adapters.
type Bus struct {
	log    *logger.Entry
	buffer int

	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan exchange.Update
	dropped map[int]int64
}

// New creates a bus; buffer is the per-subscriber channel capacity
func New(log *logger.Log, buffer int) *Bus {
	if log == nil {
		log = logger.Discard()
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{
		log:     log.WithComponent("dispatch"),
		buffer:  buffer,
		subs:    make(map[int]chan exchange.Update),
		dropped: make(map[int]int64),
	}
}

// Subscribe registers a consumer. The returned cancel func unregisters it and
// closes the channel.
func (b *Bus) Subscribe() (<-chan exchange.Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan exchange.Update, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				delete(b.dropped, id)
				close(sub)
			}
		})
	}
}

// Run forwards updates from every source until ctx is cancelled or all
// sources are closed
func (b *Bus) Run(ctx context.Context, sources ...<-chan exchange.Update) error {
	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(source <-chan exchange.Update) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case update, ok := <-source:
					if !ok {
						return
					}
					b.Publish(update)
				}
			}
		}(source)
	}
	wg.Wait()

	b.closeAll()
	return nil
}

// Publish delivers one update to every subscriber without blocking
func (b *Bus) Publish(update exchange.Update) {
	b.mu.RLock()
	var full []int
	for id, ch := range b.subs {
		select {
		case ch <- update:
		default:
			full = append(full, id)
		}
	}
	b.mu.RUnlock()

	if len(full) == 0 {
		return
	}

	b.mu.Lock()
	for _, id := range full {
		if _, ok := b.subs[id]; !ok {
			continue
		}
		b.dropped[id]++
		if b.dropped[id] == 1 || b.dropped[id]%1000 == 0 {
			b.log.WithFields(logger.Fields{
				"subscriber": id,
				"dropped":    b.dropped[id],
			}).Warn("subscriber channel full, skipping update")
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of registered subscribers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
		delete(b.dropped, id)
	}
}
