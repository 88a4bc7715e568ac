package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

// Per-subscriber buffer; a live client falling further behind loses events.
const subscriberBuffer = 100

// Broadcaster fans newly stored disasters out to live stream clients.
type Broadcaster struct {
	subscribers map[uint64]chan *models.Disaster
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.Disaster),
	}
}

// Subscribe registers a client. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan *models.Disaster) {
	id := b.nextID.Add(1)
	ch := make(chan *models.Disaster, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(d *models.Disaster) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- d:
		default:
			b.dropped.Add(1)
		}
	}
}

// Publish lets the broadcaster sit behind the ingest publisher hook.
func (b *Broadcaster) Publish(_ context.Context, d *models.Disaster) error {
	b.Broadcast(d)
	return nil
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped counts events skipped for slow subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
