// Package eventbus is the in-process publish/subscribe described in spec
// §4.9 — structured events keyed by name, fanned out to every live
// subscriber. Grounded on the broker shape in
// go-concurrency/projects/pub-sub/final/pub_sub.go (mutex-protected
// subscription map, per-subscriber buffered channel, a dispatch goroutine
// per subscription) with the persistence/ack/circuit-breaker/DLQ machinery
// dropped — EventBus is process-local and best-effort, not a durable queue.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Name identifies an event kind (spec §4.9).
type Name string

const (
	JobAdded     Name = "job:added"
	JobStarted   Name = "job:started"
	JobProgress  Name = "job:progress"
	JobCompleted Name = "job:completed"
	JobFailed    Name = "job:failed"
	JobStalled   Name = "job:stalled"
	JobLog       Name = "job:log"
	WorkerError  Name = "worker:error"
)

// Event is one published notification. Payload is event-specific; JobID and
// ParentID are empty when not applicable.
type Event struct {
	Name     Name
	TenantID string
	JobID    string
	ParentID string
	Payload  any
}

// Handler processes one delivered event. Handlers run on their own
// subscription's dispatch goroutine, never on the publisher's goroutine, so
// a slow handler cannot block Publish.
type Handler func(Event)

type subscription struct {
	id      uint64
	name    Name
	handler Handler
	ch      chan Event
	ctx     context.Context
	cancel  context.CancelFunc
}

// Bus is an in-process event broker. The zero value is not usable; use New.
type Bus struct {
	mu   sync.RWMutex
	subs map[Name]map[uint64]*subscription
	next atomic.Uint64
	wg   sync.WaitGroup
}

// New returns a ready Bus.
func New() *Bus {
	return &Bus{subs: make(map[Name]map[uint64]*subscription)}
}

// bufferSize bounds the per-subscriber backlog; a subscriber that falls this
// far behind drops further events rather than blocking the publisher.
const bufferSize = 256

// Subscribe registers handler for every event published under name. The
// returned func unsubscribes; calling it more than once is a no-op.
func (b *Bus) Subscribe(ctx context.Context, name Name, handler Handler) (unsubscribe func()) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:      b.next.Add(1),
		name:    name,
		handler: handler,
		ch:      make(chan Event, bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}

	b.mu.Lock()
	if b.subs[name] == nil {
		b.subs[name] = make(map[uint64]*subscription)
	}
	b.subs[name][sub.id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[name], sub.id)
			b.mu.Unlock()
			sub.cancel()
		})
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case ev := <-sub.ch:
			sub.handler(ev)
		case <-sub.ctx.Done():
			return
		}
	}
}

// Publish delivers ev to every subscriber registered for ev.Name. Delivery is
// best-effort: a subscriber whose buffer is full misses the event rather
// than blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Name]
	targets := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Close cancels every subscription and waits for dispatch goroutines to
// drain.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, subs := range b.subs {
		for _, s := range subs {
			s.cancel()
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}
