package usage

import (
	"sync"
	"sync/atomic"
)

// Publisher holds the latest snapshot and fans it out to subscribers.
// Readers load the snapshot without locking; writers are serialized.
type Publisher struct {
	latest atomic.Pointer[Snapshot]

	mu   sync.Mutex
	subs map[int]chan Snapshot
	next int
}

// NewPublisher creates a publisher with an idle initial snapshot.
func NewPublisher() *Publisher {
	p := &Publisher{subs: make(map[int]chan Snapshot)}
	p.latest.Store(&Snapshot{Status: StatusIdle})
	return p
}

// Latest returns the most recently published snapshot.
func (p *Publisher) Latest() Snapshot {
	return *p.latest.Load()
}

// TodayMillis returns the live total from the latest snapshot.
func (p *Publisher) TodayMillis() int64 {
	return p.latest.Load().TotalMillis
}

// Publish replaces the latest snapshot and notifies subscribers. Slow
// subscribers only ever see the newest value.
func (p *Publisher) Publish(snapshot Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishLocked(snapshot)
}

// update applies fn to a copy of the latest snapshot and publishes it.
func (p *Publisher) update(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := *p.latest.Load()
	fn(&snapshot)
	p.publishLocked(snapshot)
}

func (p *Publisher) publishLocked(snapshot Snapshot) {
	p.latest.Store(&snapshot)
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Subscribe returns a channel receiving every published snapshot and a
// function that cancels the subscription.
func (p *Publisher) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = ch
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
}
