package account

import (
	"context"
	"sync"
)

// BalanceFeed is a hot, latest-value-replayed balance stream. Every new
// subscriber immediately receives the most recent observation, then all
// subsequent ones. Whether a subscription has seen its first value is
// tracked per subscription, never in shared state.
type BalanceFeed struct {
	mu     sync.Mutex
	latest Balance
	seeded bool
	subs   map[int]chan Balance
	nextID int
	closed bool
	done   chan struct{}
}

// NewBalanceFeed creates an empty feed. Subscribers receive nothing until
// the first Publish.
func NewBalanceFeed() *BalanceFeed {
	return &BalanceFeed{
		subs: make(map[int]chan Balance),
		done: make(chan struct{}),
	}
}

// Publish delivers a new observation to all subscribers and stores it for
// replay. Slow subscribers have their stale pending value replaced rather
// than blocking the feed.
func (f *BalanceFeed) Publish(b Balance) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.latest = b
	f.seeded = true

	for _, ch := range f.subs {
		select {
		case ch <- b:
		default:
			// Drop the undelivered older value, keep only the newest.
			select {
			case <-ch:
			default:
			}
			ch <- b
		}
	}
}

// Subscribe returns a channel of balance observations. The channel is
// closed when ctx is cancelled or the feed is closed.
func (f *BalanceFeed) Subscribe(ctx context.Context) <-chan Balance {
	f.mu.Lock()

	ch := make(chan Balance, 1)
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	if f.seeded {
		ch <- f.latest
	}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
		f.mu.Unlock()
	}()

	return ch
}

// Latest returns the most recent observation, if any has been published.
func (f *BalanceFeed) Latest() (Balance, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.seeded
}

// Done is closed when the feed is torn down. Publishers use it to stop
// producing observations.
func (f *BalanceFeed) Done() <-chan struct{} {
	return f.done
}

// Close tears the feed down and closes all subscriber channels.
func (f *BalanceFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
