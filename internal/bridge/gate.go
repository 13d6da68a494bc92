package bridge

import (
	"context"
	"sync"
)

// BusyPolicy decides what a sync call does when the native channel is held.
type BusyPolicy int

const (
	// BusyQueue waits in FIFO order for the channel.
	BusyQueue BusyPolicy = iota

	// BusyFail returns ChannelBusy immediately.
	BusyFail
)

// String returns the configuration spelling of the policy.
func (p BusyPolicy) String() string {
	if p == BusyFail {
		return "fail"
	}
	return "queue"
}

// ParseBusyPolicy parses "queue" or "fail".
func ParseBusyPolicy(s string) (BusyPolicy, bool) {
	switch s {
	case "queue", "":
		return BusyQueue, true
	case "fail":
		return BusyFail, true
	}
	return BusyQueue, false
}

// channelGate serializes sync calls on the single native channel.
//
// Ownership is handed directly from the releasing holder to the oldest
// waiter, so waiters are served strictly in arrival order and a newcomer
// cannot overtake them.
type channelGate struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func newChannelGate() *channelGate {
	return &channelGate{}
}

// TryAcquire takes the gate if it is free.
func (g *channelGate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held {
		return false
	}
	g.held = true
	return true
}

// Acquire takes the gate, waiting in FIFO order. It returns ctx.Err() if the
// context ends first; the gate is then not held by the caller.
func (g *channelGate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.held {
		g.held = true
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ch {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()

		// Ownership was handed over while we were cancelling; pass it on.
		<-ch
		g.Release()
		return ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or frees it.
func (g *channelGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.waiters) == 0 {
		g.held = false
		return
	}
	next := g.waiters[0]
	g.waiters[0] = nil
	g.waiters = g.waiters[1:]
	close(next)
}

// Held reports whether some call owns the gate.
func (g *channelGate) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Waiting returns the number of queued callers.
func (g *channelGate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
