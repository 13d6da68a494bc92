package bridge

import (
	"sync"
	"time"

	"github.com/roach88/nbridge/internal/wire"
)

// CallState is the lifecycle position of a PendingCall.
//
//	Issued -> AwaitingNative -> Resolved | Failed | TimedOut
//
// TimedOut applies to sync calls only. Terminal states accept no further
// transitions.
type CallState string

const (
	StateIssued         CallState = "issued"
	StateAwaitingNative CallState = "awaiting"
	StateResolved       CallState = "resolved"
	StateFailed         CallState = "failed"
	StateTimedOut       CallState = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool {
	return s == StateResolved || s == StateFailed || s == StateTimedOut
}

// PendingCall tracks one issued call until its single completion.
type PendingCall struct {
	ID       wire.CorrelationID
	Mode     wire.CallMode
	Domain   string
	IssuedAt time.Time

	mu     sync.Mutex
	state  CallState
	result wire.Message
	err    error
}

func newPendingCall(id wire.CorrelationID, mode wire.CallMode, domain string, now time.Time) *PendingCall {
	return &PendingCall{
		ID:       id,
		Mode:     mode,
		Domain:   domain,
		IssuedAt: now,
		state:    StateIssued,
	}
}

// State returns the current state.
func (p *PendingCall) State() CallState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outcome returns the completion value; meaningful once State is terminal.
func (p *PendingCall) Outcome() (wire.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// markAwaiting moves an issued call to AwaitingNative.
func (p *PendingCall) markAwaiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIssued {
		return false
	}
	p.state = StateAwaitingNative
	return true
}

// complete assigns the terminal state. It succeeds exactly once; later
// attempts return false and leave the call untouched.
func (p *PendingCall) complete(to CallState, result wire.Message, err error) bool {
	if !to.Terminal() {
		return false
	}
	if to == StateTimedOut && p.Mode != wire.ModeSync {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Terminal() {
		return false
	}
	p.state = to
	p.result = result
	p.err = err
	return true
}

// pendingTable holds async calls awaiting their native callback.
type pendingTable struct {
	mu    sync.Mutex
	calls map[wire.CorrelationID]*PendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[wire.CorrelationID]*PendingCall)}
}

func (t *pendingTable) Put(c *PendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[c.ID] = c
}

// Take removes and returns the call for id. A second Take for the same id
// finds nothing, which is what makes duplicate callbacks unmatched.
func (t *pendingTable) Take(id wire.CorrelationID) (*PendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return c, ok
}

func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
