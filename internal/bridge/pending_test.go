package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbridge/internal/wire"
)

func TestCallState_Terminal(t *testing.T) {
	assert.False(t, StateIssued.Terminal())
	assert.False(t, StateAwaitingNative.Terminal())
	assert.True(t, StateResolved.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateTimedOut.Terminal())
}

func TestPendingCall_Lifecycle(t *testing.T) {
	c := newPendingCall(1, wire.ModeAsync, "ads", time.Now())
	assert.Equal(t, StateIssued, c.State())

	require.True(t, c.markAwaiting())
	assert.False(t, c.markAwaiting())
	assert.Equal(t, StateAwaitingNative, c.State())

	msg := wire.Message{Domain: "ads", Data: "filled", CorrelationID: 1}
	require.True(t, c.complete(StateResolved, msg, nil))

	got, err := c.Outcome()
	assert.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestPendingCall_SingleAssignment(t *testing.T) {
	c := newPendingCall(1, wire.ModeSync, "ads", time.Now())
	c.markAwaiting()

	require.True(t, c.complete(StateTimedOut, wire.Message{}, errors.New("timeout")))
	assert.False(t, c.complete(StateResolved, wire.Message{Data: "late"}, nil))
	assert.False(t, c.complete(StateFailed, wire.Message{}, errors.New("late failure")))

	assert.Equal(t, StateTimedOut, c.State())
	got, err := c.Outcome()
	assert.Empty(t, got.Data)
	assert.EqualError(t, err, "timeout")
}

func TestPendingCall_RejectsInvalidTransitions(t *testing.T) {
	async := newPendingCall(1, wire.ModeAsync, "ads", time.Now())
	async.markAwaiting()
	assert.False(t, async.complete(StateTimedOut, wire.Message{}, nil), "async calls cannot time out")
	assert.False(t, async.complete(StateAwaitingNative, wire.Message{}, nil), "not a terminal state")
	assert.Equal(t, StateAwaitingNative, async.State())

	// A terminal call cannot go back to awaiting.
	require.True(t, async.complete(StateFailed, wire.Message{}, errors.New("x")))
	assert.False(t, async.markAwaiting())
}

func TestPendingCall_ConcurrentCompletion(t *testing.T) {
	c := newPendingCall(1, wire.ModeSync, "ads", time.Now())
	c.markAwaiting()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := StateResolved
			if i%2 == 0 {
				to = StateTimedOut
			}
			if c.complete(to, wire.Message{}, nil) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestPendingTable_TakeOnce(t *testing.T) {
	tbl := newPendingTable()
	tbl.Put(newPendingCall(5, wire.ModeAsync, "ads", time.Now()))
	assert.Equal(t, 1, tbl.Len())

	c, ok := tbl.Take(5)
	require.True(t, ok)
	assert.Equal(t, wire.CorrelationID(5), c.ID)

	_, ok = tbl.Take(5)
	assert.False(t, ok, "second take models a duplicate callback")
	assert.Equal(t, 0, tbl.Len())
}
