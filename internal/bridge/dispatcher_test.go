package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/store"
	"github.com/roach88/nbridge/internal/testutil"
	"github.com/roach88/nbridge/internal/wire"
)

// recorder is a receiver that keeps every delivery.
type recorder struct {
	mu  sync.Mutex
	got []Delivery
}

func (r *recorder) receive(d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
}

func (r *recorder) deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.got))
	copy(out, r.got)
	return out
}

func newTestDispatcher(t *testing.T, adapter platform.Adapter, opts ...Option) *Dispatcher {
	t.Helper()
	base := []Option{
		WithSessionGenerator(testutil.NewFixedSession("test-session")),
		WithNow(testutil.NewStepClock(time.Time{}, time.Millisecond).Now),
	}
	return New(adapter, append(base, opts...)...)
}

func setupJournal(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// brokenAdapter fails endpoint registration.
type brokenAdapter struct {
	mu    sync.Mutex
	inits int
}

func (a *brokenAdapter) Kind() platform.Kind { return platform.KindAndroid }

func (a *brokenAdapter) Initialize(platform.Endpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits++
	return errors.Join(platform.ErrUnavailable, errors.New("class not found"))
}

func (a *brokenAdapter) InitializeClass(string) error { return nil }

func (a *brokenAdapter) CallSync(string, string, string) (string, error) { return "", nil }

func (a *brokenAdapter) CallAsync(string, string, string) error { return nil }

func TestDispatcher_AsyncRoundTrip(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "filled"}))
	d := newTestDispatcher(t, adapter)

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	id, err := d.CallAsync(wire.Message{Domain: "ads", Data: "load"})
	require.NoError(t, err)
	assert.Equal(t, wire.CorrelationID(1), id)

	// The correlation id travels to the native side in extra.
	calls := adapter.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, wire.EncodeAsyncExtra(id, ""), calls[0].Extra)

	// Nothing runs until the main context pumps.
	assert.Empty(t, rec.deliveries())
	assert.Equal(t, 1, d.Drain())

	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, "ads", got[0].Message.Domain)
	assert.Equal(t, "filled", got[0].Message.Data)
	assert.Equal(t, id, got[0].Message.CorrelationID)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Issued)
	assert.Equal(t, int64(1), stats.Resolved)
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, 0, stats.Pending)
}

func TestDispatcher_ThreadedCallbacksRunOnMainContext(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithThreadedCallbacks())
	d := newTestDispatcher(t, adapter)

	done := make(chan Delivery, 3)
	require.NoError(t, d.AddReceiver("ads", func(del Delivery) { done <- del }))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	for i := 0; i < 3; i++ {
		_, err := d.CallAsync(wire.Message{Domain: "ads", Data: "n"})
		require.NoError(t, err)
	}

	ids := map[wire.CorrelationID]bool{}
	for i := 0; i < 3; i++ {
		select {
		case del := <-done:
			assert.NoError(t, del.Err)
			ids[del.Message.CorrelationID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("delivery did not arrive")
		}
	}
	assert.Len(t, ids, 3)

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}

func TestDispatcher_NoAdapter(t *testing.T) {
	d := newTestDispatcher(t, nil)
	msg := wire.Message{Domain: "ads", Data: "load"}

	_, err := d.CallSync(context.Background(), msg)
	assert.True(t, IsNativeUnavailable(err))

	_, err = d.CallAsync(msg)
	assert.True(t, IsNativeUnavailable(err))

	err = d.InitializeClass(wire.Configuration{ClassName: "cls"})
	assert.True(t, IsNativeUnavailable(err))

	assert.Equal(t, platform.KindNone, d.Platform())
	assert.Equal(t, int64(0), d.Stats().Issued)
}

func TestDispatcher_AttachFailureIsSticky(t *testing.T) {
	adapter := &brokenAdapter{}
	d := newTestDispatcher(t, adapter)

	for i := 0; i < 3; i++ {
		_, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
		assert.True(t, IsNativeUnavailable(err))
		assert.ErrorIs(t, err, platform.ErrUnavailable)
	}
	_, err := d.CallAsync(wire.Message{Domain: "ads"})
	assert.True(t, IsNativeUnavailable(err))

	assert.Equal(t, 1, adapter.inits, "native handle must not be recreated")
}

func TestDispatcher_SyncRoundTrip(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "ready", Extra: "e"}))
	d := newTestDispatcher(t, adapter)

	resp, err := d.CallSync(context.Background(), wire.Message{Domain: "ads", Data: "isReady"})
	require.NoError(t, err)
	assert.Equal(t, wire.Message{Domain: "ads", Data: "ready", Extra: "e", CorrelationID: 1}, resp)

	calls := adapter.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, wire.ModeSync, calls[0].Mode)
	assert.Equal(t, "", calls[0].Extra, "sync extra is passed through untouched")
}

func TestDispatcher_SyncNullResultIsEmptyMessage(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{}))
	d := newTestDispatcher(t, adapter)

	resp, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	require.NoError(t, err)
	assert.Equal(t, "ads", resp.Domain)
	assert.Empty(t, resp.Data)
	assert.Empty(t, resp.Extra)
}

func TestDispatcher_SyncTimeoutThenSuccess(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "slow", Delay: 300 * time.Millisecond}))
	journal := setupJournal(t)
	d := newTestDispatcher(t, adapter, WithSyncTimeout(30*time.Millisecond), WithJournal(journal))

	start := time.Now()
	_, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 250*time.Millisecond, "caller must not wait for the native call")

	// The gate was released on timeout: the next call goes through.
	adapter.SetScript("ads", platform.Script{Data: "fast"})
	resp, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Data)
	assert.Equal(t, wire.CorrelationID(2), resp.CorrelationID, "timed-out id is not reused")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.WaitAbandoned(ctx))

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.TimedOut)
	assert.Equal(t, int64(1), stats.Resolved)
	assert.Equal(t, int64(1), stats.Dropped)

	first, err := journal.ReadCall(context.Background(), "test-session", 1)
	require.NoError(t, err)
	assert.Equal(t, string(StateTimedOut), first.State)
	assert.Equal(t, string(ErrCodeTimeout), first.ErrorCode)

	drops, err := journal.ReadDrops(context.Background(), "test-session")
	require.NoError(t, err)
	require.Len(t, drops, 1)
	assert.Equal(t, dropLate, drops[0].Reason)
	assert.Equal(t, wire.CorrelationID(1), drops[0].CorrelationID)
}

func TestDispatcher_SyncContextCancelled(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Delay: 200 * time.Millisecond}))
	d := newTestDispatcher(t, adapter)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.CallSync(ctx, wire.Message{Domain: "ads"})
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, d.WaitAbandoned(waitCtx))
}

func TestDispatcher_SyncExclusion(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "ok", Delay: 5 * time.Millisecond}))
	d := newTestDispatcher(t, adapter)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, adapter.MaxConcurrentSync(), "two sync calls overlapped on the native channel")
	assert.Len(t, adapter.Calls(), callers)
}

func TestDispatcher_BusyFail(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "ok", Delay: 200 * time.Millisecond}))
	d := newTestDispatcher(t, adapter, WithBusyPolicy(BusyFail))

	first := make(chan error, 1)
	go func() {
		_, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
		first <- err
	}()
	require.Eventually(t, d.gate.Held, time.Second, time.Millisecond)

	_, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	assert.True(t, IsChannelBusy(err))

	assert.NoError(t, <-first)
	assert.Len(t, adapter.Calls(), 1, "rejected call never reached native code")
}

func TestDispatcher_ReceiverReplacedBeforeResolution(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Silent: true}))
	d := newTestDispatcher(t, adapter)

	first, second := &recorder{}, &recorder{}
	require.NoError(t, d.AddReceiver("ads", first.receive))

	id, err := d.CallAsync(wire.Message{Domain: "ads", Data: "load"})
	require.NoError(t, err)

	require.NoError(t, d.AddReceiver("ads", second.receive))
	adapter.Emit(wire.Event{Message: wire.Message{Domain: "ads", Data: "filled", CorrelationID: id}})
	d.Drain()

	assert.Empty(t, first.deliveries())
	require.Len(t, second.deliveries(), 1)
	assert.Equal(t, "filled", second.deliveries()[0].Message.Data)
}

func TestDispatcher_UnmatchedCallbackDropped(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "filled"}))
	journal := setupJournal(t)
	d := newTestDispatcher(t, adapter, WithJournal(journal))

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	id, err := d.CallAsync(wire.Message{Domain: "ads"})
	require.NoError(t, err)

	// Unknown id.
	adapter.Emit(wire.Event{Message: wire.Message{Domain: "ads", Data: "stray", CorrelationID: 999}})

	// Duplicate callback for an already resolved call.
	adapter.Emit(wire.Event{Message: wire.Message{Domain: "ads", Data: "again", CorrelationID: id}})

	d.Drain()
	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, "filled", got[0].Message.Data)
	assert.Equal(t, int64(2), d.Stats().Dropped)

	drops, err := journal.ReadDrops(context.Background(), "test-session")
	require.NoError(t, err)
	require.Len(t, drops, 2)
	assert.Equal(t, dropUnmatched, drops[0].Reason)
	assert.Equal(t, wire.CorrelationID(999), drops[0].CorrelationID)
	assert.Equal(t, id, drops[1].CorrelationID)
}

func TestDispatcher_SyncIDCallbackIsUnmatched(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "v"}))
	d := newTestDispatcher(t, adapter)

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	resp, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	require.NoError(t, err)

	adapter.Emit(wire.Event{Message: wire.Message{Domain: "ads", CorrelationID: resp.CorrelationID}})
	assert.Equal(t, 0, d.Drain())
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_InitializeClassOnce(t *testing.T) {
	adapter := platform.NewEditorAdapter()
	d := newTestDispatcher(t, adapter)

	require.NoError(t, d.InitializeClass(wire.Configuration{ClassName: "com.gpm.webview"}))
	assert.True(t, d.Initialized())
	assert.Equal(t, "com.gpm.webview", adapter.ClassName())

	err := d.InitializeClass(wire.Configuration{ClassName: "com.gpm.other"})
	assert.True(t, IsAlreadyInitialized(err))
	assert.Equal(t, "com.gpm.webview", adapter.ClassName())

	d.Reset()
	assert.False(t, d.Initialized())
	require.NoError(t, d.InitializeClass(wire.Configuration{ClassName: "com.gpm.other"}))
	assert.Equal(t, "com.gpm.other", adapter.ClassName())
}

func TestDispatcher_InvalidPayload(t *testing.T) {
	adapter := platform.NewEditorAdapter()
	d := newTestDispatcher(t, adapter)

	bad := []wire.Message{
		{Domain: ""},
		{Domain: "   "},
		{Domain: "ads", Data: "a" + wire.Delimiter + "b"},
		{Domain: "ads", Extra: string([]byte{0xff, 0xfe})},
	}
	for _, msg := range bad {
		_, err := d.CallSync(context.Background(), msg)
		assert.True(t, IsInvalidPayload(err), "sync %q", msg.Data)

		_, err = d.CallAsync(msg)
		assert.True(t, IsInvalidPayload(err), "async %q", msg.Data)
	}

	assert.Empty(t, adapter.Calls(), "invalid messages never reach native code")
	assert.Equal(t, wire.CorrelationID(0), d.seq.Current(), "no id is spent on invalid messages")
}

func TestDispatcher_AddReceiverValidation(t *testing.T) {
	d := newTestDispatcher(t, platform.NewEditorAdapter())

	assert.True(t, IsInvalidPayload(d.AddReceiver("", func(Delivery) {})))
	assert.True(t, IsInvalidPayload(d.AddReceiver("ads", nil)))

	require.NoError(t, d.AddReceiver("ads", func(Delivery) {}))
	assert.True(t, d.HasReceiver("ads"))
	assert.True(t, d.RemoveReceiver("ads"))
	assert.False(t, d.HasReceiver("ads"))
}

func TestDispatcher_SyncNativeError(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Fail: "java.lang.IllegalStateException"}))
	d := newTestDispatcher(t, adapter)

	_, err := d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	assert.True(t, IsNativeError(err))
	assert.Contains(t, err.Error(), "IllegalStateException")

	adapter.SetScript("ads", platform.Script{Data: "x", NativeError: "not loaded"})
	_, err = d.CallSync(context.Background(), wire.Message{Domain: "ads"})
	assert.True(t, IsNativeError(err))
	assert.Contains(t, err.Error(), "not loaded")

	assert.Equal(t, int64(2), d.Stats().Failed)
}

func TestDispatcher_AsyncFailureDelivered(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Fail: "activity gone"}))
	journal := setupJournal(t)
	d := newTestDispatcher(t, adapter, WithJournal(journal))

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	id, err := d.CallAsync(wire.Message{Domain: "ads", Data: "show"})
	require.NoError(t, err, "native failure is delivered, not returned")

	d.Drain()
	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.True(t, IsNativeError(got[0].Err))
	assert.Equal(t, "show", got[0].Message.Data, "the failed request comes back with the error")
	assert.Equal(t, id, got[0].Message.CorrelationID)
	assert.Equal(t, 0, d.Stats().Pending)

	call, err := journal.ReadCall(context.Background(), "test-session", id)
	require.NoError(t, err)
	assert.Equal(t, string(StateFailed), call.State)
	assert.Equal(t, "activity gone", call.ErrorMessage)
}

func TestDispatcher_AsyncNativeErrorSegment(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "d", NativeError: "no fill"}))
	d := newTestDispatcher(t, adapter)

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	_, err := d.CallAsync(wire.Message{Domain: "ads"})
	require.NoError(t, err)
	d.Drain()

	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.True(t, IsNativeError(got[0].Err))
	assert.Contains(t, got[0].Err.Error(), "no fill")
	assert.Equal(t, "d", got[0].Message.Data)
}

func TestDispatcher_UnsolicitedEvent(t *testing.T) {
	adapter := platform.NewEditorAdapter()
	d := newTestDispatcher(t, adapter)

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	// Endpoint is registered lazily; any call attaches it.
	require.NoError(t, d.InitializeClass(wire.Configuration{}))
	adapter.Emit(wire.Event{Message: wire.Message{Domain: "ads", Data: "banner clicked"}})
	d.Drain()

	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, "banner clicked", got[0].Message.Data)
	assert.Equal(t, wire.CorrelationID(0), got[0].Message.CorrelationID)
}

func TestDispatcher_DroppedEvents(t *testing.T) {
	adapter := platform.NewEditorAdapter()
	journal := setupJournal(t)
	d := newTestDispatcher(t, adapter, WithJournal(journal))
	require.NoError(t, d.InitializeClass(wire.Configuration{}))

	adapter.EmitRaw("")
	adapter.Emit(wire.Event{Message: wire.Message{Domain: "nobody", Data: "x"}})

	assert.Equal(t, 0, d.Drain())
	assert.Equal(t, int64(2), d.Stats().Dropped)

	drops, err := journal.ReadDrops(context.Background(), "test-session")
	require.NoError(t, err)
	require.Len(t, drops, 2)
	assert.Equal(t, dropMalformed, drops[0].Reason)
	assert.Equal(t, dropNoReceiver, drops[1].Reason)
	assert.Equal(t, "nobody", drops[1].Domain)
}

func TestDispatcher_Forget(t *testing.T) {
	adapter := platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Silent: true}))
	d := newTestDispatcher(t, adapter)

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	id, err := d.CallAsync(wire.Message{Domain: "ads"})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().Pending)

	assert.True(t, d.Forget(id))
	assert.False(t, d.Forget(id))

	adapter.Emit(wire.Event{Message: wire.Message{Domain: "ads", CorrelationID: id}})
	assert.Equal(t, 0, d.Drain())
	assert.Empty(t, rec.deliveries())
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	adapter := platform.NewEditorAdapter()
	d := newTestDispatcher(t, adapter)

	rec := &recorder{}
	require.NoError(t, d.AddReceiver("ads", rec.receive))

	for i := 0; i < 3; i++ {
		_, err := d.CallAsync(wire.Message{Domain: "ads"})
		require.NoError(t, err)
	}
	d.Stop()

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, rec.deliveries(), 3)

	// Deliveries after Stop are dropped.
	_, err := d.CallAsync(wire.Message{Domain: "ads"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestDispatcher_ReceiverPanicRecovered(t *testing.T) {
	adapter := platform.NewEditorAdapter()
	d := newTestDispatcher(t, adapter)

	calls := 0
	require.NoError(t, d.AddReceiver("ads", func(Delivery) {
		calls++
		if calls == 1 {
			panic("receiver bug")
		}
	}))

	for i := 0; i < 2; i++ {
		_, err := d.CallAsync(wire.Message{Domain: "ads"})
		require.NoError(t, err)
	}

	assert.NotPanics(t, func() { d.Drain() })
	assert.Equal(t, 2, calls)
}

func TestDispatcher_JournalRecordsCalls(t *testing.T) {
	adapter := platform.NewEditorAdapter(
		platform.WithScript("ads", platform.Script{Data: "filled"}),
		platform.WithScript("store", platform.Script{Data: "ok", Extra: "receipt"}),
	)
	journal := setupJournal(t)
	d := newTestDispatcher(t, adapter, WithJournal(journal))
	require.NoError(t, d.AddReceiver("ads", func(Delivery) {}))

	_, err := d.CallSync(context.Background(), wire.Message{Domain: "store", Data: "buy"})
	require.NoError(t, err)
	_, err = d.CallAsync(wire.Message{Domain: "ads", Data: "load", Extra: "slot-1"})
	require.NoError(t, err)

	calls, err := journal.ReadCalls(context.Background(), d.Session())
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, "store", calls[0].Domain)
	assert.Equal(t, "sync", calls[0].Mode)
	assert.Equal(t, "resolved", calls[0].State)
	assert.Equal(t, "receipt", calls[0].ResponseExtra)

	assert.Equal(t, "ads", calls[1].Domain)
	assert.Equal(t, "async", calls[1].Mode)
	assert.Equal(t, "slot-1", calls[1].Extra, "journal keeps the caller's extra, not the wire form")
	assert.Equal(t, "resolved", calls[1].State)
	assert.Equal(t, "filled", calls[1].ResponseData)
	require.NotNil(t, calls[1].ResolvedAt)
	assert.True(t, calls[1].ResolvedAt.After(calls[1].IssuedAt))
}
