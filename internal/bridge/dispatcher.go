package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/store"
	"github.com/roach88/nbridge/internal/wire"
)

const (
	// DefaultSyncTimeout bounds every sync call unless overridden.
	DefaultSyncTimeout = 5 * time.Second

	// DefaultReceiverObject is the well-known object name native plugins
	// address their callbacks to.
	DefaultReceiverObject = "CORE_TYPE"

	// DefaultReceiverMethod is the method native plugins invoke on the
	// receiver object.
	DefaultReceiverMethod = "OnAsyncEvent"
)

// Drop reasons recorded in the journal.
const (
	dropUnmatched  = "unmatched"
	dropLate       = "late"
	dropMalformed  = "malformed"
	dropNoReceiver = "no_receiver"
	dropStopped    = "stopped"
)

// Dispatcher routes calls to the platform adapter and callbacks to receivers.
//
// Thread-safety model:
//   - AddReceiver, RemoveReceiver, CallSync, CallAsync, Forget: any goroutine
//   - OnNativeEvent: any goroutine (native threads)
//   - Run or Drain: exactly one goroutine, the main context
type Dispatcher struct {
	adapter     platform.Adapter
	seq         *Sequencer
	session     string
	syncTimeout time.Duration
	busy        BusyPolicy
	now         func() time.Time
	log         *slog.Logger
	journal     *store.Store

	receiverObject string
	receiverMethod string

	gate      *channelGate
	receivers *registry
	pending   *pendingTable
	queue     *eventQueue

	attachOnce sync.Once
	attachErr  error

	// abandoned counts timed-out native calls that have not returned yet.
	abandoned sync.WaitGroup

	initMu      sync.Mutex
	initialized bool

	stats counters
}

type counters struct {
	issued    atomic.Int64
	resolved  atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
}

// Stats is a point-in-time snapshot of dispatcher activity.
type Stats struct {
	Issued    int64 `json:"issued"`
	Resolved  int64 `json:"resolved"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
	Dropped   int64 `json:"dropped"`
	Delivered int64 `json:"delivered"`
	Pending   int   `json:"pending"`
	Queued    int   `json:"queued"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSyncTimeout sets the bound on sync calls. Non-positive values are ignored.
func WithSyncTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.syncTimeout = d
		}
	}
}

// WithBusyPolicy chooses between FIFO queuing and ChannelBusy.
func WithBusyPolicy(p BusyPolicy) Option {
	return func(d *Dispatcher) {
		d.busy = p
	}
}

// WithJournal records every call, outcome and dropped callback in s.
func WithJournal(s *store.Store) Option {
	return func(d *Dispatcher) {
		d.journal = s
	}
}

// WithSessionGenerator overrides the session token source.
func WithSessionGenerator(g SessionGenerator) Option {
	return func(d *Dispatcher) {
		d.session = g.Generate()
	}
}

// WithSequencer overrides the correlation id source.
func WithSequencer(s *Sequencer) Option {
	return func(d *Dispatcher) {
		d.seq = s
	}
}

// WithLogger sets the logger; the component attribute is added by New.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// WithReceiverEndpoint overrides the object and method name registered with
// the native plugin for callbacks.
func WithReceiverEndpoint(object, method string) Option {
	return func(d *Dispatcher) {
		if object != "" {
			d.receiverObject = object
		}
		if method != "" {
			d.receiverMethod = method
		}
	}
}

// WithNow overrides the wall clock used for journal timestamps.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a Dispatcher bound to adapter. A nil adapter is allowed: every
// call then fails with NativeUnavailable.
func New(adapter platform.Adapter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		adapter:        adapter,
		seq:            NewSequencer(),
		syncTimeout:    DefaultSyncTimeout,
		busy:           BusyQueue,
		now:            time.Now,
		log:            slog.Default(),
		receiverObject: DefaultReceiverObject,
		receiverMethod: DefaultReceiverMethod,
		gate:           newChannelGate(),
		receivers:      newRegistry(),
		pending:        newPendingTable(),
		queue:          newEventQueue(),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.session == "" {
		d.session = UUIDv7Generator{}.Generate()
	}
	d.log = d.log.With("component", "bridge", "session", d.session)

	return d
}

// Session returns the token keying this dispatcher's journal rows.
func (d *Dispatcher) Session() string {
	return d.session
}

// Platform returns the adapter kind, or platform.KindNone.
func (d *Dispatcher) Platform() platform.Kind {
	if d.adapter == nil {
		return platform.KindNone
	}
	return d.adapter.Kind()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Issued:    d.stats.issued.Load(),
		Resolved:  d.stats.resolved.Load(),
		Failed:    d.stats.failed.Load(),
		TimedOut:  d.stats.timedOut.Load(),
		Dropped:   d.stats.dropped.Load(),
		Delivered: d.stats.delivered.Load(),
		Pending:   d.pending.Len(),
		Queued:    d.queue.Len(),
	}
}

// attach registers the callback endpoint with the adapter on first use.
// A failure is sticky: the native handle is never recreated.
func (d *Dispatcher) attach(domain string) error {
	if d.adapter == nil {
		return NewNativeUnavailableError(domain, nil)
	}
	d.attachOnce.Do(func() {
		d.attachErr = d.adapter.Initialize(platform.Endpoint{
			Object:  d.receiverObject,
			Method:  d.receiverMethod,
			Deliver: d.OnNativeEvent,
		})
		if d.attachErr != nil {
			d.log.Error("native endpoint registration failed",
				"platform", d.adapter.Kind(),
				"error", d.attachErr,
			)
		}
	})
	if d.attachErr != nil {
		return NewNativeUnavailableError(domain, d.attachErr)
	}
	return nil
}

// nativeFailure maps an adapter error to NativeUnavailable or NativeError.
func (d *Dispatcher) nativeFailure(domain string, id wire.CorrelationID, err error) *BridgeError {
	if errors.Is(err, platform.ErrUnavailable) {
		return NewNativeUnavailableError(domain, err)
	}
	return NewNativeError(domain, id, err)
}

// InitializeClass binds the native plugin class. It succeeds at most once
// until Reset.
func (d *Dispatcher) InitializeClass(cfg wire.Configuration) error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.initialized {
		return NewAlreadyInitializedError(cfg.ClassName)
	}
	if err := d.attach(""); err != nil {
		return err
	}
	if err := d.adapter.InitializeClass(cfg.ClassName); err != nil {
		return d.nativeFailure("", 0, fmt.Errorf("initialize class %q: %w", cfg.ClassName, err))
	}

	d.initialized = true
	d.log.Info("native class initialized",
		"platform", d.adapter.Kind(),
		"class", cfg.ClassName,
	)
	return nil
}

// Initialized reports whether InitializeClass has succeeded since the last Reset.
func (d *Dispatcher) Initialized() bool {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	return d.initialized
}

// Reset allows InitializeClass to run again. Receivers and pending calls
// are untouched.
func (d *Dispatcher) Reset() {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	d.initialized = false
}

// AddReceiver registers cb for domain. A later registration for the same
// domain replaces the earlier one, including for calls already in flight.
func (d *Dispatcher) AddReceiver(domain string, cb Receiver) error {
	if !wire.ValidDomain(domain) {
		return NewInvalidPayloadError(domain, &wire.PayloadError{Field: "domain", Reason: "not a valid domain"})
	}
	if cb == nil {
		return NewInvalidPayloadError(domain, fmt.Errorf("receiver is nil"))
	}

	if d.receivers.Set(domain, cb) {
		d.log.Debug("receiver replaced", "domain", domain)
	} else {
		d.log.Debug("receiver registered", "domain", domain)
	}
	return nil
}

// RemoveReceiver unregisters domain and reports whether it was registered.
func (d *Dispatcher) RemoveReceiver(domain string) bool {
	return d.receivers.Remove(domain)
}

// HasReceiver reports whether domain has a registered receiver.
func (d *Dispatcher) HasReceiver(domain string) bool {
	_, ok := d.receivers.Get(domain)
	return ok
}

type nativeResult struct {
	raw string
	err error
}

// CallSync performs a blocking native call and returns its response.
//
// The call is serialized with every other sync call on the native channel
// and bounded by the sync timeout. If ctx ends while the native call runs,
// the call is abandoned exactly like a timeout.
func (d *Dispatcher) CallSync(ctx context.Context, msg wire.Message) (wire.Message, error) {
	if d.adapter == nil {
		return wire.Message{}, NewNativeUnavailableError(msg.Domain, nil)
	}
	norm, err := wire.Normalize(msg)
	if err != nil {
		return wire.Message{}, NewInvalidPayloadError(msg.Domain, err)
	}
	if err := d.attach(norm.Domain); err != nil {
		return wire.Message{}, err
	}

	if d.busy == BusyFail {
		if !d.gate.TryAcquire() {
			d.log.Debug("sync call rejected: channel busy", "domain", norm.Domain)
			return wire.Message{}, NewChannelBusyError(norm.Domain)
		}
	} else if err := d.gate.Acquire(ctx); err != nil {
		return wire.Message{}, NewTimeoutError(norm.Domain, 0, err)
	}

	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(d.gate.Release) }
	defer release()

	norm.CorrelationID = d.seq.Next()
	call := newPendingCall(norm.CorrelationID, wire.ModeSync, norm.Domain, d.now())
	call.markAwaiting()
	d.stats.issued.Add(1)
	d.journalCall(call, norm)

	results := make(chan nativeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- nativeResult{err: fmt.Errorf("native call panicked: %v", r)}
			}
		}()
		raw, err := d.adapter.CallSync(norm.Domain, norm.Data, norm.Extra)
		results <- nativeResult{raw: raw, err: err}
	}()

	timer := time.NewTimer(d.syncTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		release()
		return d.finishSync(call, res)

	case <-timer.C:
		release()
		return wire.Message{}, d.abandonSync(call, results, nil)

	case <-ctx.Done():
		release()
		return wire.Message{}, d.abandonSync(call, results, ctx.Err())
	}
}

// finishSync assigns the terminal state of a sync call from its native result.
func (d *Dispatcher) finishSync(call *PendingCall, res nativeResult) (wire.Message, error) {
	if res.err != nil {
		callErr := d.nativeFailure(call.Domain, call.ID, res.err)
		d.failCall(call, callErr)
		return wire.Message{}, callErr
	}

	resp, nativeErr, err := wire.DecodeResponse(res.raw, call.Domain)
	if err != nil {
		callErr := NewNativeError(call.Domain, call.ID, fmt.Errorf("malformed response: %w", err))
		d.failCall(call, callErr)
		return wire.Message{}, callErr
	}
	resp.CorrelationID = call.ID
	if nativeErr != "" {
		callErr := NewNativeError(call.Domain, call.ID, errors.New(nativeErr))
		d.failCall(call, callErr)
		return wire.Message{}, callErr
	}

	if call.complete(StateResolved, resp, nil) {
		d.stats.resolved.Add(1)
		d.journalOutcome(call, StateResolved, resp, nil)
	}
	return resp, nil
}

// abandonSync times out a sync call and drains its eventual native result.
func (d *Dispatcher) abandonSync(call *PendingCall, results <-chan nativeResult, cause error) error {
	callErr := NewTimeoutError(call.Domain, call.ID, cause)
	if call.complete(StateTimedOut, wire.Message{}, callErr) {
		d.stats.timedOut.Add(1)
		d.journalOutcome(call, StateTimedOut, wire.Message{}, callErr)
	}
	d.log.Warn("sync call timed out",
		"domain", call.Domain,
		"id", call.ID,
		"timeout", d.syncTimeout,
	)

	d.abandoned.Add(1)
	go func() {
		defer d.abandoned.Done()
		res := <-results
		d.stats.dropped.Add(1)
		d.log.Warn("late native result dropped",
			"domain", call.Domain,
			"id", call.ID,
			"error", res.err,
		)
		d.journalDrop(call.ID, call.Domain, dropLate)
	}()

	return callErr
}

func (d *Dispatcher) failCall(call *PendingCall, callErr *BridgeError) {
	if call.complete(StateFailed, wire.Message{}, callErr) {
		d.stats.failed.Add(1)
		d.journalOutcome(call, StateFailed, wire.Message{}, callErr)
	}
}

// CallAsync fires a native call whose result is delivered later to the
// receiver registered for the message's domain. It returns the call's
// correlation id without waiting.
//
// Validation and adapter availability are reported immediately; every
// failure after the call is issued is delivered to the receiver together
// with the request that failed.
func (d *Dispatcher) CallAsync(msg wire.Message) (wire.CorrelationID, error) {
	if d.adapter == nil {
		return 0, NewNativeUnavailableError(msg.Domain, nil)
	}
	norm, err := wire.Normalize(msg)
	if err != nil {
		return 0, NewInvalidPayloadError(msg.Domain, err)
	}
	if err := d.attach(norm.Domain); err != nil {
		return 0, err
	}

	norm.CorrelationID = d.seq.Next()
	call := newPendingCall(norm.CorrelationID, wire.ModeAsync, norm.Domain, d.now())

	// Registered before the native call so an immediate callback finds it.
	d.pending.Put(call)
	call.markAwaiting()
	d.stats.issued.Add(1)
	d.journalCall(call, norm)

	if err := d.adapter.CallAsync(norm.Domain, norm.Data, wire.EncodeAsyncExtra(norm.CorrelationID, norm.Extra)); err != nil {
		if _, ok := d.pending.Take(call.ID); ok {
			callErr := d.nativeFailure(call.Domain, call.ID, err)
			d.failCall(call, callErr)
			d.deliver(call.Domain, norm, callErr)
		}
	}

	return norm.CorrelationID, nil
}

// Forget discards interest in an async call. Its callback, if it ever
// arrives, is dropped as unmatched. The native call itself is not cancelled.
func (d *Dispatcher) Forget(id wire.CorrelationID) bool {
	_, ok := d.pending.Take(id)
	if ok {
		d.log.Debug("async call forgotten", "id", id)
	}
	return ok
}

// OnNativeEvent is the native re-entry point. It may be called from any
// thread; it never runs a receiver itself.
func (d *Dispatcher) OnNativeEvent(raw string) {
	ev, err := wire.DecodeEvent(raw)
	if err != nil {
		d.stats.dropped.Add(1)
		d.log.Warn("malformed native event dropped", "error", err, "size", len(raw))
		d.journalDrop(0, "", dropMalformed)
		return
	}

	if ev.CorrelationID == 0 {
		d.deliver(ev.Domain, ev.Message, nil)
		return
	}

	call, ok := d.pending.Take(ev.CorrelationID)
	if !ok {
		d.stats.dropped.Add(1)
		d.log.Warn("callback dropped",
			"error", NewUnmatchedCallbackError(ev.Domain, ev.CorrelationID),
		)
		d.journalDrop(ev.CorrelationID, ev.Domain, dropUnmatched)
		return
	}

	msg := ev.Message
	if ev.Failed() {
		callErr := NewNativeError(call.Domain, call.ID, errors.New(ev.Error))
		d.failCall(call, callErr)
		d.deliver(call.Domain, msg, callErr)
		return
	}

	if call.complete(StateResolved, msg, nil) {
		d.stats.resolved.Add(1)
		d.journalOutcome(call, StateResolved, msg, nil)
	}
	d.deliver(call.Domain, msg, nil)
}

// deliver enqueues a receiver invocation for the main context. The receiver
// is the one registered for domain at this moment.
func (d *Dispatcher) deliver(domain string, msg wire.Message, err error) {
	rcv, ok := d.receivers.Get(domain)
	if !ok {
		d.stats.dropped.Add(1)
		d.log.Warn("no receiver registered for domain", "domain", domain, "id", msg.CorrelationID)
		d.journalDrop(msg.CorrelationID, domain, dropNoReceiver)
		return
	}

	if !d.queue.Enqueue(event{domain: domain, receiver: rcv, delivery: Delivery{Message: msg, Err: err}}) {
		d.stats.dropped.Add(1)
		d.log.Warn("delivery dropped: dispatcher stopped", "domain", domain, "id", msg.CorrelationID)
		d.journalDrop(msg.CorrelationID, domain, dropStopped)
	}
}

// Run is the main-context loop: it invokes receivers in completion order.
// Blocks until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine, and never together
// with Drain.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher starting", "platform", d.Platform())

	for {
		if ev, ok := d.queue.TryDequeue(); ok {
			d.invoke(ev)
			continue
		}

		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			if d.queue.Len() == 0 && d.stopped() {
				d.log.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain invokes every queued receiver on the calling goroutine and returns
// how many ran. It is for hosts that pump the bridge from their own frame
// loop instead of running Run.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		ev, ok := d.queue.TryDequeue()
		if !ok {
			return n
		}
		d.invoke(ev)
		n++
	}
}

// WaitAbandoned blocks until every timed-out native call has returned and
// its late result has been dropped, or ctx ends.
func (d *Dispatcher) WaitAbandoned(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.abandoned.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the completion queue; Run returns once it is empty.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}

func (d *Dispatcher) stopped() bool {
	select {
	case _, open := <-d.queue.Wait():
		return !open
	default:
		return false
	}
}

// invoke runs one receiver. A panicking receiver is logged and does not
// take the loop down.
func (d *Dispatcher) invoke(ev event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("receiver panicked",
				"domain", ev.domain,
				"id", ev.delivery.Message.CorrelationID,
				"panic", r,
			)
		}
	}()
	d.stats.delivered.Add(1)
	ev.receiver(ev.delivery)
}
