package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/store"
	"github.com/roach88/nbridge/internal/testutil"
	"github.com/roach88/nbridge/internal/wire"
)

// abandonedWait bounds how long a scenario waits for timed-out native calls
// to come back before the trace is read.
const abandonedWait = 5 * time.Second

// Harness is the test execution engine.
// It drives one real dispatcher with a fixed session token and a stepping
// clock, so a scenario always produces the same trace.
type Harness struct {
	store   *store.Store
	adapter *platform.EditorAdapter
	d       *bridge.Dispatcher
	result  *Result

	// generations counts receiver registrations per domain.
	generations map[string]int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal for isolation.
//
// Execution flow:
// 1. Create fresh in-memory journal and the editor stub
// 2. Register one recording receiver per listed domain
// 3. Execute steps with expect validation
// 4. Wait for abandoned calls and drain the completion queue
// 5. Read the journal into the trace and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	session := scenario.Session
	if session == "" {
		session = testutil.DefaultSession
	}

	opts := []bridge.Option{
		bridge.WithSessionGenerator(testutil.NewFixedSession(session)),
		bridge.WithNow(testutil.NewStepClock(time.Time{}, 0).Now),
		bridge.WithJournal(st),
		bridge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
	}
	if scenario.SyncTimeout > 0 {
		opts = append(opts, bridge.WithSyncTimeout(scenario.SyncTimeout))
	}
	if policy, ok := bridge.ParseBusyPolicy(scenario.BusyPolicy); ok {
		opts = append(opts, bridge.WithBusyPolicy(policy))
	}

	h := &Harness{
		store:       st,
		result:      NewResult(scenario.Name, session),
		generations: map[string]int{},
	}

	// A nil *EditorAdapter must not reach the dispatcher as a non-nil interface.
	var adapter platform.Adapter
	if scenario.Adapter != AdapterNone {
		var editorOpts []platform.EditorOption
		for domain, script := range scenario.Scripts {
			editorOpts = append(editorOpts, platform.WithScript(domain, script))
		}
		h.adapter = platform.NewEditorAdapter(editorOpts...)
		adapter = h.adapter
	}
	h.d = bridge.New(adapter, opts...)

	for _, domain := range scenario.Receivers {
		if err := h.register(domain); err != nil {
			return nil, fmt.Errorf("failed to register receiver: %w", err)
		}
	}

	ctx := context.Background()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("failed to execute step %d: %w", i, err)
		}
	}

	if err := h.settle(ctx); err != nil {
		return nil, err
	}

	if err := h.readTrace(ctx); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// register installs a new recording receiver generation for domain.
func (h *Harness) register(domain string) error {
	h.generations[domain]++
	gen := h.generations[domain]
	return h.d.AddReceiver(domain, func(del bridge.Delivery) {
		h.result.Trace.Deliveries = append(h.result.Trace.Deliveries, DeliveryRecord{
			Domain:        domain,
			Receiver:      gen,
			CorrelationID: int64(del.Message.CorrelationID),
			Data:          del.Message.Data,
			Extra:         del.Message.Extra,
			Error:         string(bridge.CodeOf(del.Err)),
		})
	})
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step) error {
	var rec StepRecord

	switch {
	case step.CallSync != nil:
		msg := step.CallSync.message()
		resp, err := h.d.CallSync(ctx, msg)
		rec = StepRecord{
			Op:            "call_sync",
			Domain:        msg.Domain,
			CorrelationID: correlationOf(resp, err),
			Data:          resp.Data,
			Extra:         resp.Extra,
			Error:         string(bridge.CodeOf(err)),
		}
		h.checkExpect(index, step.Expect, rec)

	case step.CallAsync != nil:
		msg := step.CallAsync.message()
		id, err := h.d.CallAsync(msg)
		rec = StepRecord{
			Op:            "call_async",
			Domain:        msg.Domain,
			CorrelationID: int64(id),
			Error:         string(bridge.CodeOf(err)),
		}
		h.checkExpect(index, step.Expect, StepRecord{
			CorrelationID: rec.CorrelationID,
			Error:         rec.Error,
		})

	case step.ConcurrentSync != nil:
		msg := step.ConcurrentSync.message()
		ok := h.concurrentSync(ctx, msg, step.ConcurrentSync.Count)
		rec = StepRecord{Op: "concurrent_sync", Domain: msg.Domain, Count: ok}

	case step.NativeEvent != nil:
		ev := step.NativeEvent
		h.d.OnNativeEvent(wire.EncodeEvent(wire.Event{
			Message: wire.Message{
				Domain:        ev.Domain,
				Data:          ev.Data,
				Extra:         ev.Extra,
				CorrelationID: wire.CorrelationID(ev.CorrelationID),
			},
			Error: ev.Error,
		}))
		rec = StepRecord{Op: "native_event", Domain: ev.Domain, CorrelationID: ev.CorrelationID}

	case step.RawEvent != nil:
		h.d.OnNativeEvent(*step.RawEvent)
		rec = StepRecord{Op: "raw_event"}

	case step.Forget != nil:
		ok := h.d.Forget(wire.CorrelationID(*step.Forget))
		rec = StepRecord{Op: "forget", CorrelationID: *step.Forget, OK: &ok}

	case step.Drain:
		rec = StepRecord{Op: "drain", Count: h.d.Drain()}

	case step.Reregister != "":
		if err := h.register(step.Reregister); err != nil {
			return err
		}
		rec = StepRecord{Op: "reregister", Domain: step.Reregister, Count: h.generations[step.Reregister]}

	case step.SetScript != nil:
		if h.adapter == nil {
			return errors.New("set_script requires the editor adapter")
		}
		h.adapter.SetScript(step.SetScript.Domain, step.SetScript.Script)
		rec = StepRecord{Op: "set_script", Domain: step.SetScript.Domain}

	case step.InitializeClass != nil:
		err := h.d.InitializeClass(*step.InitializeClass)
		rec = StepRecord{Op: "initialize_class", Error: string(bridge.CodeOf(err))}
		h.checkExpect(index, step.Expect, rec)

	case step.Reset:
		h.d.Reset()
		rec = StepRecord{Op: "reset"}

	case step.WaitAbandoned:
		wctx, cancel := context.WithTimeout(ctx, abandonedWait)
		defer cancel()
		if err := h.d.WaitAbandoned(wctx); err != nil {
			return fmt.Errorf("abandoned calls did not return: %w", err)
		}
		rec = StepRecord{Op: "wait_abandoned"}

	default:
		return errors.New("step has no operation")
	}

	h.result.Trace.Steps = append(h.result.Trace.Steps, rec)
	return nil
}

// concurrentSync fires count identical sync calls at once and returns how
// many succeeded.
func (h *Harness) concurrentSync(ctx context.Context, msg wire.Message, count int) int {
	succeeded := make(chan struct{}, count)

	var g errgroup.Group
	for i := 0; i < count; i++ {
		g.Go(func() error {
			if _, err := h.d.CallSync(ctx, msg); err == nil {
				succeeded <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(succeeded)

	n := 0
	for range succeeded {
		n++
	}
	return n
}

// settle waits for every abandoned sync call and runs every pending
// receiver, so the journal is final when it is read.
func (h *Harness) settle(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, abandonedWait)
	defer cancel()
	if err := h.d.WaitAbandoned(wctx); err != nil {
		return fmt.Errorf("abandoned calls did not return: %w", err)
	}
	h.d.Drain()
	return nil
}

func (h *Harness) readTrace(ctx context.Context) error {
	session := h.d.Session()

	calls, err := h.store.ReadCalls(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for _, c := range calls {
		h.result.Trace.Calls = append(h.result.Trace.Calls, CallRecord{
			CorrelationID: int64(c.CorrelationID),
			Domain:        c.Domain,
			Mode:          c.Mode,
			Data:          c.Data,
			Extra:         c.Extra,
			State:         c.State,
			ResponseData:  c.ResponseData,
			ResponseExtra: c.ResponseExtra,
			ErrorCode:     c.ErrorCode,
		})
	}

	drops, err := h.store.ReadDrops(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for _, d := range drops {
		h.result.Trace.Drops = append(h.result.Trace.Drops, DropRecord{
			CorrelationID: int64(d.CorrelationID),
			Domain:        d.Domain,
			Reason:        d.Reason,
		})
	}

	stats := h.d.Stats()
	h.result.Trace.Stats = Stats{
		Issued:    stats.Issued,
		Resolved:  stats.Resolved,
		Failed:    stats.Failed,
		TimedOut:  stats.TimedOut,
		Dropped:   stats.Dropped,
		Delivered: stats.Delivered,
	}
	if h.adapter != nil {
		h.result.MaxConcurrentSync = h.adapter.MaxConcurrentSync()
	}
	return nil
}

// checkExpect compares the immediate outcome of a step with its expect clause.
func (h *Harness) checkExpect(index int, expect *Expect, got StepRecord) {
	if expect == nil {
		if got.Error != "" {
			h.result.AddError(fmt.Sprintf("steps[%d]: unexpected error %s", index, got.Error))
		}
		return
	}
	if got.Error != expect.Error {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected error %q, got %q", index, expect.Error, got.Error))
	}
	if expect.Data != nil && got.Data != *expect.Data {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected data %q, got %q", index, *expect.Data, got.Data))
	}
	if expect.Extra != nil && got.Extra != *expect.Extra {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected extra %q, got %q", index, *expect.Extra, got.Extra))
	}
	if expect.CorrelationID != 0 && got.CorrelationID != expect.CorrelationID {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected correlation id %d, got %d", index, expect.CorrelationID, got.CorrelationID))
	}
}

func (c Call) message() wire.Message {
	return wire.Message{Domain: c.Domain, Data: c.Data, Extra: c.Extra}
}

// correlationOf returns the id of a sync call, also when it failed after
// being issued.
func correlationOf(resp wire.Message, err error) int64 {
	if err == nil {
		return int64(resp.CorrelationID)
	}
	var be *bridge.BridgeError
	if errors.As(err, &be) {
		return int64(be.CorrelationID)
	}
	return 0
}
