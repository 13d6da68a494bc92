package platform

import (
	"errors"
	"sync"
	"time"

	"github.com/roach88/nbridge/internal/wire"
)

// Script describes how the editor stub answers calls for one domain.
type Script struct {
	// Data and Extra form the response (sync) or callback (async).
	Data  string `yaml:"data" json:"data"`
	Extra string `yaml:"extra" json:"extra"`

	// NativeError is reported in the response's error segment.
	NativeError string `yaml:"native_error" json:"native_error"`

	// Fail makes the native call itself fail, like a thrown exception.
	Fail string `yaml:"fail" json:"fail"`

	// Delay holds the answer back.
	Delay time.Duration `yaml:"delay" json:"delay"`

	// Silent suppresses the async callback entirely.
	Silent bool `yaml:"silent" json:"silent"`
}

// RecordedCall is one call observed by the editor stub.
type RecordedCall struct {
	Mode   wire.CallMode
	Domain string
	Data   string
	Extra  string
}

// EditorAdapter stands in for a native plugin on desktop builds and in
// tests. Unscripted domains echo the request back.
type EditorAdapter struct {
	threaded bool

	mu        sync.Mutex
	scripts   map[string]Script
	calls     []RecordedCall
	className string
	inflight  int
	maxSync   int
	replies   sync.WaitGroup

	endpoint endpointHolder
}

// EditorOption configures an EditorAdapter.
type EditorOption func(*EditorAdapter)

// WithThreadedCallbacks delivers async callbacks from a separate goroutine,
// the way a real plugin answers from its own thread. By default callbacks
// are delivered before CallAsync returns.
func WithThreadedCallbacks() EditorOption {
	return func(a *EditorAdapter) {
		a.threaded = true
	}
}

// WithScript sets the script for domain.
func WithScript(domain string, s Script) EditorOption {
	return func(a *EditorAdapter) {
		a.scripts[domain] = s
	}
}

// NewEditorAdapter creates an editor stub.
func NewEditorAdapter(opts ...EditorOption) *EditorAdapter {
	a := &EditorAdapter{scripts: make(map[string]Script)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *EditorAdapter) Kind() Kind { return KindEditor }

// SetScript replaces the script for domain.
func (a *EditorAdapter) SetScript(domain string, s Script) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[domain] = s
}

func (a *EditorAdapter) script(domain string) (Script, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.scripts[domain]
	return s, ok
}

func (a *EditorAdapter) record(c RecordedCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
}

func (a *EditorAdapter) Initialize(ep Endpoint) error {
	a.endpoint.set(ep)
	return nil
}

func (a *EditorAdapter) InitializeClass(className string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.className = className
	return nil
}

func (a *EditorAdapter) CallSync(domain, data, extra string) (string, error) {
	a.record(RecordedCall{Mode: wire.ModeSync, Domain: domain, Data: data, Extra: extra})

	a.mu.Lock()
	a.inflight++
	if a.inflight > a.maxSync {
		a.maxSync = a.inflight
	}
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inflight--
		a.mu.Unlock()
	}()

	s, ok := a.script(domain)
	if !ok {
		return wire.EncodeResponse(wire.Message{Domain: domain, Data: data, Extra: extra}, ""), nil
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.Fail != "" {
		return "", errors.New(s.Fail)
	}
	if s.Data == "" && s.Extra == "" && s.NativeError == "" {
		return "", nil
	}
	return wire.EncodeResponse(wire.Message{Domain: domain, Data: s.Data, Extra: s.Extra}, s.NativeError), nil
}

func (a *EditorAdapter) CallAsync(domain, data, extra string) error {
	a.record(RecordedCall{Mode: wire.ModeAsync, Domain: domain, Data: data, Extra: extra})

	id, plainExtra, _ := wire.DecodeAsyncExtra(extra)
	reply := wire.Event{Message: wire.Message{Domain: domain, Data: data, Extra: plainExtra, CorrelationID: id}}

	s, ok := a.script(domain)
	if ok {
		if s.Fail != "" {
			return errors.New(s.Fail)
		}
		if s.Silent {
			return nil
		}
		reply.Data, reply.Extra, reply.Error = s.Data, s.Extra, s.NativeError
	}

	send := func() {
		if s.Delay > 0 {
			time.Sleep(s.Delay)
		}
		a.Emit(reply)
	}
	if a.threaded {
		a.replies.Add(1)
		go func() {
			defer a.replies.Done()
			send()
		}()
		return nil
	}
	send()
	return nil
}

// Emit delivers an event to the registered endpoint as if native code had
// sent it. Events emitted before Initialize are lost, as on a device.
func (a *EditorAdapter) Emit(ev wire.Event) {
	a.EmitRaw(wire.EncodeEvent(ev))
}

// EmitRaw delivers a raw callback string.
func (a *EditorAdapter) EmitRaw(raw string) {
	ep, ok := a.endpoint.get()
	if !ok || ep.Deliver == nil {
		return
	}
	ep.Deliver(raw)
}

// WaitReplies blocks until every threaded callback has been delivered.
func (a *EditorAdapter) WaitReplies() {
	a.replies.Wait()
}

// Calls returns every call observed so far, in order.
func (a *EditorAdapter) Calls() []RecordedCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RecordedCall, len(a.calls))
	copy(out, a.calls)
	return out
}

// ClassName returns the class passed to InitializeClass.
func (a *EditorAdapter) ClassName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.className
}

// MaxConcurrentSync returns the highest number of sync calls observed in
// flight at once.
func (a *EditorAdapter) MaxConcurrentSync() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxSync
}

// Endpoint returns the registered callback endpoint.
func (a *EditorAdapter) Endpoint() (Endpoint, bool) {
	return a.endpoint.get()
}
