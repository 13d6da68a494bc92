package platform

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnavailable reports that the native channel cannot be used.
var ErrUnavailable = errors.New("native channel unavailable")

// PluginVersion is the native plugin protocol version this package speaks.
const PluginVersion = "1.1.0"

// Kind names an adapter variant.
type Kind string

const (
	KindAndroid Kind = "android"
	KindIOS     Kind = "ios"
	KindEditor  Kind = "editor"
	KindRemote  Kind = "remote"
	KindNone    Kind = "none"
)

// Endpoint is the callback address registered with the native plugin.
// Native code addresses callbacks to Object.Method; Deliver hands the raw
// callback string back to the dispatcher.
type Endpoint struct {
	Object  string
	Method  string
	Deliver func(raw string)
}

// Adapter is one platform's implementation of the native call shape.
type Adapter interface {
	// Kind identifies the variant.
	Kind() Kind

	// Initialize registers the callback endpoint with the native plugin.
	Initialize(ep Endpoint) error

	// InitializeClass binds the plugin to a native class.
	InitializeClass(className string) error

	// CallSync performs a blocking call. A null native result is "".
	CallSync(domain, data, extra string) (string, error)

	// CallAsync fires a call whose answer arrives through the endpoint.
	CallAsync(domain, data, extra string) error
}

// lazyHandle creates a native handle on first use and keeps the result,
// success or failure, forever.
type lazyHandle[T any] struct {
	once   sync.Once
	open   func() (T, error)
	handle T
	err    error
}

func (l *lazyHandle[T]) get() (T, error) {
	l.once.Do(func() {
		if l.open == nil {
			l.err = fmt.Errorf("%w: no native binding", ErrUnavailable)
			return
		}
		l.handle, l.err = l.open()
		if l.err != nil && !errors.Is(l.err, ErrUnavailable) {
			l.err = fmt.Errorf("%w: %v", ErrUnavailable, l.err)
		}
	})
	return l.handle, l.err
}

// seal stops any later open with err and returns the handle if one was
// already opened.
func (l *lazyHandle[T]) seal(err error) (T, bool) {
	sealed := false
	l.once.Do(func() {
		l.err = err
		sealed = true
	})
	return l.handle, !sealed && l.err == nil
}

// endpointHolder keeps the registered endpoint for host glue that routes
// native callbacks by object and method name.
type endpointHolder struct {
	mu sync.RWMutex
	ep *Endpoint
}

func (h *endpointHolder) set(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ep = &ep
}

func (h *endpointHolder) get() (Endpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ep == nil {
		return Endpoint{}, false
	}
	return *h.ep, true
}

// receive forwards a callback addressed to object.method.
func (h *endpointHolder) receive(object, method, raw string) error {
	ep, ok := h.get()
	if !ok {
		return fmt.Errorf("callback for %s.%s before Initialize", object, method)
	}
	if ep.Object != object || ep.Method != method {
		return fmt.Errorf("callback addressed to %s.%s, registered %s.%s", object, method, ep.Object, ep.Method)
	}
	if ep.Deliver != nil {
		ep.Deliver(raw)
	}
	return nil
}
