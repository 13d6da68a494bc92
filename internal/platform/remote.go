package platform

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/websocket"

	"github.com/roach88/nbridge/internal/wire"
)

// DefaultVersionConstraint accepts companions speaking the current major
// protocol version.
const DefaultVersionConstraint = ">= 1.1.0, < 2.0.0"

// Frame operations.
const (
	opHello     = "hello"
	opInit      = "init"
	opInitClass = "init_class"
	opSync      = "sync"
	opAsync     = "async"
	opResult    = "result"
	opEvent     = "event"
)

// frame is the JSON message exchanged with a device companion.
type frame struct {
	Op      string `json:"op"`
	ID      int64  `json:"id,omitempty"`
	Version string `json:"version,omitempty"`
	Object  string `json:"object,omitempty"`
	Method  string `json:"method,omitempty"`
	Class   string `json:"class,omitempty"`
	Domain  string `json:"domain,omitempty"`
	Data    string `json:"data,omitempty"`
	Extra   string `json:"extra,omitempty"`
	Raw     string `json:"raw,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RemoteOption configures a RemoteAdapter.
type RemoteOption func(*RemoteAdapter)

// WithHandshakeTimeout bounds the dial and hello exchange.
func WithHandshakeTimeout(d time.Duration) RemoteOption {
	return func(a *RemoteAdapter) {
		if d > 0 {
			a.handshakeTimeout = d
		}
	}
}

// WithVersionConstraint sets the semver range the companion must satisfy.
func WithVersionConstraint(c string) RemoteOption {
	return func(a *RemoteAdapter) {
		if c != "" {
			a.constraint = c
		}
	}
}

// RemoteAdapter drives a native plugin running in a device-side companion
// process over a WebSocket. The connection is dialed on first use.
type RemoteAdapter struct {
	url              string
	constraint       string
	handshakeTimeout time.Duration

	handle   lazyHandle[*remoteConn]
	endpoint endpointHolder
}

// NewRemoteAdapter creates an adapter for the companion at url (ws:// or wss://).
func NewRemoteAdapter(url string, opts ...RemoteOption) *RemoteAdapter {
	a := &RemoteAdapter{
		url:              url,
		constraint:       DefaultVersionConstraint,
		handshakeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.handle.open = a.dial
	return a
}

func (a *RemoteAdapter) Kind() Kind { return KindRemote }

// CompanionVersion returns the version announced by the companion, dialing
// if needed.
func (a *RemoteAdapter) CompanionVersion() (string, error) {
	c, err := a.handle.get()
	if err != nil {
		return "", err
	}
	return c.version.String(), nil
}

func (a *RemoteAdapter) dial() (*remoteConn, error) {
	constraint, err := semver.NewConstraint(a.constraint)
	if err != nil {
		return nil, fmt.Errorf("version constraint %q: %w", a.constraint, err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: a.handshakeTimeout}
	ws, _, err := dialer.Dial(a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.url, err)
	}

	if err := ws.SetReadDeadline(time.Now().Add(a.handshakeTimeout)); err != nil {
		ws.Close()
		return nil, err
	}
	var hello frame
	if err := ws.ReadJSON(&hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		ws.Close()
		return nil, fmt.Errorf("expected hello, got %q", hello.Op)
	}
	v, err := semver.NewVersion(hello.Version)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("companion version %q: %w", hello.Version, err)
	}
	if !constraint.Check(v) {
		ws.Close()
		return nil, fmt.Errorf("companion version %s does not satisfy %s", v, a.constraint)
	}
	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		ws.Close()
		return nil, err
	}

	c := &remoteConn{
		ws:      ws,
		version: v,
		waiting: make(map[int64]chan frame),
		done:    make(chan struct{}),
		onEvent: func(raw string) {
			if ep, ok := a.endpoint.get(); ok && ep.Deliver != nil {
				ep.Deliver(raw)
			}
		},
	}
	go c.readLoop()
	return c, nil
}

func (a *RemoteAdapter) Initialize(ep Endpoint) error {
	c, err := a.handle.get()
	if err != nil {
		return err
	}
	// Set first: the companion may emit events as soon as it is told where.
	a.endpoint.set(ep)
	_, err = c.roundTrip(frame{Op: opInit, Object: ep.Object, Method: ep.Method})
	return err
}

func (a *RemoteAdapter) InitializeClass(className string) error {
	c, err := a.handle.get()
	if err != nil {
		return err
	}
	_, err = c.roundTrip(frame{Op: opInitClass, Class: className})
	return err
}

func (a *RemoteAdapter) CallSync(domain, data, extra string) (string, error) {
	c, err := a.handle.get()
	if err != nil {
		return "", err
	}
	res, err := c.roundTrip(frame{Op: opSync, Domain: domain, Data: data, Extra: extra})
	if err != nil {
		return "", err
	}
	return res.Raw, nil
}

func (a *RemoteAdapter) CallAsync(domain, data, extra string) error {
	c, err := a.handle.get()
	if err != nil {
		return err
	}
	return c.send(frame{Op: opAsync, Domain: domain, Data: data, Extra: extra})
}

// Close tears down the connection. The adapter is unusable afterwards.
func (a *RemoteAdapter) Close() error {
	c, ok := a.handle.seal(fmt.Errorf("%w: adapter closed", ErrUnavailable))
	if !ok {
		return nil
	}
	return c.close(errors.New("adapter closed"))
}

// remoteConn multiplexes request/response frames over one WebSocket.
type remoteConn struct {
	ws      *websocket.Conn
	version *semver.Version
	onEvent func(raw string)

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	waiting map[int64]chan frame
	err     error
	done    chan struct{}
}

func (c *remoteConn) send(f frame) error {
	select {
	case <-c.done:
		return c.failure()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, f.Op, err)
	}
	return nil
}

func (c *remoteConn) roundTrip(f frame) (frame, error) {
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return frame{}, c.failure()
	}
	c.nextID++
	f.ID = c.nextID
	c.waiting[f.ID] = ch
	c.mu.Unlock()

	if err := c.send(f); err != nil {
		c.mu.Lock()
		delete(c.waiting, f.ID)
		c.mu.Unlock()
		return frame{}, err
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			return frame{}, errors.New(res.Error)
		}
		return res, nil
	case <-c.done:
		return frame{}, c.failure()
	}
}

func (c *remoteConn) readLoop() {
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.close(err)
			return
		}
		switch f.Op {
		case opResult:
			c.mu.Lock()
			ch, ok := c.waiting[f.ID]
			delete(c.waiting, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case opEvent:
			c.onEvent(f.Raw)
		}
	}
}

func (c *remoteConn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Errorf("%w: %v", ErrUnavailable, c.err)
}

func (c *remoteConn) close(cause error) error {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil
	}
	c.err = cause
	close(c.done)
	c.mu.Unlock()
	return c.ws.Close()
}

// Companion serves a local adapter to RemoteAdapters over WebSocket. It runs
// next to the real plugin (or an editor stub) and relays frames.
type Companion struct {
	adapter  Adapter
	version  string
	upgrader websocket.Upgrader
}

// NewCompanion creates a companion announcing version (PluginVersion if empty).
func NewCompanion(adapter Adapter, version string) *Companion {
	if version == "" {
		version = PluginVersion
	}
	return &Companion{
		adapter: adapter,
		version: version,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and relays frames until the peer leaves.
func (s *Companion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var writeMu sync.Mutex
	write := func(f frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(f)
	}

	if err := write(frame{Op: opHello, Version: s.version}); err != nil {
		return
	}

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}

		res := frame{Op: opResult, ID: f.ID}
		var opErr error
		switch f.Op {
		case opInit:
			opErr = s.adapter.Initialize(Endpoint{
				Object: f.Object,
				Method: f.Method,
				Deliver: func(raw string) {
					_ = write(frame{Op: opEvent, Raw: raw})
				},
			})
		case opInitClass:
			opErr = s.adapter.InitializeClass(f.Class)
		case opSync:
			res.Raw, opErr = s.adapter.CallSync(f.Domain, f.Data, f.Extra)
		case opAsync:
			// No result frame: a failure travels back as a failed event.
			if err := s.adapter.CallAsync(f.Domain, f.Data, f.Extra); err != nil {
				id, extra, _ := wire.DecodeAsyncExtra(f.Extra)
				ev := wire.Event{
					Message: wire.Message{Domain: f.Domain, Extra: extra, CorrelationID: id},
					Error:   err.Error(),
				}
				_ = write(frame{Op: opEvent, Raw: wire.EncodeEvent(ev)})
			}
			continue
		default:
			opErr = fmt.Errorf("unknown op %q", f.Op)
		}
		if opErr != nil {
			res.Error = opErr.Error()
		}
		if err := write(res); err != nil {
			return
		}
	}
}
