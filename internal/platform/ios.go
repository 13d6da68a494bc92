package platform

import "fmt"

// Symbols is the foreign-function table exported by the iOS plugin. The
// host's cgo glue fills it in.
type Symbols struct {
	InitializeUnityObject func(object, method string)
	InitializeClass       func(className string)

	// OnRequestSync returns nil for a null C string.
	OnRequestSync  func(domain, data, extra string) *string
	OnRequestAsync func(domain, data, extra string)
}

func (s *Symbols) complete() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: no symbol table", ErrUnavailable)
	case s.InitializeUnityObject == nil:
		return fmt.Errorf("%w: missing symbol initializeUnityObject", ErrUnavailable)
	case s.InitializeClass == nil:
		return fmt.Errorf("%w: missing symbol initializeClass", ErrUnavailable)
	case s.OnRequestSync == nil:
		return fmt.Errorf("%w: missing symbol onRequestSync", ErrUnavailable)
	case s.OnRequestAsync == nil:
		return fmt.Errorf("%w: missing symbol onRequestAsync", ErrUnavailable)
	}
	return nil
}

// SymbolLoader resolves the plugin's symbol table.
type SymbolLoader func() (*Symbols, error)

// IOSAdapter calls the plugin's exported C functions.
type IOSAdapter struct {
	handle   lazyHandle[*Symbols]
	endpoint endpointHolder
}

// NewIOSAdapter creates an adapter that resolves its symbols on first use.
func NewIOSAdapter(loader SymbolLoader) *IOSAdapter {
	a := &IOSAdapter{}
	if loader != nil {
		a.handle.open = func() (*Symbols, error) {
			syms, err := loader()
			if err != nil {
				return nil, err
			}
			if err := syms.complete(); err != nil {
				return nil, err
			}
			return syms, nil
		}
	}
	return a
}

func (a *IOSAdapter) Kind() Kind { return KindIOS }

func (a *IOSAdapter) Initialize(ep Endpoint) error {
	syms, err := a.handle.get()
	if err != nil {
		return err
	}
	if err := guard(func() { syms.InitializeUnityObject(ep.Object, ep.Method) }); err != nil {
		return err
	}
	a.endpoint.set(ep)
	return nil
}

func (a *IOSAdapter) InitializeClass(className string) error {
	syms, err := a.handle.get()
	if err != nil {
		return err
	}
	return guard(func() { syms.InitializeClass(className) })
}

func (a *IOSAdapter) CallSync(domain, data, extra string) (string, error) {
	syms, err := a.handle.get()
	if err != nil {
		return "", err
	}
	var res *string
	if err := guard(func() { res = syms.OnRequestSync(domain, data, extra) }); err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	return *res, nil
}

func (a *IOSAdapter) CallAsync(domain, data, extra string) error {
	syms, err := a.handle.get()
	if err != nil {
		return err
	}
	return guard(func() { syms.OnRequestAsync(domain, data, extra) })
}

// Receive is called by the host glue when the plugin sends a message to
// object.method.
func (a *IOSAdapter) Receive(object, method, raw string) error {
	return a.endpoint.receive(object, method, raw)
}

// guard turns a panic in foreign code into an error.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native call panicked: %v", r)
		}
	}()
	fn()
	return nil
}
