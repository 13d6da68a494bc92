package platform

import "fmt"

// AndroidPluginClass is the Java class exposing the plugin's static methods.
const AndroidPluginClass = "com.gpm.communicator.internal.MessageReceiver"

// Static method names on AndroidPluginClass.
const (
	javaInitializeUnityObject = "initializeUnityObject"
	javaInitializeClass       = "initializeClass"
	javaOnRequestSync         = "onRequestSync"
	javaOnRequestAsync        = "onRequestAsync"
)

// JavaClass is a handle to a Java class, implemented by the host's JNI glue.
// Java exceptions surface as errors.
type JavaClass interface {
	CallStatic(method string, args ...string) error

	// CallStaticString returns nil for a Java null.
	CallStaticString(method string, args ...string) (*string, error)
}

// ClassLoader resolves a Java class by name.
type ClassLoader func(className string) (JavaClass, error)

// AndroidAdapter calls the plugin's Java class through JNI.
type AndroidAdapter struct {
	className string
	handle    lazyHandle[JavaClass]
	endpoint  endpointHolder
}

// NewAndroidAdapter creates an adapter that loads pluginClass through
// loader on first use. An empty pluginClass means AndroidPluginClass.
func NewAndroidAdapter(loader ClassLoader, pluginClass string) *AndroidAdapter {
	if pluginClass == "" {
		pluginClass = AndroidPluginClass
	}
	a := &AndroidAdapter{className: pluginClass}
	if loader != nil {
		a.handle.open = func() (JavaClass, error) {
			jc, err := loader(pluginClass)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", pluginClass, err)
			}
			if jc == nil {
				return nil, fmt.Errorf("%w: class %s not found", ErrUnavailable, pluginClass)
			}
			return jc, nil
		}
	}
	return a
}

func (a *AndroidAdapter) Kind() Kind { return KindAndroid }

func (a *AndroidAdapter) Initialize(ep Endpoint) error {
	jc, err := a.handle.get()
	if err != nil {
		return err
	}
	if err := jc.CallStatic(javaInitializeUnityObject, ep.Object, ep.Method); err != nil {
		return fmt.Errorf("%s: %w", javaInitializeUnityObject, err)
	}
	a.endpoint.set(ep)
	return nil
}

func (a *AndroidAdapter) InitializeClass(className string) error {
	jc, err := a.handle.get()
	if err != nil {
		return err
	}
	return jc.CallStatic(javaInitializeClass, className)
}

func (a *AndroidAdapter) CallSync(domain, data, extra string) (string, error) {
	jc, err := a.handle.get()
	if err != nil {
		return "", err
	}
	res, err := jc.CallStaticString(javaOnRequestSync, domain, data, extra)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	return *res, nil
}

func (a *AndroidAdapter) CallAsync(domain, data, extra string) error {
	jc, err := a.handle.get()
	if err != nil {
		return err
	}
	return jc.CallStatic(javaOnRequestAsync, domain, data, extra)
}

// Receive is called by the host glue when Java sends a message to
// object.method (UnitySendMessage style).
func (a *AndroidAdapter) Receive(object, method, raw string) error {
	return a.endpoint.receive(object, method, raw)
}
