package config

import (
	"fmt"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/store"
	"github.com/roach88/nbridge/internal/wire"
)

// HostBindings carries what only the host application can provide: the
// JNI class loader on Android, the symbol table on iOS, and editor stub
// scripts on desktop.
type HostBindings struct {
	ClassLoader  platform.ClassLoader
	SymbolLoader platform.SymbolLoader
	Editor       []platform.EditorOption
}

// NewAdapter selects the platform adapter once. It returns a nil adapter
// (and no error) when no native platform is available; the dispatcher then
// answers every call with NativeUnavailable.
func (c Config) NewAdapter(h HostBindings) (platform.Adapter, error) {
	kind, err := platform.Detect(c.Platform)
	if err != nil {
		return nil, err
	}

	switch kind {
	case platform.KindAndroid:
		return platform.NewAndroidAdapter(h.ClassLoader, c.Android.PluginClass), nil
	case platform.KindIOS:
		return platform.NewIOSAdapter(h.SymbolLoader), nil
	case platform.KindEditor:
		return platform.NewEditorAdapter(h.Editor...), nil
	case platform.KindRemote:
		return platform.NewRemoteAdapter(c.Remote.URL,
			platform.WithHandshakeTimeout(c.HandshakeTimeout()),
			platform.WithVersionConstraint(c.Remote.VersionConstraint),
		), nil
	case platform.KindNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported platform %q", kind)
}

// DispatcherOptions translates the sync and receiver settings.
func (c Config) DispatcherOptions() []bridge.Option {
	policy, _ := bridge.ParseBusyPolicy(c.Sync.BusyPolicy)
	return []bridge.Option{
		bridge.WithSyncTimeout(c.SyncTimeout()),
		bridge.WithBusyPolicy(policy),
		bridge.WithReceiverEndpoint(c.Receiver.Object, c.Receiver.Method),
	}
}

// OpenJournal opens the configured journal, or returns nil when journaling
// is disabled.
func (c Config) OpenJournal() (*store.Store, error) {
	if !c.Journal.Enabled {
		return nil, nil
	}
	s, err := store.Open(c.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", c.Journal.Path, err)
	}
	return s, nil
}

// ClassConfiguration is the InitializeClass payload for class_name.
func (c Config) ClassConfiguration() wire.Configuration {
	return wire.Configuration{ClassName: c.ClassName}
}
