package wire

import "strconv"

// CorrelationID identifies one issued call for the lifetime of a dispatcher.
// Zero means "uncorrelated": the event is not an answer to any call.
type CorrelationID int64

// String renders the id the way it travels on the wire.
func (id CorrelationID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Message is the unit of exchange with a native plugin.
//
// Domain names the native feature namespace ("GPM_WEBVIEW", "ads", ...).
// Data is an opaque payload, usually JSON produced by the domain client.
// Extra is a free-form side channel with the same constraints as Data.
type Message struct {
	Domain        string        `json:"domain" yaml:"domain"`
	Data          string        `json:"data" yaml:"data"`
	Extra         string        `json:"extra" yaml:"extra"`
	CorrelationID CorrelationID `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
}

// Configuration is the payload of InitializeClass. ClassName names the
// native class the plugin should bind (it may be empty for plugins that
// only need the default binding).
type Configuration struct {
	ClassName string `json:"class_name" yaml:"class_name"`
}

// CallMode distinguishes blocking calls from fire-and-callback calls.
type CallMode string

const (
	// ModeSync is a blocking call answered in place.
	ModeSync CallMode = "sync"

	// ModeAsync is answered later through the domain's receiver.
	ModeAsync CallMode = "async"
)

// Event is a decoded native-to-bridge callback.
type Event struct {
	Message

	// Error carries the native failure text; empty on success.
	Error string
}

// Failed reports whether the native side signalled a failure.
func (e Event) Failed() bool {
	return e.Error != ""
}
