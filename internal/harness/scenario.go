package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/wire"
)

// Scenario defines a conformance scenario: a scripted native side, the
// receivers the application registers, a sequence of steps driven through
// a real dispatcher, and assertions over what happened.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the fixed session token. Defaults to testutil.DefaultSession.
	Session string `yaml:"session,omitempty"`

	// Adapter is "editor" (default) or "none".
	Adapter string `yaml:"adapter,omitempty"`

	// SyncTimeout overrides the dispatcher's sync timeout.
	SyncTimeout time.Duration `yaml:"sync_timeout,omitempty"`

	// BusyPolicy is "queue" (default) or "fail".
	BusyPolicy string `yaml:"busy_policy,omitempty"`

	// Scripts configures the editor stub per domain.
	Scripts map[string]platform.Script `yaml:"scripts,omitempty"`

	// Receivers lists the domains that get a recording receiver before the
	// first step.
	Receivers []string `yaml:"receivers,omitempty"`

	// Steps are executed in order on one goroutine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Exactly one operation field must be set.
type Step struct {
	CallSync        *Call               `yaml:"call_sync,omitempty"`
	CallAsync       *Call               `yaml:"call_async,omitempty"`
	ConcurrentSync  *ConcurrentCall     `yaml:"concurrent_sync,omitempty"`
	NativeEvent     *NativeEvent        `yaml:"native_event,omitempty"`
	RawEvent        *string             `yaml:"raw_event,omitempty"`
	Forget          *int64              `yaml:"forget,omitempty"`
	Drain           bool                `yaml:"drain,omitempty"`
	Reregister      string              `yaml:"reregister,omitempty"`
	SetScript       *ScriptChange       `yaml:"set_script,omitempty"`
	InitializeClass *wire.Configuration `yaml:"initialize_class,omitempty"`
	Reset           bool                `yaml:"reset,omitempty"`
	WaitAbandoned   bool                `yaml:"wait_abandoned,omitempty"`

	// Expect checks the immediate outcome of call_sync, call_async and
	// initialize_class steps.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Call is the message of a call step.
type Call struct {
	Domain string `yaml:"domain"`
	Data   string `yaml:"data,omitempty"`
	Extra  string `yaml:"extra,omitempty"`
}

// ConcurrentCall fires Count sync calls from separate goroutines and waits
// for all of them.
type ConcurrentCall struct {
	Call  `yaml:",inline"`
	Count int `yaml:"count"`
}

// NativeEvent is a callback injected as if native code had sent it.
type NativeEvent struct {
	Domain        string `yaml:"domain"`
	Data          string `yaml:"data,omitempty"`
	Extra         string `yaml:"extra,omitempty"`
	CorrelationID int64  `yaml:"correlation_id,omitempty"`
	Error         string `yaml:"error,omitempty"`
}

// ScriptChange replaces the editor script of one domain.
type ScriptChange struct {
	Domain string          `yaml:"domain"`
	Script platform.Script `yaml:"script"`
}

// Expect describes the immediate outcome of a step. Error is a bridge error
// code; empty means the step must succeed. Data and Extra are compared only
// when set.
type Expect struct {
	Error         string  `yaml:"error,omitempty"`
	Data          *string `yaml:"data,omitempty"`
	Extra         *string `yaml:"extra,omitempty"`
	CorrelationID int64   `yaml:"correlation_id,omitempty"`
}

// Assertion validates the final trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Domain        string  `yaml:"domain,omitempty"`
	Data          *string `yaml:"data,omitempty"`
	Error         string  `yaml:"error,omitempty"`
	Receiver      int     `yaml:"receiver,omitempty"`
	CorrelationID int64   `yaml:"correlation_id,omitempty"`
	State         string  `yaml:"state,omitempty"`
	Reason        string  `yaml:"reason,omitempty"`
	Count         *int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertDelivered         = "delivered"
	AssertDeliveredCount    = "delivered_count"
	AssertDroppedCount      = "dropped_count"
	AssertState             = "state"
	AssertMaxConcurrentSync = "max_concurrent_sync"
)

// Adapter names.
const (
	AdapterEditor = "editor"
	AdapterNone   = "none"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Adapter {
	case "", AdapterEditor, AdapterNone:
	default:
		return fmt.Errorf("adapter must be %q or %q, got %q", AdapterEditor, AdapterNone, s.Adapter)
	}
	if _, ok := bridge.ParseBusyPolicy(s.BusyPolicy); !ok {
		return fmt.Errorf("busy_policy must be \"queue\" or \"fail\", got %q", s.BusyPolicy)
	}
	if s.SyncTimeout < 0 {
		return fmt.Errorf("sync_timeout must not be negative")
	}

	for i, domain := range s.Receivers {
		if !wire.ValidDomain(domain) {
			return fmt.Errorf("receivers[%d]: invalid domain %q", i, domain)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	ops := 0
	count := func(set bool) {
		if set {
			ops++
		}
	}
	count(step.CallSync != nil)
	count(step.CallAsync != nil)
	count(step.ConcurrentSync != nil)
	count(step.NativeEvent != nil)
	count(step.RawEvent != nil)
	count(step.Forget != nil)
	count(step.Drain)
	count(step.Reregister != "")
	count(step.SetScript != nil)
	count(step.InitializeClass != nil)
	count(step.Reset)
	count(step.WaitAbandoned)

	if ops != 1 {
		return fmt.Errorf("exactly one operation is required, got %d", ops)
	}

	if step.Expect != nil && step.CallSync == nil && step.CallAsync == nil && step.InitializeClass == nil {
		return fmt.Errorf("expect is only allowed on call_sync, call_async and initialize_class")
	}
	if step.ConcurrentSync != nil && step.ConcurrentSync.Count < 1 {
		return fmt.Errorf("concurrent_sync: count must be positive")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertDelivered:
		if a.Domain == "" {
			return fmt.Errorf("%s: domain is required", a.Type)
		}
	case AssertDeliveredCount:
		if a.Domain == "" || a.Count == nil {
			return fmt.Errorf("%s: domain and count are required", a.Type)
		}
	case AssertDroppedCount, AssertMaxConcurrentSync:
		if a.Count == nil {
			return fmt.Errorf("%s: count is required", a.Type)
		}
	case AssertState:
		if a.CorrelationID == 0 || a.State == "" {
			return fmt.Errorf("%s: correlation_id and state are required", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
