package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nbridge/internal/wire"
)

// TraceSnapshot captures the complete trace of a scenario execution.
// Everything in it is deterministic for a given scenario: timestamps are
// left out and the session token is fixed.
type TraceSnapshot struct {
	ScenarioName string           `json:"scenario_name"`
	Session      string           `json:"session"`
	Steps        []StepRecord     `json:"steps"`
	Deliveries   []DeliveryRecord `json:"deliveries"`
	Calls        []CallRecord     `json:"calls"`
	Drops        []DropRecord     `json:"drops"`
	Stats        Stats            `json:"stats"`
}

// Stats are the dispatcher counters at the end of a scenario.
type Stats struct {
	Issued    int64 `json:"issued"`
	Resolved  int64 `json:"resolved"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
	Dropped   int64 `json:"dropped"`
	Delivered int64 `json:"delivered"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization, which only handles maps, slices and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		m := map[string]any{"op": st.Op}
		if st.Domain != "" {
			m["domain"] = st.Domain
		}
		if st.CorrelationID != 0 {
			m["id"] = st.CorrelationID
		}
		if st.Data != "" {
			m["data"] = st.Data
		}
		if st.Extra != "" {
			m["extra"] = st.Extra
		}
		if st.Error != "" {
			m["error"] = st.Error
		}
		if st.Count != 0 {
			m["count"] = st.Count
		}
		if st.OK != nil {
			m["ok"] = *st.OK
		}
		steps[i] = m
	}

	deliveries := make([]any, len(s.Deliveries))
	for i, d := range s.Deliveries {
		m := map[string]any{
			"domain":   d.Domain,
			"receiver": d.Receiver,
			"id":       d.CorrelationID,
			"data":     d.Data,
			"extra":    d.Extra,
		}
		if d.Error != "" {
			m["error"] = d.Error
		}
		deliveries[i] = m
	}

	calls := make([]any, len(s.Calls))
	for i, c := range s.Calls {
		calls[i] = map[string]any{
			"id":             c.CorrelationID,
			"domain":         c.Domain,
			"mode":           c.Mode,
			"data":           c.Data,
			"extra":          c.Extra,
			"state":          c.State,
			"response_data":  c.ResponseData,
			"response_extra": c.ResponseExtra,
			"error_code":     c.ErrorCode,
		}
	}

	drops := make([]any, len(s.Drops))
	for i, d := range s.Drops {
		drops[i] = map[string]any{
			"id":     d.CorrelationID,
			"domain": d.Domain,
			"reason": d.Reason,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"session":       s.Session,
		"steps":         steps,
		"deliveries":    deliveries,
		"calls":         calls,
		"drops":         drops,
		"stats": map[string]any{
			"issued":    s.Stats.Issued,
			"resolved":  s.Stats.Resolved,
			"failed":    s.Stats.Failed,
			"timed_out": s.Stats.TimedOut,
			"dropped":   s.Stats.Dropped,
			"delivered": s.Stats.Delivered,
		},
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return wire.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file named
// after the scenario.
func AssertGolden(t *testing.T, result *Result) error {
	t.Helper()

	traceJSON, err := result.Trace.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Trace.ScenarioName, traceJSON)
	return nil
}
