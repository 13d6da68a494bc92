package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string           // Assertion type for categorization
	Expected   string           // Human-readable expected outcome
	Actual     string           // Human-readable actual outcome
	Deliveries []DeliveryRecord // Every delivery, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Deliveries) > 0 {
		fmt.Fprintf(&buf, "\nDeliveries:\n")
		for i, d := range e.Deliveries {
			fmt.Fprintf(&buf, "  [%d] %s#%d id=%d data=%q", i+1, d.Domain, d.Receiver, d.CorrelationID, d.Data)
			if d.Error != "" {
				fmt.Fprintf(&buf, " error=%s", d.Error)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertDelivered:
		return assertDelivered(result.Trace.Deliveries, a)
	case AssertDeliveredCount:
		return assertDeliveredCount(result.Trace.Deliveries, a)
	case AssertDroppedCount:
		return assertDroppedCount(result.Trace, a)
	case AssertState:
		return assertState(result.Trace.Calls, a)
	case AssertMaxConcurrentSync:
		return assertMaxConcurrentSync(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matchDelivery applies the optional filters of a to d.
func matchDelivery(d DeliveryRecord, a Assertion) bool {
	if d.Domain != a.Domain {
		return false
	}
	if a.Data != nil && d.Data != *a.Data {
		return false
	}
	if a.Error != "" && d.Error != a.Error {
		return false
	}
	if a.Receiver != 0 && d.Receiver != a.Receiver {
		return false
	}
	if a.CorrelationID != 0 && d.CorrelationID != a.CorrelationID {
		return false
	}
	return true
}

// describe renders the filters of a delivery assertion.
func describe(a Assertion) string {
	parts := []string{"domain=" + a.Domain}
	if a.Data != nil {
		parts = append(parts, fmt.Sprintf("data=%q", *a.Data))
	}
	if a.Error != "" {
		parts = append(parts, "error="+a.Error)
	}
	if a.Receiver != 0 {
		parts = append(parts, fmt.Sprintf("receiver=%d", a.Receiver))
	}
	if a.CorrelationID != 0 {
		parts = append(parts, fmt.Sprintf("id=%d", a.CorrelationID))
	}
	return strings.Join(parts, " ")
}

// assertDelivered checks that at least one delivery matches every set filter.
func assertDelivered(deliveries []DeliveryRecord, a Assertion) error {
	for _, d := range deliveries {
		if matchDelivery(d, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:       a.Type,
		Expected:   "a delivery with " + describe(a),
		Actual:     fmt.Sprintf("%d deliveries, none matching", len(deliveries)),
		Deliveries: deliveries,
	}
}

// assertDeliveredCount checks how many deliveries match.
func assertDeliveredCount(deliveries []DeliveryRecord, a Assertion) error {
	n := 0
	for _, d := range deliveries {
		if matchDelivery(d, a) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:       a.Type,
			Expected:   fmt.Sprintf("%d deliveries with %s", *a.Count, describe(a)),
			Actual:     fmt.Sprintf("%d", n),
			Deliveries: deliveries,
		}
	}
	return nil
}

// assertDroppedCount counts journaled drops, optionally filtered by domain
// and reason.
func assertDroppedCount(trace TraceSnapshot, a Assertion) error {
	n := 0
	for _, d := range trace.Drops {
		if a.Domain != "" && d.Domain != a.Domain {
			continue
		}
		if a.Reason != "" && d.Reason != a.Reason {
			continue
		}
		n++
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d drops (domain=%q reason=%q)", *a.Count, a.Domain, a.Reason),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertState checks the journaled state of one call.
func assertState(calls []CallRecord, a Assertion) error {
	for _, c := range calls {
		if c.CorrelationID != a.CorrelationID {
			continue
		}
		if c.State != a.State {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("call %d in state %s", a.CorrelationID, a.State),
				Actual:   c.State,
			}
		}
		if a.Error != "" && c.ErrorCode != a.Error {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("call %d with error %s", a.CorrelationID, a.Error),
				Actual:   c.ErrorCode,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("call %d in state %s", a.CorrelationID, a.State),
		Actual:   "call not journaled",
	}
}

// assertMaxConcurrentSync checks the stub's sync overlap high-water mark.
func assertMaxConcurrentSync(result *Result, a Assertion) error {
	if result.MaxConcurrentSync != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("at most %d sync calls in flight", *a.Count),
			Actual:   fmt.Sprintf("%d", result.MaxConcurrentSync),
		}
	}
	return nil
}
