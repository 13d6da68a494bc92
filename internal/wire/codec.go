package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates fields of every string that crosses the native
// boundary. Native plugins split on exactly this token.
const Delimiter = "${gpm_communicator}"

// Wire layouts (⟂ is Delimiter):
//
//	sync response   domain⟂data⟂extra[⟂error]
//	native event    domain⟂data⟂extra[⟂correlation_id[⟂error]]
//	async extra     correlation_id⟂extra
const (
	maxResponseFields = 4
	maxEventFields    = 5
)

// EncodeAsyncExtra prefixes extra with the correlation id so the native side
// can echo it back in its event.
func EncodeAsyncExtra(id CorrelationID, extra string) string {
	return id.String() + Delimiter + extra
}

// DecodeAsyncExtra splits an extra produced by EncodeAsyncExtra. ok is false
// when extra carries no correlation prefix; the whole string is then
// returned unchanged.
func DecodeAsyncExtra(extra string) (CorrelationID, string, bool) {
	head, rest, found := strings.Cut(extra, Delimiter)
	if !found {
		return 0, extra, false
	}
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil || n <= 0 {
		return 0, extra, false
	}
	return CorrelationID(n), rest, true
}

// EncodeResponse renders a sync response the way native plugins return it.
func EncodeResponse(m Message, nativeErr string) string {
	parts := []string{m.Domain, m.Data, m.Extra}
	if nativeErr != "" {
		parts = append(parts, nativeErr)
	}
	return strings.Join(parts, Delimiter)
}

// DecodeResponse parses the raw result of a sync native call.
//
// An empty result is an empty message for the requesting domain, not an
// error. A result without any delimiter is taken as bare data. The second
// return value is the native error segment, empty on success.
func DecodeResponse(raw, requestDomain string) (Message, string, error) {
	if raw == "" {
		return Message{Domain: requestDomain}, "", nil
	}
	parts := strings.Split(raw, Delimiter)
	if len(parts) == 1 {
		return Message{Domain: requestDomain, Data: raw}, "", nil
	}
	if len(parts) > maxResponseFields {
		return Message{}, "", fmt.Errorf("response has %d fields, want at most %d", len(parts), maxResponseFields)
	}
	m := Message{Domain: field(parts, 0), Data: field(parts, 1), Extra: field(parts, 2)}
	if m.Domain == "" {
		m.Domain = requestDomain
	}
	return m, field(parts, 3), nil
}

// EncodeEvent renders an event in the native-to-bridge layout. Trailing
// empty segments are omitted.
func EncodeEvent(e Event) string {
	parts := []string{e.Domain, e.Data, e.Extra}
	if e.CorrelationID != 0 || e.Error != "" {
		id := ""
		if e.CorrelationID != 0 {
			id = e.CorrelationID.String()
		}
		parts = append(parts, id)
	}
	if e.Error != "" {
		parts = append(parts, e.Error)
	}
	return strings.Join(parts, Delimiter)
}

// DecodeEvent parses a native-to-bridge callback. Data, extra, correlation
// id and error are optional; the domain is not.
func DecodeEvent(raw string) (Event, error) {
	if raw == "" {
		return Event{}, fmt.Errorf("empty event")
	}
	parts := strings.Split(raw, Delimiter)
	if len(parts) > maxEventFields {
		return Event{}, fmt.Errorf("event has %d fields, want at most %d", len(parts), maxEventFields)
	}

	e := Event{
		Message: Message{Domain: field(parts, 0), Data: field(parts, 1), Extra: field(parts, 2)},
		Error:   field(parts, 4),
	}
	if strings.TrimSpace(e.Domain) == "" {
		return Event{}, fmt.Errorf("event has no domain")
	}

	if idText := field(parts, 3); idText != "" {
		n, err := strconv.ParseInt(idText, 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("parse correlation id %q: %w", idText, err)
		}
		if n < 0 {
			return Event{}, fmt.Errorf("negative correlation id %d", n)
		}
		e.CorrelationID = CorrelationID(n)
	}
	return e, nil
}

func field(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}
