package wire

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PayloadError describes why a message cannot be sent to native code.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Normalize validates m and returns a copy with every field in NFC form.
//
// Rules:
//   - domain must be non-empty after trimming whitespace
//   - every field must be valid UTF-8
//   - no field may contain Delimiter
func Normalize(m Message) (Message, error) {
	if strings.TrimSpace(m.Domain) == "" {
		return Message{}, &PayloadError{Field: "domain", Reason: "must not be empty"}
	}

	fields := []struct {
		name string
		val  *string
	}{
		{"domain", &m.Domain},
		{"data", &m.Data},
		{"extra", &m.Extra},
	}
	for _, f := range fields {
		if !utf8.ValidString(*f.val) {
			return Message{}, &PayloadError{Field: f.name, Reason: "invalid UTF-8"}
		}
		if strings.Contains(*f.val, Delimiter) {
			return Message{}, &PayloadError{Field: f.name, Reason: "contains the wire delimiter"}
		}
		*f.val = norm.NFC.String(*f.val)
	}
	return m, nil
}

// ValidDomain reports whether domain can name a receiver.
func ValidDomain(domain string) bool {
	return strings.TrimSpace(domain) != "" &&
		utf8.ValidString(domain) &&
		!strings.Contains(domain, Delimiter)
}
