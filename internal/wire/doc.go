// Package wire defines the value objects exchanged with native plugins and
// the delimiter codec used on the native boundary.
//
// This package contains types and pure functions only. Every other internal
// package imports wire; wire imports nothing internal.
//
// Key constraints:
//   - Every native call has the fixed shape (domain, data, extra)
//   - Fields never contain the wire delimiter
//   - All strings crossing the boundary are valid UTF-8 in NFC form
//   - Correlation ids are logical sequence numbers, never wall-clock values
package wire
