package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/nbridge/internal/wire"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestCall creates an awaiting call with minimal required fields.
func createTestCall(session string, id int64, domain, mode string) CallRecord {
	return CallRecord{
		Session:       session,
		CorrelationID: wire.CorrelationID(id),
		Domain:        domain,
		Mode:          mode,
		Data:          "payload",
		State:         "awaiting",
		IssuedAt:      testEpoch.Add(time.Duration(id) * time.Millisecond),
	}
}
