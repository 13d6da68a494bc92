package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbridge/internal/store"
)

// journalCall issues one sync call with the journal enabled and returns the
// session it ran in.
func journalCall(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	out, _, err := execute(t, append([]string{"--config", cfg, "--format", "json", "call"}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Data CallResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.Session)
	return resp.Data.Session
}

func TestTraceNonExistentDatabase(t *testing.T) {
	out, _, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestTraceListsSessions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := editorConfig(t, db)

	first := journalCall(t, cfg, "ads", "one")
	second := journalCall(t, cfg, "ads", "two")
	require.NotEqual(t, first, second)

	out, _, err := execute(t, "trace", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string                 `json:"status"`
		Data   []store.SessionSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)

	sessions := []string{resp.Data[0].Session, resp.Data[1].Session}
	assert.ElementsMatch(t, []string{first, second}, sessions)
	assert.Equal(t, 1, resp.Data[0].Calls)
}

func TestTraceSessionText(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := editorConfig(t, db)
	session := journalCall(t, cfg, "ads", "ping", "--extra", "slot")

	out, _, err := execute(t, "trace", "--db", db, "--session", session)
	require.NoError(t, err)
	assert.Contains(t, out, "Session: "+session)
	assert.Contains(t, out, `[1]`)
	assert.Contains(t, out, `sync ads data="ping" extra="slot"`)
	assert.Contains(t, out, `-> resolved data="ping" extra="slot"`)
	assert.Contains(t, out, "Stats: 1 calls (1 resolved, 0 failed, 0 timed out, 0 awaiting), 0 dropped")
}

func TestTraceSessionJSONWithDomainFilter(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := editorConfig(t, db)
	session := journalCall(t, cfg, "ads", "ping")

	out, _, err := execute(t, "trace", "--db", db, "--session", session, "--domain", "iap", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, session, resp.Data.Session)
	assert.Empty(t, resp.Data.Calls)
	assert.Equal(t, 0, resp.Data.Stats.Calls)
}

func TestTraceUnknownSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := editorConfig(t, db)
	journalCall(t, cfg, "ads", "ping")

	out, _, err := execute(t, "trace", "--db", db, "--session", "no-such-session")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "session not found")
}

func TestBuildTraceResult(t *testing.T) {
	calls := []store.CallRecord{
		{CorrelationID: 1, Domain: "ads", State: "resolved"},
		{CorrelationID: 2, Domain: "ads", State: "failed", ErrorCode: "NATIVE_ERROR"},
		{CorrelationID: 3, Domain: "iap", State: "timed_out"},
		{CorrelationID: 4, Domain: "ads", State: "awaiting"},
	}
	drops := []store.Drop{
		{CorrelationID: 3, Domain: "iap", Reason: "late"},
		{CorrelationID: 9, Domain: "ads", Reason: "unmatched"},
	}

	all := buildTraceResult("s", calls, drops, "")
	assert.Equal(t, TraceStats{Calls: 4, Resolved: 1, Failed: 1, TimedOut: 1, Awaiting: 1, Drops: 2}, all.Stats)

	ads := buildTraceResult("s", calls, drops, "ads")
	assert.Equal(t, TraceStats{Calls: 3, Resolved: 1, Failed: 1, Awaiting: 1, Drops: 1}, ads.Stats)
	assert.Equal(t, "unmatched", ads.Drops[0].Reason)
}
