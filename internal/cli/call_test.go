package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/platform"
	"github.com/roach88/nbridge/internal/wire"
)

func TestCallMissingArgs(t *testing.T) {
	_, _, err := execute(t, "call")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts between 1 and 2 arg")
}

func TestCallSyncEchoJSON(t *testing.T) {
	cfg := editorConfig(t, "")

	out, _, err := execute(t, "--config", cfg, "--format", "json", "call", "ads", "ping", "--extra", "slot=1")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   CallResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.ID)
	assert.Equal(t, "sync", resp.Data.Mode)
	assert.Equal(t, "ads", resp.Data.Domain)
	assert.Equal(t, "ping", resp.Data.Data)
	assert.Equal(t, "slot=1", resp.Data.Extra)
	assert.NotEmpty(t, resp.Data.Session)
}

func TestCallAsyncText(t *testing.T) {
	cfg := editorConfig(t, "")
	scripts := writeFile(t, "scripts.yaml", "ads:\n  data: loaded\n  extra: banner\n")

	out, _, err := execute(t, "--config", cfg, "call", "ads", "load", "--async", "--wait", "2s", "--scripts", scripts)
	require.NoError(t, err)
	assert.Contains(t, out, "async call 1 on ads")
	assert.Contains(t, out, "data:  loaded")
	assert.Contains(t, out, "extra: banner")
}

func TestCallNativeError(t *testing.T) {
	cfg := editorConfig(t, "")
	scripts := writeFile(t, "scripts.yaml", "ads:\n  data: x\n  native_error: no fill\n")

	out, _, err := execute(t, "--config", cfg, "call", "ads", "load", "--scripts", scripts)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E101]")
	assert.Contains(t, out, "no fill")
}

func TestCallAsyncTimeout(t *testing.T) {
	cfg := editorConfig(t, "")
	scripts := writeFile(t, "scripts.yaml", "ads:\n  silent: true\n")

	out, _, err := execute(t, "--config", cfg, "--format", "json", "call", "ads", "load", "--async", "--wait", "50ms", "--scripts", scripts)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCallTimeout, resp.Error.Code)
}

func TestCallNoPlatform(t *testing.T) {
	cfg := writeFile(t, "nbridge.yaml", "platform: none\nlogging:\n  level: error\n")

	out, _, err := execute(t, "--config", cfg, "call", "ads", "load")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E103]")
}

func TestCallBadScripts(t *testing.T) {
	cfg := editorConfig(t, "")
	scripts := writeFile(t, "scripts.yaml", "ads:\n  unknown_field: 1\n")

	_, _, err := execute(t, "--config", cfg, "call", "ads", "load", "--scripts", scripts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// noisyAdapter floods the domain with unsolicited events before each async
// call is answered.
type noisyAdapter struct {
	*platform.EditorAdapter
	burst int
}

func (a *noisyAdapter) CallAsync(domain, data, extra string) error {
	for i := 0; i < a.burst; i++ {
		a.Emit(wire.Event{Message: wire.Message{Domain: domain, Data: "tick"}})
	}
	return a.EditorAdapter.CallAsync(domain, data, extra)
}

func TestCallAsyncSurvivesUnsolicitedBurst(t *testing.T) {
	adapter := &noisyAdapter{
		EditorAdapter: platform.NewEditorAdapter(platform.WithScript("ads", platform.Script{Data: "loaded"})),
		burst:         200,
	}
	d := bridge.New(adapter, bridge.WithSessionGenerator(bridge.NewFixedGenerator("burst")))

	res, err := callAsync(context.Background(), d, wire.Message{Domain: "ads", Data: "load"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ID)
	assert.Equal(t, "loaded", res.Data)
	assert.Equal(t, 0, d.Stats().Pending)
}
