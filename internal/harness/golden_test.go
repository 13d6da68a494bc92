package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGolden_Scenarios runs every scenario in testdata/scenarios and compares
// its trace with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -run TestGolden_Scenarios -update
func TestGolden_Scenarios(t *testing.T) {
	paths, err := DiscoverScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(p)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestTraceSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/unmatched_and_reregister.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := first.Trace.MarshalCanonical()
	require.NoError(t, err)
	b, err := second.Trace.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestTraceSnapshot_OmitsEmptyStepFields(t *testing.T) {
	ok := false
	snap := TraceSnapshot{
		ScenarioName: "s",
		Session:      "x",
		Steps: []StepRecord{
			{Op: "drain"},
			{Op: "forget", CorrelationID: 3, OK: &ok},
		},
	}

	out, err := snap.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"calls":[],"deliveries":[],"drops":[],"scenario_name":"s","session":"x",`+
			`"stats":{"delivered":0,"dropped":0,"failed":0,"issued":0,"resolved":0,"timed_out":0},`+
			`"steps":[{"op":"drain"},{"id":3,"ok":false,"op":"forget"}]}`,
		string(out))
}
