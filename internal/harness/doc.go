// Package harness provides conformance testing for the bridge dispatcher.
//
// A scenario scripts the native side through the editor stub, registers
// recording receivers, drives a real dispatcher step by step and then
// checks what the receivers saw and what the journal recorded.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: ads_roundtrip
//	description: "Async calls reach the receiver of their domain"
//	sync_timeout: 50ms
//	scripts:
//	  ads:
//	    data: loaded
//	    extra: banner
//	receivers: [ads]
//	steps:
//	  - call_async: { domain: ads, data: load }
//	    expect: { correlation_id: 1 }
//	  - drain: true
//	assertions:
//	  - type: delivered
//	    domain: ads
//	    data: loaded
//	  - type: state
//	    correlation_id: 1
//	    state: resolved
//
// # Steps
//
//   - call_sync, call_async: issue a call; expect checks the immediate outcome
//   - concurrent_sync: fire count sync calls at once
//   - native_event, raw_event: inject a callback as native code would
//   - forget, drain, reregister, reset, initialize_class
//   - set_script: change the editor stub's answer for a domain
//   - wait_abandoned: wait for timed-out native calls to return
//
// # Assertion Types
//
//   - delivered: some receiver invocation matches the filters
//   - delivered_count: exactly count invocations match
//   - dropped_count: exactly count journaled drops (by domain and reason)
//   - state: the journaled state (and error code) of one call
//   - max_concurrent_sync: the stub never saw more sync calls at once
//
// # Deterministic Testing
//
// Every scenario runs with a fixed session token, a stepping clock, an
// in-memory journal and inline editor replies. Timestamps are left out of
// the trace, so traces are byte-identical across runs and can be compared
// against golden files.
package harness
