// Package testutil holds deterministic stand-ins for the non-deterministic
// inputs of the bridge: session tokens and wall-clock time.
package testutil
