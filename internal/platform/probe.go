package platform

import (
	"fmt"
	"os"
	"runtime"
)

// androidBuildProp exists on every Android userland, including Linux
// binaries started from a terminal app.
var androidBuildProp = "/system/build.prop"

// ParseKind parses a configured platform name. "auto" and "" return ok with
// an empty kind, meaning Detect should probe.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", "auto":
		return "", nil
	case KindAndroid, KindIOS, KindEditor, KindRemote, KindNone:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Detect chooses the adapter kind once at startup. An explicit preference
// wins; otherwise the runtime is probed. Desktop systems get KindNone:
// the editor stub is only used when asked for.
func Detect(preference string) (Kind, error) {
	k, err := ParseKind(preference)
	if err != nil {
		return KindNone, err
	}
	if k != "" {
		return k, nil
	}
	return probe(runtime.GOOS), nil
}

func probe(goos string) Kind {
	switch goos {
	case "android":
		return KindAndroid
	case "ios":
		return KindIOS
	}
	if goos == "linux" && fileExists(androidBuildProp) {
		return KindAndroid
	}
	return KindNone
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
