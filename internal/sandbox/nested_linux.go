//go:build linux

package sandbox

import (
	"os"
	"strings"
)

// detectNestedSandboxPlatform checks /proc/self/status for markers that this
// process already runs under a restrictive Landlock ruleset or seccomp
// filter installed by an outer sandbox (e.g. a devcontainer or IDE agent
// runner). Only the Seccomp field is checked: a non-zero value indicates
// nesting. An outer Landlock ruleset alone is not detected.
func detectNestedSandboxPlatform() (bool, string) {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		// Can't introspect; assume not nested rather than false-abort on
		// exotic /proc configurations.
		return false, ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Seccomp:") {
			fields := strings.Fields(line)
			if len(fields) == 2 && fields[1] != "0" {
				return true, "process already runs under a seccomp filter (outer sandbox)"
			}
		}
	}
	return false, ""
}
