//go:build darwin

package sandbox

import "os"

// seatbeltMarkerEnv is set by a parent invocation of this same binary once
// it has installed a Seatbelt profile on itself, so a child process (e.g. a
// re-exec under --mode stdio from inside an already-sandboxed IDE terminal)
// can detect that it is already confined.
const seatbeltMarkerEnv = "AHMA_SEATBELT_ACTIVE"

// detectNestedSandboxPlatform checks whether this process already runs
// inside a Seatbelt container, via the marker environment variable this
// package sets on every child it confines (see SeatbeltSandbox.Transform).
func detectNestedSandboxPlatform() (bool, string) {
	if os.Getenv(seatbeltMarkerEnv) == "1" {
		return true, "process already runs under an outer Seatbelt profile (AHMA_SEATBELT_ACTIVE=1)"
	}
	return false, ""
}
