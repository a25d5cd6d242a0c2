//go:build !linux && !darwin

package sandbox

// detectNestedSandboxPlatform has no detection mechanism on platforms
// without Landlock or Seatbelt; NewSandboxManager will already have fallen
// back to NoopSandbox, so nesting detection is moot here.
func detectNestedSandboxPlatform() (bool, string) {
	return false, ""
}
