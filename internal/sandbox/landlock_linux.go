//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LinuxSandbox confines commands using Landlock rule-sets installed in the
// process's own credentials before exec, rather than wrapping the command in
// an external sandboxing binary.
//
// Maps to: codex-rs/core/src/sandbox/linux.rs (landlock path)
type LinuxSandbox struct{}

// Available returns true if the running kernel supports Landlock and exposes
// at least ABI version 1.
func (l *LinuxSandbox) Available() bool {
	abi, err := unix.LandlockGetABIVersion()
	return err == nil && abi >= 1
}

// Transform installs a Landlock rule-set restricting the process (and every
// child it execs afterward) to the policy's writable roots plus a fixed set
// of read-only system paths toolchains need. Unlike bwrap-based wrapping,
// this mutates the calling process's own Landlock ruleset via
// landlock_restrict_self, so the returned ExecEnv.Command is the original
// command unchanged — the confinement is already in effect by the time it
// runs.
func (l *LinuxSandbox) Transform(spec CommandSpec, policy *SandboxPolicy) (*ExecEnv, error) {
	if policy == nil || !policy.IsRestricted() {
		return &ExecEnv{
			Command: append([]string{spec.Program}, spec.Args...),
			Cwd:     spec.Cwd,
		}, nil
	}

	if err := installLandlockRuleset(policy); err != nil {
		return nil, fmt.Errorf("landlock: %w", err)
	}

	env := make(map[string]string)
	if !policy.NetworkAccess {
		env["AHMA_SANDBOX_NETWORK_DISABLED"] = "1"
	}

	return &ExecEnv{
		Command: append([]string{spec.Program}, spec.Args...),
		Cwd:     spec.Cwd,
		Env:     env,
	}, nil
}

// readOnlySystemPaths are granted read+execute access in every restricted
// mode so toolchains (compilers, interpreters, dynamic linkers) keep working.
var readOnlySystemPaths = []string{"/usr", "/lib", "/lib64", "/etc", "/bin", "/sbin", "/tmp"}

// installLandlockRuleset creates a Landlock rule-set permitting read-only
// access to the system paths above, read+write+execute under the policy's
// writable roots (read-only mode adds no further rule), and restricts
// the calling thread to it via landlock_restrict_self. This is irreversible
// for the lifetime of the process — exactly the "irrevocable per-process
// confinement" the sandbox enforcer promises.
func installLandlockRuleset(policy *SandboxPolicy) error {
	abi, err := unix.LandlockGetABIVersion()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKernelUnsupported, err)
	}

	const readOnlyAccess = unix.LANDLOCK_ACCESS_FS_READ_FILE | unix.LANDLOCK_ACCESS_FS_READ_DIR |
		unix.LANDLOCK_ACCESS_FS_EXECUTE
	const readWriteAccess = readOnlyAccess | unix.LANDLOCK_ACCESS_FS_WRITE_FILE |
		unix.LANDLOCK_ACCESS_FS_MAKE_REG | unix.LANDLOCK_ACCESS_FS_MAKE_DIR |
		unix.LANDLOCK_ACCESS_FS_REMOVE_FILE | unix.LANDLOCK_ACCESS_FS_REMOVE_DIR

	attr := unix.LandlockRulesetAttr{
		HandledAccessFs: readWriteAccess,
	}
	rulesetFd, err := unix.LandlockCreateRuleset(&attr, unix.SizeofLandlockRulesetAttr, 0)
	if err != nil {
		return fmt.Errorf("landlock_create_ruleset (abi %d): %w", abi, err)
	}
	defer unix.Close(rulesetFd)

	for _, p := range readOnlySystemPaths {
		if err := addLandlockPathRule(rulesetFd, p, readOnlyAccess); err != nil {
			// Missing system paths are not fatal; toolchains vary per image.
			continue
		}
	}

	switch policy.Mode {
	case ModeWorkspaceWrite:
		for _, root := range policy.WritableRoots {
			if err := addLandlockPathRule(rulesetFd, string(root), readWriteAccess); err != nil {
				return fmt.Errorf("adding writable root %s: %w", root, err)
			}
		}
	case ModeReadOnly:
		// Only the read-only system paths above are granted; read-only mode
		// adds no rule for writable roots or the caller's Cwd.
	default:
		return fmt.Errorf("unsupported sandbox mode: %s", policy.Mode)
	}

	if err := unix.LandlockRestrictSelf(rulesetFd, 0); err != nil {
		return fmt.Errorf("landlock_restrict_self: %w", err)
	}
	return nil
}

func addLandlockPathRule(rulesetFd int, path string, access uint64) error {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	ruleAttr := unix.LandlockPathBeneathAttr{
		AllowedAccess: access,
		ParentFd:      int32(fd),
	}
	return unix.LandlockAddPathBeneathRule(rulesetFd, &ruleAttr, 0)
}
