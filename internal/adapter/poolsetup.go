package adapter

import (
	"fmt"

	"github.com/ahma/mcp-gateway/internal/execenv"
	"github.com/ahma/mcp-gateway/internal/sandbox"
	"github.com/ahma/mcp-gateway/internal/shellpool"
)

// BuildPoolConfig resolves one sandbox-wrapped shellpool.Config for a locked
// Scope. Transform is called exactly once: on Linux this installs the
// process-wide Landlock ruleset as a side effect (inherited by every shell
// the pool subsequently spawns), on macOS it returns a sandbox-exec-wrapped
// argv that every spawned shell reuses verbatim — one Transform call is
// correct for both, since Landlock's effect is process-wide+inherited while
// Seatbelt's wrapped command is pure and replayable.
//
// envPolicy filters which of this process's environment variables the
// pooled shells inherit (nil uses execenv.DefaultShellEnvironmentPolicy);
// any sandbox-specific additions Transform returns (e.g. a Seatbelt profile
// path) are layered on top so they always win over the base policy.
func BuildPoolConfig(scope *sandbox.Scope, size int, envPolicy *execenv.ShellEnvironmentPolicy) (shellpool.Config, error) {
	mgr, policy, err := scope.Manager()
	if err != nil {
		return shellpool.Config{}, fmt.Errorf("adapter: resolving sandbox manager: %w", err)
	}

	spec := sandbox.CommandSpec{Program: "/bin/sh", Args: []string{"-s"}, Cwd: scope.Root()}
	env, err := mgr.Transform(spec, policy)
	if err != nil {
		return shellpool.Config{}, fmt.Errorf("adapter: installing sandbox for shell pool: %w", err)
	}

	baseEnv := execenv.CreateEnv(envPolicy)
	for k, v := range env.Env {
		baseEnv[k] = v
	}

	cfg := shellpool.Config{
		Size:    size,
		Program: env.Command[0],
		Args:    env.Command[1:],
		Cwd:     env.Cwd,
		Env:     execenv.EnvMapToSlice(baseEnv),
	}
	return cfg, nil
}
