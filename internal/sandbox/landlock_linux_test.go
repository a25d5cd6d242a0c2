//go:build linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinuxSandbox_Transform_FullAccess(t *testing.T) {
	s := &LinuxSandbox{}
	spec := CommandSpec{Program: "bash", Args: []string{"-c", "echo hello"}, Cwd: "/tmp"}
	env, err := s.Transform(spec, &SandboxPolicy{Mode: ModeFullAccess})
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "-c", "echo hello"}, env.Command)
}

func TestLinuxSandbox_Transform_NilPolicy(t *testing.T) {
	s := &LinuxSandbox{}
	spec := CommandSpec{Program: "bash", Args: []string{"-c", "echo hello"}}
	env, err := s.Transform(spec, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "-c", "echo hello"}, env.Command)
}

func TestLinuxSandbox_Available_DoesNotPanic(t *testing.T) {
	s := &LinuxSandbox{}
	// Whatever the host kernel supports, Available must not panic and must
	// return a plain bool.
	_ = s.Available()
}
