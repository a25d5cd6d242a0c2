package pathvalidate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScope struct {
	root string
}

func (f *fakeScope) ValidateInScope(path string) error {
	if len(path) >= len(f.root) && path[:len(f.root)] == f.root {
		return nil
	}
	return errors.New("outside scope")
}

func TestValidate_RelativeResolvedAgainstCwd(t *testing.T) {
	scope := &fakeScope{root: "/tmp/ws"}
	resolved, err := Validate(scope, "sub/file.txt", "/tmp/ws")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ws/sub/file.txt", resolved)
}

func TestValidate_RejectsNullByte(t *testing.T) {
	scope := &fakeScope{root: "/tmp/ws"}
	_, err := Validate(scope, "bad\x00name", "/tmp/ws")
	assert.ErrorIs(t, err, ErrNullByte)
}

func TestValidate_RejectsEscape(t *testing.T) {
	scope := &fakeScope{root: "/tmp/ws"}
	_, err := Validate(scope, "/etc/passwd", "/tmp/ws")
	assert.ErrorIs(t, err, ErrOutsideScope)
}

func TestValidateWorkingDirectory_DefaultsToScopeRoot(t *testing.T) {
	scope := &fakeScope{root: "/tmp/ws"}
	resolved, err := ValidateWorkingDirectory(scope, "", "/tmp/ws")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ws", resolved)
}
