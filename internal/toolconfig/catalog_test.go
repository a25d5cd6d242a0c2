package toolconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTool(t *testing.T, dir, filename, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644))
}

func TestCatalog_LoadDir_HappyPath(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "echo.json", `{
		"name": "echo",
		"description": "echoes text",
		"command": "echo",
		"synchronous": true,
		"input_schema": {"type": "object", "properties": {"text": {"type": "string"}}}
	}`)

	cat := NewCatalog()
	require.NoError(t, cat.LoadDir(dir))

	def, ok := cat.Get("echo")
	require.True(t, ok)
	assert.True(t, def.IsSynchronous())
	assert.Equal(t, DefaultTimeoutSeconds, def.GetTimeoutSeconds())

	require.NoError(t, def.ValidateArguments(map[string]interface{}{"text": "hi"}))
	assert.Error(t, def.ValidateArguments(map[string]interface{}{"text": 5}))
}

func TestCatalog_LoadDir_RejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "a.json", `{"name": "dup", "command": "echo"}`)
	writeTool(t, dir, "b.json", `{"name": "dup", "command": "echo"}`)

	cat := NewCatalog()
	err := cat.LoadDir(dir)
	assert.Error(t, err)
}

func TestCatalog_LoadDir_RejectsBadName(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "bad.json", `{"name": "1bad", "command": "echo"}`)

	cat := NewCatalog()
	assert.Error(t, cat.LoadDir(dir))
}

func TestCatalog_LoadDir_SequenceRequiresSteps(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "seq.json", `{"name": "seq", "command": "sequence"}`)

	cat := NewCatalog()
	assert.Error(t, cat.LoadDir(dir))
}

func TestCatalog_LoadDir_RejectsCyclicSequence(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "a.json", `{"name": "a", "command": "sequence", "sequence": [{"tool": "b"}]}`)
	writeTool(t, dir, "b.json", `{"name": "b", "command": "sequence", "sequence": [{"tool": "a"}]}`)

	cat := NewCatalog()
	assert.Error(t, cat.LoadDir(dir))
}

func TestCatalog_LoadDir_RetainsOldSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "echo.json", `{"name": "echo", "command": "echo"}`)

	cat := NewCatalog()
	require.NoError(t, cat.LoadDir(dir))

	// Now make the directory unparsable.
	writeTool(t, dir, "broken.json", `{not json`)
	err := cat.LoadDir(dir)
	assert.Error(t, err)

	// Previous snapshot must still be there.
	_, ok := cat.Get("echo")
	assert.True(t, ok)
}

func TestCatalog_PathProperties(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "cat.json", `{
		"name": "cat_file",
		"command": "cat",
		"input_schema": {"type": "object", "properties": {"path": {"type": "string", "format": "path"}}}
	}`)

	cat := NewCatalog()
	require.NoError(t, cat.LoadDir(dir))

	def, _ := cat.Get("cat_file")
	paths, err := def.PathProperties()
	require.NoError(t, err)
	assert.Equal(t, []string{"path"}, paths)
}
