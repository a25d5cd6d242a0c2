package operation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Submit_ExactlyOnceTerminal(t *testing.T) {
	var fired int
	var lastSnap Snapshot
	m := NewMonitor(func(s Snapshot) {
		fired++
		lastSnap = s
	})

	id := m.Submit("echo", "", nil)
	require.NoError(t, m.Finish(id, Completed, intPtr(0), []byte("hi")))
	require.NoError(t, m.Finish(id, Failed, intPtr(1), nil)) // second call must be a no-op

	assert.Equal(t, 1, fired)
	assert.Equal(t, Completed, lastSnap.State)
	assert.Equal(t, "hi", lastSnap.Output)
}

func TestMonitor_Get_UnknownOpID(t *testing.T) {
	m := NewMonitor(nil)
	_, err := m.Get("op_999")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestMonitor_Cancel_InvokesHandle(t *testing.T) {
	var cancelled bool
	m := NewMonitor(nil)
	id := m.Submit("sleep2", "", func(reason string) { cancelled = true })

	require.NoError(t, m.Cancel(id, "client requested"))
	assert.True(t, cancelled)
}

func TestMonitor_Cancel_NoOpOnTerminal(t *testing.T) {
	var cancelled bool
	m := NewMonitor(nil)
	id := m.Submit("echo", "", func(reason string) { cancelled = true })
	require.NoError(t, m.Finish(id, Completed, intPtr(0), nil))

	require.NoError(t, m.Cancel(id, "too late"))
	assert.False(t, cancelled)
}

func TestMonitor_Await_ReturnsWhenAllTerminal(t *testing.T) {
	m := NewMonitor(nil)
	id := m.Submit("echo", "", nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = m.Finish(id, Completed, intPtr(0), []byte("done"))
	}()

	snaps := m.Await(Filter{}, 2*time.Second, nil)
	require.Len(t, snaps, 1)
	assert.Equal(t, Completed, snaps[0].State)
}

func TestMonitor_List_FiltersByToolName(t *testing.T) {
	m := NewMonitor(nil)
	m.Submit("echo", "", nil)
	m.Submit("sleep2", "", nil)

	snaps := m.List(Filter{ToolName: "sleep2"})
	require.Len(t, snaps, 1)
	assert.Equal(t, "sleep2", snaps[0].ToolName)
}

func intPtr(i int) *int { return &i }
