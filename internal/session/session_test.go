package session

import (
	"context"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChild connects a childProcess to an in-memory MCP test server instead
// of spawning a real stdio subprocess, the same substitution
// internal/mcp/manager_test.go's startTestServer makes for its client tests.
func fakeChild(t *testing.T) func(ctx context.Context, spec ChildSpec, root string) (*childProcess, error) {
	t.Helper()
	return func(ctx context.Context, spec ChildSpec, root string) (*childProcess, error) {
		server := gomcp.NewServer(&gomcp.Implementation{Name: "fake-child", Version: "1.0.0"}, nil)
		server.AddTool(&gomcp.Tool{
			Name:        "echo",
			Description: "echoes",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		}, func(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
			return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: "echoed"}}}, nil
		})

		serverTransport, clientTransport := gomcp.NewInMemoryTransports()
		go func() { _ = server.Run(ctx, serverTransport) }()

		client := gomcp.NewClient(&gomcp.Implementation{Name: "test-bridge", Version: "1.0.0"}, nil)
		sess, err := client.Connect(ctx, clientTransport, nil)
		require.NoError(t, err)

		return &childProcess{spec: spec, root: root, client: client, session: sess}, nil
	}
}

func TestSession_HandshakeViaSSEFirst(t *testing.T) {
	orig := spawnChildFunc
	spawnChildFunc = fakeChild(t)
	defer func() { spawnChildFunc = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewManager(ChildSpec{Command: "ahma-mcp", ToolsDir: "./tools", HandshakeTTL: time.Second})
	s := mgr.Create()
	assert.Equal(t, AwaitingBoth, s.State())

	events, unsub, err := s.OnSSESubscribe(ctx)
	require.NoError(t, err)
	defer unsub()
	assert.Equal(t, AwaitingSseOnly, s.State())

	require.NoError(t, s.OnInitialized())
	assert.Equal(t, RootsRequested, s.State())

	select {
	case ev := <-events:
		assert.Contains(t, string(ev), "roots/list")
	case <-time.After(time.Second):
		t.Fatal("expected a roots/list request on the SSE stream")
	}

	require.NoError(t, s.OnRootsListResponse(ctx, []string{"/tmp/ws"}))
	assert.Equal(t, Complete, s.State())

	result, err := s.CallTool(ctx, "echo", map[string]interface{}{})
	require.NoError(t, err)
	ctr := result.(*gomcp.CallToolResult)
	assert.Equal(t, "echoed", ctr.Content[0].(*gomcp.TextContent).Text)
}

func TestSession_HandshakeViaInitializedFirst(t *testing.T) {
	orig := spawnChildFunc
	spawnChildFunc = fakeChild(t)
	defer func() { spawnChildFunc = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewManager(ChildSpec{Command: "ahma-mcp", ToolsDir: "./tools", HandshakeTTL: time.Second})
	s := mgr.Create()

	require.NoError(t, s.OnInitialized())
	assert.Equal(t, AwaitingMcpOnly, s.State())

	events, unsub, err := s.OnSSESubscribe(ctx)
	require.NoError(t, err)
	defer unsub()
	assert.Equal(t, RootsRequested, s.State())

	<-events // drain roots/list request

	require.NoError(t, s.OnRootsListResponse(ctx, []string{"/tmp/ws"}))
	assert.Equal(t, Complete, s.State())
}

func TestSession_ToolsCallBeforeCompleteIsGatedThenReplayed(t *testing.T) {
	orig := spawnChildFunc
	spawnChildFunc = fakeChild(t)
	defer func() { spawnChildFunc = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewManager(ChildSpec{Command: "ahma-mcp", ToolsDir: "./tools", HandshakeTTL: 5 * time.Second})
	s := mgr.Create()

	resultCh := make(chan callOutcome, 1)
	go func() {
		res, err := s.CallTool(ctx, "echo", map[string]interface{}{})
		resultCh <- callOutcome{result: res, err: err}
	}()

	time.Sleep(20 * time.Millisecond) // let the queued call land before handshake completes

	_, _, err := s.OnSSESubscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, s.OnInitialized())
	require.NoError(t, s.OnRootsListResponse(ctx, []string{"/tmp/ws"}))

	select {
	case out := <-resultCh:
		require.NoError(t, out.err)
		ctr := out.result.(*gomcp.CallToolResult)
		assert.Equal(t, "echoed", ctr.Content[0].(*gomcp.TextContent).Text)
	case <-time.After(time.Second):
		t.Fatal("queued call never resolved after handshake completed")
	}
}

func TestSession_HandshakeTimeout(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(ChildSpec{Command: "ahma-mcp", ToolsDir: "./tools", HandshakeTTL: 10 * time.Millisecond})
	s := mgr.Create()

	_, err := s.CallTool(ctx, "echo", map[string]interface{}{})
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.Equal(t, Terminated, s.State())
}

func TestSession_ScopeChangeAfterCompleteTerminates(t *testing.T) {
	orig := spawnChildFunc
	spawnChildFunc = fakeChild(t)
	defer func() { spawnChildFunc = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := NewManager(ChildSpec{Command: "ahma-mcp", ToolsDir: "./tools", HandshakeTTL: time.Second})
	s := mgr.Create()
	_, _, _ = s.OnSSESubscribe(ctx)
	_ = s.OnInitialized()
	require.NoError(t, s.OnRootsListResponse(ctx, []string{"/tmp/ws"}))

	err := s.OnRootsListChanged("/tmp/other")
	assert.ErrorIs(t, err, ErrScopeViolation)
	assert.Equal(t, Terminated, s.State())
}

func TestManager_RemoveUnknownSessionReturnsFalse(t *testing.T) {
	mgr := NewManager(ChildSpec{})
	assert.False(t, mgr.Remove("nope"))
}
