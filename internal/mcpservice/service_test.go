package mcpservice

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahma/mcp-gateway/internal/adapter"
	"github.com/ahma/mcp-gateway/internal/operation"
	"github.com/ahma/mcp-gateway/internal/sandbox"
	"github.com/ahma/mcp-gateway/internal/shellpool"
	"github.com/ahma/mcp-gateway/internal/toolconfig"
)

// connectTestGateway builds a full C1-C7 stack over toolsJSON and hands back
// a live *gomcp.ClientSession talking to it over an in-memory transport, the
// same pattern internal/mcp/manager_test.go uses for its test server.
func connectTestGateway(t *testing.T, ctx context.Context, toolsJSON map[string]string) *gomcp.ClientSession {
	t.Helper()

	toolsDir := t.TempDir()
	for name, body := range toolsJSON {
		require.NoError(t, os.WriteFile(filepath.Join(toolsDir, name+".json"), []byte(body), 0o644))
	}

	catalog := toolconfig.NewCatalog()
	require.NoError(t, catalog.LoadDir(toolsDir))

	scope := sandbox.NewScope()
	require.NoError(t, scope.Lock(t.TempDir(), true))

	pool, err := shellpool.New(shellpool.Config{Size: 1, Cwd: scope.Root()})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ops := operation.NewMonitor(nil)
	ad := adapter.New(catalog, scope, pool, ops)

	server := Build(catalog, ad, ops)

	serverTransport, clientTransport := gomcp.NewInMemoryTransports()
	go func() { _ = server.Run(ctx, serverTransport) }()

	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func TestBuild_RegistersCatalogToolAndRunsIt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := connectTestGateway(t, ctx, map[string]string{
		"echo": `{
			"name": "echo",
			"description": "echoes a message",
			"command": "echo",
			"synchronous": true,
			"input_schema": {
				"type": "object",
				"required": ["message"],
				"properties": {"message": {"type": "string", "x-cli": {"positional": 0}}}
			}
		}`,
	})

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "hello gateway"},
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(*gomcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, "hello gateway")
}

func TestBuild_EmptyCatalogListsOnlyMetaTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := connectTestGateway(t, ctx, nil)

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, tools.Tools, 3) // await, status, cancel — no catalog tools loaded
}

func TestBuild_AsyncToolReturnsOpIDThenAwaitReportsCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := connectTestGateway(t, ctx, map[string]string{
		"sleep_echo": `{
			"name": "sleep_echo",
			"description": "sleeps then echoes",
			"command": "sleep 0.05 && echo done",
			"synchronous": false
		}`,
	})

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: "sleep_echo", Arguments: map[string]interface{}{}})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	tc := result.Content[0].(*gomcp.TextContent)

	var payload struct {
		OpID string `json:"op_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &payload))
	require.NotEmpty(t, payload.OpID)

	awaitResult, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      MetaAwait,
		Arguments: map[string]interface{}{"tool_name": "sleep_echo", "timeout_seconds": 2},
	})
	require.NoError(t, err)
	awaitText := awaitResult.Content[0].(*gomcp.TextContent).Text

	var snaps []operation.Snapshot
	require.NoError(t, json.Unmarshal([]byte(awaitText), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, operation.Completed, snaps[0].State)
	assert.Contains(t, snaps[0].Output, "done")
}

func TestBuild_CancelMetaTool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := connectTestGateway(t, ctx, map[string]string{
		"sleep_long": `{
			"name": "sleep_long",
			"description": "sleeps well past any test timeout",
			"command": "sleep 30",
			"synchronous": false
		}`,
	})

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: "sleep_long", Arguments: map[string]interface{}{}})
	require.NoError(t, err)
	tc := result.Content[0].(*gomcp.TextContent)
	var payload struct {
		OpID string `json:"op_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &payload))

	cancelResult, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      MetaCancel,
		Arguments: map[string]interface{}{"op_id": payload.OpID},
	})
	require.NoError(t, err)
	cancelText := cancelResult.Content[0].(*gomcp.TextContent).Text
	assert.Contains(t, cancelText, payload.OpID)
}
