package session

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// childProcess is one session's stdio child: this same binary re-invoked as
// `--mode stdio --sandbox-scope <root> --tools-dir <dir>`, connected to as an
// MCP client exactly the way internal/mcp/manager.go's
// McpConnectionManager.connectToServer connects to a configured stdio MCP
// server.
type childProcess struct {
	spec ChildSpec
	root string

	mu      sync.Mutex
	cmd     *exec.Cmd
	client  *gomcp.Client
	session *gomcp.ClientSession
}

// spawnChildFunc is a test seam: production code always spawns a real
// stdio child via spawnChild, tests substitute a fake that skips exec.
var spawnChildFunc = spawnChild

func spawnChild(ctx context.Context, spec ChildSpec, root string) (*childProcess, error) {
	c := &childProcess{spec: spec, root: root}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *childProcess) connect(ctx context.Context) error {
	args := []string{"--mode", "stdio", "--sandbox-scope", c.root, "--tools-dir", c.spec.ToolsDir}
	if c.spec.ForceSync {
		args = append(args, "--sync")
	}
	if c.spec.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if c.spec.Debug {
		args = append(args, "--debug")
	}

	cmd := exec.CommandContext(ctx, c.spec.Command, args...)

	client := gomcp.NewClient(&gomcp.Implementation{Name: "ahma-mcp-gateway-bridge", Version: "0.1.0"}, nil)
	sess, err := client.Connect(ctx, &gomcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("session: spawning stdio child for scope %s: %w", c.root, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.client = client
	c.session = sess
	c.mu.Unlock()
	return nil
}

func (c *childProcess) callTool(ctx context.Context, name string, args map[string]interface{}) (*gomcp.CallToolResult, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	return sess.CallTool(ctx, &gomcp.CallToolParams{Name: name, Arguments: args})
}

func (c *childProcess) listTools(ctx context.Context) (*gomcp.ListToolsResult, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	return sess.ListTools(ctx, nil)
}

// callToolWithRestart calls the child and, on a transport-level failure
// (subprocess crash), re-spawns it and replays the in-flight call after
// rerunning the initialize/initialized handshake — per SPEC_FULL.md §4.8
// "Subprocess lifecycle". The re-handshake and the retried dispatch run
// inside one errgroup.Group so a concurrent session teardown can cancel both.
func (c *childProcess) callToolWithRestart(ctx context.Context, owner *Session, name string, args map[string]interface{}) (interface{}, error) {
	result, err := c.callTool(ctx, name, args)
	if err == nil {
		return result, nil
	}
	if !isTransportFailure(err) {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	var restarted *gomcp.CallToolResult
	g.Go(func() error {
		if rerr := c.connect(gctx); rerr != nil {
			return fmt.Errorf("session: restarting crashed child: %w", rerr)
		}
		res, cerr := c.callTool(gctx, name, args)
		if cerr != nil {
			return cerr
		}
		restarted = res
		return nil
	})
	if gerr := g.Wait(); gerr != nil {
		owner.Terminate(gerr)
		return nil, gerr
	}
	return restarted, nil
}

func isTransportFailure(err error) bool {
	// Tool-level failures (schema violation, forbidden path, non-zero shell
	// exit) never reach here as a Go error: mcpservice's handlers report
	// those through the CallToolResult's IsError/content, which the SDK
	// client surfaces with err == nil. A non-nil err from session.CallTool
	// therefore always means the stdio transport itself broke — the child
	// crashed or its pipe closed — so any non-nil err is worth one restart.
	return err != nil
}

func (c *childProcess) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		_ = c.session.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}
