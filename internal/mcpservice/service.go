// Package mcpservice builds the MCP server side of the gateway: every
// catalog tool plus the three meta-tools (await, status, cancel) registered
// against github.com/modelcontextprotocol/go-sdk/mcp's Server type.
//
// Maps to: SPEC_FULL.md §4.7 MCP Service (C7). Grounded on
// internal/mcp/manager.go's use of gomcp wire types (that file is a client,
// but the server-side registration shape comes from the pack's other
// go-sdk consumers — mcp.NewServer/mcp.AddTool with a
// map[string]interface{}-typed handler, as in
// other_examples/07a653ba.../server.go's registerTool — and
// mcp.NewStreamableHTTPHandler / server.Run(ctx, &mcp.StdioTransport{}) for
// the two transports this gateway actually runs over, demonstrated in
// shaharia-lab-claude-agent-sdk-go/claude/mcp.go).
package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahma/mcp-gateway/internal/adapter"
	"github.com/ahma/mcp-gateway/internal/operation"
	"github.com/ahma/mcp-gateway/internal/toolconfig"
	"github.com/ahma/mcp-gateway/internal/version"
)

// ServerName identifies this gateway to MCP clients on initialize.
const ServerName = "ahma-mcp-gateway"

// MetaTool names, exposed as if they were regular catalog tools per
// SPEC_FULL.md §4.7.
const (
	MetaAwait  = "await"
	MetaStatus = "status"
	MetaCancel = "cancel"
)

// Build constructs a fresh *gomcp.Server wired to ad (and, transitively,
// the whole C1-C6 stack Ad was built from), registering every enabled tool
// currently in catalog's snapshot plus the three meta-tools.
//
// Build is called once, at stdio-mode startup. The server's tool list is
// fixed at that point: a later catalog hot-reload is not reflected in
// tools/list and sends no tools/list_changed notification.
func Build(catalog *toolconfig.Catalog, ad *adapter.Adapter, ops *operation.Monitor) *gomcp.Server {
	server := gomcp.NewServer(&gomcp.Implementation{
		Name:    ServerName,
		Version: version.String(),
	}, nil)

	for _, def := range catalog.List() {
		registerCatalogTool(server, ad, def)
	}
	registerMetaTools(server, ops)

	return server
}

func registerCatalogTool(server *gomcp.Server, ad *adapter.Adapter, def *toolconfig.Definition) {
	schema := map[string]interface{}{"type": "object"}
	if len(def.InputSchemaRaw) > 0 {
		schema = rawSchemaToMap(def.InputSchemaRaw)
	}

	tool := &gomcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: schema,
	}

	handler := func(ctx context.Context, req *gomcp.CallToolRequest, params map[string]interface{}) (*gomcp.CallToolResult, any, error) {
		frame := adapter.Frame{
			ToolName:  def.Name,
			Arguments: params,
		}
		if req != nil {
			frame.ProgressToken = progressTokenOf(req)
		}

		dispatched, err := ad.Dispatch(ctx, frame)
		if err != nil {
			return nil, nil, mapDispatchError(err)
		}

		if dispatched.OpID != "" {
			return textResult(fmt.Sprintf(`{"op_id":%q}`, dispatched.OpID)), nil, nil
		}
		return textResult(dispatched.Result.Output), map[string]interface{}{"exit_code": dispatched.Result.ExitCode}, nil
	}

	gomcp.AddTool(server, tool, handler)
}

func textResult(s string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: s}}}
}

// progressTokenOf extracts the client-supplied progress token from a call
// request's _meta, if present; the go-sdk surfaces this as part of the
// request params' Meta field in recent SDK versions.
func progressTokenOf(req *gomcp.CallToolRequest) string {
	if req.Params == nil || req.Params.Meta == nil {
		return ""
	}
	if tok, ok := req.Params.Meta["progressToken"]; ok {
		if s, ok := tok.(string); ok {
			return s
		}
	}
	return ""
}

func rawSchemaToMap(raw []byte) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}

// mapDispatchError translates Adapter-layer sentinel errors into the
// distinction tools/call handlers are expected to preserve per SPEC_FULL.md
// §4.6 "Failure semantics": schema/path problems are caller mistakes, a
// non-zero shell exit is not an RPC error (the Adapter already reports that
// through Dispatched.Result, never through err) — this just keeps the
// sentinel's message intact for whatever JSON-RPC error code the transport
// layer (C7 stdio / C9 HTTP bridge) chooses to attach.
func mapDispatchError(err error) error {
	switch {
	case errors.Is(err, adapter.ErrUnknownTool):
		return fmt.Errorf("unknown tool: %w", err)
	case errors.Is(err, adapter.ErrInvalidParams):
		return fmt.Errorf("invalid params: %w", err)
	case errors.Is(err, adapter.ErrForbidden):
		return fmt.Errorf("forbidden: %w", err)
	default:
		return err
	}
}

// registerMetaTools wires await/status/cancel directly against ops, never
// dispatched through the Adapter/Shell Pool since they operate on Operation
// state, not a shell command.
func registerMetaTools(server *gomcp.Server, ops *operation.Monitor) {
	gomcp.AddTool(server, &gomcp.Tool{
		Name:        MetaAwait,
		Description: "Block until matching operations reach a terminal state, or until timeout elapses.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tool_name":       map[string]interface{}{"type": "string"},
				"timeout_seconds": map[string]interface{}{"type": "integer"},
			},
		},
	}, func(ctx context.Context, req *gomcp.CallToolRequest, params map[string]interface{}) (*gomcp.CallToolResult, any, error) {
		filter := operation.Filter{ToolName: stringArg(params, "tool_name")}
		timeout := durationArg(params, "timeout_seconds", 240*time.Second)
		snaps := ops.Await(filter, timeout, nil)
		return textResult(snapshotsToJSON(snaps)), nil, nil
	})

	gomcp.AddTool(server, &gomcp.Tool{
		Name:        MetaStatus,
		Description: "Report current operation state without blocking. Prefer 'await' over repeated polling.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tool_name": map[string]interface{}{"type": "string"},
			},
		},
	}, func(ctx context.Context, req *gomcp.CallToolRequest, params map[string]interface{}) (*gomcp.CallToolResult, any, error) {
		filter := operation.Filter{ToolName: stringArg(params, "tool_name")}
		snaps := ops.List(filter)
		hint := ""
		for _, s := range snaps {
			if !s.State.IsTerminal() {
				hint = " hint: call 'await' instead of polling 'status' repeatedly."
				break
			}
		}
		return textResult(snapshotsToJSON(snaps) + hint), nil, nil
	})

	gomcp.AddTool(server, &gomcp.Tool{
		Name:        MetaCancel,
		Description: "Cancel one operation by op_id, or every non-terminal operation matching a tool-name filter.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"op_id":     map[string]interface{}{"type": "string"},
				"tool_name": map[string]interface{}{"type": "string"},
			},
		},
	}, func(ctx context.Context, req *gomcp.CallToolRequest, params map[string]interface{}) (*gomcp.CallToolResult, any, error) {
		if opID := stringArg(params, "op_id"); opID != "" {
			if err := ops.Cancel(opID, "client requested"); err != nil {
				return nil, nil, err
			}
			return textResult(fmt.Sprintf(`{"cancelled":%q}`, opID)), nil, nil
		}
		filter := operation.Filter{ToolName: stringArg(params, "tool_name")}
		for _, s := range ops.List(filter) {
			if !s.State.IsTerminal() {
				_ = ops.Cancel(s.OpID, "client requested")
			}
		}
		return textResult(`{"cancelled":"matching"}`), nil, nil
	})
}

func stringArg(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func durationArg(params map[string]interface{}, key string, def time.Duration) time.Duration {
	switch v := params[key].(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	default:
		return def
	}
}

func snapshotsToJSON(snaps []operation.Snapshot) string {
	b, err := json.Marshal(snaps)
	if err != nil {
		return "[]"
	}
	return string(b)
}
