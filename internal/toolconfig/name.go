package toolconfig

import "fmt"

// MaxToolNameLength bounds a tool's Name: MCP clients that bridge into the
// OpenAI tools API require names to match ^[a-zA-Z0-9_-]+$ and be <= 64
// bytes, so the catalog rejects anything LoadDir would otherwise publish
// but no client could ever call.
//
// Maps to: internal/mcp/tool_name.go's MaxToolNameLength /
// sanitize_responses_api_tool_name naming constraint, narrowed from
// "sanitize and qualify a name coming from a remote MCP server" to
// "validate a name the tool author wrote directly into MTDF," since this
// catalog has no server-qualification step to collide names against.
func validateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name %q exceeds %d bytes", name, MaxToolNameLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isAllowed := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
		if !isAllowed {
			return fmt.Errorf("tool name %q contains %q, only [a-zA-Z0-9_-] is allowed", name, string(c))
		}
	}
	return nil
}

const MaxToolNameLength = 64
