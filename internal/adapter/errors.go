package adapter

import "errors"

// Errors returned by Dispatch. The MCP Service (C7) maps these to JSON-RPC
// error codes; a non-zero shell exit code is deliberately NOT one of them —
// per SPEC_FULL.md §4.6 "shell non-zero exit is not an RPC error."
var (
	// ErrUnknownTool is returned when tool_name (with optional subcommand)
	// does not resolve against the current catalog snapshot. A subcommand is
	// checked only against a definition that declares a subcommand list.
	ErrUnknownTool = errors.New("adapter: unknown tool")

	// ErrInvalidParams wraps a schema-validation failure (maps to
	// InvalidParams).
	ErrInvalidParams = errors.New("adapter: invalid arguments")

	// ErrForbidden wraps a path-escape failure (maps to Forbidden).
	ErrForbidden = errors.New("adapter: path escapes sandbox scope")

	// ErrSequenceStepFailed is returned when a sequence step exits non-zero;
	// the caller surfaces this as the operation's terminal content, not as an
	// RPC error, per §4.6 "abort on first non-zero step."
	ErrSequenceStepFailed = errors.New("adapter: sequence step failed")
)
