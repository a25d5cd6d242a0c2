// Package toolconfig parses, validates, and hot-reloads MTDF (MCP Tool
// Definition Format) tool catalogs.
//
// Maps to: SPEC_FULL.md §3 "Tool Definition" and §4.3 Tool Config Model (C3).
// Grounded on internal/mcp/config.go's pointer-to-optional-field pattern
// (Enabled *bool, StartupTimeoutSec *int with nil-safe Get* accessors) and
// internal/tools/registry.go's name-keyed registry shape.
package toolconfig

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SequenceCommand is the sentinel command value marking a multi-step tool.
const SequenceCommand = "sequence"

// DefaultTimeoutSeconds is used when a Tool Definition omits timeout_seconds.
const DefaultTimeoutSeconds = 300

// DefaultStepDelayMs is SEQUENCE_STEP_DELAY_MS from the glossary.
const DefaultStepDelayMs = 100

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SequenceStep is one sub-step of a "sequence" tool.
type SequenceStep struct {
	Tool        string          `json:"tool"`
	Subcommand  string          `json:"subcommand,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Definition is one parsed, validated Tool Definition (MTDF).
//
// Maps to: SPEC_FULL.md §3 "Tool Definition".
type Definition struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Command         string          `json:"command"`
	Subcommand      []string        `json:"subcommand,omitempty"`
	InputSchemaRaw  json.RawMessage `json:"input_schema,omitempty"`
	TimeoutSeconds  *int            `json:"timeout_seconds,omitempty"`
	Synchronous     *bool           `json:"synchronous,omitempty"`
	Hints           []string        `json:"hints,omitempty"`
	Sequence        []SequenceStep  `json:"sequence,omitempty"`
	StepDelayMs     *int            `json:"step_delay_ms,omitempty"`
	Enabled         *bool           `json:"enabled,omitempty"`

	// compiledSchema is populated by compileSchema during validation; nil if
	// the definition carries no input_schema.
	compiledSchema *jsonschema.Schema
}

// GetTimeoutSeconds returns timeout_seconds, defaulting to
// DefaultTimeoutSeconds when unset.
func (d *Definition) GetTimeoutSeconds() int {
	if d.TimeoutSeconds != nil {
		return *d.TimeoutSeconds
	}
	return DefaultTimeoutSeconds
}

// IsSynchronous returns synchronous, defaulting to false (async) when unset.
func (d *Definition) IsSynchronous() bool {
	return d.Synchronous != nil && *d.Synchronous
}

// GetStepDelayMs returns step_delay_ms, defaulting to DefaultStepDelayMs.
func (d *Definition) GetStepDelayMs() int {
	if d.StepDelayMs != nil {
		return *d.StepDelayMs
	}
	return DefaultStepDelayMs
}

// IsEnabled returns enabled, defaulting to true when unset.
func (d *Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// IsSequence returns true if this definition's command is the "sequence"
// sentinel.
func (d *Definition) IsSequence() bool {
	return d.Command == SequenceCommand
}

// Schema returns the compiled JSON-Schema for this tool's input_schema, or
// nil if it carries none.
func (d *Definition) Schema() *jsonschema.Schema {
	return d.compiledSchema
}

// ParseDefinition decodes and structurally validates one MTDF JSON document.
// It does not resolve cross-tool sequence references or check for name
// collisions — that is Catalog's job, since it requires the full set of
// loaded definitions.
func ParseDefinition(data []byte, sourcePath string) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", sourcePath, err)
	}

	if !nameRe.MatchString(d.Name) {
		return nil, fmt.Errorf("%s: invalid tool name %q: must match %s", sourcePath, d.Name, nameRe.String())
	}

	if d.IsSequence() {
		if len(d.Sequence) == 0 {
			return nil, fmt.Errorf("%s: tool %q has command=sequence but no sequence steps", sourcePath, d.Name)
		}
	} else if len(d.Sequence) != 0 {
		return nil, fmt.Errorf("%s: tool %q has sequence steps but command != %q", sourcePath, d.Name, SequenceCommand)
	}

	if len(d.InputSchemaRaw) > 0 {
		schema, err := compileSchema(d.Name, d.InputSchemaRaw)
		if err != nil {
			return nil, fmt.Errorf("%s: tool %q: %w", sourcePath, d.Name, err)
		}
		d.compiledSchema = schema
	}

	return &d, nil
}

// compileSchema compiles a tool's raw input_schema as an in-memory JSON
// Schema resource, keyed by a synthetic per-tool URI so
// github.com/santhosh-tekuri/jsonschema/v6 can cache/compile it independent
// of any other tool's schema.
func compileSchema(toolName string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid input_schema: %w", err)
	}

	uri := "mtdf:///" + toolName + "/input_schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(uri, doc); err != nil {
		return nil, fmt.Errorf("adding input_schema resource: %w", err)
	}
	schema, err := compiler.Compile(uri)
	if err != nil {
		return nil, fmt.Errorf("compiling input_schema: %w", err)
	}
	return schema, nil
}

// ValidateArguments checks a decoded arguments object against this
// definition's compiled schema. A definition with no schema accepts any
// object.
func (d *Definition) ValidateArguments(args map[string]interface{}) error {
	if d.compiledSchema == nil {
		return nil
	}
	return d.compiledSchema.Validate(args)
}

// PathProperties returns the names of top-level input_schema properties
// tagged format:"path", used by the Adapter to route each such argument
// through the Path Validator.
func (d *Definition) PathProperties() ([]string, error) {
	if len(d.InputSchemaRaw) == 0 {
		return nil, nil
	}
	var schema struct {
		Properties map[string]struct {
			Format string `json:"format"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(d.InputSchemaRaw, &schema); err != nil {
		return nil, err
	}
	var paths []string
	for name, prop := range schema.Properties {
		if prop.Format == "path" {
			paths = append(paths, name)
		}
	}
	return paths, nil
}
