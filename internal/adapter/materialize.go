// Command materialization: turning a validated arguments object into the
// literal shell script a shellpool.Shell runs.
//
// Maps to: SPEC_FULL.md §4.6 Adapter (C6) step 3. Grounded on
// internal/tools/handlers/shell.go's CommandSpec-building shape
// (Program/Args/Cwd), generalized from "one fixed command + one
// free-text arg" to MTDF's per-property arg placement, described with a
// small "x-cli" JSON-Schema extension (positional index, flag name, or
// file_arg/file_flag temp-file materialization) since input_schema in MTDF
// is otherwise silent on how a property becomes a shell token.
package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// cliArg describes how one input_schema property becomes part of the
// materialized command line.
type cliArg struct {
	Positional *int   `json:"positional,omitempty"`
	Flag       string `json:"flag,omitempty"`
	FileArg    bool   `json:"file_arg,omitempty"`
	FileFlag   string `json:"file_flag,omitempty"`
}

type cliProperty struct {
	Format string  `json:"format"`
	CLI    *cliArg `json:"x-cli,omitempty"`
}

type cliSchema struct {
	Properties map[string]cliProperty `json:"properties"`
}

// parseCLISchema re-reads a definition's raw input_schema for the x-cli
// placement extension; definition.Schema() only exposes the compiled
// validator, not the original property metadata.
func parseCLISchema(raw json.RawMessage) (cliSchema, error) {
	var s cliSchema
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return cliSchema{}, fmt.Errorf("adapter: re-parsing input_schema for arg placement: %w", err)
	}
	return s, nil
}

// materializeArgs renders args (already schema-validated and path-resolved
// by resolveArgs) into a slice of shell-quoted tokens appended after the
// definition's base command, plus any temporary files it created (removed by
// the caller once the command has run).
func materializeArgs(schema cliSchema, args map[string]interface{}, sandboxRoot string) ([]string, []string, error) {
	type positionalTok struct {
		index int
		tok   string
	}
	var positionals []positionalTok
	var flagTokens []string
	var tempFiles []string

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		val := args[name]
		prop := schema.Properties[name]
		str := stringifyArg(val)

		switch {
		case prop.CLI == nil:
			// No placement metadata: default to a --name value flag so every
			// schema property is representable even without x-cli.
			flagTokens = append(flagTokens, "--"+name, quoteArg(str))

		case prop.CLI.FileArg || prop.CLI.FileFlag != "":
			path, err := writeTempArg(sandboxRoot, name, str)
			if err != nil {
				return nil, tempFiles, err
			}
			tempFiles = append(tempFiles, path)
			if prop.CLI.FileFlag != "" {
				flagTokens = append(flagTokens, prop.CLI.FileFlag, quoteArg(path))
			} else {
				positionals = append(positionals, positionalTok{index: 1 << 30, tok: quoteArg(path)})
			}

		case prop.CLI.Positional != nil:
			positionals = append(positionals, positionalTok{index: *prop.CLI.Positional, tok: quoteArg(str)})

		case prop.CLI.Flag != "":
			flagTokens = append(flagTokens, prop.CLI.Flag, quoteArg(str))

		default:
			flagTokens = append(flagTokens, "--"+name, quoteArg(str))
		}
	}

	sort.Slice(positionals, func(i, j int) bool { return positionals[i].index < positionals[j].index })

	out := make([]string, 0, len(positionals)+len(flagTokens))
	for _, p := range positionals {
		out = append(out, p.tok)
	}
	out = append(out, flagTokens...)
	return out, tempFiles, nil
}

// writeTempArg materializes a file_arg/file_flag value as a temp file inside
// the sandbox root, per §4.6 "multi-line or large payloads are written to a
// temporary file inside the sandbox and passed by path."
func writeTempArg(sandboxRoot, name, content string) (string, error) {
	dir := filepath.Join(sandboxRoot, ".ahma-tmp")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("adapter: creating temp-arg dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "arg-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("adapter: creating temp-arg file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("adapter: writing temp-arg file: %w", err)
	}
	return f.Name(), nil
}

func stringifyArg(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// quoteArg wraps a token in single quotes, escaping any embedded single
// quote, so argument values containing spaces or shell metacharacters are
// passed through literally to /bin/sh.
func quoteArg(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += `'\''`
		} else {
			escaped += string(r)
		}
	}
	return "'" + escaped + "'"
}
