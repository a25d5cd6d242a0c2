// Sequence-step templating: a later step's args may reference an earlier
// step's output via a small Starlark expression embedded as
// "${steps.N.stdout}".
//
// Maps to: SPEC_FULL.md §4.6 Adapter (C6) step 4. Grounded on
// internal/execpolicy/parser.go's starlark.Thread/ExecFile usage (the only
// Starlark call site in the teacher), generalized from parsing a whole rule
// file to evaluating one bracketed expression per template placeholder,
// with only the accumulated step results bound as a global besides
// Starlark's universal builtins (len, str, ...) — no file access, matching
// the teacher's "sandboxed interpreter" framing for exec-policy rules.
package adapter

import (
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// stepResult is one completed sequence step's outcome, exposed to later
// steps' Starlark expressions as steps[i].stdout / steps[i].exit_code.
type stepResult struct {
	Stdout   string
	ExitCode int
}

var templateRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// dotIndexRe rewrites the spec's documented "steps.N.field" accessor syntax
// into valid Starlark list-index syntax ("steps[N].field") before
// evaluation; Starlark has no dotted integer-index sugar.
var dotIndexRe = regexp.MustCompile(`steps\.(\d+)\.`)

// expandTemplate substitutes every "${expr}" placeholder in raw with the
// string form of evaluating expr in a Starlark thread where `steps` is a
// list of {stdout, exit_code} structs built from prior.
func expandTemplate(raw string, prior []stepResult) (string, error) {
	if !strings.Contains(raw, "${") {
		return raw, nil
	}

	stepsList := &starlark.List{}
	for _, r := range prior {
		s := starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"stdout":    starlark.String(r.Stdout),
			"exit_code": starlark.MakeInt(r.ExitCode),
		})
		if err := stepsList.Append(s); err != nil {
			return "", fmt.Errorf("adapter: building steps template binding: %w", err)
		}
	}
	stepsList.Freeze()

	predeclared := starlark.StringDict{"steps": stepsList}
	thread := &starlark.Thread{Name: "sequence-template"}

	var outerErr error
	result := templateRe.ReplaceAllStringFunc(raw, func(match string) string {
		expr := dotIndexRe.ReplaceAllString(templateRe.FindStringSubmatch(match)[1], "steps[$1].")
		v, err := starlark.Eval(thread, "template", expr, predeclared)
		if err != nil {
			outerErr = fmt.Errorf("adapter: evaluating sequence template %q: %w", expr, err)
			return match
		}
		return starlarkValueToString(v)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

func starlarkValueToString(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}
