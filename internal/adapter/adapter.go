// Package adapter resolves a Tool Call Frame against the tool catalog,
// validates and materializes its arguments, and runs the resulting shell
// command — synchronously or by handing it to the Operation Monitor.
//
// Maps to: SPEC_FULL.md §4.6 Adapter (C6). Grounded on
// internal/tools/handlers/shell.go (CommandSpec/ExecEnv plumbing,
// AggregateOutput-style output handling) and internal/tools/registry.go
// (name-keyed resolution), generalized from "one built-in handler per Go
// type" to "one MTDF definition resolved from a hot-reloadable catalog."
package adapter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ahma/mcp-gateway/internal/command_safety"
	"github.com/ahma/mcp-gateway/internal/operation"
	"github.com/ahma/mcp-gateway/internal/pathvalidate"
	"github.com/ahma/mcp-gateway/internal/sandbox"
	"github.com/ahma/mcp-gateway/internal/shellpool"
	"github.com/ahma/mcp-gateway/internal/toolconfig"
)

// Dispatched is the outcome of one Dispatch call: exactly one of Result or
// OpID is set.
type Dispatched struct {
	Result *Result
	OpID   string
}

// Adapter wires the Tool Config Model, Path Validator, Sandbox Scope, Shell
// Pool, and Operation Monitor together to execute one tool call end to end.
type Adapter struct {
	catalog   *toolconfig.Catalog
	scope     *sandbox.Scope
	pool      *shellpool.Pool
	ops       *operation.Monitor
	forceSync bool
}

// New builds an Adapter over already-constructed components. All four are
// required; the Adapter does not own their lifecycles. The Shell Pool's
// process environment (execenv-filtered) is configured once, by the caller,
// via BuildPoolConfig — the Adapter itself never touches env vars.
func New(catalog *toolconfig.Catalog, scope *sandbox.Scope, pool *shellpool.Pool, ops *operation.Monitor) *Adapter {
	return &Adapter{
		catalog: catalog,
		scope:   scope,
		pool:    pool,
		ops:     ops,
	}
}

// WithForcedSync returns a copy of a that treats every dispatched tool as
// synchronous regardless of its definition, for the CLI's --sync flag
// (SPEC_FULL.md §6 "force-synchronous default").
func (a *Adapter) WithForcedSync() *Adapter {
	cp := *a
	cp.forceSync = true
	return &cp
}

// Dispatch resolves and runs frame per SPEC_FULL.md §4.6 steps 1-5.
func (a *Adapter) Dispatch(ctx context.Context, frame Frame) (*Dispatched, error) {
	def, ok := a.catalog.Get(frame.ToolName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, frame.ToolName)
	}
	if frame.Subcommand != "" && len(def.Subcommand) > 0 {
		known := false
		for _, sc := range def.Subcommand {
			if sc == frame.Subcommand {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: %q has no subcommand %q", ErrUnknownTool, frame.ToolName, frame.Subcommand)
		}
	}

	cwd, err := pathvalidate.ValidateWorkingDirectory(a.scope, frame.Cwd, a.scope.Root())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	resolvedArgs, err := a.resolveArgs(def, frame.Arguments, cwd)
	if err != nil {
		return nil, err
	}

	sync := a.forceSync || frame.RequestedSync || def.IsSynchronous()

	if !sync {
		opID := a.submitAsync(ctx, def, frame, resolvedArgs, cwd)
		return &Dispatched{OpID: opID}, nil
	}

	res, err := a.runDefinition(ctx, def, frame.Subcommand, resolvedArgs, cwd)
	if err != nil && err != ErrSequenceStepFailed {
		return nil, err
	}
	return &Dispatched{Result: res}, nil
}

// resolveArgs validates arguments against the definition's compiled schema,
// then resolves every format:"path" property through the Path Validator,
// per §4.6 steps 1-2.
func (a *Adapter) resolveArgs(def *toolconfig.Definition, args map[string]interface{}, cwd string) (map[string]interface{}, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := def.ValidateArguments(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	pathProps, err := def.PathProperties()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	resolved := make(map[string]interface{}, len(args))
	for k, v := range args {
		resolved[k] = v
	}
	for _, prop := range pathProps {
		raw, ok := resolved[prop].(string)
		if !ok {
			continue
		}
		abs, err := pathvalidate.Validate(a.scope, raw, cwd)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		resolved[prop] = abs
	}
	return resolved, nil
}

// submitAsync registers an Operation and starts the (possibly long-running)
// execution in a background goroutine, returning immediately with its op_id.
func (a *Adapter) submitAsync(ctx context.Context, def *toolconfig.Definition, frame Frame, args map[string]interface{}, cwd string) string {
	runCtx, cancel := context.WithCancel(context.Background())
	opID := a.ops.Submit(def.Name, frame.ProgressToken, func(reason string) { cancel() })

	go func() {
		defer cancel()
		res, err := a.runDefinition(runCtx, def, frame.Subcommand, args, cwd)
		switch {
		case err == context.Canceled:
			_ = a.ops.Finish(opID, operation.Cancelled, nil, nil)
		case err != nil && res == nil:
			_ = a.ops.Finish(opID, operation.Failed, nil, []byte(err.Error()))
		default:
			state := operation.Completed
			if res.ExitCode != 0 {
				state = operation.Failed
			}
			code := res.ExitCode
			_ = a.ops.Finish(opID, state, &code, []byte(res.Output))
		}
	}()

	return opID
}

// runDefinition runs one resolved call: a single shell command, or — for
// command=="sequence" definitions — its ordered sub-steps.
func (a *Adapter) runDefinition(ctx context.Context, def *toolconfig.Definition, subcommand string, args map[string]interface{}, cwd string) (*Result, error) {
	if def.IsSequence() {
		return a.runSequence(ctx, def, cwd)
	}
	return a.runSingle(ctx, def, subcommand, args, cwd)
}

func (a *Adapter) runSingle(ctx context.Context, def *toolconfig.Definition, subcommand string, args map[string]interface{}, cwd string) (*Result, error) {
	schema, err := parseCLISchema(def.InputSchemaRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	tokens, tempFiles, err := materializeArgs(schema, args, a.scope.Root())
	defer cleanupTempFiles(tempFiles)
	if err != nil {
		return nil, err
	}

	script := def.Command
	if subcommand != "" {
		script += " " + subcommand
	}
	for _, tok := range tokens {
		script += " " + tok
	}

	// The pooled shell is long-lived and keeps whatever directory it was
	// spawned with; a per-call cwd (frame.Cwd, or the scope root when that is
	// empty) has to be applied with an explicit cd rather than by setting a
	// process-level Dir, per SPEC_FULL.md §4.6 step 3. A tool's own
	// working_directory argument does not set this cwd; it is rendered like
	// any other argument.
	script = "cd " + quoteArg(cwd) + " && " + script

	if command_safety.CommandMightBeDangerous([]string{"sh", "-c", script}) {
		log.Printf("adapter: tool %q materialized a command flagged as potentially destructive: %s", def.Name, script)
	}

	timeout := time.Duration(def.GetTimeoutSeconds()) * time.Second
	out, err := a.pool.Run(ctx, script, timeout)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out.Output, ExitCode: out.ExitCode}, nil
}

// runSequence executes a "sequence" definition's steps in order via
// recursive single-step calls, pausing step_delay_ms between them, aborting
// on the first non-zero exit, and aggregating stdout with step delimiters —
// per §4.6 step 4.
func (a *Adapter) runSequence(ctx context.Context, def *toolconfig.Definition, cwd string) (*Result, error) {
	delay := time.Duration(def.GetStepDelayMs()) * time.Millisecond
	var prior []stepResult
	var aggregated string

	for i, step := range def.Sequence {
		stepDef, ok := a.catalog.Get(step.Tool)
		if !ok {
			return nil, fmt.Errorf("%w: sequence step references unknown tool %q", ErrUnknownTool, step.Tool)
		}

		rawArgs, err := expandStepArgs(step.Args, prior)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		stepArgs, err := a.resolveArgs(stepDef, rawArgs, cwd)
		if err != nil {
			return nil, err
		}

		res, err := a.runDefinition(ctx, stepDef, step.Subcommand, stepArgs, cwd)
		if err != nil {
			return nil, err
		}

		aggregated += fmt.Sprintf("--- step %d: %s ---\n%s\n", i+1, step.Tool, res.Output)
		prior = append(prior, stepResult{Stdout: res.Output, ExitCode: res.ExitCode})

		if res.ExitCode != 0 {
			return &Result{Output: aggregated, ExitCode: res.ExitCode}, ErrSequenceStepFailed
		}

		if i < len(def.Sequence)-1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &Result{Output: aggregated, ExitCode: 1}, ctx.Err()
			}
		}
	}

	return &Result{Output: aggregated, ExitCode: 0}, nil
}

func cleanupTempFiles(paths []string) {
	for _, p := range paths {
		_ = removeFile(p)
	}
}
