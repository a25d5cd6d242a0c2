package toolconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
)

// Catalog holds the current immutable snapshot of loaded Tool Definitions
// and atomically swaps it on successful hot-reload.
//
// Maps to: SPEC_FULL.md §4.3 "The catalog is published as an immutable
// snapshot (copy-on-write map)" and §5 "Catalog snapshot: copy-on-write;
// writers (hot-reload) never block readers." Grounded on
// internal/tools/registry.go's ToolRegistry, generalized from a
// mutex-guarded map to a lock-free atomic.Pointer snapshot since readers
// (every tools/call and tools/list) vastly outnumber writers (hot-reload).
type Catalog struct {
	snapshot atomic.Pointer[snapshot]

	// onChange is invoked, with no arguments, after every successful reload.
	// Nothing in the gateway registers one, so a reload pushes no
	// tools/list_changed notification.
	onChange func()
}

type snapshot struct {
	byName map[string]*Definition
	names  []string // sorted, for deterministic tools/list ordering
}

// NewCatalog creates an empty catalog. Load or LoadDir must be called before
// Get/List return anything.
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.snapshot.Store(&snapshot{byName: map[string]*Definition{}})
	return c
}

// OnChange registers a callback fired after every successful atomic publish.
// Only one callback is supported; later calls replace the previous one,
// matching this package's single-catalog-per-process usage.
func (c *Catalog) OnChange(fn func()) {
	c.onChange = fn
}

// Get returns a tool definition by name from the current snapshot.
func (c *Catalog) Get(name string) (*Definition, bool) {
	snap := c.snapshot.Load()
	d, ok := snap.byName[name]
	return d, ok
}

// List returns all definitions in the current snapshot, name-sorted.
func (c *Catalog) List() []*Definition {
	snap := c.snapshot.Load()
	out := make([]*Definition, 0, len(snap.names))
	for _, name := range snap.names {
		out = append(out, snap.byName[name])
	}
	return out
}

// LoadDir parses every *.json file under dir, validates the resulting set as
// a whole (uniqueness, sequence cross-references, cycle detection), and —
// only if everything succeeds — atomically publishes the new snapshot. On
// any failure the previous snapshot (if any) is retained untouched, per
// SPEC_FULL.md §4.3 "On failure the old snapshot is retained."
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading tools dir %s: %w", dir, err)
	}

	byName := make(map[string]*Definition)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		def, err := ParseDefinition(data, path)
		if err != nil {
			return err
		}
		if !def.IsEnabled() {
			continue
		}
		if err := validateToolName(def.Name); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := byName[def.Name]; dup {
			return fmt.Errorf("%s: duplicate tool name %q", path, def.Name)
		}
		byName[def.Name] = def
	}

	if err := validateCrossReferences(byName); err != nil {
		return err
	}

	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	c.snapshot.Store(&snapshot{byName: byName, names: names})
	if c.onChange != nil {
		c.onChange()
	}
	return nil
}

// validateCrossReferences checks that every sequence step names a tool (and,
// if given, a subcommand) that actually exists in this snapshot, and that no
// sequence tool (transitively) invokes itself.
func validateCrossReferences(byName map[string]*Definition) error {
	for name, def := range byName {
		if !def.IsSequence() {
			continue
		}
		visited := map[string]bool{name: true}
		if err := checkSequence(name, def, byName, visited); err != nil {
			return err
		}
	}
	return nil
}

func checkSequence(owner string, def *Definition, byName map[string]*Definition, visited map[string]bool) error {
	for _, step := range def.Sequence {
		target, ok := byName[step.Tool]
		if !ok {
			return fmt.Errorf("tool %q: sequence step references unknown tool %q", owner, step.Tool)
		}
		if step.Subcommand != "" && len(target.Subcommand) > 0 {
			found := false
			for _, sc := range target.Subcommand {
				if sc == step.Subcommand {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("tool %q: sequence step references unknown subcommand %q of %q", owner, step.Subcommand, step.Tool)
			}
		}
		if target.IsSequence() {
			if visited[step.Tool] {
				return fmt.Errorf("tool %q: cyclic sequence reference through %q", owner, step.Tool)
			}
			visited[step.Tool] = true
			if err := checkSequence(owner, target, byName, visited); err != nil {
				return err
			}
			delete(visited, step.Tool)
		}
	}
	return nil
}
