package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateTool is returned by [Registry.Register] when a tool with the
// same name is already registered. Call sites that import tools from
// external sources (MCP servers) branch on it to log and skip collisions
// instead of failing startup.
var ErrDuplicateTool = fmt.Errorf("engine: duplicate tool name")

// Registry holds every tool the assistant may invoke. Construct one with
// [NewRegistry] at process start and pass it by reference into the executor
// and each capability package; there is no package-level instance.
//
// Registration happens during startup and is rejected for duplicate names.
// Reads dominate afterwards, guarded by an RWMutex.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]ToolDefinition
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]ToolDefinition)}
}

// Register adds def to the registry. It validates the definition (non-empty
// name, non-nil handler, known category, well-formed parameter specs) and
// rejects names already present with an error wrapping [ErrDuplicateTool].
func (r *Registry) Register(def ToolDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, def.Name)
	}
	r.byName[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterAll registers every definition in defs, stopping at the first
// failure.
func (r *Registry) RegisterAll(defs []ToolDefinition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the definition registered under name. The second return value
// is false when the name is unknown.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// ListAll returns every definition in registration order.
func (r *Registry) ListAll() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// PromptText renders the full catalogue as a deterministic text block for
// inclusion in the model's system prompt. Tools are grouped by category in
// enum declaration order under an upper-case [CATEGORY] header; within a
// category tools keep registration order; parameters are sorted by name.
//
// Layout per tool:
//
//	- name: description
//	    param (type, required): description [one of: a|b]
func (r *Registry) PromptText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grouped := make(map[Category][]ToolDefinition)
	for _, name := range r.order {
		def := r.byName[name]
		grouped[def.Category] = append(grouped[def.Category], def)
	}

	var b strings.Builder
	first := true
	for _, cat := range Categories() {
		defs := grouped[cat]
		if len(defs) == 0 {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		first = false
		fmt.Fprintf(&b, "[%s]\n", strings.ToUpper(string(cat)))
		for _, def := range defs {
			fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
			pnames := make([]string, 0, len(def.Parameters))
			for pname := range def.Parameters {
				pnames = append(pnames, pname)
			}
			sort.Strings(pnames)
			for _, pname := range pnames {
				spec := def.Parameters[pname]
				requirement := "required"
				if spec.Optional {
					requirement = "optional"
				}
				fmt.Fprintf(&b, "    %s (%s, %s): %s", pname, spec.Type, requirement, spec.Description)
				if len(spec.Enum) > 0 {
					fmt.Fprintf(&b, " [one of: %s]", strings.Join(spec.Enum, "|"))
				}
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
