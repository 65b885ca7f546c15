// Package engine implements the NeuroOS tool invocation engine: a registry
// of assistant-invocable tools, an extractor that locates tool calls embedded
// in free-form model output, an executor that dispatches calls to handlers
// under a no-panic guarantee, and a sanitizer that removes call syntax from
// the text shown to the user.
//
// Data flow per assistant turn:
//
//  1. Capability packages register [ToolDefinition] values with a shared
//     [Registry] at startup.
//  2. [Registry.PromptText] renders the catalogue into the system prompt.
//  3. Model output passes through [ParseToolCalls], yielding ordered
//     [ParsedToolCall] values.
//  4. [Executor.ExecuteTool] runs each call with a fresh capability context;
//     the caller executes multiple calls sequentially, in extraction order.
//  5. [StripToolCalls] removes consumed call syntax, plus any dangling
//     fragment of a call still streaming in, before text reaches the user.
//
// ParseToolCalls and StripToolCalls are pure functions over their text
// argument. The Registry is safe for concurrent use; it is write-rare at
// startup and read-many for the process lifetime.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatit-cloud/neuroos/pkg/host"
)

// Category classifies a tool for prompt grouping. The set is closed:
// registration rejects values outside the enumeration.
type Category string

const (
	// CategoryOS groups tools that drive the shell itself: launching
	// applications, manipulating windows.
	CategoryOS Category = "os"

	// CategoryFile groups workspace file tools.
	CategoryFile Category = "file"

	// CategoryShell groups command execution tools.
	CategoryShell Category = "shell"

	// CategoryBrowser groups web fetch and search tools.
	CategoryBrowser Category = "browser"

	// CategoryGenerate groups content generation tools (widgets, documents).
	CategoryGenerate Category = "generate"

	// CategoryAutomation groups scheduling, memory, and imported MCP tools.
	CategoryAutomation Category = "automation"
)

// Categories returns every valid category in prompt rendering order.
func Categories() []Category {
	return []Category{
		CategoryOS,
		CategoryFile,
		CategoryShell,
		CategoryBrowser,
		CategoryGenerate,
		CategoryAutomation,
	}
}

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryOS, CategoryFile, CategoryShell, CategoryBrowser,
		CategoryGenerate, CategoryAutomation:
		return true
	}
	return false
}

// ParamType is the declared JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// ParamSpec declares a single tool parameter. Specs are validated at
// registration time so malformed schemas are rejected before a model can
// ever produce a call against them.
type ParamSpec struct {
	// Type is the parameter's JSON type.
	Type ParamType

	// Description is surfaced to the model in the prompt text.
	Description string

	// Enum optionally restricts the parameter to a fixed set of literal
	// string values, rendered into the prompt as guidance. The engine does
	// not enforce it at call time; handlers validate their own arguments.
	Enum []string

	// Optional marks the parameter as omissible. The zero value means
	// required.
	Optional bool
}

// Handler implements a tool's effect. args is the parsed argument mapping
// (never nil) and hc is the capability bag for this single execution.
// Returning a non-nil error marks the call failed; the executor converts
// the error into a failure [ToolResult] and never lets it propagate.
type Handler func(ctx context.Context, args map[string]any, hc *host.Context) (ToolResult, error)

// ToolDefinition describes one invocable tool. Definitions are created at
// registration time and live for the process lifetime; there is no
// deregistration.
type ToolDefinition struct {
	// Name uniquely identifies the tool within a registry.
	Name string

	// Description is surfaced to the model in the prompt text.
	Description string

	// Category determines the prompt group the tool is rendered under.
	Category Category

	// Parameters maps parameter names to their specs. May be empty for
	// parameter-less tools.
	Parameters map[string]ParamSpec

	// RequiresConfirmation is advisory metadata for callers that gate
	// destructive operations behind user approval. The engine itself never
	// branches on it: once ExecuteTool is called, the handler runs.
	RequiresConfirmation bool

	// Handler is invoked by the executor.
	Handler Handler
}

// ParsedToolCall is one tool invocation recovered from model output.
type ParsedToolCall struct {
	// Tool is the tool name as produced by the model, not yet validated
	// against any registry.
	Tool string

	// Args is the argument mapping. Never nil after a successful parse;
	// calls without an "args" member get an empty map.
	Args map[string]any

	// RawMatch is the exact substring of the source text that produced this
	// call, byte-identical so the sanitizer can remove it verbatim.
	RawMatch string
}

// ToolResult is the outcome envelope of a single tool execution. Failures
// of every kind (unknown tool, handler error, handler panic) are expressed
// as a ToolResult with Success false, never as a Go panic from the engine.
type ToolResult struct {
	// Success reports whether the tool accomplished its effect.
	Success bool

	// Message is a human-readable, conversationally formatted summary fed
	// back to the model (and optionally shown to the user).
	Message string

	// Data is an optional structured payload for chaining into later calls.
	Data any

	// DisplayOnly marks a result that should be shown to the user but not
	// fed back into the model.
	DisplayOnly bool
}

// validateDefinition checks a definition at registration time. All problems
// are reported together so a misdeclared tool surfaces every defect at once.
func validateDefinition(def ToolDefinition) error {
	var errs []error
	if def.Name == "" {
		errs = append(errs, errors.New("engine: tool must have a non-empty name"))
	}
	if def.Handler == nil {
		errs = append(errs, fmt.Errorf("engine: tool %q must have a non-nil handler", def.Name))
	}
	if !def.Category.IsValid() {
		errs = append(errs, fmt.Errorf("engine: tool %q has unknown category %q", def.Name, def.Category))
	}
	for pname, spec := range def.Parameters {
		if pname == "" {
			errs = append(errs, fmt.Errorf("engine: tool %q declares a parameter with an empty name", def.Name))
			continue
		}
		if !spec.Type.IsValid() {
			errs = append(errs, fmt.Errorf("engine: tool %q parameter %q has unknown type %q", def.Name, pname, spec.Type))
		}
	}
	return errors.Join(errs...)
}
