// Package tools provides the registry of callables exposed to the agent
// loop. Each tool carries an explicitly declared schema — no reflection —
// and dispatch returns a typed result instead of error strings to parse.
package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ricmello/garra/internal/llm"
)

// Param is one declared tool parameter.
type Param struct {
	Name        string
	Type        string // string, integer, number, boolean
	Description string
	Required    bool
}

// Schema statically describes a tool at registration time.
type Schema struct {
	Name        string
	Description string
	Params      []Param
}

// Handler executes a tool. It always returns text for the model's context;
// a non-nil error is rendered into that context, never raised further.
type Handler func(args map[string]any) (string, error)

// DispatchResult is the typed outcome of a dispatch: exactly one of the
// three branches applies.
type DispatchResult struct {
	OK          bool
	Output      string // Set when OK.
	UnknownTool string // Set when the name is not registered.
	InvalidArgs string // Set when arguments don't match the schema.
}

// Registry maps tool names to schemas and handlers. Read-only after
// initialization and safe for concurrent use by multiple loop instances.
type Registry struct {
	tools map[string]registered
}

type registered struct {
	schema  Schema
	handler Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds a tool. Registering a duplicate name panics: the tool set
// is assembled once at startup and a collision is a programming error.
func (r *Registry) Register(schema Schema, handler Handler) {
	if _, exists := r.tools[schema.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration of %q", schema.Name))
	}
	r.tools[schema.Name] = registered{schema: schema, handler: handler}
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the wire-format definitions for the model backend.
func (r *Registry) Schemas() []llm.ToolSchema {
	var schemas []llm.ToolSchema
	for _, name := range r.Names() {
		schemas = append(schemas, toWire(r.tools[name].schema))
	}
	return schemas
}

// Dispatch looks up and executes a tool. Unknown names and argument
// mismatches come back as typed branches — recoverable conditions surfaced
// into the conversation, never process-level failures.
func (r *Registry) Dispatch(name string, args map[string]any) DispatchResult {
	reg, ok := r.tools[name]
	if !ok {
		return DispatchResult{UnknownTool: name}
	}

	if detail := validateArgs(reg.schema, args); detail != "" {
		return DispatchResult{InvalidArgs: detail}
	}

	output, err := reg.handler(args)
	if err != nil {
		// A handler failure is still a completed dispatch; the model sees
		// the error text and decides what to do next.
		return DispatchResult{OK: true, Output: fmt.Sprintf("Erro ao executar '%s': %v", name, err)}
	}
	return DispatchResult{OK: true, Output: output}
}

// validateArgs checks required parameters and basic types against the
// declared schema. Returns an empty string when the arguments are valid.
func validateArgs(schema Schema, args map[string]any) string {
	var problems []string

	for _, p := range schema.Params {
		val, present := args[p.Name]
		if !present {
			if p.Required {
				problems = append(problems, fmt.Sprintf("parâmetro obrigatório ausente: %s", p.Name))
			}
			continue
		}
		if !typeMatches(p.Type, val) {
			problems = append(problems, fmt.Sprintf("parâmetro %s deve ser %s", p.Name, p.Type))
		}
	}

	declared := make(map[string]bool, len(schema.Params))
	for _, p := range schema.Params {
		declared[p.Name] = true
	}
	for name := range args {
		if !declared[name] {
			problems = append(problems, fmt.Sprintf("parâmetro desconhecido: %s", name))
		}
	}

	return strings.Join(problems, "; ")
}

func typeMatches(declared string, val any) bool {
	switch declared {
	case "string":
		_, ok := val.(string)
		return ok
	case "integer", "number":
		// JSON numbers decode to float64.
		switch val.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return true
	}
}

func toWire(s Schema) llm.ToolSchema {
	props := make(map[string]llm.PropertyField, len(s.Params))
	var required []string
	for _, p := range s.Params {
		props[p.Name] = llm.PropertyField{Type: p.Type, Description: p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolSchema{
		Type: "function",
		Function: llm.FunctionSchema{
			Name:        s.Name,
			Description: s.Description,
			Parameters: llm.ParametersField{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}
