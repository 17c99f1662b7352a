package tools

import (
	"context"
	"fmt"
)

// Argument types a tool can declare. Numbers arrive as float64 from JSON
// decoding; StringOrArray accepts a single string or an array of strings.
const (
	ArgString        = "string"
	ArgNumber        = "number"
	ArgBoolean       = "boolean"
	ArgStringOrArray = "stringOrArray"
)

// ArgSpec declares one argument of a tool.
type ArgSpec struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// Result is what every handler returns: a structured payload plus a short
// human-readable rendering. Clients choose which to use.
type Result struct {
	Structured interface{} `json:"structured"`
	Text       string      `json:"text"`
}

// Handler executes one tool invocation. Arguments have already passed shape
// validation against the descriptor's ArgSpecs.
type Handler func(ctx context.Context, args map[string]interface{}) (*Result, error)

// Descriptor binds a tool name to its argument schema and handler.
type Descriptor struct {
	Name        string
	Description string
	Args        []ArgSpec
	Handler     Handler
}

// Registry maps tool names to descriptors. Registration happens once at
// startup; lookups are read-only afterwards, so no locking is needed.
type Registry struct {
	tools map[string]*Descriptor
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Duplicate names and nil handlers are
// programming errors surfaced at startup.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool descriptor has no name")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %s has no handler", d.Name)
	}
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %s registered twice", d.Name)
	}
	r.tools[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get looks up a descriptor by tool name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// validateArgs checks required presence and value shapes against the specs.
// Unknown arguments are tolerated; handlers ignore what they don't read.
func validateArgs(specs []ArgSpec, args map[string]interface{}) error {
	for _, spec := range specs {
		val, present := args[spec.Name]
		if !present || val == nil {
			if spec.Required {
				return &ValidationError{Field: spec.Name, Reason: "required argument missing"}
			}
			continue
		}
		switch spec.Type {
		case ArgString:
			if _, ok := val.(string); !ok {
				return &ValidationError{Field: spec.Name, Reason: "must be a string"}
			}
		case ArgNumber:
			if _, ok := val.(float64); !ok {
				// Integers decoded from non-JSON sources are fine too.
				if _, ok := val.(int); !ok {
					return &ValidationError{Field: spec.Name, Reason: "must be a number"}
				}
			}
		case ArgBoolean:
			if _, ok := val.(bool); !ok {
				return &ValidationError{Field: spec.Name, Reason: "must be a boolean"}
			}
		case ArgStringOrArray:
			switch val.(type) {
			case string, []interface{}:
			default:
				return &ValidationError{Field: spec.Name, Reason: "must be a string or array of strings"}
			}
		}
	}
	return nil
}
