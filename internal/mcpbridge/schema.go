package mcpbridge

import (
	"encoding/json"

	"github.com/chatit-cloud/neuroos/internal/engine"
)

// paramsFromSchema converts an MCP tool's input schema into registry
// parameter specs. Only the top level of the schema is kept: property
// names, their declared types, descriptions, string enums, and the
// required list. Nested object structure is dropped — the prompt
// catalogue is flat, and servers validate their own arguments on call.
//
// Unknown or missing types fall back to string so a quirky schema cannot
// make registration fail.
func paramsFromSchema(schema any) map[string]engine.ParamSpec {
	m := schemaToMap(schema)
	props, _ := m["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := make(map[string]bool)
	if reqList, ok := m["required"].([]any); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	out := make(map[string]engine.ParamSpec, len(props))
	for name, raw := range props {
		spec := engine.ParamSpec{
			Type:     engine.TypeString,
			Optional: !required[name],
		}
		if prop, ok := raw.(map[string]any); ok {
			if ts, ok := prop["type"].(string); ok {
				if t := engine.ParamType(ts); t.IsValid() {
					spec.Type = t
				}
			}
			if desc, ok := prop["description"].(string); ok {
				spec.Description = oneLine(desc)
			}
			if enumRaw, ok := prop["enum"].([]any); ok {
				for _, ev := range enumRaw {
					if s, ok := ev.(string); ok {
						spec.Enum = append(spec.Enum, s)
					}
				}
			}
		}
		out[name] = spec
	}
	return out
}

// schemaToMap converts any schema representation to a plain map via a JSON
// round-trip. Nil or unconvertible schemas yield an empty object.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
