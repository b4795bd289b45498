// Package tools defines the JSON-schema-shaped tool descriptors the LLM
// provider adapters under pkg/agent/llmimpl convert into each vendor's native
// function-calling format. The remediation Classifier does not invoke tools
// itself (it only needs plain chat completions), so this package carries just
// the shape the adapters already convert, not a tool execution runtime.
package tools

// Property describes one JSON-schema property of a tool's input, including
// the recursive shapes (object/array) the Gemini and Ollama adapters walk.
type Property struct {
	Type        string
	Description string
	Enum        []string
	Items       *Property
	Properties  map[string]*Property
}

// InputSchema is a tool's parameter schema. Type is only consulted by the
// Ollama adapter, which mirrors it into its function parameters object.
type InputSchema struct {
	Type       string
	Properties map[string]Property
	Required   []string
}

// ToolDefinition describes one callable tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema InputSchema
}
