package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Graph is a stored workflow: an ordered list of nodes and guarded edges.
// It is treated as immutable for the duration of a run.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Node is a single step. Type selects the tool or plugin that runs it.
type Node struct {
	ID        string     `json:"id" yaml:"id"`
	Type      string     `json:"type" yaml:"type"`
	Label     string     `json:"label,omitempty" yaml:"label,omitempty"`
	Data      NodeConfig `json:"data,omitempty" yaml:"data,omitempty"`
	Condition string     `json:"condition,omitempty" yaml:"condition,omitempty"`
	// AgentID runs the step as a different owner.
	AgentID string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
}

// Edge is a directed transition. Condition is evaluated against the
// source node's output as {"output": ...}.
type Edge struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Empty reports whether the graph has no nodes.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}

// ToJSON converts a Graph to an indented JSON string.
func (g *Graph) ToJSON() (string, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a Graph to a YAML string.
func (g *Graph) ToYAML() (string, error) {
	data, err := yaml.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// GraphFromJSON parses and shape-validates a graph.
func GraphFromJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, invalidPayload(err)
	}
	if err := ValidateShape(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GraphFromYAML parses and shape-validates a graph.
func GraphFromYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, invalidPayload(err)
	}
	if err := ValidateShape(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// LoadGraphFile reads a graph from a .json, .yaml or .yml file.
func LoadGraphFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if strings.HasSuffix(path, ".json") {
		return GraphFromJSON(data)
	}
	return GraphFromYAML(data)
}

// =============================================================================
// NodeConfig
// =============================================================================

// NodeConfig is the opaque per-node configuration passed verbatim to the
// tool. The accessors validate lazily, when a tool asks for a key.
type NodeConfig map[string]any

// String returns the string at key.
func (c NodeConfig) String(key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", fmt.Errorf("config key %q not set", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config key %q: expected string, got %T", key, v)
	}
	return s, nil
}

// Int returns the integer at key. JSON numbers and numeric strings are accepted.
func (c NodeConfig) Int(key string) (int, error) {
	v, ok := c[key]
	if !ok {
		return 0, fmt.Errorf("config key %q not set", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("config key %q: %v is not an integer", key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("config key %q: %w", key, err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("config key %q: %w", key, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("config key %q: expected integer, got %T", key, v)
}

// Float returns the number at key.
func (c NodeConfig) Float(key string) (float64, error) {
	v, ok := c[key]
	if !ok {
		return 0, fmt.Errorf("config key %q not set", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("config key %q: expected number, got %T", key, v)
}

// Bool returns the boolean at key.
func (c NodeConfig) Bool(key string) (bool, error) {
	v, ok := c[key]
	if !ok {
		return false, fmt.Errorf("config key %q not set", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("config key %q: expected bool, got %T", key, v)
	}
	return b, nil
}

// Map returns the nested mapping at key.
func (c NodeConfig) Map(key string) (map[string]any, error) {
	v, ok := c[key]
	if !ok {
		return nil, fmt.Errorf("config key %q not set", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config key %q: expected mapping, got %T", key, v)
	}
	return m, nil
}

// StringOr returns the string at key, or def when missing or mistyped.
func (c NodeConfig) StringOr(key, def string) string {
	if s, err := c.String(key); err == nil {
		return s
	}
	return def
}

// Clone returns a shallow copy, never nil.
func (c NodeConfig) Clone() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
