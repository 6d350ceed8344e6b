package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Graph is the node/edge payload of a definition
type Graph struct {
	Nodes       []WorkflowNode       `json:"nodes" yaml:"nodes"`
	Connections []WorkflowConnection `json:"connections" yaml:"connections"`
}

// WorkflowConnection is a directed edge. Condition is only honoured when the
// source is a decision node.
type WorkflowConnection struct {
	SourceNodeID string `json:"sourceNodeId" yaml:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId" yaml:"targetNodeId"`
	Condition    string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// WorkflowNode is a typed step. Config always matches Type once decoded.
type WorkflowNode struct {
	ID          string
	Name        string
	Type        NodeType
	Description string
	Config      NodeConfig
}

// EffectiveConfig returns Config, or the zero config for the node type when
// the node was built in code without one. It is nil for unknown types.
func (n *WorkflowNode) EffectiveConfig() NodeConfig {
	if n.Config != nil {
		return n.Config
	}
	cfg, err := decodeNodeConfig(n.Type, nil)
	if err != nil {
		return nil
	}
	return cfg
}

// Node returns the first node declared with id.
func (g *Graph) Node(id string) (*WorkflowNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Outgoing returns the connections leaving id, in declaration order.
func (g *Graph) Outgoing(id string) []WorkflowConnection {
	var out []WorkflowConnection
	for _, c := range g.Connections {
		if c.SourceNodeID == id {
			out = append(out, c)
		}
	}
	return out
}

// StartNode returns the first declared start node.
func (g *Graph) StartNode() (*WorkflowNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeStart {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the graph so instances can hold an independent snapshot.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes:       make([]WorkflowNode, len(g.Nodes)),
		Connections: make([]WorkflowConnection, len(g.Connections)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Connections, g.Connections)
	return out
}

// ParseGraphJSON decodes a graph payload, parsing every node config.
func ParseGraphJSON(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return Graph{}, fmt.Errorf("failed to decode graph: %w", err)
	}
	return g, nil
}

// ParseGraphYAML decodes a YAML graph by normalising it to JSON so both
// formats share one decoder.
func ParseGraphYAML(data []byte) (Graph, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Graph{}, fmt.Errorf("failed to parse yaml: %w", err)
	}
	normalised, err := json.Marshal(raw)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to normalise yaml: %w", err)
	}
	return ParseGraphJSON(normalised)
}

// NodeConfig is the typed configuration of a node. Implementations are
// StartNodeConfig, TaskNodeConfig, DecisionNodeConfig and EndNodeConfig.
type NodeConfig interface {
	NodeType() NodeType
}

// StartNodeConfig carries no settings
type StartNodeConfig struct{}

func (StartNodeConfig) NodeType() NodeType { return NodeTypeStart }

// TaskNodeConfig configures the task a node materializes
type TaskNodeConfig struct {
	TaskType     string `json:"taskType,omitempty"`
	AssignTo     string `json:"assignTo,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	OnTimeout    string `json:"onTimeout,omitempty"`
	EscalateTo   string `json:"escalateTo,omitempty"`
}

func (TaskNodeConfig) NodeType() NodeType { return NodeTypeTask }

// TimeoutDuration returns the parsed timeout, if one is set.
func (c TaskNodeConfig) TimeoutDuration() (time.Duration, bool) {
	if c.Timeout == "" {
		return 0, false
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func (c TaskNodeConfig) validate() error {
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("invalid timeout %q", c.Timeout)
		}
	}
	switch c.OnTimeout {
	case "", "fail":
	case "escalate":
		if c.EscalateTo == "" {
			return fmt.Errorf("onTimeout escalate requires escalateTo")
		}
	default:
		return fmt.Errorf("unknown onTimeout %q", c.OnTimeout)
	}
	return nil
}

// DecisionNodeConfig names the fallback target when no condition matches
type DecisionNodeConfig struct {
	DefaultTarget string `json:"defaultTarget,omitempty"`
}

func (DecisionNodeConfig) NodeType() NodeType { return NodeTypeDecision }

// EndNodeConfig records the outcome written to the instance context
type EndNodeConfig struct {
	Outcome string `json:"outcome,omitempty"`
}

func (EndNodeConfig) NodeType() NodeType { return NodeTypeEnd }

type nodeWire struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        NodeType        `json:"type"`
	Description string          `json:"description,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON decodes the node and its config variant in one pass.
func (n *WorkflowNode) UnmarshalJSON(data []byte) error {
	var w nodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg, err := decodeNodeConfig(w.Type, w.Config)
	if err != nil {
		return fmt.Errorf("node %q: %w", w.ID, err)
	}
	*n = WorkflowNode{
		ID:          w.ID,
		Name:        w.Name,
		Type:        w.Type,
		Description: w.Description,
		Config:      cfg,
	}
	return nil
}

// MarshalJSON writes the node in the same shape UnmarshalJSON reads.
func (n WorkflowNode) MarshalJSON() ([]byte, error) {
	cfg := n.Config
	if cfg == nil {
		var err error
		if cfg, err = decodeNodeConfig(n.Type, nil); err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeWire{
		ID:          n.ID,
		Name:        n.Name,
		Type:        n.Type,
		Description: n.Description,
		Config:      raw,
	})
}

func decodeNodeConfig(t NodeType, raw json.RawMessage) (NodeConfig, error) {
	empty := len(raw) == 0 || string(raw) == "null"

	switch t {
	case NodeTypeStart:
		return StartNodeConfig{}, nil
	case NodeTypeTask:
		var c TaskNodeConfig
		if !empty {
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("invalid task config: %w", err)
			}
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	case NodeTypeDecision:
		var c DecisionNodeConfig
		if !empty {
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("invalid decision config: %w", err)
			}
		}
		return c, nil
	case NodeTypeEnd:
		var c EndNodeConfig
		if !empty {
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("invalid end config: %w", err)
			}
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
}
