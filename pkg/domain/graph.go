package domain

import (
	"encoding/json"
	"fmt"
)

// GraphDocument is a loaded workflow graph. It is immutable after loading;
// the engine never mutates a document, only the per-run ExecutionState.
type GraphDocument struct {
	Version int                    `json:"version"`
	Name    string                 `json:"name"`
	Nodes   []GraphNode            `json:"nodes"`
	Links   []Link                 `json:"links"`
	Groups  json.RawMessage        `json:"groups,omitempty"`
	Config  map[string]interface{} `json:"config,omitempty"`
	Extra   json.RawMessage        `json:"extra,omitempty"`
}

// NodeByID returns the node with the given id, or false if absent.
func (d *GraphDocument) NodeByID(id int) (*GraphNode, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// GraphNode is one typed unit of work in a graph document. Layout fields
// (position, size) present in editor output are intentionally not modelled;
// the engine ignores them on decode.
type GraphNode struct {
	ID         int                    `json:"id"`
	Type       string                 `json:"type"`
	Title      string                 `json:"title,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Property returns a node property, falling back to the supplied default.
func (n *GraphNode) Property(key string, def interface{}) interface{} {
	if n.Properties == nil {
		return def
	}
	if v, ok := n.Properties[key]; ok {
		return v
	}
	return def
}

// Link is a directed typed edge connecting one node's output slot to
// another node's input slot.
//
// On the wire a link is a positional array:
//
//	[id, originNodeId, originSlotIndex, targetNodeId, targetSlotIndex, semanticType]
//
// A null semanticType means "inherit from the feeding output's declared
// type" and decodes to the empty string.
type Link struct {
	ID           int
	OriginNodeID int
	OriginSlot   int
	TargetNodeID int
	TargetSlot   int
	Type         SemanticType
}

// MarshalJSON encodes the link in its positional array form.
func (l Link) MarshalJSON() ([]byte, error) {
	var t interface{}
	if l.Type != "" {
		t = string(l.Type)
	}
	return json.Marshal([]interface{}{
		l.ID, l.OriginNodeID, l.OriginSlot, l.TargetNodeID, l.TargetSlot, t,
	})
}

// UnmarshalJSON decodes the positional array form.
func (l *Link) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("link must be a positional array: %w", err)
	}
	if len(raw) != 6 {
		return fmt.Errorf("link array must have 6 elements, got %d", len(raw))
	}

	ints := []*int{&l.ID, &l.OriginNodeID, &l.OriginSlot, &l.TargetNodeID, &l.TargetSlot}
	for i, dst := range ints {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return fmt.Errorf("link element %d: %w", i, err)
		}
	}

	if string(raw[5]) == "null" {
		l.Type = ""
		return nil
	}
	var t string
	if err := json.Unmarshal(raw[5], &t); err != nil {
		return fmt.Errorf("link semantic type: %w", err)
	}
	l.Type = SemanticType(t)
	return nil
}
