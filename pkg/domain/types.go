package domain

// SemanticType identifies the kind of value a port produces or accepts.
type SemanticType string

const (
	TypeString        SemanticType = "string"
	TypeNumber        SemanticType = "number"
	TypeBoolean       SemanticType = "boolean"
	TypeObject        SemanticType = "object"
	TypeArray         SemanticType = "array"
	TypeMessage       SemanticType = "message"
	TypeContext       SemanticType = "context"
	TypeMode          SemanticType = "mode"
	TypeUser          SemanticType = "user"
	TypeMemory        SemanticType = "memory"
	TypeSkillResult   SemanticType = "skill-result"
	TypeModelResponse SemanticType = "model-response"
	TypeDecision      SemanticType = "decision"

	// TypeWildcard is compatible with every other semantic type in both
	// directions.
	TypeWildcard SemanticType = "wildcard"
)

// Compatible reports whether a value of type `from` may flow into a port of
// type `to`.
func Compatible(from, to SemanticType) bool {
	if from == TypeWildcard || to == TypeWildcard {
		return true
	}
	return from == to
}

// Category groups node kinds by their role in the graph.
type Category string

const (
	// CategoryInput marks entry nodes; a valid graph has at least one.
	CategoryInput Category = "input"

	// CategoryOutput marks terminal nodes; their value is a final result.
	CategoryOutput Category = "output"

	// CategoryControl marks control-flow routers, the only kinds allowed to
	// originate a loop-back edge.
	CategoryControl Category = "control"

	// CategoryCondition marks branching nodes that take exactly one of N
	// declared branch outputs per invocation.
	CategoryCondition Category = "condition"

	CategoryModel     Category = "model"
	CategoryMemory    Category = "memory"
	CategorySkill     Category = "skill"
	CategoryTransform Category = "transform"
)

// PortSpec describes one named, semantically typed input or output slot.
type PortSpec struct {
	Name     string       `json:"name"`
	Type     SemanticType `json:"type"`
	Optional bool         `json:"optional,omitempty"`
}

// NodeTypeDescriptor is the flat, registration-time description of a node
// kind. Descriptors carry no behavior; the matching execution function is
// registered alongside them.
type NodeTypeDescriptor struct {
	Kind              string                 `json:"kind"`
	Category          Category               `json:"category"`
	Inputs            []PortSpec             `json:"inputs"`
	Outputs           []PortSpec             `json:"outputs"`
	DefaultProperties map[string]interface{} `json:"default_properties,omitempty"`
}

// Input returns the input port spec at slot, or false if out of range.
func (d *NodeTypeDescriptor) Input(slot int) (PortSpec, bool) {
	if slot < 0 || slot >= len(d.Inputs) {
		return PortSpec{}, false
	}
	return d.Inputs[slot], true
}

// Output returns the output port spec at slot, or false if out of range.
func (d *NodeTypeDescriptor) Output(slot int) (PortSpec, bool) {
	if slot < 0 || slot >= len(d.Outputs) {
		return PortSpec{}, false
	}
	return d.Outputs[slot], true
}
