package engine

import (
	"fmt"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/registry"
)

// Validator checks the structural soundness of loaded graph documents.
// It reports every violation found rather than failing fast, in a fixed
// order: structure, node-id uniqueness, link referential integrity,
// entry/terminal presence, unknown kinds, link type compatibility, and
// back-edge origin category.
type Validator struct {
	registry *registry.Registry
}

// NewValidator creates a validator backed by the given node kind registry.
func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// Result is the outcome of one validation pass. Repeated calls on the same
// document yield the same error set.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err converts an invalid result into a *domain.ValidationError, or nil.
func (r Result) Err(graphName string) error {
	if r.Valid {
		return nil
	}
	return &domain.ValidationError{GraphName: graphName, Issues: r.Errors}
}

// Validate runs all checks on doc.
func (v *Validator) Validate(doc *domain.GraphDocument) Result {
	var issues []string
	add := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if doc == nil {
		return Result{Valid: false, Errors: []string{"document is nil"}}
	}
	if len(doc.Nodes) == 0 {
		add("graph has no nodes")
	}

	// Node id uniqueness.
	seen := make(map[int]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if seen[n.ID] {
			add("duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
	}

	// Link referential integrity.
	for _, l := range doc.Links {
		if !seen[l.OriginNodeID] {
			add("link %d references missing origin node %d", l.ID, l.OriginNodeID)
		}
		if !seen[l.TargetNodeID] {
			add("link %d references missing target node %d", l.ID, l.TargetNodeID)
		}
	}

	// Entry and terminal presence, plus unknown kinds.
	descs := make(map[int]*domain.NodeTypeDescriptor, len(doc.Nodes))
	var hasEntry, hasTerminal bool
	for _, n := range doc.Nodes {
		desc, _, err := v.registry.Lookup(n.Type)
		if err != nil {
			add("node %d: %v", n.ID, err)
			continue
		}
		descs[n.ID] = desc
		switch desc.Category {
		case domain.CategoryInput:
			hasEntry = true
		case domain.CategoryOutput:
			hasTerminal = true
		}
	}
	if len(doc.Nodes) > 0 && !hasEntry {
		add("graph has no entry node (category %q)", domain.CategoryInput)
	}
	if len(doc.Nodes) > 0 && !hasTerminal {
		add("graph has no terminal node (category %q)", domain.CategoryOutput)
	}

	// Slot bounds and link type compatibility. A link's semantic type must
	// equal the feeding output's declared type, or be the wildcard; a null
	// wire type inherits the output's type first.
	for _, l := range doc.Links {
		origin, target := descs[l.OriginNodeID], descs[l.TargetNodeID]
		if origin == nil || target == nil {
			continue
		}
		outSpec, ok := origin.Output(l.OriginSlot)
		if !ok {
			add("link %d: origin node %d has no output slot %d", l.ID, l.OriginNodeID, l.OriginSlot)
			continue
		}
		inSpec, ok := target.Input(l.TargetSlot)
		if !ok {
			add("link %d: target node %d has no input slot %d", l.ID, l.TargetNodeID, l.TargetSlot)
			continue
		}

		linkType := l.Type
		if linkType == "" {
			linkType = outSpec.Type
		}
		if !domain.Compatible(outSpec.Type, linkType) {
			add("link %d: declared type %q does not match output %q of type %q",
				l.ID, linkType, outSpec.Name, outSpec.Type)
		}
		if !domain.Compatible(linkType, inSpec.Type) {
			add("link %d: type %q cannot feed input %q of type %q",
				l.ID, linkType, inSpec.Name, inSpec.Type)
		}
	}

	// Only control-flow routers may originate a loop-back edge. Links are
	// walked in document order so repeated passes report violations in the
	// same order.
	backEdges := detectBackEdges(doc)
	for _, l := range doc.Links {
		if !backEdges[l.ID] {
			continue
		}
		if desc := descs[l.OriginNodeID]; desc != nil && desc.Category != domain.CategoryControl {
			add("link %d: loop-back edge originates from node %d of category %q, only %q may loop",
				l.ID, l.OriginNodeID, desc.Category, domain.CategoryControl)
		}
	}

	return Result{Valid: len(issues) == 0, Errors: issues}
}
