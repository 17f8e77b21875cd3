package engine

import (
	"fmt"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/registry"
)

// graphView is the dependency view the executor builds from a document's
// links before scheduling anything.
type graphView struct {
	doc      *domain.GraphDocument
	nodes    map[int]*domain.GraphNode
	descs    map[int]*domain.NodeTypeDescriptor
	fns      map[int]registry.ExecFunc
	inbound  map[int][]domain.Link
	outbound map[int][]domain.Link
	// backEdges holds link ids that close a cycle.
	backEdges map[int]bool
	entries   []int
}

func buildGraphView(doc *domain.GraphDocument, reg *registry.Registry) (*graphView, error) {
	v := &graphView{
		doc:       doc,
		nodes:     make(map[int]*domain.GraphNode, len(doc.Nodes)),
		descs:     make(map[int]*domain.NodeTypeDescriptor, len(doc.Nodes)),
		fns:       make(map[int]registry.ExecFunc, len(doc.Nodes)),
		inbound:   make(map[int][]domain.Link),
		outbound:  make(map[int][]domain.Link),
		backEdges: detectBackEdges(doc),
	}

	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		v.nodes[n.ID] = n
		desc, fn, err := reg.Lookup(n.Type)
		if err != nil {
			return nil, err
		}
		v.descs[n.ID] = desc
		v.fns[n.ID] = fn
		if desc.Category == domain.CategoryInput {
			v.entries = append(v.entries, n.ID)
		}
	}

	for _, l := range doc.Links {
		if _, ok := v.nodes[l.OriginNodeID]; !ok {
			return nil, fmt.Errorf("link %d: unknown origin node %d", l.ID, l.OriginNodeID)
		}
		if _, ok := v.nodes[l.TargetNodeID]; !ok {
			return nil, fmt.Errorf("link %d: unknown target node %d", l.ID, l.TargetNodeID)
		}
		v.outbound[l.OriginNodeID] = append(v.outbound[l.OriginNodeID], l)
		v.inbound[l.TargetNodeID] = append(v.inbound[l.TargetNodeID], l)
	}

	return v, nil
}

// linkType resolves a link's semantic type, inheriting the feeding output's
// declared type when the document left it null.
func (v *graphView) linkType(l domain.Link) domain.SemanticType {
	if l.Type != "" {
		return l.Type
	}
	if desc, ok := v.descs[l.OriginNodeID]; ok {
		if spec, ok := desc.Output(l.OriginSlot); ok {
			return spec.Type
		}
	}
	return domain.TypeWildcard
}

// outputName maps an origin slot index to its port name.
func (v *graphView) outputName(nodeID, slot int) string {
	if desc, ok := v.descs[nodeID]; ok {
		if spec, ok := desc.Output(slot); ok {
			return spec.Name
		}
	}
	return fmt.Sprintf("out%d", slot)
}

// detectBackEdges finds cycle-closing links with an iterative-order DFS over
// the node adjacency. An edge is a back-edge when its target is still on the
// active DFS stack.
func detectBackEdges(doc *domain.GraphDocument) map[int]bool {
	adj := make(map[int][]domain.Link)
	for _, l := range doc.Links {
		adj[l.OriginNodeID] = append(adj[l.OriginNodeID], l)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(doc.Nodes))
	back := make(map[int]bool)

	var visit func(id int)
	visit = func(id int) {
		color[id] = gray
		for _, l := range adj[id] {
			switch color[l.TargetNodeID] {
			case white:
				visit(l.TargetNodeID)
			case gray:
				back[l.ID] = true
			}
		}
		color[id] = black
	}

	for _, n := range doc.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
	return back
}
