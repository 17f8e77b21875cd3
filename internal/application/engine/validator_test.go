package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, registry.RegisterBuiltins(r, registry.Deps{}))
	return r
}

func node(id int, kind string) domain.GraphNode {
	return domain.GraphNode{ID: id, Type: kind}
}

func link(id, from, fromSlot, to, toSlot int, typ domain.SemanticType) domain.Link {
	return domain.Link{ID: id, OriginNodeID: from, OriginSlot: fromSlot, TargetNodeID: to, TargetSlot: toSlot, Type: typ}
}

func validChatDoc() *domain.GraphDocument {
	return &domain.GraphDocument{
		Name: "chat",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeMessage),
		},
	}
}

func TestValidateAcceptsMinimalGraph(t *testing.T) {
	v := NewValidator(testRegistry(t))

	res := v.Validate(validChatDoc())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err("chat"))
}

func TestValidateNilAndEmpty(t *testing.T) {
	v := NewValidator(testRegistry(t))

	res := v.Validate(nil)
	assert.False(t, res.Valid)

	res = v.Validate(&domain.GraphDocument{Name: "empty"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "no nodes")
}

func TestValidateDuplicateNodeIDs(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	doc.Nodes = append(doc.Nodes, node(1, "input/chat"))

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "duplicate node id 1")
}

func TestValidateDanglingLink(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	doc.Links = append(doc.Links, link(2, 1, 0, 99, 0, domain.TypeMessage))

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "missing target node 99")
}

func TestValidateMissingEntryAndTerminal(t *testing.T) {
	v := NewValidator(testRegistry(t))

	res := v.Validate(&domain.GraphDocument{
		Name:  "no-entry",
		Nodes: []domain.GraphNode{node(1, "output/response")},
	})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "no entry node")

	res = v.Validate(&domain.GraphDocument{
		Name:  "no-terminal",
		Nodes: []domain.GraphNode{node(1, "input/chat")},
	})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "no terminal node")
}

func TestValidateUnknownKind(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	doc.Nodes[0].Type = "input/telepathy"

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "input/telepathy")
}

func TestValidateSlotBounds(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	doc.Links[0].OriginSlot = 5

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "no output slot 5")
}

func TestValidateLinkTypeMismatch(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	// input/chat output slot 0 carries message, not boolean
	doc.Links[0].Type = domain.TypeBoolean

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], `declared type "boolean"`)
}

func TestValidateNullLinkTypeInherits(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	doc.Links[0].Type = ""

	res := v.Validate(doc)
	assert.True(t, res.Valid)
}

func TestValidateBackEdgeOriginMustBeControl(t *testing.T) {
	v := NewValidator(testRegistry(t))

	// extract_text and if-condition form a cycle with no control router
	doc := &domain.GraphDocument{
		Name: "bad-loop",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "transform/extract_text"),
			node(3, "condition/if"),
			node(4, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeWildcard),
			link(2, 2, 0, 3, 1, domain.TypeWildcard),
			link(3, 3, 0, 2, 0, domain.TypeWildcard),
			link(4, 3, 1, 4, 0, domain.TypeWildcard),
		},
	}

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "loop-back edge") && strings.Contains(e, "condition") {
			found = true
		}
	}
	assert.True(t, found, "expected loop-back origin error, got %v", res.Errors)
}

func TestValidateBackEdgeErrorsInLinkOrder(t *testing.T) {
	v := NewValidator(testRegistry(t))

	// two offending cycles, each closed by a condition node
	doc := &domain.GraphDocument{
		Name: "two-loops",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "transform/extract_text"),
			node(3, "condition/if"),
			node(4, "transform/extract_text"),
			node(5, "condition/if"),
			node(6, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeWildcard),
			link(2, 2, 0, 3, 1, domain.TypeWildcard),
			link(3, 3, 0, 2, 0, domain.TypeWildcard),
			link(4, 3, 1, 4, 0, domain.TypeWildcard),
			link(5, 4, 0, 5, 1, domain.TypeWildcard),
			link(6, 5, 0, 4, 0, domain.TypeWildcard),
			link(7, 5, 1, 6, 0, domain.TypeWildcard),
		},
	}

	res := v.Validate(doc)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "link 3")
	assert.Contains(t, res.Errors[1], "link 6")

	assert.Equal(t, res, v.Validate(doc))
}

func TestValidateLoopControllerBackEdgeAllowed(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := &domain.GraphDocument{
		Name: "refine",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "transform/extract_text"),
			node(3, "control/loop"),
			node(4, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeWildcard),
			link(2, 2, 0, 3, 0, domain.TypeWildcard),
			// loop output back to the transform closes the cycle
			link(3, 3, 0, 2, 0, domain.TypeWildcard),
			link(4, 3, 1, 4, 0, domain.TypeWildcard),
		},
	}

	res := v.Validate(doc)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := NewValidator(testRegistry(t))

	doc := validChatDoc()
	doc.Nodes[0].Type = "input/telepathy"
	doc.Links = append(doc.Links, link(2, 1, 0, 99, 0, domain.TypeMessage))

	first := v.Validate(doc)
	second := v.Validate(doc)
	assert.Equal(t, first, second)
}
