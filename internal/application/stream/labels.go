package stream

import (
	"strings"

	"github.com/metahuman-os/cortex/pkg/domain"
)

// progressLabels maps node kinds to the phrases shown to end users while
// a run is in flight. Kinds without an entry fall back to the node title,
// then to a phrase derived from the kind itself.
var progressLabels = map[string]string{
	"input/chat":             "Reading your message",
	"input/mode":             "Checking conversation mode",
	"output/response":        "Preparing the answer",
	"output/speech":          "Preparing spoken output",
	"control/loop":           "Refining the result",
	"condition/if":           "Choosing a path",
	"condition/mode":         "Routing by mode",
	"model/generate":         "Thinking",
	"transform/extract_text": "Extracting text",
	"transform/template":     "Composing text",
	"transform/merge":        "Combining results",
	"memory/search":          "Recalling relevant memories",
	"memory/store":           "Saving to memory",
	"skill/invoke":           "Using a skill",
}

// labelFor returns the user-facing progress phrase for an execution event.
func labelFor(doc *domain.GraphDocument, ev domain.ExecutionEvent) string {
	if l, ok := progressLabels[ev.NodeType]; ok {
		return l
	}
	if doc != nil {
		if node, ok := doc.NodeByID(ev.NodeID); ok && node.Title != "" {
			return node.Title
		}
	}
	// "memory/search" reads as "memory search".
	return strings.ReplaceAll(ev.NodeType, "/", " ")
}
