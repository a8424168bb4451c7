package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports every rule a workflow violates, in rule order,
// so the editing surface can show all problems at once.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed: %s", strings.Join(e.Reasons, "; "))
}

// Validate checks a workflow against the structural and per-node-type rules
// that must hold before submission. It is a pure function: no network calls,
// no mutation. A nil return means the workflow may be submitted.
//
// Note that the disconnected-node rule checks only local out-degree, not
// reachability from the start node. A subgraph connected in a loop but
// unreachable from the entry point still passes; the engine tolerates
// orphaned subgraphs.
func Validate(w *WorkflowDefinition) error {
	var reasons []string

	startIDs := w.NodesOfType(NodeTypeStart)
	switch {
	case len(startIDs) == 0:
		reasons = append(reasons, "workflow is missing a start node")
	case len(startIDs) > 1:
		reasons = append(reasons, fmt.Sprintf("workflow has multiple start nodes: %s", strings.Join(startIDs, ", ")))
	}

	if len(w.NodesOfType(NodeTypeEnd)) == 0 {
		reasons = append(reasons, "workflow is missing an end node")
	}

	ids := make([]string, 0, len(w.Nodes))
	for id := range w.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := w.Nodes[id]
		if node.Type != NodeTypeEnd && len(node.OutgoingConnections) == 0 {
			reasons = append(reasons, fmt.Sprintf("node %q is disconnected: it has no outgoing connections", node.DisplayName()))
		}
		for _, targetID := range node.OutgoingConnections {
			if _, ok := w.Nodes[targetID]; !ok {
				reasons = append(reasons, fmt.Sprintf("node %q connects to unknown node %q", node.DisplayName(), targetID))
			}
		}
	}

	for _, id := range ids {
		node := w.Nodes[id]
		for _, key := range node.Type.RequiredConfig() {
			if !hasNonBlankConfig(node, key) {
				reasons = append(reasons, fmt.Sprintf("node %q (%s) requires config field %q", node.DisplayName(), node.Type, key))
			}
		}
	}

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

func hasNonBlankConfig(n *NodeDefinition, key string) bool {
	value, ok := n.Config[key]
	if !ok || value == nil {
		return false
	}
	if s, isString := value.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}
