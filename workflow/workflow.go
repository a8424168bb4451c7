// Package workflow defines the graph model for automation workflows: typed
// nodes, directed connections between them, and the structural and per-type
// configuration rules a drawn graph must satisfy before it may be submitted
// to the remote execution engine.
package workflow

import "sort"

// Trigger describes when a workflow should run. Triggers are carried
// opaquely to the engine; this core does not process them.
type Trigger struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// WorkflowDefinition is a complete workflow graph as drawn by the operator.
type WorkflowDefinition struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Nodes       map[string]*NodeDefinition `json:"nodes"`
	Variables   map[string]any             `json:"variables,omitempty"`
	Triggers    []Trigger                  `json:"triggers,omitempty"`
}

// Edge is a directed connection from one node's output to another node's
// input. Edges are not stored independently; they are reconstructed from
// each node's outgoing connections.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Node returns the node with the given id.
func (w *WorkflowDefinition) Node(id string) (*NodeDefinition, bool) {
	node, ok := w.Nodes[id]
	return node, ok
}

// NodesOfType returns the ids of all nodes with the given type, sorted.
func (w *WorkflowDefinition) NodesOfType(t NodeType) []string {
	var ids []string
	for id, node := range w.Nodes {
		if node.Type == t {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Edges derives the workflow's edge list from node connections. Self-loops
// and duplicate (source, target) pairs are skipped, and the result is in a
// deterministic order: sources sorted by id, each source's targets in
// declaration order.
func (w *WorkflowDefinition) Edges() []Edge {
	sourceIDs := make([]string, 0, len(w.Nodes))
	for id := range w.Nodes {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	var edges []Edge
	seen := map[Edge]bool{}
	for _, sourceID := range sourceIDs {
		for _, targetID := range w.Nodes[sourceID].OutgoingConnections {
			if targetID == sourceID {
				continue
			}
			edge := Edge{Source: sourceID, Target: targetID}
			if seen[edge] {
				continue
			}
			seen[edge] = true
			edges = append(edges, edge)
		}
	}
	return edges
}

// EdgesInto returns the sources of all edges whose target is the given node,
// in deterministic order.
func (w *WorkflowDefinition) EdgesInto(targetID string) []string {
	var sources []string
	for _, edge := range w.Edges() {
		if edge.Target == targetID {
			sources = append(sources, edge.Source)
		}
	}
	return sources
}
