// Package graph computes a deterministic execution ordering of workflow
// nodes. The ordering is a display aid for monitoring and debugging views:
// the remote engine schedules the real execution, possibly concurrently, so
// this resolver favors stability and termination over scheduling fidelity.
package graph

import (
	"sort"

	"github.com/flowdeck-io/flowdeck/workflow"
)

// Resolve returns a topological ordering of the node ids using Kahn's
// algorithm. It is total and terminating for any finite graph, including
// cyclic and disconnected ones: every node id appears exactly once.
//
// Ties among ready nodes are broken deterministically so repeated calls on
// the same layout produce identical output: start nodes sort first, then
// ascending layout x, then ascending y, then id.
func Resolve(nodes map[string]*workflow.NodeDefinition, edges []workflow.Edge) []string {
	if len(nodes) == 0 {
		return []string{}
	}

	// Unmet dependency sources per node, restricted to edges whose
	// endpoints both exist.
	deps := make(map[string]map[string]bool, len(nodes))
	for id := range nodes {
		deps[id] = map[string]bool{}
	}
	for _, edge := range edges {
		if edge.Source == edge.Target {
			continue
		}
		if _, ok := nodes[edge.Source]; !ok {
			continue
		}
		if _, ok := nodes[edge.Target]; !ok {
			continue
		}
		deps[edge.Target][edge.Source] = true
	}

	processed := make(map[string]bool, len(nodes))
	order := make([]string, 0, len(nodes))

	sortReady := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			a, b := nodes[ids[i]], nodes[ids[j]]
			aStart := a.Type == workflow.NodeTypeStart
			bStart := b.Type == workflow.NodeTypeStart
			if aStart != bStart {
				return aStart
			}
			if a.Position.X != b.Position.X {
				return a.Position.X < b.Position.X
			}
			if a.Position.Y != b.Position.Y {
				return a.Position.Y < b.Position.Y
			}
			return ids[i] < ids[j]
		})
	}

	ready := func() []string {
		var ids []string
		for id := range nodes {
			if !processed[id] && len(deps[id]) == 0 {
				ids = append(ids, id)
			}
		}
		sortReady(ids)
		return ids
	}

	remaining := func() []string {
		var ids []string
		for id := range nodes {
			if !processed[id] {
				ids = append(ids, id)
			}
		}
		sortReady(ids)
		return ids
	}

	for len(order) < len(nodes) {
		candidates := ready()

		if len(candidates) == 0 && len(order) == 0 {
			// Nothing has an empty dependency set (e.g. the start node has
			// an illegal incoming edge); seed from start nodes instead.
			for _, id := range remaining() {
				if nodes[id].Type == workflow.NodeTypeStart {
					candidates = append(candidates, id)
				}
			}
			sortReady(candidates)
		}

		if len(candidates) == 0 {
			// A cycle, or nodes dependent only on unreachable nodes. Drain
			// the remainder in stable order; termination matters more than
			// fidelity since this ordering never drives real execution.
			order = append(order, remaining()...)
			break
		}

		current := candidates[0]
		processed[current] = true
		order = append(order, current)
		for _, sources := range deps {
			delete(sources, current)
		}
	}

	return order
}

// ResolveWorkflow resolves the display ordering for a whole workflow.
func ResolveWorkflow(w *workflow.WorkflowDefinition) []string {
	return Resolve(w.Nodes, w.Edges())
}
