package workflow

// conditionMaxOutgoing caps a condition node's branches: true and false.
const conditionMaxOutgoing = 2

// IsValidConnection reports whether a new connection from source to target
// may be drawn. It is evaluated interactively while editing, so it
// short-circuits on the first violated rule. It is a subset of Validate,
// not a replacement: a graph built only from legal connections can still
// fail structural validation.
func IsValidConnection(w *WorkflowDefinition, sourceID, targetID string) bool {
	source, ok := w.Nodes[sourceID]
	if !ok {
		return false
	}
	target, ok := w.Nodes[targetID]
	if !ok {
		return false
	}
	if sourceID == targetID {
		return false
	}
	for _, existing := range source.OutgoingConnections {
		if existing == targetID {
			return false
		}
	}
	if source.Type == NodeTypeStart && target.Type == NodeTypeStart {
		return false
	}
	// Terminal nodes have no successors
	if source.Type == NodeTypeEnd {
		return false
	}
	// Nothing may feed into the entry point
	if target.Type == NodeTypeStart {
		return false
	}
	if source.Type == NodeTypeCondition && len(source.OutgoingConnections) >= conditionMaxOutgoing {
		return false
	}
	return true
}
