package engine

// EventType identifies a push channel message.
type EventType string

const (
	EventNodeStarted       EventType = "node_started"
	EventNodeCompleted     EventType = "node_completed"
	EventNodeFailed        EventType = "node_failed"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
)

// known returns true for event types this core consumes. The engine also
// sends greetings and progress chatter that are safely ignored.
func (t EventType) known() bool {
	switch t {
	case EventNodeStarted, EventNodeCompleted, EventNodeFailed,
		EventWorkflowCompleted, EventWorkflowFailed:
		return true
	}
	return false
}

// Event is a discrete node- or workflow-level update delivered over the
// push channel as it happens, faster than the poll cadence.
type Event struct {
	EventType   EventType      `json:"event_type"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id,omitempty"`
	NodeType    string         `json:"node_type,omitempty"`
	NodeName    string         `json:"node_name,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  float64        `json:"execution_time_ms,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}
