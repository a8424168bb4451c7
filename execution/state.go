package execution

import (
	"time"

	"github.com/flowdeck-io/flowdeck/engine"
)

// NodeStatus is the transient per-node status shown while monitoring an
// execution. It is driven by push events, not by polling.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// State is the local cache entry for one remote execution. It is owned
// exclusively by the Synchronizer; readers receive copies.
type State struct {
	ExecutionID        string
	WorkflowID         string
	Status             engine.ExecutionStatus
	StartedAt          time.Time
	CompletedAt        *time.Time
	CompletedNodeCount int
	FailedNodeCount    int
	CurrentNodeIDs     []string
	NodeStatuses       map[string]NodeStatus
	Variables          map[string]any
}

func (s *State) clone() *State {
	out := *s
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		out.CompletedAt = &completedAt
	}
	out.CurrentNodeIDs = append([]string(nil), s.CurrentNodeIDs...)
	out.NodeStatuses = make(map[string]NodeStatus, len(s.NodeStatuses))
	for id, status := range s.NodeStatuses {
		out.NodeStatuses[id] = status
	}
	out.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	return &out
}

// StateChange notifies subscribers that an execution's aggregate status
// changed. Emitted only when the status actually differs from the cached
// value, so downstream work is not redone on every poll.
type StateChange struct {
	ExecutionID string
	Previous    engine.ExecutionStatus
	Current     engine.ExecutionStatus
}

// NodeUpdate is fine-grained per-node feedback driven by push events.
type NodeUpdate struct {
	ExecutionID    string
	NodeID         string
	NodeType       string
	Status         NodeStatus
	Output         map[string]any
	Error          string
	DurationMillis float64
}

// LogLine is a human-readable monitoring line derived from push events.
type LogLine struct {
	ExecutionID string
	NodeID      string
	Level       string
	Message     string
}
