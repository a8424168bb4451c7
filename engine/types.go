package engine

import (
	"time"

	"github.com/flowdeck-io/flowdeck/workflow"
)

// ExecutionStatus is the engine's view of a workflow execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusPaused    ExecutionStatus = "paused"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ExecuteRequest submits a workflow for remote execution. Breakpoints are
// honored by the engine during debug runs and ignored otherwise.
type ExecuteRequest struct {
	Workflow    *workflow.WorkflowDefinition `json:"workflow"`
	Variables   map[string]any               `json:"variables,omitempty"`
	TriggeredBy string                       `json:"triggered_by,omitempty"`
	Breakpoints []string                     `json:"breakpoints,omitempty"`
}

// ExecuteResponse acknowledges a submission.
type ExecuteResponse struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      ExecutionStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
}

// ExecutionSnapshot is the engine's authoritative state for one execution,
// returned by the poll endpoint.
type ExecutionSnapshot struct {
	ExecutionID    string          `json:"execution_id"`
	WorkflowID     string          `json:"workflow_id"`
	Status         ExecutionStatus `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CurrentNodes   []string        `json:"current_nodes,omitempty"`
	CompletedNodes []string        `json:"completed_nodes,omitempty"`
	FailedNodes    []string        `json:"failed_nodes,omitempty"`
	Variables      map[string]any  `json:"variables,omitempty"`
}

// LogEntry is one line of the engine's execution log. Informational only;
// never used to derive state.
type LogEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Level     string `json:"level,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	Message   string `json:"message"`
}

// ExecuteNodeRequest runs exactly one node in isolation for debugging.
type ExecuteNodeRequest struct {
	NodeID    string         `json:"node_id"`
	NodeType  string         `json:"node_type"`
	Config    map[string]any `json:"config,omitempty"`
	InputData map[string]any `json:"input_data,omitempty"`
}

// ExecuteNodeResponse is the outcome of a single-node debug run.
type ExecuteNodeResponse struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}
