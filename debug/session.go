// Package debug layers interactive debugging on top of execution
// monitoring: breakpoints, step history, single-node runs and a variable
// inspector fed by their outputs.
package debug

import (
	"log"
	"sort"
	"time"

	"go.jetify.com/typeid"
)

// NewSessionID creates a new debug session id
func NewSessionID() string {
	value, err := typeid.WithPrefix("debug")
	if err != nil {
		log.Fatalf("error creating new id: %v", err)
	}
	return value.String()
}

// NewStepID creates a new debug step id
func NewStepID() string {
	value, err := typeid.WithPrefix("step")
	if err != nil {
		log.Fatalf("error creating new id: %v", err)
	}
	return value.String()
}

// SessionStatus is the lifecycle state of a debug session. Transitions are
// idle to active, active to and from paused, and anything to stopped.
// Stopped is terminal.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
)

// Mode is the debugging style of the most recent activity in a session.
type Mode string

const (
	ModeStep            Mode = "step"
	ModeSingleNode      Mode = "single_node"
	ModeRunToBreakpoint Mode = "run_to_breakpoint"
)

// StepStatus is the outcome of one recorded debug step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// Step is one recorded node execution. Steps are immutable once appended to
// a session's history.
type Step struct {
	ID             string         `json:"id"`
	NodeID         string         `json:"node_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Input          map[string]any `json:"input,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	DurationMillis float64        `json:"duration_ms"`
	Status         StepStatus     `json:"status"`
	Error          string         `json:"error,omitempty"`
}

// StackFrame captures the variables in scope when execution entered a node,
// pushed on breakpoint hits and single-node runs.
type StackFrame struct {
	NodeID    string         `json:"node_id"`
	NodeName  string         `json:"node_name"`
	NodeType  string         `json:"node_type"`
	Variables map[string]any `json:"variables,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Inspector caches the most recent recorded output per node. It feeds
// upstream input gathering for single-node runs and powers the variable
// inspection view.
type Inspector struct {
	NodeOutputs   map[string]map[string]any `json:"node_outputs"`
	CurrentNodeID string                    `json:"current_node_id,omitempty"`

	// ExecutionPath records node ids in the order they were executed
	// through this session, repeats included.
	ExecutionPath []string `json:"execution_path,omitempty"`

	// CallStack grows one frame per node entered while debugging.
	CallStack []StackFrame `json:"call_stack,omitempty"`
}

// Session is the in-memory state of one debugging context. Sessions are not
// persisted; they live until explicitly stopped.
type Session struct {
	ID          string        `json:"id"`
	WorkflowID  string        `json:"workflow_id"`
	Status      SessionStatus `json:"status"`
	Mode        Mode          `json:"mode,omitempty"`
	ExecutionID string        `json:"execution_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`

	// Breakpoints maps a node id to the number of times a run has hit it.
	// Key presence is membership; toggling a breakpoint off discards its
	// count.
	Breakpoints map[string]int `json:"breakpoints"`

	// StepHistory is append-only. CurrentStepIndex points into it and is
	// moved by step navigation; -1 means no step recorded yet.
	StepHistory      []Step `json:"step_history"`
	CurrentStepIndex int    `json:"current_step_index"`

	Inspector *Inspector `json:"inspector"`
}

func newSession(workflowID string) *Session {
	return &Session{
		ID:               NewSessionID(),
		WorkflowID:       workflowID,
		Status:           SessionIdle,
		CreatedAt:        time.Now(),
		Breakpoints:      map[string]int{},
		CurrentStepIndex: -1,
		Inspector:        &Inspector{NodeOutputs: map[string]map[string]any{}},
	}
}

// BreakpointNodeIDs returns the breakpoint set as a sorted slice, the form
// the submission contract expects.
func (s *Session) BreakpointNodeIDs() []string {
	ids := make([]string, 0, len(s.Breakpoints))
	for id := range s.Breakpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasBreakpoint reports breakpoint membership for a node.
func (s *Session) HasBreakpoint(nodeID string) bool {
	_, ok := s.Breakpoints[nodeID]
	return ok
}

// CurrentStep returns the step at the navigation cursor.
func (s *Session) CurrentStep() (Step, bool) {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.StepHistory) {
		return Step{}, false
	}
	return s.StepHistory[s.CurrentStepIndex], true
}

func (s *Session) clone() *Session {
	out := *s
	out.Breakpoints = make(map[string]int, len(s.Breakpoints))
	for id, hits := range s.Breakpoints {
		out.Breakpoints[id] = hits
	}
	out.StepHistory = append([]Step(nil), s.StepHistory...)
	outputs := make(map[string]map[string]any, len(s.Inspector.NodeOutputs))
	for id, values := range s.Inspector.NodeOutputs {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		outputs[id] = copied
	}
	out.Inspector = &Inspector{
		NodeOutputs:   outputs,
		CurrentNodeID: s.Inspector.CurrentNodeID,
		ExecutionPath: append([]string(nil), s.Inspector.ExecutionPath...),
		CallStack:     append([]StackFrame(nil), s.Inspector.CallStack...),
	}
	return &out
}
