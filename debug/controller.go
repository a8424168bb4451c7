package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowdeck-io/flowdeck/engine"
	"github.com/flowdeck-io/flowdeck/events"
	"github.com/flowdeck-io/flowdeck/execution"
	"github.com/flowdeck-io/flowdeck/slogger"
	"github.com/flowdeck-io/flowdeck/workflow"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("debug session not found")

	// ErrSessionActive is returned when a second session is started for a
	// workflow that already has a non-stopped one.
	ErrSessionActive = errors.New("a debug session is already active for this workflow")

	// ErrSessionStopped is returned for operations on a stopped session.
	ErrSessionStopped = errors.New("debug session is stopped")
)

// WorkflowRunner is the slice of the execution Synchronizer that
// run-to-breakpoint sessions drive.
type WorkflowRunner interface {
	Submit(ctx context.Context, opts execution.SubmitOptions) (string, error)
	Pause(ctx context.Context, executionID string) error
	Resume(ctx context.Context, executionID string) error
	Cancel(ctx context.Context, executionID string) error
}

// NodeExecutor runs a single node in isolation on the remote engine.
type NodeExecutor interface {
	ExecuteNode(ctx context.Context, req *engine.ExecuteNodeRequest) (*engine.ExecuteNodeResponse, error)
}

// SessionEventKind classifies a session notification.
type SessionEventKind string

const (
	SessionStatusChanged SessionEventKind = "status_changed"
	BreakpointToggled    SessionEventKind = "breakpoint_toggled"
	StepRecorded         SessionEventKind = "step_recorded"
	BreakpointHit        SessionEventKind = "breakpoint_hit"
)

// SessionEvent notifies UI layers of a change to a debug session.
type SessionEvent struct {
	Kind       SessionEventKind
	SessionID  string
	WorkflowID string
	Status     SessionStatus
	NodeID     string
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Runner       WorkflowRunner
	NodeExecutor NodeExecutor

	// NodeUpdates, when set, is watched during run-to-breakpoint executions
	// to count breakpoint hits. Wire the Synchronizer's NodeUpdates emitter
	// here.
	NodeUpdates *events.Emitter[execution.NodeUpdate]

	Logger slogger.Logger
}

// Controller manages debug sessions. At most one non-stopped session exists
// per workflow.
type Controller struct {
	runner       WorkflowRunner
	nodeExecutor NodeExecutor
	nodeUpdates  *events.Emitter[execution.NodeUpdate]
	logger       slogger.Logger

	mutex       sync.RWMutex
	sessions    map[string]*Session
	byWorkflow  map[string]string
	watchCancel map[string]func()

	// SessionEvents fires on every observable session change.
	SessionEvents *events.Emitter[SessionEvent]
}

// NewController creates a Controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("workflow runner is required")
	}
	if opts.NodeExecutor == nil {
		return nil, fmt.Errorf("node executor is required")
	}
	if opts.Logger == nil {
		opts.Logger = slogger.DefaultLogger
	}
	return &Controller{
		runner:        opts.Runner,
		nodeExecutor:  opts.NodeExecutor,
		nodeUpdates:   opts.NodeUpdates,
		logger:        opts.Logger,
		sessions:      map[string]*Session{},
		byWorkflow:    map[string]string{},
		watchCancel:   map[string]func(){},
		SessionEvents: events.NewEmitter[SessionEvent](),
	}, nil
}

// StartSession creates an idle session for a workflow. Only one non-stopped
// session may exist per workflow at a time.
func (c *Controller) StartSession(workflowID string) (*Session, error) {
	c.mutex.Lock()
	session, err := c.startSessionLocked(workflowID)
	var copied *Session
	if err == nil {
		copied = session.clone()
	}
	c.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	c.logger.Info("debug session started",
		"session_id", session.ID, "workflow_id", workflowID)
	c.emitStatus(session, SessionStatusChanged, "")
	return copied, nil
}

func (c *Controller) startSessionLocked(workflowID string) (*Session, error) {
	if existingID, ok := c.byWorkflow[workflowID]; ok {
		if existing := c.sessions[existingID]; existing != nil && existing.Status != SessionStopped {
			return nil, fmt.Errorf("%w: %s", ErrSessionActive, workflowID)
		}
	}
	session := newSession(workflowID)
	c.sessions[session.ID] = session
	c.byWorkflow[workflowID] = session.ID
	return session, nil
}

// StopSession moves a session to its terminal state, detaches any
// run-to-breakpoint watcher, and cancels an attached execution.
func (c *Controller) StopSession(ctx context.Context, sessionID string) error {
	c.mutex.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status == SessionStopped {
		c.mutex.Unlock()
		return nil
	}
	session.Status = SessionStopped
	executionID := session.ExecutionID
	if cancelWatch, ok := c.watchCancel[sessionID]; ok {
		cancelWatch()
		delete(c.watchCancel, sessionID)
	}
	c.mutex.Unlock()

	if executionID != "" {
		if err := c.runner.Cancel(ctx, executionID); err != nil {
			c.logger.Warn("cancel on session stop failed",
				"session_id", sessionID, "execution_id", executionID, "error", err)
		}
	}
	c.emitStatus(session, SessionStatusChanged, "")
	return nil
}

// PauseSession pauses an active session and any attached execution.
func (c *Controller) PauseSession(ctx context.Context, sessionID string) error {
	return c.setRunState(ctx, sessionID, SessionActive, SessionPaused, c.runner.Pause)
}

// ResumeSession resumes a paused session and any attached execution.
func (c *Controller) ResumeSession(ctx context.Context, sessionID string) error {
	return c.setRunState(ctx, sessionID, SessionPaused, SessionActive, c.runner.Resume)
}

func (c *Controller) setRunState(ctx context.Context, sessionID string, from, to SessionStatus, forward func(context.Context, string) error) error {
	c.mutex.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status == SessionStopped {
		c.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionStopped, sessionID)
	}
	if session.Status != from {
		c.mutex.Unlock()
		return fmt.Errorf("debug session %s is %s, not %s", sessionID, session.Status, from)
	}
	session.Status = to
	executionID := session.ExecutionID
	c.mutex.Unlock()

	if executionID != "" {
		if err := forward(ctx, executionID); err != nil {
			return err
		}
	}
	c.emitStatus(session, SessionStatusChanged, "")
	return nil
}

// ToggleBreakpoint flips breakpoint membership for a node. When no session
// exists for the workflow, an idle one is created implicitly.
func (c *Controller) ToggleBreakpoint(workflowID, nodeID string) (*Session, error) {
	c.mutex.Lock()
	var session *Session
	if sessionID, ok := c.byWorkflow[workflowID]; ok {
		if existing := c.sessions[sessionID]; existing != nil && existing.Status != SessionStopped {
			session = existing
		}
	}
	if session == nil {
		created, err := c.startSessionLocked(workflowID)
		if err != nil {
			c.mutex.Unlock()
			return nil, err
		}
		session = created
	}
	if session.HasBreakpoint(nodeID) {
		delete(session.Breakpoints, nodeID)
	} else {
		session.Breakpoints[nodeID] = 0
	}
	c.mutex.Unlock()

	c.emitStatus(session, BreakpointToggled, nodeID)
	return c.GetSession(session.ID)
}

// ExecuteSingleNode runs one node in isolation. When no explicit input is
// given, input is gathered from the most recent recorded outputs of the
// node's upstream neighbors; nodes with no recorded upstream data run with
// empty input. Engine failures are recorded as an error step, not returned,
// so the debugging surface stays responsive.
func (c *Controller) ExecuteSingleNode(ctx context.Context, w *workflow.WorkflowDefinition, sessionID, nodeID string, explicitInput map[string]any) (Step, error) {
	node, ok := w.Node(nodeID)
	if !ok {
		return Step{}, fmt.Errorf("node not found: %s", nodeID)
	}

	c.mutex.Lock()
	session, exists := c.sessions[sessionID]
	if !exists {
		c.mutex.Unlock()
		return Step{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status == SessionStopped {
		c.mutex.Unlock()
		return Step{}, fmt.Errorf("%w: %s", ErrSessionStopped, sessionID)
	}
	if session.Status == SessionIdle {
		session.Status = SessionActive
	}
	session.Mode = ModeSingleNode
	input := explicitInput
	if input == nil {
		input = gatherUpstreamInput(w, session, nodeID)
	}
	c.mutex.Unlock()

	started := time.Now()
	resp, err := c.nodeExecutor.ExecuteNode(ctx, &engine.ExecuteNodeRequest{
		NodeID:    nodeID,
		NodeType:  node.Type.String(),
		Config:    node.Config,
		InputData: input,
	})

	step := Step{
		ID:             NewStepID(),
		NodeID:         nodeID,
		Timestamp:      started,
		Input:          input,
		DurationMillis: float64(time.Since(started)) / float64(time.Millisecond),
	}
	switch {
	case err != nil:
		step.Status = StepError
		step.Error = err.Error()
	case !resp.Success:
		step.Status = StepError
		step.Error = resp.Error
	default:
		step.Status = StepSuccess
		step.Output = resp.Output
	}

	c.mutex.Lock()
	session.StepHistory = append(session.StepHistory, step)
	session.CurrentStepIndex = len(session.StepHistory) - 1
	session.Inspector.CurrentNodeID = nodeID
	session.Inspector.ExecutionPath = append(session.Inspector.ExecutionPath, nodeID)
	session.Inspector.CallStack = append(session.Inspector.CallStack, StackFrame{
		NodeID:    nodeID,
		NodeName:  node.DisplayName(),
		NodeType:  node.Type.String(),
		Variables: input,
		Timestamp: started,
	})
	if step.Status == StepSuccess {
		session.Inspector.NodeOutputs[nodeID] = step.Output
	}
	c.mutex.Unlock()

	if step.Status == StepError {
		c.logger.Warn("single-node execution failed",
			"session_id", sessionID, "node_id", nodeID, "error", step.Error)
	}
	c.emitStatus(session, StepRecorded, nodeID)
	return step, nil
}

// gatherUpstreamInput merges the most recent recorded output of every node
// with an edge into nodeID. Upstream nodes are not re-executed; a node no
// upstream output has been recorded for simply contributes nothing.
func gatherUpstreamInput(w *workflow.WorkflowDefinition, session *Session, nodeID string) map[string]any {
	input := map[string]any{}
	for _, sourceID := range w.EdgesInto(nodeID) {
		output, ok := session.Inspector.NodeOutputs[sourceID]
		if !ok {
			continue
		}
		for k, v := range output {
			input[k] = v
		}
	}
	return input
}

// RunToBreakpoint submits the full workflow with the session's breakpoint
// set; the engine halts at breakpoints. The returned execution id is tracked
// by the runner like any other submission.
func (c *Controller) RunToBreakpoint(ctx context.Context, w *workflow.WorkflowDefinition, sessionID string, variables map[string]any) (string, error) {
	c.mutex.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mutex.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status == SessionStopped {
		c.mutex.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSessionStopped, sessionID)
	}
	breakpoints := session.BreakpointNodeIDs()
	c.mutex.Unlock()

	executionID, err := c.runner.Submit(ctx, execution.SubmitOptions{
		Workflow:    w,
		Variables:   variables,
		TriggeredBy: "debug:" + sessionID,
		Breakpoints: breakpoints,
	})
	if err != nil {
		return "", err
	}

	c.mutex.Lock()
	session.Status = SessionActive
	session.Mode = ModeRunToBreakpoint
	session.ExecutionID = executionID
	c.watchBreakpointHitsLocked(session, executionID)
	c.mutex.Unlock()

	c.emitStatus(session, SessionStatusChanged, "")
	return executionID, nil
}

// watchBreakpointHitsLocked counts how often the run reaches breakpoint
// nodes, driven by the node update stream.
func (c *Controller) watchBreakpointHitsLocked(session *Session, executionID string) {
	if c.nodeUpdates == nil {
		return
	}
	sessionID := session.ID
	unsubscribe := c.nodeUpdates.Subscribe(func(update execution.NodeUpdate) {
		if update.ExecutionID != executionID || update.Status != execution.NodeRunning {
			return
		}
		c.mutex.Lock()
		hit := session.Status != SessionStopped && session.HasBreakpoint(update.NodeID)
		if hit {
			session.Breakpoints[update.NodeID]++
			session.Inspector.CurrentNodeID = update.NodeID
			session.Inspector.CallStack = append(session.Inspector.CallStack, StackFrame{
				NodeID:    update.NodeID,
				NodeName:  update.NodeID,
				NodeType:  update.NodeType,
				Variables: update.Output,
				Timestamp: time.Now(),
			})
		}
		c.mutex.Unlock()
		if hit {
			c.emitStatus(session, BreakpointHit, update.NodeID)
		}
	})
	if previous, ok := c.watchCancel[sessionID]; ok {
		previous()
	}
	c.watchCancel[sessionID] = unsubscribe
}

// StepForward advances the navigation cursor and returns the step there.
func (c *Controller) StepForward(sessionID string) (Step, error) {
	return c.moveCursor(sessionID, 1)
}

// StepBack moves the navigation cursor backwards and returns the step there.
func (c *Controller) StepBack(sessionID string) (Step, error) {
	return c.moveCursor(sessionID, -1)
}

func (c *Controller) moveCursor(sessionID string, delta int) (Step, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	session, ok := c.sessions[sessionID]
	if !ok {
		return Step{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if len(session.StepHistory) == 0 {
		return Step{}, fmt.Errorf("debug session %s has no recorded steps", sessionID)
	}
	next := session.CurrentStepIndex + delta
	if next < 0 || next >= len(session.StepHistory) {
		return Step{}, fmt.Errorf("step index %d out of range", next)
	}
	session.CurrentStepIndex = next
	session.Mode = ModeStep
	return session.StepHistory[next], nil
}

// GetSession returns a copy of a session.
func (c *Controller) GetSession(sessionID string) (*Session, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	session, ok := c.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session.clone(), nil
}

// SessionForWorkflow returns the current (non-stopped) session for a
// workflow, if any.
func (c *Controller) SessionForWorkflow(workflowID string) (*Session, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	sessionID, ok := c.byWorkflow[workflowID]
	if !ok {
		return nil, false
	}
	session, ok := c.sessions[sessionID]
	if !ok || session.Status == SessionStopped {
		return nil, false
	}
	return session.clone(), true
}

// ExportSession serializes a session, its step history and inspector cache
// to indented JSON, suitable for saving a debugging trace.
func (c *Controller) ExportSession(sessionID string) ([]byte, error) {
	session, err := c.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(session, "", "  ")
}

func (c *Controller) emitStatus(session *Session, kind SessionEventKind, nodeID string) {
	c.mutex.RLock()
	event := SessionEvent{
		Kind:       kind,
		SessionID:  session.ID,
		WorkflowID: session.WorkflowID,
		Status:     session.Status,
		NodeID:     nodeID,
	}
	c.mutex.RUnlock()
	c.SessionEvents.Emit(event)
}
