// Package execution tracks the lifecycle of remote workflow executions. A
// Synchronizer submits workflows to the engine and keeps a local state cache
// consistent across two independent update channels: a fixed-interval poll
// of the authoritative snapshot, and push events delivered over the engine's
// websocket stream. Both channels funnel into a single serialized reducer so
// no field ever has two writers.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowdeck-io/flowdeck/engine"
	"github.com/flowdeck-io/flowdeck/events"
	"github.com/flowdeck-io/flowdeck/slogger"
	"github.com/flowdeck-io/flowdeck/workflow"
)

const (
	defaultPollInterval = time.Second
	defaultPollTimeout  = 10 * time.Second

	// maxPollFailures is the number of consecutive poll failures tolerated
	// before the execution is marked failed locally and polling halts.
	maxPollFailures = 3
)

// ErrNotTracked is returned for operations on execution ids that are not in
// the local cache.
var ErrNotTracked = errors.New("execution is not tracked")

// EngineAPI is the slice of the engine client the Synchronizer depends on.
type EngineAPI interface {
	ExecuteWorkflow(ctx context.Context, req *engine.ExecuteRequest) (*engine.ExecuteResponse, error)
	GetExecution(ctx context.Context, executionID string) (*engine.ExecutionSnapshot, error)
	PauseExecution(ctx context.Context, executionID string) error
	ResumeExecution(ctx context.Context, executionID string) error
	CancelExecution(ctx context.Context, executionID string) error
}

type sourceKind int

const (
	sourcePoll sourceKind = iota + 1
	sourcePush
	sourcePollFailure
)

// update is a tagged message from one of the two channels (or the poller's
// failure path). The reducer applies channel-specific merge rules: polls own
// aggregate status, counters, current nodes and variables; push events own
// per-node transient status and log lines.
type update struct {
	source      sourceKind
	executionID string
	snapshot    *engine.ExecutionSnapshot
	event       engine.Event
	err         error
}

// Options configures a Synchronizer.
type Options struct {
	Client       EngineAPI
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       slogger.Logger
}

// Synchronizer owns the local cache of remote execution state. All cache
// writes happen on its reducer goroutine; readers get copies.
type Synchronizer struct {
	client       EngineAPI
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       slogger.Logger

	updates   chan update
	done      chan struct{}
	closeOnce sync.Once

	mutex     sync.RWMutex
	states    map[string]*State
	pollStops map[string]chan struct{}

	// StateChanges fires when an execution's aggregate status changes.
	StateChanges *events.Emitter[StateChange]

	// NodeUpdates fires for each push-channel node event.
	NodeUpdates *events.Emitter[NodeUpdate]

	// LogLines fires human-readable monitoring lines.
	LogLines *events.Emitter[LogLine]
}

// NewSynchronizer creates a Synchronizer and starts its reducer.
func NewSynchronizer(opts Options) (*Synchronizer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("engine client is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slogger.DefaultLogger
	}
	s := &Synchronizer{
		client:       opts.Client,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		logger:       opts.Logger,
		updates:      make(chan update, 64),
		done:         make(chan struct{}),
		states:       map[string]*State{},
		pollStops:    map[string]chan struct{}{},
		StateChanges: events.NewEmitter[StateChange](),
		NodeUpdates:  events.NewEmitter[NodeUpdate](),
		LogLines:     events.NewEmitter[LogLine](),
	}
	go s.reduce()
	return s, nil
}

// SubmitOptions describes one workflow submission. Breakpoints are only
// meaningful for debug runs.
type SubmitOptions struct {
	Workflow    *workflow.WorkflowDefinition
	Variables   map[string]any
	TriggeredBy string
	Breakpoints []string
}

// Submit validates the workflow, sends it to the engine, seeds the local
// cache, and starts polling. Validation failures are returned before any
// network call is made.
func (s *Synchronizer) Submit(ctx context.Context, opts SubmitOptions) (string, error) {
	w := opts.Workflow
	if err := workflow.Validate(w); err != nil {
		return "", err
	}

	resp, err := s.client.ExecuteWorkflow(ctx, &engine.ExecuteRequest{
		Workflow:    w,
		Variables:   opts.Variables,
		TriggeredBy: opts.TriggeredBy,
		Breakpoints: opts.Breakpoints,
	})
	if err != nil {
		return "", err
	}

	status := resp.Status
	if status == "" {
		status = engine.StatusPending
	}
	state := &State{
		ExecutionID:  resp.ExecutionID,
		WorkflowID:   w.ID,
		Status:       status,
		StartedAt:    time.Now(),
		NodeStatuses: map[string]NodeStatus{},
		Variables:    copyVariables(opts.Variables),
	}

	stop := make(chan struct{})
	s.mutex.Lock()
	s.states[resp.ExecutionID] = state
	s.pollStops[resp.ExecutionID] = stop
	s.mutex.Unlock()

	go s.pollLoop(resp.ExecutionID, stop)

	s.logger.Info("monitoring execution",
		"execution_id", resp.ExecutionID,
		"workflow_id", w.ID,
		"triggered_by", opts.TriggeredBy)
	return resp.ExecutionID, nil
}

// GetState returns a copy of the cached state for an execution.
func (s *Synchronizer) GetState(executionID string) (*State, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	state, ok := s.states[executionID]
	if !ok {
		return nil, false
	}
	return state.clone(), true
}

// Cancel requests remote cancellation and immediately stops polling and
// evicts the cache entry. It is optimistic: local teardown happens whether
// or not the engine honors the request. Cancelling an id that is no longer
// tracked is a no-op.
func (s *Synchronizer) Cancel(ctx context.Context, executionID string) error {
	s.mutex.Lock()
	_, exists := s.states[executionID]
	if !exists {
		s.mutex.Unlock()
		return nil
	}
	delete(s.states, executionID)
	s.stopPollingLocked(executionID)
	s.mutex.Unlock()

	if err := s.client.CancelExecution(ctx, executionID); err != nil {
		return fmt.Errorf("remote cancellation of %s failed: %w", executionID, err)
	}
	s.logger.Info("execution cancelled", "execution_id", executionID)
	return nil
}

// Pause asks the engine to pause a tracked execution. The status change
// lands through the next poll.
func (s *Synchronizer) Pause(ctx context.Context, executionID string) error {
	if !s.tracks(executionID) {
		return fmt.Errorf("%w: %s", ErrNotTracked, executionID)
	}
	return s.client.PauseExecution(ctx, executionID)
}

// Resume asks the engine to resume a paused execution.
func (s *Synchronizer) Resume(ctx context.Context, executionID string) error {
	if !s.tracks(executionID) {
		return fmt.Errorf("%w: %s", ErrNotTracked, executionID)
	}
	return s.client.ResumeExecution(ctx, executionID)
}

// HandleEvent feeds a push channel event into the reducer. Wire it as the
// engine.Stream handler.
func (s *Synchronizer) HandleEvent(event engine.Event) {
	if event.ExecutionID == "" {
		return
	}
	s.send(update{source: sourcePush, executionID: event.ExecutionID, event: event})
}

// Close stops all polling and monitoring. Idempotent.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mutex.Lock()
		for id := range s.pollStops {
			s.stopPollingLocked(id)
		}
		s.states = map[string]*State{}
		s.mutex.Unlock()
	})
}

func (s *Synchronizer) tracks(executionID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.states[executionID]
	return ok
}

func (s *Synchronizer) send(u update) {
	select {
	case s.updates <- u:
	case <-s.done:
	}
}

// pollLoop requests the authoritative snapshot at a fixed interval. Requests
// are issued sequentially from this goroutine, so the reducer receives polls
// for this execution in request order and each applied poll supersedes the
// previous one.
func (s *Synchronizer) pollLoop(executionID string, stop chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.done:
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.pollTimeout)
		snapshot, err := s.client.GetExecution(ctx, executionID)
		cancel()

		if err != nil {
			failures++
			s.logger.Warn("execution poll failed",
				"execution_id", executionID,
				"consecutive_failures", failures,
				"error", err)
			if errors.Is(err, engine.ErrExecutionNotFound) || failures >= maxPollFailures {
				s.send(update{source: sourcePollFailure, executionID: executionID, err: err})
				return
			}
			continue
		}
		failures = 0
		s.send(update{source: sourcePoll, executionID: executionID, snapshot: snapshot})
	}
}

// reduce is the single writer of the state cache. It applies tagged updates
// in arrival order until Close.
func (s *Synchronizer) reduce() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.updates:
			s.apply(u)
		}
	}
}

func (s *Synchronizer) apply(u update) {
	var notify []func()

	s.mutex.Lock()
	state, ok := s.states[u.executionID]
	if !ok || state.Status.IsTerminal() {
		// Evicted, unknown, or already terminal: post-cancel and stale
		// updates are no-ops.
		s.mutex.Unlock()
		return
	}

	switch u.source {
	case sourcePoll:
		notify = s.applyPollLocked(state, u.snapshot)
	case sourcePush:
		notify = s.applyPushLocked(state, u.event)
	case sourcePollFailure:
		notify = s.transitionLocked(state, engine.StatusFailed)
		s.logger.Error("monitoring halted: polling failed",
			"execution_id", state.ExecutionID, "error", u.err)
	}
	s.mutex.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// applyPollLocked merges an authoritative snapshot: polling owns the
// aggregate status, node counters, current node set and variables.
func (s *Synchronizer) applyPollLocked(state *State, snapshot *engine.ExecutionSnapshot) []func() {
	state.CompletedNodeCount = len(snapshot.CompletedNodes)
	state.FailedNodeCount = len(snapshot.FailedNodes)
	state.CurrentNodeIDs = append([]string(nil), snapshot.CurrentNodes...)
	if snapshot.Variables != nil {
		state.Variables = copyVariables(snapshot.Variables)
	}
	if snapshot.CompletedAt != nil {
		completedAt := *snapshot.CompletedAt
		state.CompletedAt = &completedAt
	}
	return s.transitionLocked(state, snapshot.Status)
}

// applyPushLocked merges a push event: push owns per-node transient status
// and log lines, and may signal workflow-level termination.
func (s *Synchronizer) applyPushLocked(state *State, event engine.Event) []func() {
	var notify []func()
	executionID := state.ExecutionID

	nodeEvent := func(status NodeStatus, level, message string) {
		state.NodeStatuses[event.NodeID] = status
		nodeUpdate := NodeUpdate{
			ExecutionID:    executionID,
			NodeID:         event.NodeID,
			NodeType:       event.NodeType,
			Status:         status,
			Output:         event.Data,
			Error:          event.Error,
			DurationMillis: event.DurationMS,
		}
		logLine := LogLine{ExecutionID: executionID, NodeID: event.NodeID, Level: level, Message: message}
		notify = append(notify,
			func() { s.NodeUpdates.Emit(nodeUpdate) },
			func() { s.LogLines.Emit(logLine) })
	}

	switch event.EventType {
	case engine.EventNodeStarted:
		nodeEvent(NodeRunning, "info", fmt.Sprintf("node %s started", event.NodeID))
	case engine.EventNodeCompleted:
		nodeEvent(NodeCompleted, "info", fmt.Sprintf("node %s completed", event.NodeID))
	case engine.EventNodeFailed:
		nodeEvent(NodeFailed, "error", fmt.Sprintf("node %s failed: %s", event.NodeID, event.Error))
	case engine.EventWorkflowCompleted:
		notify = append(notify, s.transitionLocked(state, engine.StatusCompleted)...)
	case engine.EventWorkflowFailed:
		notify = append(notify, s.transitionLocked(state, engine.StatusFailed)...)
	}
	return notify
}

// transitionLocked moves an execution to a new aggregate status, emitting a
// StateChange only when the status actually differs. Terminal statuses stop
// polling immediately; stopping an already-stopped poll is a no-op.
func (s *Synchronizer) transitionLocked(state *State, status engine.ExecutionStatus) []func() {
	var notify []func()
	if status != "" && status != state.Status {
		change := StateChange{
			ExecutionID: state.ExecutionID,
			Previous:    state.Status,
			Current:     status,
		}
		state.Status = status
		notify = append(notify, func() { s.StateChanges.Emit(change) })
	}
	if state.Status.IsTerminal() {
		if state.CompletedAt == nil {
			now := time.Now()
			state.CompletedAt = &now
		}
		s.stopPollingLocked(state.ExecutionID)
	}
	return notify
}

func (s *Synchronizer) stopPollingLocked(executionID string) {
	if stop, ok := s.pollStops[executionID]; ok {
		close(stop)
		delete(s.pollStops, executionID)
	}
}

func copyVariables(variables map[string]any) map[string]any {
	out := make(map[string]any, len(variables))
	for k, v := range variables {
		out[k] = v
	}
	return out
}
