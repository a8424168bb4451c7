// Package engine is the client for the remote workflow execution engine.
// The engine is treated purely as an HTTP + push-channel collaborator: this
// package never schedules or executes node logic itself.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowdeck-io/flowdeck/retry"
	"github.com/flowdeck-io/flowdeck/slogger"
)

// ErrExecutionNotFound is returned when the engine does not know the
// requested execution id.
var ErrExecutionNotFound = errors.New("execution not found")

// APIError is a non-2xx response from the engine.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.Status, e.Message)
}

// StatusCode implements retry.APIError.
func (e *APIError) StatusCode() int { return e.Status }

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the engine's HTTP base URL, e.g. "http://localhost:8000".
	BaseURL string

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is not supplied.
	Timeout time.Duration

	Logger slogger.Logger
}

// Client calls the engine's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     slogger.Logger
}

// NewClient creates a Client for the engine at the given base URL.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("engine base url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid engine base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ExecuteWorkflow submits a workflow for execution.
func (c *Client) ExecuteWorkflow(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/workflows/execute", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to submit workflow: %w", err)
	}
	c.logger.Info("workflow submitted",
		"workflow_id", resp.WorkflowID,
		"execution_id", resp.ExecutionID,
		"status", resp.Status)
	return &resp, nil
}

// GetExecution fetches the authoritative state snapshot for an execution.
// Returns ErrExecutionNotFound when the engine does not know the id.
// Transient failures are retried; the GET is idempotent.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*ExecutionSnapshot, error) {
	var snapshot ExecutionSnapshot
	err := retry.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/workflows/execution/"+url.PathEscape(executionID), nil, &snapshot)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}
		return nil, fmt.Errorf("failed to get execution %s: %w", executionID, err)
	}
	return &snapshot, nil
}

// PauseExecution asks the engine to pause a running execution.
func (c *Client) PauseExecution(ctx context.Context, executionID string) error {
	return c.do(ctx, http.MethodPost, "/workflows/execution/"+url.PathEscape(executionID)+"/pause", nil, nil)
}

// ResumeExecution asks the engine to resume a paused execution.
func (c *Client) ResumeExecution(ctx context.Context, executionID string) error {
	return c.do(ctx, http.MethodPost, "/workflows/execution/"+url.PathEscape(executionID)+"/resume", nil, nil)
}

// CancelExecution requests cancellation of an execution.
func (c *Client) CancelExecution(ctx context.Context, executionID string) error {
	return c.do(ctx, http.MethodDelete, "/workflows/execution/"+url.PathEscape(executionID), nil, nil)
}

// GetExecutionLogs fetches the ordered log entries for an execution.
func (c *Client) GetExecutionLogs(ctx context.Context, executionID string) ([]LogEntry, error) {
	var logs []LogEntry
	err := retry.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/workflows/execution/"+url.PathEscape(executionID)+"/logs", nil, &logs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for execution %s: %w", executionID, err)
	}
	return logs, nil
}

// ExecuteNode runs a single node in isolation against the supplied input.
func (c *Client) ExecuteNode(ctx context.Context, req *ExecuteNodeRequest) (*ExecuteNodeResponse, error) {
	var resp ExecuteNodeResponse
	if err := c.do(ctx, http.MethodPost, "/debug/execute-node", req, &resp); err != nil {
		return nil, fmt.Errorf("single-node execution request failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.NewRecoverableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error body,
// preferring the engine's {"detail": ...} shape.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}
