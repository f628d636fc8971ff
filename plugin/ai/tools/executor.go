package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ExecutionResult is the structured payload every tool execution produces.
// Failures are carried in the payload so a broken tool degrades to a visible
// error part instead of aborting the generation.
type ExecutionResult struct {
	Success bool            `json:"success"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Executor runs tool definitions with per-attempt timeout and bounded retry
// on transient errors.
type Executor struct {
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retry attempts.
func WithRetryDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.retryDelay = d
	}
}

// WithTimeout sets the timeout for each execution attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
		timeout:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the tool and always returns a marshaled ExecutionResult.
// The returned payload never fails to marshal.
func (e *Executor) Execute(ctx context.Context, def *Definition, args json.RawMessage) json.RawMessage {
	start := time.Now()
	var lastErr error

attemptsLoop:
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break attemptsLoop
		}

		output, err := e.runOnce(ctx, def, args)
		if err == nil {
			slog.Debug("tool execution succeeded",
				slog.String("tool", def.Name),
				slog.Int("attempt", attempt+1),
				slog.Duration("duration", time.Since(start)))
			return marshalResult(&ExecutionResult{Success: true, Output: output})
		}

		lastErr = err
		slog.Warn("tool execution failed",
			slog.String("tool", def.Name),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if !isRetryable(err) {
			break attemptsLoop
		}

		if attempt < e.maxRetries {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attemptsLoop
			case <-time.After(e.retryDelay):
			}
		}
	}

	return marshalResult(&ExecutionResult{Success: false, Error: lastErr.Error()})
}

// runOnce executes one attempt with its own timeout and panic boundary.
func (e *Executor) runOnce(ctx context.Context, def *Definition, args json.RawMessage) (output json.RawMessage, err error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	return def.Execute(execCtx, args)
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"network",
		"timeout",
		"connection",
		"unavailable",
		"temporary",
		"retry",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

func marshalResult(result *ExecutionResult) json.RawMessage {
	payload, err := json.Marshal(result)
	if err != nil {
		return json.RawMessage(`{"success":false,"error":"failed to encode tool result"}`)
	}
	return payload
}
