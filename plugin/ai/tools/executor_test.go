package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func decodeResult(t *testing.T, raw json.RawMessage) *ExecutionResult {
	t.Helper()
	var result ExecutionResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return &result
}

func TestExecuteSuccess(t *testing.T) {
	executor := NewExecutor()
	def := &Definition{
		Name: "echo",
		Execute: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			return args, nil
		},
	}

	raw := executor.Execute(context.Background(), def, json.RawMessage(`{"q":"hi"}`))
	result := decodeResult(t, raw)
	require.True(t, result.Success)
	require.JSONEq(t, `{"q":"hi"}`, string(result.Output))
}

func TestExecuteNonRetryableFailsOnce(t *testing.T) {
	var calls atomic.Int32
	executor := NewExecutor(WithRetryDelay(time.Millisecond))
	def := &Definition{
		Name: "broken",
		Execute: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			calls.Add(1)
			return nil, errors.New("invalid argument")
		},
	}

	raw := executor.Execute(context.Background(), def, nil)
	result := decodeResult(t, raw)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "invalid argument")
	require.Equal(t, int32(1), calls.Load())
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	executor := NewExecutor(WithRetryDelay(time.Millisecond))
	def := &Definition{
		Name: "flaky",
		Execute: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("connection reset")
			}
			return json.RawMessage(`{"ok":true}`), nil
		},
	}

	raw := executor.Execute(context.Background(), def, nil)
	result := decodeResult(t, raw)
	require.True(t, result.Success)
	require.Equal(t, int32(3), calls.Load())
}

func TestExecuteExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	executor := NewExecutor(WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	def := &Definition{
		Name: "down",
		Execute: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			calls.Add(1)
			return nil, errors.New("service unavailable")
		},
	}

	raw := executor.Execute(context.Background(), def, nil)
	result := decodeResult(t, raw)
	require.False(t, result.Success)
	require.Equal(t, int32(2), calls.Load())
}

func TestExecuteRecoversPanic(t *testing.T) {
	executor := NewExecutor(WithRetryDelay(time.Millisecond))
	def := &Definition{
		Name: "panicky",
		Execute: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			panic("boom")
		},
	}

	raw := executor.Execute(context.Background(), def, nil)
	result := decodeResult(t, raw)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "boom")
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	var calls atomic.Int32
	executor := NewExecutor()
	def := &Definition{
		Name: "never",
		Execute: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{}`), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raw := executor.Execute(ctx, def, nil)
	result := decodeResult(t, raw)
	require.False(t, result.Success)
	require.Equal(t, int32(0), calls.Load())
}

func TestIsRetryable(t *testing.T) {
	require.True(t, isRetryable(errors.New("network unreachable")))
	require.True(t, isRetryable(errors.New("unexpected EOF")))
	require.True(t, isRetryable(context.DeadlineExceeded))
	require.False(t, isRetryable(errors.New("bad schema")))
}
