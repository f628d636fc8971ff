package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type failingWriter struct {
	failAfter int
	writes    int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.failAfter {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestSinkWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)

	require.NoError(t, sink.Send(&Frame{Type: FrameThreadID, ThreadID: "t-1"}))
	require.NoError(t, sink.Send(&Frame{Type: FrameTextDelta, Delta: "hi"}))

	scanner := bufio.NewScanner(&buf)
	var lines []Frame
	for scanner.Scan() {
		var f Frame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &f))
		lines = append(lines, f)
	}
	require.Len(t, lines, 2)
	require.Equal(t, FrameThreadID, lines[0].Type)
	require.Equal(t, "t-1", lines[0].ThreadID)
	require.Equal(t, "hi", lines[1].Delta)
}

func TestSinkErrorIsSticky(t *testing.T) {
	sink := NewSink(&failingWriter{failAfter: 1})

	require.NoError(t, sink.Send(&Frame{Type: FrameTextDelta, Delta: "ok"}))
	err := sink.Send(&Frame{Type: FrameTextDelta, Delta: "fails"})
	require.Error(t, err)

	// Further sends keep reporting the same error without touching the writer.
	again := sink.Send(&Frame{Type: FrameFinish})
	require.Equal(t, err, again)
	require.Equal(t, err, sink.Err())
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(&Frame{Type: FrameFinish})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"finish"}`, string(raw))
}
