package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPoller returns a scripted sequence of operations, then repeats the last
// one.
type stubPoller struct {
	mu    sync.Mutex
	ops   []Operation
	calls int
}

func (s *stubPoller) Poll(ctx context.Context, operationID string) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.ops) {
		i = len(s.ops) - 1
	}
	s.calls++
	return s.ops[i], nil
}

func TestPollUntilDone_SucceedsAfterPending(t *testing.T) {
	poller := &stubPoller{ops: []Operation{
		{ID: "op-1", Done: false},
		{ID: "op-1", Done: false},
		{ID: "op-1", Done: true, ResultURL: "https://provider.example.com/op-1.png"},
	}}

	op, err := PollUntilDone(context.Background(), poller, "op-1", time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://provider.example.com/op-1.png", op.ResultURL)
	assert.Equal(t, 3, poller.calls)
}

func TestPollUntilDone_ProviderFailure(t *testing.T) {
	poller := &stubPoller{ops: []Operation{
		{ID: "op-1", Done: true, Error: "content policy violation"},
	}}

	_, err := PollUntilDone(context.Background(), poller, "op-1", time.Millisecond, time.Second)
	require.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "content policy violation")
}

func TestPollUntilDone_DoneWithoutResult(t *testing.T) {
	poller := &stubPoller{ops: []Operation{
		{ID: "op-1", Done: true},
	}}

	_, err := PollUntilDone(context.Background(), poller, "op-1", time.Millisecond, time.Second)
	require.ErrorIs(t, err, ErrOperationFailed)
}

func TestPollUntilDone_ZeroTuningUsesDefaults(t *testing.T) {
	// Unset config must not panic the ticker or expire the context
	// immediately; an operation done on the first poll still succeeds.
	poller := &stubPoller{ops: []Operation{
		{ID: "op-1", Done: true, ResultURL: "https://provider.example.com/op-1.png"},
	}}

	op, err := PollUntilDone(context.Background(), poller, "op-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://provider.example.com/op-1.png", op.ResultURL)
	assert.Equal(t, 1, poller.calls)
}

func TestPollUntilDone_Timeout(t *testing.T) {
	poller := &stubPoller{ops: []Operation{
		{ID: "op-1", Done: false},
	}}

	_, err := PollUntilDone(context.Background(), poller, "op-1", 5*time.Millisecond, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrPollTimeout)
}
