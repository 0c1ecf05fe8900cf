package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapipe/internal/service"
)

func waitPending(t *testing.T, q *ApprovalQueue) string {
	t.Helper()
	var id string
	require.Eventually(t, func() bool {
		pending := q.Pending()
		if len(pending) == 1 {
			id = pending[0]
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return id
}

func TestApprovalQueue_Approve(t *testing.T) {
	emitter := &service.MockEmitter{}
	q := NewApprovalQueue(emitter, time.Second)

	done := make(chan error, 1)
	go func() {
		ok, err := q.Request(context.Background(), "run_pipeline", "run it")
		if err == nil && !ok {
			err = assert.AnError
		}
		done <- err
	}()

	id := waitPending(t, q)
	q.Approve(id)
	require.NoError(t, <-done)
	assert.Empty(t, q.Pending())

	events := emitter.Recorded()
	require.Len(t, events, 1)
	action, ok := events[0].Data.(PendingAction)
	require.True(t, ok)
	assert.Equal(t, id, action.ID)
	assert.Equal(t, "run_pipeline", action.Tool)
}

func TestApprovalQueue_Reject(t *testing.T) {
	q := NewApprovalQueue(&service.MockEmitter{}, time.Second)

	done := make(chan bool, 1)
	go func() {
		ok, _ := q.Request(context.Background(), "run_pipeline", "run it")
		done <- ok
	}()

	q.Reject(waitPending(t, q))
	assert.False(t, <-done)
}

func TestApprovalQueue_ContextCancelled(t *testing.T) {
	q := NewApprovalQueue(&service.MockEmitter{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := q.Request(ctx, "run_pipeline", "run it")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApprovalQueue_AutoApprove(t *testing.T) {
	emitter := &service.MockEmitter{}
	q := NewApprovalQueue(emitter, time.Minute)
	q.AutoApprove = true

	ok, err := q.Request(context.Background(), "run_pipeline", "run it")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, emitter.Recorded())
}
