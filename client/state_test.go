package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForPhase blocks until the state reaches the wanted phase.
func waitForPhase(t *testing.T, s *ReactionState, want Phase) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if snap.Phase == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached phase %q (now %q)", want, s.Snapshot().Phase)
	return Snapshot{}
}

func TestToggleIsOptimisticThenConfirmed(t *testing.T) {
	// Someone else likes concurrently: local guess 4, server truth 5
	transport := &fakeTransport{respond: func(req *BatchRequest) (*BatchResponse, error) {
		results := make(map[string]BatchResult, len(req.Actions))
		for key := range req.Actions {
			results[key] = BatchResult{IsLiked: true, LikeCount: 5}
		}
		return &BatchResponse{Success: true, Results: results}, nil
	}}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeReview, "rev-1", false, 3)
	state.Toggle(context.Background())

	snap := state.Snapshot()
	assert.True(t, snap.IsLiked)
	assert.Equal(t, int64(4), snap.LikeCount)
	assert.Equal(t, PhaseOptimistic, snap.Phase)
	assert.True(t, snap.Pending)

	c.Flush()

	snap = waitForPhase(t, state, PhaseConfirmed)
	assert.True(t, snap.IsLiked)
	assert.Equal(t, int64(5), snap.LikeCount)
	assert.False(t, snap.Pending)
	assert.NoError(t, snap.Err)
}

func TestFailureRestoresExactPreToggleValues(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, &APIError{StatusCode: 401, ErrorType: "UNAUTHORIZED"}
	}}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeReview, "rev-1", true, 7)
	state.Toggle(context.Background())

	snap := state.Snapshot()
	assert.False(t, snap.IsLiked)
	assert.Equal(t, int64(6), snap.LikeCount)

	c.Flush()

	snap = waitForPhase(t, state, PhaseRolledBack)
	assert.True(t, snap.IsLiked)
	assert.Equal(t, int64(7), snap.LikeCount)
	assert.False(t, snap.Pending)
	var apiErr *APIError
	require.ErrorAs(t, snap.Err, &apiErr)
}

func TestOfflineKeepsFlipAndMarksQueued(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	store := &fakeStore{}
	c := NewCoalescer(transport, store, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeComment, "com-1", false, 2)
	state.Toggle(context.Background())
	c.Flush()

	snap := waitForPhase(t, state, PhaseQueued)
	assert.True(t, snap.IsLiked)
	assert.Equal(t, int64(3), snap.LikeCount)
	assert.True(t, snap.Pending)
	assert.True(t, snap.IsOffline)
	assert.ErrorIs(t, snap.Err, ErrOfflineQueued)
}

func TestDoubleToggleSettlesIdleWithoutNetwork(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeReview, "rev-1", false, 3)
	state.Toggle(context.Background())
	state.Toggle(context.Background())

	snap := waitForPhase(t, state, PhaseIdle)
	assert.False(t, snap.IsLiked)
	assert.Equal(t, int64(3), snap.LikeCount)
	assert.False(t, snap.Pending)
	assert.NoError(t, snap.Err)

	c.Flush()
	assert.Equal(t, 0, transport.callCount())
}

func TestStaleSettleDoesNotOverwriteNewerToggle(t *testing.T) {
	block := make(chan struct{})
	transport := &fakeTransport{respond: func(req *BatchRequest) (*BatchResponse, error) {
		<-block
		return okRespond(req)
	}}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeReview, "rev-1", false, 0)
	state.Toggle(context.Background())
	go c.Flush() // first intent goes in flight, blocked inside the transport

	// Wait until the batch is actually in flight before toggling again
	require.Eventually(t, func() bool {
		_, inFlight := c.QueueStatus()
		return inFlight
	}, 5*time.Second, time.Millisecond)

	state.Toggle(context.Background())
	snap := state.Snapshot()
	assert.False(t, snap.IsLiked)

	close(block)
	require.Eventually(t, func() bool {
		_, inFlight := c.QueueStatus()
		return !inFlight
	}, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let the stale settle run

	// The first settle is stale and must not flip the state back
	snap = state.Snapshot()
	assert.Equal(t, PhaseOptimistic, snap.Phase)
	assert.False(t, snap.IsLiked)
	assert.Equal(t, int64(0), snap.LikeCount)
}

func TestApplyServerStateSettlesQueuedState(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeReview, "rev-1", true, 4)
	state.ApplyServerState(true, 9)

	snap := state.Snapshot()
	assert.True(t, snap.IsLiked)
	assert.Equal(t, int64(9), snap.LikeCount)
	assert.Equal(t, PhaseConfirmed, snap.Phase)
	assert.False(t, snap.Pending)
}

func TestOnChangeObservesTransitions(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	state := NewReactionState(c, TargetTypeReview, "rev-1", false, 0)
	phases := make(chan Phase, 8)
	state.OnChange(func(snap Snapshot) { phases <- snap.Phase })

	state.Toggle(context.Background())
	c.Flush()

	assert.Equal(t, PhaseOptimistic, <-phases)
	assert.Equal(t, PhaseConfirmed, <-phases)
}
