package client

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayDrainsQueueAfterReconnect(t *testing.T) {
	queue := openTestQueue(t)

	// Offline: every call fails and the intent lands in the queue
	offline := true
	transport := &fakeTransport{}
	transport.respond = func(req *BatchRequest) (*BatchResponse, error) {
		if offline {
			return nil, fmt.Errorf("connection refused")
		}
		return okRespond(req)
	}
	c := NewCoalescer(transport, queue, testCoalescerConfig())

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()
	_, err := ticket.Wait(context.Background())
	require.ErrorIs(t, err, ErrOfflineQueued)

	var summary SyncSummary
	agent := NewReplayAgent(queue, c, transport, ReplayAgentConfig{
		OnSynced: func(s SyncSummary) { summary = s },
	})

	// Reconnect and replay
	offline = false
	require.NoError(t, agent.replay())

	count, err := queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 0, summary.Remaining)

	// The replayed batch carried the queued intent
	last := transport.calls[transport.callCount()-1]
	assert.Equal(t, ActionLike, last.Actions["review-rev-1"])
}

func TestReplayKeepsRowsWhileStillOffline(t *testing.T) {
	queue := openTestQueue(t)
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	c := NewCoalescer(transport, queue, testCoalescerConfig())

	_, ok := queue.Persist(Intent{TargetID: "rev-1", TargetType: TargetTypeReview, Action: ActionLike, CreatedAt: time.Now()})
	require.True(t, ok)

	agent := NewReplayAgent(queue, c, transport, ReplayAgentConfig{})
	require.NoError(t, agent.replay())

	count, err := queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReplayLastWriterWinsPerKey(t *testing.T) {
	queue := openTestQueue(t)
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, queue, testCoalescerConfig())

	// Two opposing rows for the same target; only the later one transmits
	queue.Persist(Intent{TargetID: "rev-1", TargetType: TargetTypeReview, Action: ActionLike, CreatedAt: time.Now()})
	queue.Persist(Intent{TargetID: "rev-1", TargetType: TargetTypeReview, Action: ActionUnlike, CreatedAt: time.Now()})

	agent := NewReplayAgent(queue, c, transport, ReplayAgentConfig{})
	require.NoError(t, agent.replay())

	require.Equal(t, 1, transport.callCount())
	req := transport.calls[0]
	assert.Len(t, req.Actions, 1)
	assert.Equal(t, ActionUnlike, req.Actions["review-rev-1"])

	count, err := queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReplayConsumesTerminallyRejectedRows(t *testing.T) {
	queue := openTestQueue(t)
	transport := &fakeTransport{respond: func(req *BatchRequest) (*BatchResponse, error) {
		results := make(map[string]BatchResult, len(req.Actions))
		for key := range req.Actions {
			results[key] = BatchResult{Error: "NOT_FOUND"}
		}
		return &BatchResponse{Success: true, Results: results}, nil
	}}
	c := NewCoalescer(transport, queue, testCoalescerConfig())

	queue.Persist(Intent{TargetID: "rev-gone", TargetType: TargetTypeReview, Action: ActionLike, CreatedAt: time.Now()})

	var summary SyncSummary
	agent := NewReplayAgent(queue, c, transport, ReplayAgentConfig{
		OnSynced: func(s SyncSummary) { summary = s },
	})
	require.NoError(t, agent.replay())

	// A target deleted while offline will never apply; replaying forever
	// would wedge the queue
	count, err := queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, summary.Failed)
}

func TestReplayAgentMessageLoop(t *testing.T) {
	queue := openTestQueue(t)
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, queue, testCoalescerConfig())

	agent := NewReplayAgent(queue, c, transport, ReplayAgentConfig{ProbeInterval: time.Hour})
	agent.Start()
	defer agent.Stop()

	assert.Equal(t, 0, agent.PendingCount())

	agent.SaveIntent(Intent{TargetID: "rev-1", TargetType: TargetTypeReview, Action: ActionLike, CreatedAt: time.Now()})
	assert.Equal(t, 1, agent.PendingCount())

	require.NoError(t, agent.ReplayNow())
	assert.Equal(t, 0, agent.PendingCount())
}

func TestReplayAgentStopIsFinal(t *testing.T) {
	queue, err := OpenOfflineQueue(filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	defer queue.Close()
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, queue, testCoalescerConfig())

	agent := NewReplayAgent(queue, c, transport, ReplayAgentConfig{ProbeInterval: time.Hour})
	agent.Start()
	agent.Stop()
	agent.Stop() // second stop is a no-op

	assert.Error(t, agent.ReplayNow())
	assert.Equal(t, 0, agent.PendingCount())
}
