package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   []*BatchRequest
	respond func(req *BatchRequest) (*BatchResponse, error)
	pingErr error
}

func (f *fakeTransport) ApplyBatch(_ context.Context, req *BatchRequest) (*BatchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeTransport) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// okRespond confirms every item: like -> liked with count 1, unlike -> not
// liked with count 0.
func okRespond(req *BatchRequest) (*BatchResponse, error) {
	results := make(map[string]BatchResult, len(req.Actions))
	for key, action := range req.Actions {
		if action == ActionLike {
			results[key] = BatchResult{IsLiked: true, LikeCount: 1}
		} else {
			results[key] = BatchResult{IsLiked: false, LikeCount: 0}
		}
	}
	return &BatchResponse{Success: true, Results: results}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	intents []Intent
	nextID  int64
	broken  bool
}

func (f *fakeStore) Persist(intent Intent) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return 0, false
	}
	f.intents = append(f.intents, intent)
	f.nextID++
	return f.nextID, true
}

// testCoalescerConfig keeps the window long so tests control dispatch with
// Flush, and makes retries instantaneous.
func testCoalescerConfig() CoalescerConfig {
	return CoalescerConfig{
		BatchDelay:   time.Hour,
		MaxBatchSize: 50,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		Sleep: func(_ context.Context, _ time.Duration) error {
			return nil
		},
	}
}

func TestCoalescerBatchesAcrossTargets(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	t1 := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	t2 := c.Submit(TargetTypeComment, "com-1", ActionLike)
	c.Flush()

	ctx := context.Background()
	r1, err := t1.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, r1.IsLiked)
	r2, err := t2.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, r2.IsLiked)

	require.Equal(t, 1, transport.callCount())
	req := transport.calls[0]
	assert.ElementsMatch(t, []string{"rev-1"}, req.ReviewIDs)
	assert.ElementsMatch(t, []string{"com-1"}, req.CommentIDs)
	assert.Equal(t, ActionLike, req.Actions["review-rev-1"])
	assert.Equal(t, ActionLike, req.Actions["comment-com-1"])
}

func TestOppositeToggleCancelsWithoutNetwork(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	t1 := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	t2 := c.Submit(TargetTypeReview, "rev-1", ActionUnlike)

	ctx := context.Background()
	_, err := t1.Wait(ctx)
	assert.ErrorIs(t, err, ErrIntentCanceled)
	_, err = t2.Wait(ctx)
	assert.ErrorIs(t, err, ErrIntentCanceled)

	c.Flush()
	assert.Equal(t, 0, transport.callCount())

	pending, inFlight := c.QueueStatus()
	assert.Equal(t, 0, pending)
	assert.False(t, inFlight)
}

func TestRepeatedSameActionSharesOneIntent(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	t1 := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	t2 := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()

	ctx := context.Background()
	r1, err := t1.Wait(ctx)
	require.NoError(t, err)
	r2, err := t2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, transport.callCount())
	assert.Len(t, transport.calls[0].Actions, 1)
}

func TestRetryExhaustionQueuesOffline(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	store := &fakeStore{}
	cfg := testCoalescerConfig()
	c := NewCoalescer(transport, store, cfg)

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()

	_, err := ticket.Wait(context.Background())
	assert.ErrorIs(t, err, ErrOfflineQueued)
	assert.Equal(t, cfg.MaxRetries, transport.callCount())
	require.Len(t, store.intents, 1)
	assert.Equal(t, "rev-1", store.intents[0].TargetID)
	assert.Equal(t, ActionLike, store.intents[0].Action)
}

func TestRetryExhaustionWithoutStoreFails(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()

	_, err := ticket.Wait(context.Background())
	assert.ErrorIs(t, err, ErrReconciliationFailed)
}

func TestBrokenStoreDegradesToFailure(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	store := &fakeStore{broken: true}
	c := NewCoalescer(transport, store, testCoalescerConfig())

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()

	_, err := ticket.Wait(context.Background())
	assert.ErrorIs(t, err, ErrReconciliationFailed)
}

func TestAPIErrorIsTerminal(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return nil, &APIError{StatusCode: 400, ErrorType: "BATCH_TOO_LARGE"}
	}}
	store := &fakeStore{}
	c := NewCoalescer(transport, store, testCoalescerConfig())

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()

	_, err := ticket.Wait(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BATCH_TOO_LARGE", apiErr.ErrorType)

	// No retries, no offline queueing for application-level rejections
	assert.Equal(t, 1, transport.callCount())
	assert.Empty(t, store.intents)
}

func TestPerItemErrorSurfacesAsItemError(t *testing.T) {
	transport := &fakeTransport{respond: func(req *BatchRequest) (*BatchResponse, error) {
		results := map[string]BatchResult{
			"review-rev-ok":  {IsLiked: true, LikeCount: 3},
			"review-rev-bad": {Error: "NOT_FOUND"},
		}
		return &BatchResponse{Success: true, Results: results}, nil
	}}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	tOK := c.Submit(TargetTypeReview, "rev-ok", ActionLike)
	tBad := c.Submit(TargetTypeReview, "rev-bad", ActionLike)
	c.Flush()

	ctx := context.Background()
	result, err := tOK.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.LikeCount)

	_, err = tBad.Wait(ctx)
	var itemErr *ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "NOT_FOUND", itemErr.Code)
	assert.Equal(t, "review-rev-bad", itemErr.Key)
}

func TestMissingResultIsInconsistent(t *testing.T) {
	transport := &fakeTransport{respond: func(_ *BatchRequest) (*BatchResponse, error) {
		return &BatchResponse{Success: true, Results: map[string]BatchResult{}}, nil
	}}
	c := NewCoalescer(transport, nil, testCoalescerConfig())

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	c.Flush()

	_, err := ticket.Wait(context.Background())
	assert.ErrorIs(t, err, ErrInconsistentResponse)
}

func TestOverflowDispatchesImmediately(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	cfg := testCoalescerConfig()
	cfg.MaxBatchSize = 2
	c := NewCoalescer(transport, nil, cfg)

	t1 := c.Submit(TargetTypeReview, "rev-1", ActionLike)
	t2 := c.Submit(TargetTypeReview, "rev-2", ActionLike)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := t1.Wait(ctx)
	require.NoError(t, err)
	_, err = t2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, transport.callCount())
}

func TestWindowDispatchesWithoutFlush(t *testing.T) {
	transport := &fakeTransport{respond: okRespond}
	cfg := testCoalescerConfig()
	cfg.BatchDelay = 10 * time.Millisecond
	c := NewCoalescer(transport, nil, cfg)

	ticket := c.Submit(TargetTypeReview, "rev-1", ActionLike)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := ticket.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, result.IsLiked)
}
