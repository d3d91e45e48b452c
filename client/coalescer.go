package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Intent is one desired reaction change, keyed by target. Multiple submits
// for the same key collapse into the most recent one before transmission.
type Intent struct {
	TargetID   string
	TargetType string
	Action     string
	CreatedAt  time.Time
	RetryCount int
}

// Key returns the intent's identity key ("<type>-<id>").
func (i Intent) Key() string {
	return ReactionKey(i.TargetType, i.TargetID)
}

// IntentStore persists intents that could not be transmitted. Persist never
// fails outward; a dropped intent is reported as false and logged by the
// implementation.
type IntentStore interface {
	Persist(intent Intent) (id int64, ok bool)
}

// CoalescerConfig carries the batching and retry knobs.
type CoalescerConfig struct {
	BatchDelay   time.Duration // accumulation window before dispatch
	MaxBatchSize int           // dispatch immediately at this size
	MaxRetries   int           // transport retry attempts per dispatch
	RetryDelay   time.Duration // fixed backoff between retries
	// Sleep is the backoff wait; injectable so tests can simulate elapsed
	// time. Defaults to a real timer honoring ctx cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultCoalescerConfig returns the production knobs.
func DefaultCoalescerConfig() CoalescerConfig {
	return CoalescerConfig{
		BatchDelay:   100 * time.Millisecond,
		MaxBatchSize: 50,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

type pendingIntent struct {
	intent   Intent
	queuedID int64 // >0 when the intent was replayed from the offline queue
	done     chan struct{}
	result   BatchResult
	err      error
}

// Ticket is the caller's handle on a submitted intent. All callers that
// toggled the same key before dispatch share one ticket outcome.
type Ticket struct {
	p *pendingIntent
}

// Wait blocks until the intent resolves or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (BatchResult, error) {
	select {
	case <-t.p.done:
		return t.p.result, t.p.err
	case <-ctx.Done():
		return BatchResult{}, ctx.Err()
	}
}

// Coalescer merges rapid toggles per target, batches intents across targets
// within a short window, and dispatches them to the batch apply endpoint.
// All mutation of the pending map and in-flight flag happens under mu.
type Coalescer struct {
	mu       sync.Mutex
	pending  map[string]*pendingIntent
	timer    *time.Timer
	inFlight bool

	transport Transport
	store     IntentStore // may be nil: transport failures become terminal
	cfg       CoalescerConfig
}

func NewCoalescer(transport Transport, store IntentStore, cfg CoalescerConfig) *Coalescer {
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 100 * time.Millisecond
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &Coalescer{
		pending:   make(map[string]*pendingIntent),
		transport: transport,
		store:     store,
		cfg:       cfg,
	}
}

// Submit records a toggle intent for a target. An opposite action on a key
// that is still pending cancels both out: the pending intent is dropped and
// every waiter resolves with ErrIntentCanceled, with no network call.
func (c *Coalescer) Submit(targetType, targetID, action string) *Ticket {
	c.mu.Lock()

	key := ReactionKey(targetType, targetID)
	if p, ok := c.pending[key]; ok {
		if p.intent.Action != action {
			delete(c.pending, key)
			p.err = ErrIntentCanceled
			close(p.done)
			c.mu.Unlock()
			return &Ticket{p: p}
		}
		// Same action again: refresh the timestamp, keep the shared outcome
		p.intent.CreatedAt = time.Now()
		c.mu.Unlock()
		return &Ticket{p: p}
	}

	p := &pendingIntent{
		intent: Intent{
			TargetID:   targetID,
			TargetType: targetType,
			Action:     action,
			CreatedAt:  time.Now(),
		},
		done: make(chan struct{}),
	}
	c.pending[key] = p

	if len(c.pending) >= c.cfg.MaxBatchSize {
		// Window would overflow: dispatch now instead of waiting
		c.mu.Unlock()
		go c.dispatch()
		return &Ticket{p: p}
	}

	c.scheduleLocked()
	c.mu.Unlock()
	return &Ticket{p: p}
}

// submitQueued feeds a replayed offline intent back through the batching
// path. If a live intent is already pending for the key, the live one is
// newer and wins; the caller settles the queued row from that outcome.
func (c *Coalescer) submitQueued(qi QueuedIntent) *Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ReactionKey(qi.TargetType, qi.TargetID)
	if p, ok := c.pending[key]; ok {
		return &Ticket{p: p}
	}

	p := &pendingIntent{
		intent: Intent{
			TargetID:   qi.TargetID,
			TargetType: qi.TargetType,
			Action:     qi.Action,
			CreatedAt:  qi.CreatedAt,
			RetryCount: qi.RetryCount,
		},
		queuedID: qi.ID,
		done:     make(chan struct{}),
	}
	c.pending[key] = p
	c.scheduleLocked()
	return &Ticket{p: p}
}

// Flush dispatches everything pending without waiting for the window to
// close. It blocks until the dispatched batch resolves.
func (c *Coalescer) Flush() {
	c.dispatch()
}

// QueueStatus reports the coalescer's internal state, for diagnostics.
func (c *Coalescer) QueueStatus() (pending int, inFlight bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending), c.inFlight
}

// scheduleLocked arms (or re-arms) the batching window. Caller holds mu.
func (c *Coalescer) scheduleLocked() {
	if c.timer == nil {
		c.timer = time.AfterFunc(c.cfg.BatchDelay, c.dispatch)
		return
	}
	c.timer.Reset(c.cfg.BatchDelay)
}

// dispatch takes up to MaxBatchSize pending intents and sends them. Only one
// dispatch runs at a time; leftovers trigger a follow-up round.
func (c *Coalescer) dispatch() {
	c.mu.Lock()
	if c.inFlight || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	batch := make([]*pendingIntent, 0, len(c.pending))
	for key, p := range c.pending {
		batch = append(batch, p)
		delete(c.pending, key)
		if len(batch) == c.cfg.MaxBatchSize {
			break
		}
	}
	c.mu.Unlock()

	c.send(batch)

	c.mu.Lock()
	c.inFlight = false
	remaining := len(c.pending) > 0
	c.mu.Unlock()
	if remaining {
		go c.dispatch()
	}
}

// send transmits one batch, retrying transport failures with fixed backoff.
// Application-level rejections are terminal immediately.
func (c *Coalescer) send(batch []*pendingIntent) {
	req := buildBatchRequest(batch)

	for attempt := 1; ; attempt++ {
		resp, err := c.transport.ApplyBatch(context.Background(), req)
		if err == nil {
			c.resolve(batch, resp)
			return
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.failAll(batch, err)
			return
		}

		// Transport failure: hand the batch to the offline queue before
		// retrying, so a crash mid-backoff loses nothing.
		c.persistBatch(batch)

		if attempt >= c.cfg.MaxRetries {
			c.failTransport(batch)
			return
		}

		for _, p := range batch {
			p.intent.RetryCount++
		}
		if sleepErr := c.cfg.Sleep(context.Background(), c.cfg.RetryDelay); sleepErr != nil {
			c.failTransport(batch)
			return
		}
	}
}

// persistBatch stores every not-yet-persisted intent in the offline queue.
func (c *Coalescer) persistBatch(batch []*pendingIntent) {
	if c.store == nil {
		return
	}
	for _, p := range batch {
		if p.queuedID > 0 {
			continue
		}
		if id, ok := c.store.Persist(p.intent); ok {
			p.queuedID = id
		}
	}
}

// failTransport settles a batch whose retries are exhausted: intents that
// made it into the offline queue resolve as queued, the rest as failed.
func (c *Coalescer) failTransport(batch []*pendingIntent) {
	for _, p := range batch {
		if p.queuedID > 0 {
			p.err = ErrOfflineQueued
		} else {
			p.err = ErrReconciliationFailed
		}
		close(p.done)
	}
}

func (c *Coalescer) failAll(batch []*pendingIntent, err error) {
	for _, p := range batch {
		p.err = err
		close(p.done)
	}
}

// resolve settles each intent from the per-key results.
func (c *Coalescer) resolve(batch []*pendingIntent, resp *BatchResponse) {
	for _, p := range batch {
		key := p.intent.Key()
		result, ok := resp.Results[key]
		switch {
		case !ok:
			// Should not happen under correct server behavior
			log.Printf("Batch response missing key %s", key)
			p.err = ErrInconsistentResponse
		case result.Error != "":
			p.err = &ItemError{Key: key, Code: result.Error}
		default:
			p.result = result
		}
		close(p.done)
	}
}

func buildBatchRequest(batch []*pendingIntent) *BatchRequest {
	req := &BatchRequest{Actions: make(map[string]string, len(batch))}
	for _, p := range batch {
		switch p.intent.TargetType {
		case TargetTypeReview:
			req.ReviewIDs = append(req.ReviewIDs, p.intent.TargetID)
		case TargetTypeComment:
			req.CommentIDs = append(req.CommentIDs, p.intent.TargetID)
		}
		req.Actions[p.intent.Key()] = p.intent.Action
	}
	return req
}
