// Package client implements the consumer side of the reaction sync protocol:
// optimistic per-target state, intent coalescing with windowed batching, a
// durable offline queue, and background replay on reconnect.
package client

import (
	"context"
	"time"
)

// Config carries the knobs for a fully wired client.
type Config struct {
	BaseURL        string
	Token          string
	QueuePath      string        // sqlite file for the offline queue
	RequestTimeout time.Duration // per-call transport timeout
	Coalescer      CoalescerConfig
	Replay         ReplayAgentConfig
}

// Client wires the transport, coalescer, offline queue and replay agent
// together and hands out per-target reaction states.
type Client struct {
	transport *HTTPTransport
	coalescer *Coalescer
	queue     *OfflineQueue
	agent     *ReplayAgent
}

func New(cfg Config) (*Client, error) {
	queue, err := OpenOfflineQueue(cfg.QueuePath)
	if err != nil {
		return nil, err
	}

	transport := NewHTTPTransport(cfg.BaseURL, cfg.Token, cfg.RequestTimeout)

	coalescerCfg := cfg.Coalescer
	if coalescerCfg.BatchDelay == 0 && coalescerCfg.MaxBatchSize == 0 {
		coalescerCfg = DefaultCoalescerConfig()
	}
	coalescer := NewCoalescer(transport, queue, coalescerCfg)

	agent := NewReplayAgent(queue, coalescer, transport, cfg.Replay)
	agent.Start()

	return &Client{
		transport: transport,
		coalescer: coalescer,
		queue:     queue,
		agent:     agent,
	}, nil
}

// Reaction returns a state tracker for one target seeded with known values.
func (c *Client) Reaction(targetType, targetID string, isLiked bool, likeCount int64) *ReactionState {
	return NewReactionState(c.coalescer, targetType, targetID, isLiked, likeCount)
}

// Toggle submits a single toggle and waits for its outcome.
func (c *Client) Toggle(ctx context.Context, targetType, targetID, action string) (BatchResult, error) {
	ticket := c.coalescer.Submit(targetType, targetID, action)
	return ticket.Wait(ctx)
}

// Flush forces everything pending onto the wire.
func (c *Client) Flush() {
	c.coalescer.Flush()
}

// Sync runs a replay pass immediately.
func (c *Client) Sync() error {
	return c.agent.ReplayNow()
}

// PendingCount reports how many intents await replay.
func (c *Client) PendingCount() int {
	return c.agent.PendingCount()
}

// Close stops the replay agent and closes the offline queue.
func (c *Client) Close() error {
	c.agent.Stop()
	return c.queue.Close()
}
