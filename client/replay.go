package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Control messages understood by the replay agent. The set is closed; the
// agent loop handles every kind.
type msgKind int

const (
	msgSaveIntent msgKind = iota
	msgReplayNow
	msgPendingCount
	msgStop
)

type agentMessage struct {
	kind       msgKind
	intent     Intent
	countReply chan int
	done       chan error
}

// SyncSummary describes the outcome of one replay pass.
type SyncSummary struct {
	Total     int `json:"total"`     // pending rows at the start of the pass
	Synced    int `json:"synced"`    // rows confirmed (or superseded) this pass
	Failed    int `json:"failed"`    // rows terminally rejected by the server
	Remaining int `json:"remaining"` // rows still pending after the pass
}

// ReplayAgentConfig carries the replay knobs.
type ReplayAgentConfig struct {
	// ProbeInterval is how often connectivity is checked while intents are
	// pending. Defaults to 15s.
	ProbeInterval time.Duration
	// ReplayTimeout bounds one replay pass. Defaults to 30s.
	ReplayTimeout time.Duration
	// OnSynced is invoked after a pass that consumed at least one row.
	OnSynced func(SyncSummary)
}

// ReplayAgent owns the offline queue. All access goes through its message
// loop, mirroring the process boundary between a UI and its background sync
// agent. When connectivity returns it drains pending intents back through
// the coalescer, marks confirmed rows synced, and purges them.
type ReplayAgent struct {
	queue     *OfflineQueue
	coalescer *Coalescer
	transport Transport
	cfg       ReplayAgentConfig

	msgs     chan agentMessage
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewReplayAgent(queue *OfflineQueue, coalescer *Coalescer, transport Transport, cfg ReplayAgentConfig) *ReplayAgent {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.ReplayTimeout <= 0 {
		cfg.ReplayTimeout = 30 * time.Second
	}
	return &ReplayAgent{
		queue:     queue,
		coalescer: coalescer,
		transport: transport,
		cfg:       cfg,
		msgs:      make(chan agentMessage),
		stopped:   make(chan struct{}),
	}
}

// Start runs the agent loop and the connectivity watcher.
func (a *ReplayAgent) Start() {
	go a.loop()
	go a.watchConnectivity()
}

// SaveIntent persists an intent through the agent.
func (a *ReplayAgent) SaveIntent(intent Intent) {
	done := make(chan error, 1)
	select {
	case a.msgs <- agentMessage{kind: msgSaveIntent, intent: intent, done: done}:
		<-done
	case <-a.stopped:
	}
}

// ReplayNow runs a replay pass immediately.
func (a *ReplayAgent) ReplayNow() error {
	done := make(chan error, 1)
	select {
	case a.msgs <- agentMessage{kind: msgReplayNow, done: done}:
		return <-done
	case <-a.stopped:
		return errors.New("replay agent stopped")
	}
}

// PendingCount reports how many intents are waiting for replay.
func (a *ReplayAgent) PendingCount() int {
	reply := make(chan int, 1)
	select {
	case a.msgs <- agentMessage{kind: msgPendingCount, countReply: reply}:
		return <-reply
	case <-a.stopped:
		return 0
	}
}

// Stop shuts the agent down.
func (a *ReplayAgent) Stop() {
	a.stopOnce.Do(func() {
		select {
		case a.msgs <- agentMessage{kind: msgStop}:
		case <-a.stopped:
		}
	})
}

func (a *ReplayAgent) loop() {
	for msg := range a.msgs {
		switch msg.kind {
		case msgSaveIntent:
			a.queue.Persist(msg.intent)
			msg.done <- nil
		case msgReplayNow:
			msg.done <- a.replay()
		case msgPendingCount:
			count, err := a.queue.Count()
			if err != nil {
				log.Printf("Failed to count pending intents: %v", err)
			}
			msg.countReply <- count
		case msgStop:
			close(a.stopped)
			return
		}
	}
}

// watchConnectivity probes the server while intents are pending and triggers
// a replay on reconnect. Probing more than once per interval is pointless;
// the trigger may still fire twice, which replay tolerates.
func (a *ReplayAgent) watchConnectivity() {
	ticker := time.NewTicker(a.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopped:
			return
		case <-ticker.C:
			if a.PendingCount() == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ProbeInterval)
			err := a.transport.Ping(ctx)
			cancel()
			if err != nil {
				continue
			}
			if err := a.ReplayNow(); err != nil {
				log.Printf("Replay after reconnect failed: %v", err)
			}
		}
	}
}

// replay drains pending intents through the coalescer using the same batch
// contract as the live path. Confirmed and terminally rejected rows are
// marked synced (awaiting the commit) and then purged; rows that are still
// unreachable stay pending for the next trigger. Running twice is safe: the
// server treats re-applied toggles as no-ops.
func (a *ReplayAgent) replay() error {
	pending, err := a.queue.DrainPending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	summary := SyncSummary{Total: len(pending)}

	// Last-writer-wins per key: later rows supersede earlier ones, which are
	// consumed without transmission.
	latest := make(map[string]QueuedIntent, len(pending))
	for _, qi := range pending {
		key := ReactionKey(qi.TargetType, qi.TargetID)
		if prev, ok := latest[key]; ok {
			if markErr := a.queue.MarkSynced(prev.ID); markErr == nil {
				summary.Synced++
			}
		}
		latest[key] = qi
	}

	tickets := make(map[int64]*Ticket, len(latest))
	for _, qi := range latest {
		tickets[qi.ID] = a.coalescer.submitQueued(qi)
	}
	a.coalescer.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ReplayTimeout)
	defer cancel()

	for id, ticket := range tickets {
		_, waitErr := ticket.Wait(ctx)

		var itemErr *ItemError
		var apiErr *APIError
		switch {
		case waitErr == nil:
			if markErr := a.queue.MarkSynced(id); markErr != nil {
				log.Printf("Failed to mark intent %d synced: %v", id, markErr)
				continue
			}
			summary.Synced++
		case errors.As(waitErr, &itemErr), errors.As(waitErr, &apiErr):
			// The server rejected it terminally; replaying won't change that
			if markErr := a.queue.MarkSynced(id); markErr != nil {
				log.Printf("Failed to mark intent %d synced: %v", id, markErr)
				continue
			}
			summary.Failed++
		default:
			// Still unreachable: row stays pending for the next trigger
		}
	}

	if remaining, countErr := a.queue.Count(); countErr == nil {
		summary.Remaining = remaining
	}
	if err := a.queue.Cleanup(); err != nil {
		log.Printf("Offline queue cleanup failed: %v", err)
	}

	if a.cfg.OnSynced != nil && (summary.Synced > 0 || summary.Failed > 0) {
		a.cfg.OnSynced(summary)
	}
	return nil
}
