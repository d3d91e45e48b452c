package client

import (
	"context"
	"errors"
	"sync"
)

// Phase is the lifecycle stage of a target's reaction state.
type Phase string

const (
	PhaseIdle       Phase = "idle"       // no toggle in flight
	PhaseOptimistic Phase = "optimistic" // flipped locally, awaiting server
	PhaseConfirmed  Phase = "confirmed"  // server truth applied
	PhaseQueued     Phase = "queued"     // flipped locally, waiting for replay
	PhaseRolledBack Phase = "rolled_back" // reverted to pre-toggle values
)

// Snapshot is a point-in-time view of a target's reaction state.
type Snapshot struct {
	IsLiked   bool
	LikeCount int64
	Phase     Phase
	Pending   bool
	IsOffline bool
	Err       error
}

// ReactionState tracks one target's like state through optimistic toggles.
// A toggle flips immediately; the outcome of the submitted intent then
// settles the state: server truth on success, exact pre-toggle values on
// failure, kept flip when the intent was queued offline.
type ReactionState struct {
	mu         sync.Mutex
	targetType string
	targetID   string

	isLiked   bool
	likeCount int64
	phase     Phase
	pending   bool
	offline   bool
	err       error

	// generation guards against a stale settle overwriting the outcome of a
	// newer toggle; each Toggle bumps it and only the matching settle applies.
	generation uint64

	coalescer *Coalescer
	onChange  func(Snapshot)
}

func NewReactionState(coalescer *Coalescer, targetType, targetID string, isLiked bool, likeCount int64) *ReactionState {
	return &ReactionState{
		targetType: targetType,
		targetID:   targetID,
		isLiked:    isLiked,
		likeCount:  likeCount,
		phase:      PhaseIdle,
		coalescer:  coalescer,
	}
}

// OnChange registers a callback invoked (outside the lock) after every state
// transition. Only one callback is supported.
func (s *ReactionState) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *ReactionState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ReactionState) snapshotLocked() Snapshot {
	return Snapshot{
		IsLiked:   s.isLiked,
		LikeCount: s.likeCount,
		Phase:     s.phase,
		Pending:   s.pending,
		IsOffline: s.offline,
		Err:       s.err,
	}
}

// Toggle flips the state immediately and submits the matching intent. The
// pre-toggle values are captured first so a failure can restore them exactly.
func (s *ReactionState) Toggle(ctx context.Context) *Ticket {
	s.mu.Lock()

	prevLiked := s.isLiked
	prevCount := s.likeCount

	action := ActionLike
	if s.isLiked {
		action = ActionUnlike
	}

	s.isLiked = !s.isLiked
	if s.isLiked {
		s.likeCount++
	} else if s.likeCount > 0 {
		s.likeCount--
	}
	s.phase = PhaseOptimistic
	s.pending = true
	s.err = nil
	s.generation++
	gen := s.generation

	s.mu.Unlock()
	s.notify()

	ticket := s.coalescer.Submit(s.targetType, s.targetID, action)
	go s.settle(ctx, ticket, gen, prevLiked, prevCount)
	return ticket
}

func (s *ReactionState) settle(ctx context.Context, ticket *Ticket, gen uint64, prevLiked bool, prevCount int64) {
	result, err := ticket.Wait(ctx)

	s.mu.Lock()
	if gen != s.generation {
		// A newer toggle owns the state now
		s.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		// Server truth overwrites the optimistic guess
		s.isLiked = result.IsLiked
		s.likeCount = result.LikeCount
		s.phase = PhaseConfirmed
		s.pending = false
		s.offline = false
	case errors.Is(err, ErrIntentCanceled):
		// The opposite toggle already restored local correctness
		s.phase = PhaseIdle
		s.pending = false
		s.err = nil
	case errors.Is(err, ErrOfflineQueued):
		// Keep the flip; replay will reconcile once connectivity returns
		s.phase = PhaseQueued
		s.pending = true
		s.offline = true
		s.err = err
	default:
		s.isLiked = prevLiked
		s.likeCount = prevCount
		s.phase = PhaseRolledBack
		s.pending = false
		s.err = err
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyServerState settles a queued or stale state with authoritative values,
// typically after a replay pass confirmed the intent.
func (s *ReactionState) ApplyServerState(isLiked bool, likeCount int64) {
	s.mu.Lock()
	s.isLiked = isLiked
	s.likeCount = likeCount
	s.phase = PhaseConfirmed
	s.pending = false
	s.offline = false
	s.err = nil
	s.generation++
	s.mu.Unlock()
	s.notify()
}

func (s *ReactionState) notify() {
	s.mu.Lock()
	fn := s.onChange
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
