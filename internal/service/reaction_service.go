package service

import (
	"errors"
	"log"

	"readzone/internal/model"
	"readzone/internal/repository"
)

// MaxBatchSize bounds one batch-apply request.
const MaxBatchSize = 50

// Batch-level errors. Per-item failures are returned as data inside
// ReactionResult, never as Go errors.
var (
	ErrEmptyBatch    = errors.New("EMPTY_BATCH")
	ErrBatchTooLarge = errors.New("BATCH_TOO_LARGE")
)

// Per-item error codes embedded in ReactionResult.Error.
const (
	ItemErrNotFound      = "NOT_FOUND"
	ItemErrForbidden     = "FORBIDDEN"
	ItemErrActionMissing = "ACTION_MISSING"
	ItemErrInternal      = "INTERNAL_ERROR"
)

type ReactionService interface {
	// ApplyBatch applies each toggle intent independently and returns
	// per-key results. Items are isolated: one item's failure never aborts
	// its siblings.
	ApplyBatch(userID string, req *model.BatchReactionRequest) (map[string]*model.ReactionResult, *model.BatchSummary, error)
	// Toggle flips the edge for one target (single-item fallback path).
	Toggle(userID, targetType, targetID string) (*model.ReactionResult, error)
	GetLikeCount(targetType, targetID string) (int64, error)
	GetLikedTargets(userID, targetType string, targetIDs []string) (map[string]bool, error)
}

type reactionService struct {
	reactionRepo repository.ReactionRepository
	reviewRepo   repository.ReviewRepository
	commentRepo  repository.CommentRepository
	publisher    ReactionEventPublisher
}

func NewReactionService(
	reactionRepo repository.ReactionRepository,
	reviewRepo repository.ReviewRepository,
	commentRepo repository.CommentRepository,
	publisher ReactionEventPublisher,
) ReactionService {
	return &reactionService{
		reactionRepo: reactionRepo,
		reviewRepo:   reviewRepo,
		commentRepo:  commentRepo,
		publisher:    publisher,
	}
}

// ApplyBatch validates the batch shape, then applies every item. Structural
// problems (empty, oversized) reject the whole request before any side
// effect; everything after that is per-item.
func (s *reactionService) ApplyBatch(userID string, req *model.BatchReactionRequest) (map[string]*model.ReactionResult, *model.BatchSummary, error) {
	total := req.TotalItems()
	if total == 0 {
		return nil, nil, ErrEmptyBatch
	}
	if total > MaxBatchSize {
		return nil, nil, ErrBatchTooLarge
	}

	results := make(map[string]*model.ReactionResult, total)

	for _, reviewID := range req.ReviewIDs {
		key := model.ReactionKey(model.TargetTypeReview, reviewID)
		results[key] = s.applyItem(userID, model.TargetTypeReview, reviewID, req.Actions[key])
	}
	for _, commentID := range req.CommentIDs {
		key := model.ReactionKey(model.TargetTypeComment, commentID)
		results[key] = s.applyItem(userID, model.TargetTypeComment, commentID, req.Actions[key])
	}

	summary := &model.BatchSummary{Total: total}
	for _, result := range results {
		if result.Error == "" {
			summary.Success++
		} else {
			summary.Errors++
		}
	}

	return results, summary, nil
}

// applyItem handles one toggle intent. All failures are recovered into the
// result so sibling items keep going.
func (s *reactionService) applyItem(userID, targetType, targetID, action string) *model.ReactionResult {
	if action != model.ActionLike && action != model.ActionUnlike {
		return &model.ReactionResult{Error: ItemErrActionMissing}
	}

	if errCode := s.authorizeTarget(userID, targetType, targetID); errCode != "" {
		return &model.ReactionResult{Error: errCode}
	}

	isLiked, likeCount, err := s.reactionRepo.Apply(userID, targetType, targetID, action)
	if err != nil {
		log.Printf("Reaction apply failed for %s-%s: %v", targetType, targetID, err)
		return &model.ReactionResult{Error: ItemErrInternal}
	}

	if isLiked && action == model.ActionLike {
		s.publishLike(userID, targetType, targetID, likeCount)
	}

	return &model.ReactionResult{IsLiked: isLiked, LikeCount: likeCount}
}

// Toggle flips the current state of the edge and returns the new state.
func (s *reactionService) Toggle(userID, targetType, targetID string) (*model.ReactionResult, error) {
	if errCode := s.authorizeTarget(userID, targetType, targetID); errCode != "" {
		return &model.ReactionResult{Error: errCode}, nil
	}

	isLiked, likeCount, err := s.reactionRepo.Flip(userID, targetType, targetID)
	if err != nil {
		return nil, err
	}

	if isLiked {
		s.publishLike(userID, targetType, targetID, likeCount)
	}

	return &model.ReactionResult{IsLiked: isLiked, LikeCount: likeCount}, nil
}

// GetLikeCount gets the like count for a target
func (s *reactionService) GetLikeCount(targetType, targetID string) (int64, error) {
	if !model.ValidTargetType(targetType) {
		return 0, errors.New("invalid target type")
	}
	return s.reactionRepo.CountByTarget(targetType, targetID)
}

// GetLikedTargets returns which of the given targets the user has liked
func (s *reactionService) GetLikedTargets(userID, targetType string, targetIDs []string) (map[string]bool, error) {
	if !model.ValidTargetType(targetType) {
		return nil, errors.New("invalid target type")
	}
	return s.reactionRepo.FindUserLikedTargets(userID, targetType, targetIDs)
}

// authorizeTarget verifies the target exists and the actor may react to it.
// Users may not like their own comments.
func (s *reactionService) authorizeTarget(userID, targetType, targetID string) string {
	switch targetType {
	case model.TargetTypeReview:
		exists, err := s.reviewRepo.Exists(targetID)
		if err != nil {
			log.Printf("Review existence check failed for %s: %v", targetID, err)
			return ItemErrInternal
		}
		if !exists {
			return ItemErrNotFound
		}
	case model.TargetTypeComment:
		comment, err := s.commentRepo.FindByID(targetID)
		if err != nil {
			return ItemErrNotFound
		}
		if comment.UserID == userID {
			return ItemErrForbidden
		}
	default:
		return ItemErrNotFound
	}
	return ""
}

func (s *reactionService) publishLike(userID, targetType, targetID string, likeCount int64) {
	if s.publisher == nil {
		return
	}
	event := &ReactionEvent{
		UserID:     userID,
		TargetType: targetType,
		TargetID:   targetID,
		Action:     model.ActionLike,
		LikeCount:  likeCount,
	}
	if err := s.publisher.PublishReactionEvent(event); err != nil {
		// Notifications are best-effort; the toggle itself already committed.
		log.Printf("Failed to publish reaction event for %s-%s: %v", targetType, targetID, err)
	}
}
