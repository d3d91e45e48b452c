package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"readzone/internal/model"
	"readzone/internal/util"

	"gorm.io/gorm"
)

type ReactionRepository interface {
	// Apply brings the (user, target) edge to the desired action and returns
	// the resulting state plus the post-mutation count, atomically.
	Apply(userID, targetType, targetID, action string) (isLiked bool, likeCount int64, err error)
	// Flip toggles the edge based on its current state (single-item fallback).
	Flip(userID, targetType, targetID string) (isLiked bool, likeCount int64, err error)
	FindByUserAndTarget(userID, targetType, targetID string) (*model.Reaction, error)
	CountByTarget(targetType, targetID string) (int64, error)
	CountByTargets(targetType string, targetIDs []string) (map[string]int64, error)
	FindUserLikedTargets(userID, targetType string, targetIDs []string) (map[string]bool, error)
}

type reactionRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
}

const (
	reactionCountCachePrefix = "reaction:count:"
	reactionCacheExpiration  = 10 * time.Minute
)

func NewReactionRepository(db *gorm.DB, redis *util.RedisClient) ReactionRepository {
	return &reactionRepository{
		db:    db,
		redis: redis,
	}
}

// Apply creates or deletes the edge to match the desired action. Liking an
// already-liked target and unliking a not-liked target are successful no-ops.
// The count is read inside the same transaction as the edge mutation.
func (r *reactionRepository) Apply(userID, targetType, targetID, action string) (bool, int64, error) {
	var isLiked bool
	var likeCount int64

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing model.Reaction
		findErr := tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
			First(&existing).Error
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}
		exists := findErr == nil

		switch action {
		case model.ActionLike:
			if !exists {
				reaction := &model.Reaction{
					UserID:     userID,
					TargetType: targetType,
					TargetID:   targetID,
				}
				if createErr := tx.Create(reaction).Error; createErr != nil {
					// A concurrent request inserted the same edge first. The
					// unique index on (user_id, target_type, target_id) turns
					// the race into "already liked", which is the desired state.
					if !isDuplicateKeyError(createErr) {
						return createErr
					}
				}
			}
			isLiked = true
		case model.ActionUnlike:
			if exists {
				if delErr := tx.Delete(&existing).Error; delErr != nil {
					return delErr
				}
			}
			isLiked = false
		default:
			return fmt.Errorf("invalid action: %s", action)
		}

		return tx.Model(&model.Reaction{}).
			Where("target_type = ? AND target_id = ?", targetType, targetID).
			Count(&likeCount).Error
	})
	if err != nil {
		return false, 0, err
	}

	if r.redis != nil {
		r.invalidateCountCache(targetType, targetID)
	}

	return isLiked, likeCount, nil
}

// Flip toggles the edge: delete when present, create when absent.
func (r *reactionRepository) Flip(userID, targetType, targetID string) (bool, int64, error) {
	var isLiked bool
	var likeCount int64

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing model.Reaction
		findErr := tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
			First(&existing).Error

		if findErr == nil {
			if delErr := tx.Delete(&existing).Error; delErr != nil {
				return delErr
			}
			isLiked = false
		} else if errors.Is(findErr, gorm.ErrRecordNotFound) {
			reaction := &model.Reaction{
				UserID:     userID,
				TargetType: targetType,
				TargetID:   targetID,
			}
			if createErr := tx.Create(reaction).Error; createErr != nil {
				if !isDuplicateKeyError(createErr) {
					return createErr
				}
			}
			isLiked = true
		} else {
			return findErr
		}

		return tx.Model(&model.Reaction{}).
			Where("target_type = ? AND target_id = ?", targetType, targetID).
			Count(&likeCount).Error
	})
	if err != nil {
		return false, 0, err
	}

	if r.redis != nil {
		r.invalidateCountCache(targetType, targetID)
	}

	return isLiked, likeCount, nil
}

// FindByUserAndTarget finds the edge for a user and target, if any
func (r *reactionRepository) FindByUserAndTarget(userID, targetType, targetID string) (*model.Reaction, error) {
	var reaction model.Reaction
	err := r.db.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
		First(&reaction).Error
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

// CountByTarget counts likes for a target
func (r *reactionRepository) CountByTarget(targetType, targetID string) (int64, error) {
	// Try cache first
	cacheKey := fmt.Sprintf("%s%s:%s", reactionCountCachePrefix, targetType, targetID)
	if r.redis != nil {
		cached, err := r.redis.Get(cacheKey)
		if err == nil {
			var count int64
			if _, err := fmt.Sscanf(cached, "%d", &count); err == nil {
				return count, nil
			}
		}
	}

	var count int64
	err := r.db.Model(&model.Reaction{}).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	// Cache the count
	if r.redis != nil {
		r.redis.Set(cacheKey, fmt.Sprintf("%d", count), reactionCacheExpiration)
	}

	return count, nil
}

// CountByTargets counts likes for multiple targets in one query
func (r *reactionRepository) CountByTargets(targetType string, targetIDs []string) (map[string]int64, error) {
	if len(targetIDs) == 0 {
		return map[string]int64{}, nil
	}
	var results []struct {
		TargetID string
		Count    int64
	}
	err := r.db.Model(&model.Reaction{}).
		Select("target_id, count(*) as count").
		Where("target_type = ? AND target_id IN ?", targetType, targetIDs).
		Group("target_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	m := make(map[string]int64)
	for _, row := range results {
		m[row.TargetID] = row.Count
	}
	// Ensure all IDs have entry (0 if not found)
	for _, id := range targetIDs {
		if _, ok := m[id]; !ok {
			m[id] = 0
		}
	}
	return m, nil
}

// FindUserLikedTargets returns which targets the user has liked
func (r *reactionRepository) FindUserLikedTargets(userID, targetType string, targetIDs []string) (map[string]bool, error) {
	if len(targetIDs) == 0 {
		return map[string]bool{}, nil
	}
	var reactions []model.Reaction
	err := r.db.Select("target_id").
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, targetType, targetIDs).
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	m := make(map[string]bool)
	for _, reaction := range reactions {
		m[reaction.TargetID] = true
	}
	return m, nil
}

func (r *reactionRepository) invalidateCountCache(targetType, targetID string) {
	if r.redis == nil {
		return
	}
	r.redis.Delete(fmt.Sprintf("%s%s:%s", reactionCountCachePrefix, targetType, targetID))
}

// isDuplicateKeyError detects a unique-constraint violation on the edge index.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key")
}
