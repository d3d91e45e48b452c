package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reaction is one user's like on one target (review or comment).
// Absence of the row is the "not liked" state; unlike deletes the row.
type Reaction struct {
	ID         string    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;index:idx_user_target,unique" json:"user_id"`
	TargetType string    `gorm:"type:varchar(20);not null;index:idx_user_target,unique" json:"target_type"` // review, comment
	TargetID   string    `gorm:"type:uuid;not null;index:idx_user_target,unique" json:"target_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

// BeforeCreate hook to generate UUID
func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Reaction) TableName() string {
	return "reactions"
}

// Constants for target types
const (
	TargetTypeReview  = "review"
	TargetTypeComment = "comment"
)

// Constants for reaction actions
const (
	ActionLike   = "like"
	ActionUnlike = "unlike"
)

// ValidTargetType reports whether t is a known reactable type.
func ValidTargetType(t string) bool {
	return t == TargetTypeReview || t == TargetTypeComment
}

// ReactionKey builds the "<type>-<id>" key used in batch requests and responses.
func ReactionKey(targetType, targetID string) string {
	return fmt.Sprintf("%s-%s", targetType, targetID)
}

// BatchReactionRequest is the payload of POST /api/v1/likes/batch.
// Actions is keyed by "<type>-<id>".
type BatchReactionRequest struct {
	ReviewIDs  []string          `json:"reviewIds,omitempty"`
	CommentIDs []string          `json:"commentIds,omitempty"`
	Actions    map[string]string `json:"actions" validate:"required,dive,oneof=like unlike"`
}

// TotalItems returns the number of targets in the batch.
func (r *BatchReactionRequest) TotalItems() int {
	return len(r.ReviewIDs) + len(r.CommentIDs)
}

// ReactionResult is the per-item outcome of a batch apply.
// Error carries the per-item error code, empty on success.
type ReactionResult struct {
	IsLiked   bool   `json:"isLiked"`
	LikeCount int64  `json:"likeCount"`
	Error     string `json:"error,omitempty"`
}

// BatchSummary aggregates per-item outcomes of one batch request.
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}
