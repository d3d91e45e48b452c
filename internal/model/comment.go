package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Comment struct {
	ID        string         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ReviewID  string         `gorm:"type:uuid;not null;index;references:reviews(id)" json:"review_id"`
	UserID    string         `gorm:"type:uuid;not null;index;references:users(id)" json:"user_id"`
	ParentID  *string        `gorm:"type:uuid;index;references:comments(id)" json:"parent_id,omitempty"` // For nested replies
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Review  Review    `gorm:"foreignKey:ReviewID;references:ID" json:"review,omitempty"`
	User    User      `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Parent  *Comment  `gorm:"foreignKey:ParentID;references:ID" json:"parent,omitempty"`
	Replies []Comment `gorm:"foreignKey:ParentID;references:ID" json:"replies,omitempty"`
	// Reactions are polymorphic (target_type + target_id), so we don't use a
	// foreign key constraint; counts come from the reaction layer.
	LikeCount int64 `gorm:"-" json:"like_count"` // Virtual field, calculated
}

// BeforeCreate hook to generate UUID
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Comment) TableName() string {
	return "comments"
}
