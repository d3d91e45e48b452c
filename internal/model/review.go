package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Review is a book review. Only the fields the reaction engine needs are
// mapped here; review CRUD is owned by another subsystem.
type Review struct {
	ID        string         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index;references:users(id)" json:"user_id"`
	BookID    *string        `gorm:"type:uuid;index" json:"book_id,omitempty"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	// Reactions are polymorphic (target_type + target_id), accessed via the
	// reaction repository rather than a foreign key.
	LikeCount int64 `gorm:"-" json:"like_count"` // Virtual field, calculated
}

// BeforeCreate hook to generate UUID
func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name
func (Review) TableName() string {
	return "reviews"
}
