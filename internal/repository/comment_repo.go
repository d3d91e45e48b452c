package repository

import (
	"errors"

	"readzone/internal/model"

	"gorm.io/gorm"
)

// CommentRepository is the boundary to the comment CRUD subsystem.
type CommentRepository interface {
	FindByID(id string) (*model.Comment, error)
	Exists(id string) (bool, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// FindByID finds a comment by ID
func (r *commentRepository) FindByID(id string) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.Where("id = ?", id).First(&comment).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// Exists checks whether a comment exists
func (r *commentRepository) Exists(id string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Comment{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return count > 0, nil
}
