package repository

import (
	"errors"

	"readzone/internal/model"

	"gorm.io/gorm"
)

// ReviewRepository is the boundary to the review CRUD subsystem. The reaction
// engine only needs existence checks and the author for notifications.
type ReviewRepository interface {
	FindByID(id string) (*model.Review, error)
	Exists(id string) (bool, error)
}

type reviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// FindByID finds a review by ID
func (r *reviewRepository) FindByID(id string) (*model.Review, error) {
	var review model.Review
	err := r.db.Where("id = ?", id).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// Exists checks whether a review exists
func (r *reviewRepository) Exists(id string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Review{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return count > 0, nil
}
