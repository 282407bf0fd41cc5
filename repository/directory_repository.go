package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDirectoryRepository reads identity and course records owned by other
// parts of the platform. It never writes.
type GormDirectoryRepository struct {
	base
}

func NewDirectoryRepository(db *gorm.DB, timeout time.Duration) *GormDirectoryRepository {
	return &GormDirectoryRepository{base: newBase(db, timeout)}
}

func (r *GormDirectoryRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var u models.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		return nil, mapError("get user", err)
	}
	return &u, nil
}

func (r *GormDirectoryRepository) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var c models.Course
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		return nil, mapError("get course", err)
	}
	return &c, nil
}
