package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormAvailabilityRepository struct {
	base
}

func NewAvailabilityRepository(db *gorm.DB, timeout time.Duration) *GormAvailabilityRepository {
	return &GormAvailabilityRepository{base: newBase(db, timeout)}
}

func (r *GormAvailabilityRepository) GetTemplate(ctx context.Context, teacherID uuid.UUID) ([]models.AvailabilityDay, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var days []models.AvailabilityDay
	err := db.Preload("Slots", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("start_time asc")
	}).Where("teacher_id = ?", teacherID).Find(&days).Error
	return days, mapError("get availability template", err)
}

func (r *GormAvailabilityRepository) ReplaceTemplate(ctx context.Context, teacherID uuid.UUID, days []models.AvailabilityDay) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		var dayIDs []uuid.UUID
		if err := tx.Model(&models.AvailabilityDay{}).Where("teacher_id = ?", teacherID).Pluck("id", &dayIDs).Error; err != nil {
			return err
		}
		if len(dayIDs) > 0 {
			if err := tx.Where("day_id IN ?", dayIDs).Delete(&models.AvailabilitySlot{}).Error; err != nil {
				return err
			}
			if err := tx.Where("teacher_id = ?", teacherID).Delete(&models.AvailabilityDay{}).Error; err != nil {
				return err
			}
		}
		for i := range days {
			days[i].ID = uuid.New()
			days[i].TeacherID = teacherID
			for j := range days[i].Slots {
				days[i].Slots[j].ID = uuid.New()
				days[i].Slots[j].DayID = days[i].ID
			}
			if err := tx.Create(&days[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("replace availability template", err)
}
