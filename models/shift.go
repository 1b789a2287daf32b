package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"gorm.io/gorm"
)

type ShiftStatus string

const (
	ShiftStatusActive ShiftStatus = "active"
	ShiftStatusEnded  ShiftStatus = "ended"
)

// activeSlotValue occupies the unique active_slot column while a shift is active.
// The column is NULL once the shift ends, so the unique index admits at most one active shift.
const activeSlotValue = "active"

type Shift struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	StartedAt  time.Time   `gorm:"not null;index" json:"started_at"`
	EndedAt    *time.Time  `json:"ended_at"`
	Status     ShiftStatus `gorm:"size:20;not null;default:'active';index" json:"status"`
	ActiveSlot *string     `gorm:"size:10;uniqueIndex" json:"-"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"-"`
	UpdatedAt  time.Time   `gorm:"autoUpdateTime" json:"-"`
}

func (s *Shift) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newId()
	}
	return nil
}

// StartShift inserts the single active shift. The unique active_slot turns a racing second start
// into a duplicate-key error, reported as CONFLICT.
func StartShift(ctx context.Context) (*Shift, error) {
	var shift *Shift
	err := withKeyLock(ctx, utils.ShiftLockKey(), func(tx *gorm.DB) error {
		slot := activeSlotValue
		s := Shift{
			StartedAt:  nowUTC(),
			Status:     ShiftStatusActive,
			ActiveSlot: &slot,
		}
		if err := tx.Create(&s).Error; err != nil {
			if utils.IsDuplicateKey(err) {
				return utils.Conflict("there is already an active shift")
			}
			return err
		}
		shift = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// EndShift ends the active shift; CONFLICT when none is active.
func EndShift(ctx context.Context) (*Shift, error) {
	var shift *Shift
	err := withKeyLock(ctx, utils.ShiftLockKey(), func(tx *gorm.DB) error {
		var err error
		shift, err = EndActiveShiftTx(ctx, tx, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// EndActiveShiftTx ends the active shift inside tx. When shiftId is set, that shift must be the active one.
// Ending is a compare-and-swap on active_slot, so a second end is always a CONFLICT.
func EndActiveShiftTx(ctx context.Context, tx *gorm.DB, shiftId string) (*Shift, error) {
	var active Shift
	q := tx.Where("active_slot = ?", activeSlotValue)
	if err := q.First(&active).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.Conflict("no active shift found")
		}
		return nil, err
	}
	if shiftId != "" && active.ID != shiftId {
		return nil, utils.Conflict("shift %s is not the active shift", shiftId)
	}
	now := nowUTC()
	res := tx.Model(&Shift{}).
		Where("id = ? AND active_slot = ?", active.ID, activeSlotValue).
		Updates(map[string]interface{}{
			"status":      ShiftStatusEnded,
			"ended_at":    now,
			"active_slot": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.Conflict("no active shift found")
	}
	ended, err := utils.FetchModelTx[Shift](tx, active.ID)
	if err != nil {
		return nil, err
	}
	if err := PublishProductionEvent(ctx, tx, EventShiftEnded, ReferenceTypeShift, ended.ID, ended); err != nil {
		return nil, err
	}
	return ended, nil
}

// CurrentShift returns the active shift or nil.
func CurrentShift(ctx context.Context) (*Shift, error) {
	db := config.GetDB()
	var s Shift
	err := db.WithContext(ctx).Where("active_slot = ?", activeSlotValue).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func GetShift(ctx context.Context, id string) (*Shift, error) {
	return GetResource[Shift](ctx, id, "shift")
}

func ListShifts(ctx context.Context, limit int) ([]*Shift, error) {
	db := config.GetDB()
	var results []*Shift
	err := db.WithContext(ctx).Order("started_at DESC").Limit(utils.ClampLimit(limit, 30, 500)).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
