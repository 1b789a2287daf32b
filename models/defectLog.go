package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefectLog is append-only.
type DefectLog struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	MachineId string          `gorm:"size:36;not null;index" json:"machine_id"`
	ShiftId   string          `gorm:"size:36;not null;index" json:"shift_id"`
	DefectKg  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"defect_kg"`
	Date      string          `gorm:"size:10;not null;index" json:"date"`
	Note      string          `gorm:"type:text" json:"note"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (d *DefectLog) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = newId()
	}
	return nil
}

type NewDefectLog struct {
	MachineId string          `json:"machine_id" binding:"required"`
	ShiftId   string          `json:"shift_id" binding:"required"`
	DefectKg  decimal.Decimal `json:"defect_kg"`
	Note      string          `json:"note"`
}

// AppendDefectLogTx writes one entry dated to the current UTC day and records defect.logged.
func AppendDefectLogTx(ctx context.Context, tx *gorm.DB, machineId string, shiftId string, defectKg decimal.Decimal, note string) (*DefectLog, error) {
	if !defectKg.IsPositive() {
		return nil, utils.Validation("defect_kg must be positive")
	}
	entry := DefectLog{
		MachineId: machineId,
		ShiftId:   shiftId,
		DefectKg:  defectKg,
		Date:      utils.DateOnly(nowUTC()),
		Note:      note,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	if err := PublishProductionEvent(ctx, tx, EventDefectLogged, ReferenceTypeDefect, entry.ID, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateDefectLog is the direct submission path.
func CreateDefectLog(ctx context.Context, input *NewDefectLog) (*DefectLog, error) {
	if strings.TrimSpace(input.MachineId) == "" || strings.TrimSpace(input.ShiftId) == "" {
		return nil, utils.Validation("machine_id and shift_id are required")
	}
	var entry *DefectLog
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = AppendDefectLogTx(ctx, tx, strings.TrimSpace(input.MachineId), strings.TrimSpace(input.ShiftId), input.DefectKg, input.Note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type DefectFilter struct {
	ShiftId   *string
	MachineId *string
}

func ListDefectLogs(ctx context.Context, filter DefectFilter) ([]*DefectLog, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if filter.ShiftId != nil && *filter.ShiftId != "" {
		dbCtx = dbCtx.Where("shift_id = ?", *filter.ShiftId)
	}
	if filter.MachineId != nil && *filter.MachineId != "" {
		dbCtx = dbCtx.Where("machine_id = ?", *filter.MachineId)
	}
	var results []*DefectLog
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
