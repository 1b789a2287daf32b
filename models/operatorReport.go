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

type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusApproved ReportStatus = "approved"
)

// OperatorReport is an operator-declared end-of-shift claim. It changes no other entity until approved.
// References are stored as given; they need not exist yet.
type OperatorReport struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	ShiftId      string          `gorm:"size:36;not null;index:idx_reports_pending,priority:2" json:"shift_id"`
	OperatorId   string          `gorm:"size:64;not null" json:"operator_id"`
	OperatorName string          `gorm:"size:100;not null" json:"operator_name"`
	MachineId    string          `gorm:"size:36;not null" json:"machine_id"`
	MachineName  string          `gorm:"size:100" json:"machine_name"`
	JobId        *string         `gorm:"size:36" json:"job_id"`
	JobName      *string         `gorm:"size:255" json:"job_name"`
	TargetKoli   int             `gorm:"not null" json:"target_koli"`
	ProducedKoli int             `gorm:"not null" json:"produced_koli"`
	DefectKg     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"defect_kg"`
	IsCompleted  bool            `gorm:"not null;default:false" json:"is_completed"`
	Status       ReportStatus    `gorm:"size:20;not null;default:'pending';index:idx_reports_pending,priority:1" json:"status"`
	ApprovedBy   *string         `gorm:"size:100" json:"approved_by"`
	ApprovedAt   *time.Time      `json:"approved_at"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

func (r *OperatorReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newId()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = nowUTC()
	}
	return nil
}

type NewOperatorReport struct {
	ShiftId      string           `json:"shift_id" binding:"required"`
	OperatorId   string           `json:"operator_id" binding:"required"`
	OperatorName string           `json:"operator_name" binding:"required"`
	MachineId    string           `json:"machine_id" binding:"required"`
	MachineName  string           `json:"machine_name"`
	JobId        *string          `json:"job_id"`
	JobName      *string          `json:"job_name"`
	TargetKoli   *int             `json:"target_koli" binding:"required,min=0"`
	ProducedKoli *int             `json:"produced_koli" binding:"required,min=0"`
	DefectKg     *decimal.Decimal `json:"defect_kg"`
	IsCompleted  bool             `json:"is_completed"`
}

// ReportDelta is the reconciled content of one machine's shift production.
// Both the pending-approval path and the bulk end-with-report path apply it.
type ReportDelta struct {
	ShiftId      string
	OperatorName string
	MachineId    string
	JobId        string
	TargetKoli   int
	ProducedKoli int
	DefectKg     decimal.Decimal
	IsCompleted  bool
}

// Remaining is max(target - produced, 0).
func (d ReportDelta) Remaining() int {
	if d.ProducedKoli >= d.TargetKoli {
		return 0
	}
	return d.TargetKoli - d.ProducedKoli
}

func (r *OperatorReport) Delta() ReportDelta {
	d := ReportDelta{
		ShiftId:      r.ShiftId,
		OperatorName: r.OperatorName,
		MachineId:    r.MachineId,
		TargetKoli:   r.TargetKoli,
		ProducedKoli: r.ProducedKoli,
		DefectKg:     r.DefectKg,
		IsCompleted:  r.IsCompleted,
	}
	if r.JobId != nil {
		d.JobId = *r.JobId
	}
	return d
}

func (input *NewOperatorReport) validate() error {
	missing := map[string]string{}
	for field, v := range map[string]string{
		"shift_id":      input.ShiftId,
		"operator_id":   input.OperatorId,
		"operator_name": input.OperatorName,
		"machine_id":    input.MachineId,
	} {
		if strings.TrimSpace(v) == "" {
			missing[field] = "required"
		}
	}
	if input.TargetKoli == nil {
		missing["target_koli"] = "required"
	}
	if input.ProducedKoli == nil {
		missing["produced_koli"] = "required"
	}
	if len(missing) > 0 {
		return utils.ValidationFields("missing required fields", missing)
	}
	if *input.TargetKoli < 0 || *input.ProducedKoli < 0 {
		return utils.Validation("koli counts must not be negative")
	}
	if input.DefectKg != nil && input.DefectKg.IsNegative() {
		return utils.Validation("defect_kg must not be negative")
	}
	return nil
}

// SubmitOperatorReport stores a pending report. It is the only write path into the pending set.
func SubmitOperatorReport(ctx context.Context, input *NewOperatorReport) (*OperatorReport, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	report := OperatorReport{
		ShiftId:      strings.TrimSpace(input.ShiftId),
		OperatorId:   strings.TrimSpace(input.OperatorId),
		OperatorName: strings.TrimSpace(input.OperatorName),
		MachineId:    strings.TrimSpace(input.MachineId),
		MachineName:  input.MachineName,
		JobId:        input.JobId,
		JobName:      input.JobName,
		TargetKoli:   *input.TargetKoli,
		ProducedKoli: *input.ProducedKoli,
		DefectKg:     decimal.Zero,
		IsCompleted:  input.IsCompleted,
		Status:       ReportStatusPending,
	}
	if report.JobId != nil && strings.TrimSpace(*report.JobId) == "" {
		report.JobId = nil
	}
	if input.DefectKg != nil {
		report.DefectKg = *input.DefectKg
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// fill display names when the referenced records are known here
		if report.MachineName == "" {
			if m, err := utils.FetchModelTx[Machine](tx, report.MachineId); err == nil {
				report.MachineName = m.Name
			}
		}
		if report.JobId != nil && report.JobName == nil {
			if j, err := utils.FetchModelTx[Job](tx, *report.JobId); err == nil {
				report.JobName = &j.Name
			}
		}
		return tx.Create(&report).Error
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

type ReportFilter struct {
	ShiftId *string
	Status  *ReportStatus
}

func ListPendingReports(ctx context.Context, shiftId *string) ([]*OperatorReport, error) {
	status := ReportStatusPending
	return ListOperatorReports(ctx, ReportFilter{ShiftId: shiftId, Status: &status})
}

func ListOperatorReports(ctx context.Context, filter ReportFilter) ([]*OperatorReport, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if filter.Status != nil && *filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.ShiftId != nil && *filter.ShiftId != "" {
		dbCtx = dbCtx.Where("shift_id = ?", *filter.ShiftId)
	}
	var results []*OperatorReport
	if err := dbCtx.Order("created_at ASC, id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MarkReportApprovedTx flips a pending report to approved. Only the caller whose update affects the
// row may apply the report's delta; everyone else gets NOT_FOUND.
func MarkReportApprovedTx(tx *gorm.DB, id string, approvedBy string) (*OperatorReport, error) {
	updates := map[string]interface{}{
		"status":      ReportStatusApproved,
		"approved_at": nowUTC(),
	}
	if approvedBy != "" {
		updates["approved_by"] = approvedBy
	}
	res := tx.Model(&OperatorReport{}).
		Where("id = ? AND status = ?", id, ReportStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.NotFound("report not found or already approved")
	}
	return utils.FetchModelTx[OperatorReport](tx, id)
}
