package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("floor_backend/workflow")

// AppliedDelta is what one report changed.
type AppliedDelta struct {
	Job    *models.Job       `json:"job"`
	Defect *models.DefectLog `json:"defect"`
}

type ApproveResult struct {
	Report *models.OperatorReport `json:"report"`
	AppliedDelta
}

type BatchFailure struct {
	ReportId  string `json:"report_id,omitempty"`
	MachineId string `json:"machine_id,omitempty"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
}

// BatchResult is the aggregate outcome of a best-effort batch. Items applied before a failure stay applied.
// Code and Error are set when the shift could not be closed after the items were applied.
type BatchResult struct {
	Approved    int            `json:"approved"`
	Skipped     int            `json:"skipped"`
	Failed      []BatchFailure `json:"failed"`
	ShiftClosed bool           `json:"shift_closed"`
	Shift       *models.Shift  `json:"shift"`
	Message     string         `json:"message"`
	Code        string         `json:"code,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// MachineReportEntry is one machine's numbers on the bulk end-with-report path.
type MachineReportEntry struct {
	MachineId    string           `json:"machine_id" binding:"required"`
	JobId        *string          `json:"job_id"`
	OperatorName string           `json:"operator_name"`
	TargetKoli   *int             `json:"target_koli" binding:"required,min=0"`
	ProducedKoli *int             `json:"produced_koli" binding:"required,min=0"`
	DefectKg     *decimal.Decimal `json:"defect_kg"`
	IsCompleted  bool             `json:"is_completed"`
}

func (e *MachineReportEntry) delta(shiftId string) (models.ReportDelta, error) {
	if strings.TrimSpace(e.MachineId) == "" {
		return models.ReportDelta{}, utils.Validation("machine_id is required")
	}
	if e.TargetKoli == nil || e.ProducedKoli == nil {
		return models.ReportDelta{}, utils.Validation("target_koli and produced_koli are required")
	}
	if *e.TargetKoli < 0 || *e.ProducedKoli < 0 {
		return models.ReportDelta{}, utils.Validation("koli counts must not be negative")
	}
	d := models.ReportDelta{
		ShiftId:      shiftId,
		OperatorName: e.OperatorName,
		MachineId:    strings.TrimSpace(e.MachineId),
		TargetKoli:   *e.TargetKoli,
		ProducedKoli: *e.ProducedKoli,
		DefectKg:     decimal.Zero,
		IsCompleted:  e.IsCompleted,
	}
	if e.JobId != nil {
		d.JobId = strings.TrimSpace(*e.JobId)
	}
	if e.DefectKg != nil {
		if e.DefectKg.IsNegative() {
			return models.ReportDelta{}, utils.Validation("defect_kg must not be negative")
		}
		d.DefectKg = *e.DefectKg
	}
	return d, nil
}

// applyReportDelta is the one place a report's numbers reach Job, DefectLog and Machine state.
// Both the approval path and the bulk end-with-report path go through it.
func applyReportDelta(ctx context.Context, tx *gorm.DB, d models.ReportDelta) (*AppliedDelta, error) {
	out := &AppliedDelta{}
	if d.JobId != "" {
		job, err := models.ApplyJobProgressTx(ctx, tx, d.JobId, d.ProducedKoli, d.Remaining(), d.IsCompleted)
		if err != nil {
			return nil, err
		}
		out.Job = job
	}
	if d.DefectKg.IsPositive() {
		note := "operator report"
		if d.OperatorName != "" {
			note = "operator report: " + d.OperatorName
		}
		defect, err := models.AppendDefectLogTx(ctx, tx, d.MachineId, d.ShiftId, d.DefectKg, note)
		if err != nil {
			return nil, err
		}
		out.Defect = defect
	}
	if err := models.ResetMachineTx(tx, d.MachineId); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveReport applies a pending report exactly once. A report that is missing or already approved
// yields NOT_FOUND, including for the loser of two racing approvals.
func ApproveReport(ctx context.Context, reportId string, approvedBy string) (*ApproveResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.ApproveReport", trace.WithAttributes(attribute.String("report.id", reportId)))
	defer span.End()

	release, err := utils.ObtainLock(ctx, utils.ReportLockKey(reportId))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	var result ApproveResult
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report, err := models.MarkReportApprovedTx(tx, reportId, approvedBy)
		if err != nil {
			return err
		}
		applied, err := applyReportDelta(ctx, tx, report.Delta())
		if err != nil {
			return err
		}
		if err := models.PublishProductionEvent(ctx, tx, models.EventReportApproved, models.ReferenceTypeReport, report.ID, report); err != nil {
			return err
		}
		result = ApproveResult{Report: report, AppliedDelta: *applied}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &result, nil
}

// ApproveAll approves every pending report (of shiftId when given), then ends the active shift.
// The shift is ended only if no report failed; approved reports stay approved either way.
func ApproveAll(ctx context.Context, shiftId *string, approvedBy string) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.ApproveAll")
	defer span.End()
	logger := config.GetLogger()

	scope := ""
	if shiftId != nil {
		scope = strings.TrimSpace(*shiftId)
	}
	span.SetAttributes(attribute.String("shift.id", scope))

	if scope != "" {
		active, err := models.CurrentShift(ctx)
		if err != nil {
			return nil, err
		}
		if active == nil || active.ID != scope {
			return nil, utils.Conflict("shift %s is not the active shift", scope)
		}
	}

	pending, err := models.ListPendingReports(ctx, &scope)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Failed: []BatchFailure{}}
	for _, report := range pending {
		if _, err := ApproveReport(ctx, report.ID, approvedBy); err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				// approved concurrently by another caller
				result.Skipped++
				continue
			}
			config.LogError(logger, "reconciliation.go", "ApproveAll", "ApproveReport", report.ID, err)
			result.Failed = append(result.Failed, BatchFailure{ReportId: report.ID, MachineId: report.MachineId, Error: err.Error(), Code: utils.ErrorCode(err)})
			continue
		}
		result.Approved++
	}

	if len(result.Failed) > 0 {
		result.Message = fmt.Sprintf("%d rapor onaylandı, %d rapor başarısız; vardiya açık", result.Approved, len(result.Failed))
		logger.WithFields(logrus.Fields{
			"field":    "ApproveAll",
			"shift_id": scope,
			"approved": result.Approved,
			"failed":   len(result.Failed),
		}).Warn("approve-all left the shift open")
		return result, nil
	}

	shift, err := endShift(ctx, scope)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, utils.ErrConflict) {
			return result, err
		}
		// applied reports stay approved
		result.Code = utils.CodeConflict
		result.Error = err.Error()
		result.Message = fmt.Sprintf("%d rapor onaylandı; vardiya kapatılamadı", result.Approved)
		logger.WithFields(logrus.Fields{
			"field":    "ApproveAll",
			"shift_id": scope,
			"approved": result.Approved,
		}).Warn("approve-all could not close the shift: " + err.Error())
		return result, nil
	}
	result.Shift = shift
	result.ShiftClosed = true
	result.Message = fmt.Sprintf("%d rapor onaylandı, vardiya bitirildi", result.Approved)
	logger.WithFields(logrus.Fields{
		"field":    "ApproveAll",
		"shift_id": shift.ID,
		"approved": result.Approved,
		"skipped":  result.Skipped,
	}).Info("shift closed after approving reports")
	return result, nil
}

// EndShiftWithReport applies each entry directly, without a pending stage, then ends the active shift
// regardless of entry failures. Without an active shift nothing is applied.
func EndShiftWithReport(ctx context.Context, entries []MachineReportEntry) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.EndShiftWithReport")
	defer span.End()
	logger := config.GetLogger()

	active, err := models.CurrentShift(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, utils.Conflict("no active shift found")
	}
	span.SetAttributes(attribute.String("shift.id", active.ID), attribute.Int("entries", len(entries)))

	result := &BatchResult{Failed: []BatchFailure{}}
	for i := range entries {
		entry := entries[i]
		if err := applyEntry(ctx, active.ID, &entry); err != nil {
			config.LogError(logger, "reconciliation.go", "EndShiftWithReport", "applyEntry", entry.MachineId, err)
			result.Failed = append(result.Failed, BatchFailure{MachineId: entry.MachineId, Error: err.Error(), Code: utils.ErrorCode(err)})
			continue
		}
		result.Approved++
	}

	shift, err := endShift(ctx, active.ID)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	result.Shift = shift
	result.ShiftClosed = true
	result.Message = fmt.Sprintf("%d makine raporu işlendi, vardiya bitirildi", result.Approved)
	return result, nil
}

func applyEntry(ctx context.Context, shiftId string, entry *MachineReportEntry) error {
	d, err := entry.delta(shiftId)
	if err != nil {
		return err
	}
	release, err := utils.ObtainLock(ctx, utils.MachineLockKey(d.MachineId))
	if err != nil {
		return err
	}
	defer release()
	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := applyReportDelta(ctx, tx, d)
		return err
	})
}

func endShift(ctx context.Context, shiftId string) (*models.Shift, error) {
	release, err := utils.ObtainLock(ctx, utils.ShiftLockKey())
	if err != nil {
		return nil, err
	}
	defer release()
	var shift *models.Shift
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		shift, err = models.EndActiveShiftTx(ctx, tx, shiftId)
		return err
	})
	return shift, err
}
