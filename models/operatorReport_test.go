package models_test

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/shopspring/decimal"
)

func intPtr(v int) *int { return &v }

func TestSubmitOperatorReportValidation(t *testing.T) {
	ctx := setupTestDB(t)

	_, err := models.SubmitOperatorReport(ctx, &models.NewOperatorReport{OperatorName: "Ali"})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	for _, field := range []string{"shift_id", "operator_id", "machine_id", "target_koli", "produced_koli"} {
		if _, ok := appErr.Details[field]; !ok {
			t.Errorf("missing field %s not reported: %v", field, appErr.Details)
		}
	}
	if _, ok := appErr.Details["operator_name"]; ok {
		t.Errorf("operator_name was given and must not be reported")
	}

	negative := decimal.NewFromInt(-1)
	_, err = models.SubmitOperatorReport(ctx, &models.NewOperatorReport{
		ShiftId: "s", OperatorId: "o", OperatorName: "Ali", MachineId: "m",
		TargetKoli: intPtr(10), ProducedKoli: intPtr(5), DefectKg: &negative,
	})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("negative defect: expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSubmitOperatorReportIsPendingAndInert(t *testing.T) {
	ctx := setupTestDB(t)
	shift, err := models.StartShift(ctx)
	if err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	m := mustCreateMachine(t, ctx, "40x40")
	job := mustCreateJob(t, ctx, m.ID, "Kutu", 100)

	report, err := models.SubmitOperatorReport(ctx, &models.NewOperatorReport{
		ShiftId: shift.ID, OperatorId: "op-1", OperatorName: "Ayşe", MachineId: m.ID,
		JobId: &job.ID, TargetKoli: intPtr(100), ProducedKoli: intPtr(60),
	})
	if err != nil {
		t.Fatalf("SubmitOperatorReport: %v", err)
	}
	if report.Status != models.ReportStatusPending || !report.DefectKg.IsZero() {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.MachineName != "40x40" || report.JobName == nil || *report.JobName != "Kutu" {
		t.Fatalf("display names not filled: %+v", report)
	}

	// unknown references are stored as given
	unknownJob := "no-such-job"
	if _, err := models.SubmitOperatorReport(ctx, &models.NewOperatorReport{
		ShiftId: shift.ID, OperatorId: "op-2", OperatorName: "Veli", MachineId: "no-such-machine",
		JobId: &unknownJob, TargetKoli: intPtr(0), ProducedKoli: intPtr(0),
	}); err != nil {
		t.Fatalf("SubmitOperatorReport with unknown refs: %v", err)
	}

	pending, err := models.ListPendingReports(ctx, &shift.ID)
	if err != nil {
		t.Fatalf("ListPendingReports: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != report.ID {
		t.Fatalf("expected 2 pending reports oldest first, got %d", len(pending))
	}
	other := "other-shift"
	none, err := models.ListPendingReports(ctx, &other)
	if err != nil {
		t.Fatalf("ListPendingReports: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no reports for another shift, got %d", len(none))
	}

	got, err := models.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.CompletedKoli != 0 || got.Status != models.JobStatusPending {
		t.Fatalf("a pending report must not touch the job: %+v", got)
	}
}

func TestCreateDefectLog(t *testing.T) {
	ctx := setupTestDB(t)

	_, err := models.CreateDefectLog(ctx, &models.NewDefectLog{MachineId: "m", ShiftId: "s", DefectKg: decimal.Zero})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("zero kg: expected VALIDATION_ERROR, got %v", err)
	}
	if _, err := models.CreateDefectLog(ctx, &models.NewDefectLog{ShiftId: "s", DefectKg: decimal.NewFromInt(1)}); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("missing machine: expected VALIDATION_ERROR, got %v", err)
	}

	entry, err := models.CreateDefectLog(ctx, &models.NewDefectLog{MachineId: "m", ShiftId: "s", DefectKg: decimal.RequireFromString("2.5"), Note: "yırtık"})
	if err != nil {
		t.Fatalf("CreateDefectLog: %v", err)
	}
	if entry.Date != time.Now().UTC().Format("2006-01-02") {
		t.Fatalf("expected today's date, got %s", entry.Date)
	}
	if n := countEvents(t, models.EventDefectLogged, entry.ID); n != 1 {
		t.Fatalf("expected one defect.logged event, got %d", n)
	}

	shiftId := "s"
	logs, err := models.ListDefectLogs(ctx, models.DefectFilter{ShiftId: &shiftId})
	if err != nil {
		t.Fatalf("ListDefectLogs: %v", err)
	}
	if len(logs) != 1 || !logs[0].DefectKg.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestProductionAnalyticsGroupsCompletedJobs(t *testing.T) {
	ctx := setupTestDB(t)
	m1 := mustCreateMachine(t, ctx, "40x40")
	m2 := mustCreateMachine(t, ctx, "24x24")

	a := mustCreateJob(t, ctx, m1.ID, "A", 10)
	if _, err := models.StartJob(ctx, a.ID, "Ayşe"); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if _, err := models.CompleteJob(ctx, a.ID, nil); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	// completed without being started: no operator
	b := mustCreateJob(t, ctx, m2.ID, "B", 8)
	if _, err := models.CompleteJob(ctx, b.ID, intPtr(5)); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	mustCreateJob(t, ctx, m2.ID, "C", 99)

	stats, err := models.ProductionAnalytics(ctx, "weekly")
	if err != nil {
		t.Fatalf("ProductionAnalytics: %v", err)
	}
	if stats.Days != 7 || stats.JobCount != 2 || stats.TotalKoli != 15 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.MachineStats["40x40"] != 10 || stats.MachineStats["24x24"] != 5 {
		t.Fatalf("unexpected machine stats: %v", stats.MachineStats)
	}
	if stats.OperatorStats["Ayşe"] != 10 || stats.OperatorStats["Unknown"] != 5 {
		t.Fatalf("unexpected operator stats: %v", stats.OperatorStats)
	}

	if _, err := models.ProductionAnalytics(ctx, "yearly"); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("bad period: expected VALIDATION_ERROR, got %v", err)
	}
}
