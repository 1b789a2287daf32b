package workflow_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"bitbucket.org/mmdatafocus/floor_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestApprovePartialReport(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 100)
	report := f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(100), ProducedKoli: intPtr(75)})

	result, err := workflow.ApproveReport(ctx, report.ID, "Şef")
	if err != nil {
		t.Fatalf("ApproveReport: %v", err)
	}
	if result.Report.Status != models.ReportStatusApproved || result.Report.ApprovedBy == nil || *result.Report.ApprovedBy != "Şef" {
		t.Fatalf("report not approved: %+v", result.Report)
	}
	if result.Job == nil || result.Job.CompletedKoli != 75 || result.Job.RemainingKoli != 25 {
		t.Fatalf("expected completed=75 remaining=25, got %+v", result.Job)
	}
	if result.Job.Status == models.JobStatusCompleted {
		t.Fatalf("partial report must not complete the job")
	}
	if result.Defect != nil {
		t.Fatalf("no defect expected, got %+v", result.Defect)
	}

	machine, err := models.GetMachine(ctx, f.machine.ID)
	if err != nil {
		t.Fatalf("GetMachine: %v", err)
	}
	if machine.Status != models.MachineStatusIdle || machine.CurrentJobId != nil {
		t.Fatalf("approval resets the machine, got %+v", machine)
	}
	if n := countRows[models.ProductionEvent](t, "event_type = ? AND reference_id = ?", models.EventReportApproved, report.ID); n != 1 {
		t.Fatalf("expected one report.approved event, got %d", n)
	}

	if _, err := workflow.ApproveReport(ctx, report.ID, "Şef"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("approving twice: expected NOT_FOUND, got %v", err)
	}
	job, err := models.GetJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.CompletedKoli != 75 {
		t.Fatalf("second approval changed the job: %+v", job)
	}
}

func TestApproveReportDefectThreshold(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 10)

	zero := decimal.Zero
	clean := f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(10), ProducedKoli: intPtr(2), DefectKg: &zero})
	if _, err := workflow.ApproveReport(ctx, clean.ID, ""); err != nil {
		t.Fatalf("ApproveReport: %v", err)
	}
	if n := countRows[models.DefectLog](t, "machine_id = ?", f.machine.ID); n != 0 {
		t.Fatalf("zero defect must not be logged, got %d", n)
	}

	defect := decimal.RequireFromString("2.5")
	dirty := f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(10), ProducedKoli: intPtr(4), DefectKg: &defect})
	result, err := workflow.ApproveReport(ctx, dirty.ID, "")
	if err != nil {
		t.Fatalf("ApproveReport: %v", err)
	}
	if result.Defect == nil || !result.Defect.DefectKg.Equal(defect) {
		t.Fatalf("expected a 2.5 kg defect, got %+v", result.Defect)
	}
	if result.Defect.Date != time.Now().UTC().Format("2006-01-02") || result.Defect.ShiftId != f.shift.ID {
		t.Fatalf("defect not dated today for the shift: %+v", result.Defect)
	}
	if n := countRows[models.DefectLog](t, "machine_id = ?", f.machine.ID); n != 1 {
		t.Fatalf("expected exactly one defect log, got %d", n)
	}
}

func TestShiftEndToEnd(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 40)

	report := f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(40), ProducedKoli: intPtr(40), IsCompleted: true})
	pending, err := models.ListPendingReports(ctx, &f.shift.ID)
	if err != nil {
		t.Fatalf("ListPendingReports: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != report.ID {
		t.Fatalf("expected the report to be pending, got %d", len(pending))
	}

	result, err := workflow.ApproveAll(ctx, &f.shift.ID, "Şef")
	if err != nil {
		t.Fatalf("ApproveAll: %v", err)
	}
	if result.Approved != 1 || len(result.Failed) != 0 || !result.ShiftClosed {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if result.Message != "1 rapor onaylandı, vardiya bitirildi" {
		t.Fatalf("unexpected message: %q", result.Message)
	}

	job, err := models.GetJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != models.JobStatusCompleted || job.CompletedKoli != 40 || job.RemainingKoli != 0 {
		t.Fatalf("job not closed out: %+v", job)
	}
	current, err := models.CurrentShift(ctx)
	if err != nil {
		t.Fatalf("CurrentShift: %v", err)
	}
	if current != nil {
		t.Fatalf("shift should be ended, got %+v", current)
	}
	if n := countRows[models.ProductionEvent](t, "event_type = ?", models.EventJobCompleted); n != 1 {
		t.Fatalf("expected one job.completed event, got %d", n)
	}
	if n := countRows[models.ProductionEvent](t, "event_type = ?", models.EventShiftEnded); n != 1 {
		t.Fatalf("expected one shift.ended event, got %d", n)
	}

	stats, err := models.ProductionAnalytics(ctx, "weekly")
	if err != nil {
		t.Fatalf("ProductionAnalytics: %v", err)
	}
	if stats.TotalKoli != 40 || stats.OperatorStats["Ayşe"] != 40 {
		t.Fatalf("analytics do not see the completed job: %+v", stats)
	}
}

func TestConcurrentApprovalsApplyOnce(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 50)
	defect := decimal.NewFromInt(3)
	report := f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(50), ProducedKoli: intPtr(20), DefectKg: &defect})

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = workflow.ApproveReport(ctx, report.ID, "Şef")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, utils.ErrNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one approval, got %d", ok)
	}
	if n := countRows[models.DefectLog](t, "machine_id = ?", f.machine.ID); n != 1 {
		t.Fatalf("defect applied %d times", n)
	}
	if n := countRows[models.ProductionEvent](t, "event_type = ?", models.EventReportApproved); n != 1 {
		t.Fatalf("report.approved recorded %d times", n)
	}
	job, err := models.GetJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.CompletedKoli != 20 || job.RemainingKoli != 30 {
		t.Fatalf("unexpected job after racing approvals: %+v", job)
	}
}

func TestApproveAllWithFailureKeepsShiftOpen(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 10)
	f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(10), ProducedKoli: intPtr(3)})
	defect := decimal.NewFromInt(1)
	broken := f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(10), ProducedKoli: intPtr(5), DefectKg: &defect})

	// writing the defect log fails for the second report
	if err := config.GetDB().Migrator().DropTable(&models.DefectLog{}); err != nil {
		t.Fatalf("DropTable: %v", err)
	}

	result, err := workflow.ApproveAll(ctx, nil, "Şef")
	if err != nil {
		t.Fatalf("ApproveAll: %v", err)
	}
	if result.Approved != 1 || len(result.Failed) != 1 || result.Failed[0].ReportId != broken.ID {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if result.ShiftClosed || result.Shift != nil {
		t.Fatalf("shift must stay open when a report failed")
	}
	current, err := models.CurrentShift(ctx)
	if err != nil {
		t.Fatalf("CurrentShift: %v", err)
	}
	if current == nil || current.ID != f.shift.ID {
		t.Fatalf("shift should still be active")
	}
	pending, err := models.ListPendingReports(ctx, nil)
	if err != nil {
		t.Fatalf("ListPendingReports: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != broken.ID {
		t.Fatalf("failed report must remain pending, got %d pending", len(pending))
	}
}

func TestApproveAllForInactiveShiftConflicts(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 10)
	other := "not-the-active-shift"
	report := f.submit(t, ctx, models.NewOperatorReport{ShiftId: other, TargetKoli: intPtr(10), ProducedKoli: intPtr(4)})

	result, err := workflow.ApproveAll(ctx, &other, "Şef")
	if !errors.Is(err, utils.ErrConflict) || result != nil {
		t.Fatalf("expected CONFLICT without a result, got %+v, %v", result, err)
	}
	pending, err := models.ListPendingReports(ctx, &other)
	if err != nil {
		t.Fatalf("ListPendingReports: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != report.ID {
		t.Fatalf("nothing may be applied for an inactive shift, got %d pending", len(pending))
	}
	job, err := models.GetJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.CompletedKoli != 0 {
		t.Fatalf("job changed for an inactive shift: %+v", job)
	}
}

func TestApproveAllWithoutActiveShiftReportsAppliedWork(t *testing.T) {
	ctx := setupTestDB(t)
	f := newFloor(t, ctx, 10)
	defect := decimal.RequireFromString("1.5")
	f.submit(t, ctx, models.NewOperatorReport{TargetKoli: intPtr(10), ProducedKoli: intPtr(6), DefectKg: &defect})
	if _, err := models.EndShift(ctx); err != nil {
		t.Fatalf("EndShift: %v", err)
	}

	result, err := workflow.ApproveAll(ctx, nil, "Şef")
	if err != nil {
		t.Fatalf("ApproveAll: %v", err)
	}
	if result.Approved != 1 || result.ShiftClosed || result.Shift != nil {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if result.Code != utils.CodeConflict || result.Error != "no active shift found" {
		t.Fatalf("close failure not reported: code=%q error=%q", result.Code, result.Error)
	}
	if result.Message != "1 rapor onaylandı; vardiya kapatılamadı" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	if n := countRows[models.DefectLog](t, "shift_id = ?", f.shift.ID); n != 1 {
		t.Fatalf("expected the applied defect to be logged, got %d", n)
	}
}

func TestEndShiftWithReport(t *testing.T) {
	ctx := setupTestDB(t)

	if _, err := workflow.EndShiftWithReport(ctx, nil); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("without a shift: expected CONFLICT, got %v", err)
	}

	f := newFloor(t, ctx, 30)
	defect := decimal.RequireFromString("1.25")
	result, err := workflow.EndShiftWithReport(ctx, []workflow.MachineReportEntry{
		{MachineId: f.machine.ID, JobId: &f.job.ID, OperatorName: "Ayşe", TargetKoli: intPtr(30), ProducedKoli: intPtr(30), DefectKg: &defect, IsCompleted: true},
		{MachineId: "some-machine", ProducedKoli: intPtr(1)},
	})
	if err != nil {
		t.Fatalf("EndShiftWithReport: %v", err)
	}
	if result.Approved != 1 || len(result.Failed) != 1 || result.Failed[0].Code != utils.CodeValidation {
		t.Fatalf("unexpected batch result: %+v", result)
	}
	if !result.ShiftClosed || result.Shift == nil || result.Shift.Status != models.ShiftStatusEnded {
		t.Fatalf("shift must end despite a failing entry: %+v", result)
	}

	job, err := models.GetJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != models.JobStatusCompleted || job.CompletedKoli != 30 {
		t.Fatalf("job not closed out: %+v", job)
	}
	if n := countRows[models.DefectLog](t, "shift_id = ?", f.shift.ID); n != 1 {
		t.Fatalf("expected one defect log, got %d", n)
	}
	if n := countRows[models.OperatorReport](t, "1 = 1"); n != 0 {
		t.Fatalf("bulk path must not create pending reports, got %d", n)
	}
}
