package workflow_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	t.Setenv("EVENT_OUTBOX_ENABLED", "true")

	cfg := config.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	conn, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	prev := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})

	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
	return utils.SetCorrelationIdInContext(context.Background(), "test-"+t.Name())
}

func intPtr(v int) *int { return &v }

type floor struct {
	shift   *models.Shift
	machine *models.Machine
	job     *models.Job
}

// newFloor starts a shift and a job of koli on a fresh machine.
func newFloor(t *testing.T, ctx context.Context, koli int) *floor {
	t.Helper()
	shift, err := models.StartShift(ctx)
	if err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	machine, err := models.CreateMachine(ctx, "40x40")
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	job, err := models.CreateJob(ctx, &models.NewJob{Name: "Kutu", KoliCount: koli, Colors: "CMYK", MachineId: machine.ID})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := models.StartJob(ctx, job.ID, "Ayşe"); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	return &floor{shift: shift, machine: machine, job: job}
}

func (f *floor) submit(t *testing.T, ctx context.Context, report models.NewOperatorReport) *models.OperatorReport {
	t.Helper()
	if report.ShiftId == "" {
		report.ShiftId = f.shift.ID
	}
	if report.MachineId == "" {
		report.MachineId = f.machine.ID
	}
	if report.OperatorId == "" {
		report.OperatorId = "op-1"
	}
	if report.OperatorName == "" {
		report.OperatorName = "Ayşe"
	}
	if report.JobId == nil {
		report.JobId = &f.job.ID
	}
	r, err := models.SubmitOperatorReport(ctx, &report)
	if err != nil {
		t.Fatalf("SubmitOperatorReport: %v", err)
	}
	return r
}

func countRows[T any](t *testing.T, where string, args ...interface{}) int64 {
	t.Helper()
	var model T
	var n int64
	if err := config.GetDB().Model(&model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
