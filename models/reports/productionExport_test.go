package reports_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/models/reports"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/glebarez/sqlite"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) context.Context {
	t.Helper()
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
	return context.Background()
}

func TestExportProductionWorkbook(t *testing.T) {
	ctx := setupTestDB(t)
	m, err := models.CreateMachine(ctx, "40x40")
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	for _, name := range []string{"Kutu", "Havlu"} {
		job, err := models.CreateJob(ctx, &models.NewJob{Name: name, KoliCount: 12, MachineId: m.ID})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if _, err := models.StartJob(ctx, job.ID, "Ayşe"); err != nil {
			t.Fatalf("StartJob: %v", err)
		}
		if _, err := models.CompleteJob(ctx, job.ID, nil); err != nil {
			t.Fatalf("CompleteJob: %v", err)
		}
	}
	// pending jobs are not exported
	if _, err := models.CreateJob(ctx, &models.NewJob{Name: "Bekleyen", KoliCount: 3, MachineId: m.ID}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	export, err := reports.ExportProduction(ctx, "monthly")
	if err != nil {
		t.Fatalf("ExportProduction: %v", err)
	}
	if export.Rows != 2 || export.Filename != "uretim_raporu_monthly.xlsx" {
		t.Fatalf("unexpected export: rows=%d filename=%s", export.Rows, export.Filename)
	}

	f, err := excelize.OpenReader(bytes.NewReader(export.Data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Üretim Raporu" {
		t.Fatalf("unexpected sheets: %v", sheets)
	}
	rows, err := f.GetRows("Üretim Raporu")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "İş Adı" || rows[0][3] != "Koli Sayısı" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "Kutu" || rows[1][1] != "40x40" || rows[1][2] != "Ayşe" || rows[1][3] != "12" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
}

func TestExportProductionRejectsBadPeriod(t *testing.T) {
	ctx := setupTestDB(t)

	if _, err := reports.ExportProduction(ctx, "never"); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
