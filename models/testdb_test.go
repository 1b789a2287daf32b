package models_test

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

// setupTestDB swaps the global DB for a migrated in-memory SQLite database.
// One open connection keeps the in-memory database alive and serializes transactions.
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

func mustCreateMachine(t *testing.T, ctx context.Context, name string) *models.Machine {
	t.Helper()
	m, err := models.CreateMachine(ctx, name)
	if err != nil {
		t.Fatalf("CreateMachine(%s): %v", name, err)
	}
	return m
}

func mustCreateJob(t *testing.T, ctx context.Context, machineId string, name string, koli int) *models.Job {
	t.Helper()
	job, err := models.CreateJob(ctx, &models.NewJob{
		Name:      name,
		KoliCount: koli,
		Colors:    "CMYK",
		MachineId: machineId,
	})
	if err != nil {
		t.Fatalf("CreateJob(%s): %v", name, err)
	}
	return job
}

func countEvents(t *testing.T, eventType models.ProductionEventType, refId string) int64 {
	t.Helper()
	var n int64
	if err := config.GetDB().Model(&models.ProductionEvent{}).
		Where("event_type = ? AND reference_id = ?", eventType, refId).
		Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}
