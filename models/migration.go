package models

import (
	"bitbucket.org/mmdatafocus/floor_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&Machine{}, &MaintenanceLog{},
		&Job{},
		&Shift{}, &OperatorReport{}, &DefectLog{},
		&Paint{}, &PaintMovement{},
		&ProductionEvent{},
	)
}
