package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"gorm.io/gorm"
)

type MachineStatus string

const (
	MachineStatusIdle        MachineStatus = "idle"
	MachineStatusWorking     MachineStatus = "working"
	MachineStatusMaintenance MachineStatus = "maintenance"
)

// Machine invariant: status=working iff CurrentJobId points at an in_progress job on this machine;
// status=maintenance implies CurrentJobId is nil.
type Machine struct {
	ID                   string        `gorm:"primaryKey;size:36" json:"id"`
	Name                 string        `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Status               MachineStatus `gorm:"size:20;not null;default:'idle';index" json:"status"`
	CurrentJobId         *string       `gorm:"size:36;index" json:"current_job_id"`
	Maintenance          bool          `gorm:"not null;default:false" json:"maintenance"`
	MaintenanceReason    *string       `gorm:"type:text" json:"maintenance_reason"`
	MaintenanceStartedAt *time.Time    `json:"maintenance_started"`
	CreatedAt            time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Machine) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = newId()
	}
	return nil
}

type MaintenanceLog struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	MachineId   string     `gorm:"size:36;not null;index" json:"machine_id"`
	MachineName string     `gorm:"size:100;not null" json:"machine_name"`
	Reason      string     `gorm:"type:text" json:"reason"`
	StartedAt   time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
}

func (l *MaintenanceLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = newId()
	}
	return nil
}

// DefaultMachineNames is the floor layout seeded by InitMachines.
var DefaultMachineNames = []string{
	"40x40",
	"40x40 ICM",
	"33x33 (Büyük)",
	"33x33 ICM",
	"33x33 (Eski)",
	"30x30",
	"24x24",
	"Dispanser",
}

// InitMachines seeds the default machines when none exist. Returns the number created.
func InitMachines(ctx context.Context) (int, error) {
	db := config.GetDB()
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Machine{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		machines := make([]Machine, 0, len(DefaultMachineNames))
		for _, name := range DefaultMachineNames {
			machines = append(machines, Machine{Name: name, Status: MachineStatusIdle})
		}
		if err := tx.Create(&machines).Error; err != nil {
			return err
		}
		created = len(machines)
		return nil
	})
	return created, err
}

func CreateMachine(ctx context.Context, name string) (*Machine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.Validation("machine name is required")
	}
	machine := Machine{Name: name, Status: MachineStatusIdle}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&machine).Error; err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, utils.Conflict("machine %q already exists", name)
		}
		return nil, err
	}
	return &machine, nil
}

func GetMachine(ctx context.Context, id string) (*Machine, error) {
	return GetResource[Machine](ctx, id, "machine")
}

func ListMachines(ctx context.Context) ([]*Machine, error) {
	return utils.FetchAllModels[Machine](ctx, "name, id")
}

// SetMaintenance toggles maintenance. Turning it on opens a MaintenanceLog; turning it off closes the
// most recent open one. Both directions are safe to repeat.
func SetMaintenance(ctx context.Context, id string, on bool, reason string) (*Machine, error) {
	var machine *Machine
	err := withKeyLock(ctx, utils.MachineLockKey(id), func(tx *gorm.DB) error {
		m, err := fetchForUpdate[Machine](tx, id, "machine")
		if err != nil {
			return err
		}
		now := nowUTC()
		if on {
			if m.Status == MachineStatusMaintenance {
				machine = m
				return nil
			}
			if m.Status == MachineStatusWorking {
				return utils.Conflict("machine %s is running a job; complete it before maintenance", m.Name)
			}
			res := tx.Model(&Machine{}).
				Where("id = ? AND status = ?", id, MachineStatusIdle).
				Updates(map[string]interface{}{
					"status":                 MachineStatusMaintenance,
					"maintenance":            true,
					"maintenance_reason":     reason,
					"maintenance_started_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return utils.Conflict("machine %s is not idle", m.Name)
			}
			if err := tx.Create(&MaintenanceLog{
				MachineId:   m.ID,
				MachineName: m.Name,
				Reason:      reason,
				StartedAt:   now,
			}).Error; err != nil {
				return err
			}
		} else {
			updates := map[string]interface{}{
				"maintenance":            false,
				"maintenance_reason":     nil,
				"maintenance_started_at": nil,
			}
			if m.Status == MachineStatusMaintenance {
				updates["status"] = MachineStatusIdle
			}
			if err := tx.Model(&Machine{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
			if err := closeOpenMaintenanceLog(tx, id, now); err != nil {
				return err
			}
		}
		machine, err = utils.FetchModelTx[Machine](tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return machine, nil
}

func closeOpenMaintenanceLog(tx *gorm.DB, machineId string, endedAt time.Time) error {
	var open MaintenanceLog
	err := tx.Where("machine_id = ? AND ended_at IS NULL", machineId).
		Order("started_at DESC").
		First(&open).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Model(&MaintenanceLog{}).Where("id = ?", open.ID).Update("ended_at", endedAt).Error
}

func ListMaintenanceLogs(ctx context.Context, machineId string, limit int) ([]*MaintenanceLog, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Order("started_at DESC").Limit(utils.ClampLimit(limit, 100, 500))
	if machineId != "" {
		q = q.Where("machine_id = ?", machineId)
	}
	var results []*MaintenanceLog
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// claimMachine atomically occupies an idle machine with jobId.
// Exactly one of two racing claims succeeds; the loser gets a CONFLICT.
func claimMachine(tx *gorm.DB, machineId string, jobId string) error {
	res := tx.Model(&Machine{}).
		Where("id = ? AND status = ?", machineId, MachineStatusIdle).
		Updates(map[string]interface{}{
			"status":         MachineStatusWorking,
			"current_job_id": jobId,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var m Machine
	if err := tx.Where("id = ?", machineId).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound("machine not found")
		}
		return err
	}
	if m.Status == MachineStatusMaintenance {
		return utils.Conflict("machine %s is in maintenance", m.Name)
	}
	return utils.Conflict("machine %s is already running a job", m.Name)
}

// releaseMachine frees the machine only while it is occupied by jobId.
func releaseMachine(tx *gorm.DB, machineId string, jobId string) error {
	return tx.Model(&Machine{}).
		Where("id = ? AND status = ? AND current_job_id = ?", machineId, MachineStatusWorking, jobId).
		Updates(map[string]interface{}{
			"status":         MachineStatusIdle,
			"current_job_id": nil,
		}).Error
}

// ResetMachineTx sets a machine idle with no current job, unless it is in maintenance.
// A machine id that does not exist is ignored.
func ResetMachineTx(tx *gorm.DB, machineId string) error {
	if machineId == "" {
		return nil
	}
	return tx.Model(&Machine{}).
		Where("id = ? AND status <> ?", machineId, MachineStatusMaintenance).
		Updates(map[string]interface{}{
			"status":         MachineStatusIdle,
			"current_job_id": nil,
		}).Error
}
