package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted:
		return true
	}
	return false
}

// Job invariant: 0 <= CompletedKoli <= KoliCount and RemainingKoli >= 0.
// A partially reconciled job keeps its status with RemainingKoli > 0 until it is closed out.
type Job struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Name          string     `gorm:"size:255;not null" json:"name"`
	KoliCount     int        `gorm:"not null" json:"koli_count"`
	Colors        string     `gorm:"size:255" json:"colors"`
	MachineId     string     `gorm:"size:36;not null;index:idx_jobs_queue,priority:1" json:"machine_id"`
	MachineName   string     `gorm:"size:100" json:"machine_name"`
	Notes         *string    `gorm:"type:text" json:"notes"`
	DeliveryDate  *string    `gorm:"size:32" json:"delivery_date"`
	Order         int        `gorm:"column:queue_order;not null;default:0;index:idx_jobs_queue,priority:2" json:"order"`
	Status        JobStatus  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	OperatorName  *string    `gorm:"size:100" json:"operator_name"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CompletedKoli int        `gorm:"not null;default:0" json:"completed_koli"`
	RemainingKoli int        `gorm:"not null;default:0" json:"remaining_koli"`
	CreatedAt     time.Time  `gorm:"index:idx_jobs_queue,priority:3" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = newId()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = nowUTC()
	}
	return nil
}

type NewJob struct {
	Name         string  `json:"name" binding:"required,max=255"`
	KoliCount    int     `json:"koli_count" binding:"required,gt=0"`
	Colors       string  `json:"colors" binding:"max=255"`
	MachineId    string  `json:"machine_id" binding:"required"`
	Notes        *string `json:"notes"`
	DeliveryDate *string `json:"delivery_date"`
	Order        *int    `json:"order"`
}

// UpdateJobInput is a partial update; nil fields are left untouched.
type UpdateJobInput struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=255"`
	KoliCount    *int    `json:"koli_count" binding:"omitempty,gt=0"`
	Colors       *string `json:"colors" binding:"omitempty,max=255"`
	MachineId    *string `json:"machine_id" binding:"omitempty,min=1"`
	Notes        *string `json:"notes"`
	DeliveryDate *string `json:"delivery_date"`
	Order        *int    `json:"order"`
}

// CloneJobInput overrides selected fields of the template job.
type CloneJobInput UpdateJobInput

type JobFilter struct {
	Status    *JobStatus
	MachineId *string
	Search    *string
}

type JobOrder struct {
	JobId string `json:"job_id" binding:"required"`
	Order *int   `json:"order" binding:"required"`
}

type ReorderFailure struct {
	JobId string `json:"job_id"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ReorderResult struct {
	Updated int              `json:"updated"`
	Failed  []ReorderFailure `json:"failed"`
}

func (input *NewJob) validate() error {
	if strings.TrimSpace(input.Name) == "" {
		return utils.Validation("job name is required")
	}
	if input.KoliCount <= 0 {
		return utils.Validation("koli_count must be positive")
	}
	if strings.TrimSpace(input.MachineId) == "" {
		return utils.Validation("machine_id is required")
	}
	return nil
}

func machineForJob(tx *gorm.DB, machineId string) (*Machine, error) {
	m, err := utils.FetchModelTx[Machine](tx, machineId)
	if err == utils.ErrorRecordNotFound {
		return nil, utils.NotFound("machine not found")
	}
	return m, err
}

func CreateJob(ctx context.Context, input *NewJob) (*Job, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var job Job
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machine, err := machineForJob(tx, input.MachineId)
		if err != nil {
			return err
		}
		job = Job{
			Name:         strings.TrimSpace(input.Name),
			KoliCount:    input.KoliCount,
			Colors:       input.Colors,
			MachineId:    machine.ID,
			MachineName:  machine.Name,
			Notes:        input.Notes,
			DeliveryDate: input.DeliveryDate,
			Status:       JobStatusPending,
		}
		if input.Order != nil {
			job.Order = *input.Order
		}
		return tx.Create(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func GetJob(ctx context.Context, id string) (*Job, error) {
	return GetResource[Job](ctx, id, "job")
}

// ListJobs returns jobs by priority: lower order first, ties broken by creation time.
func ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if filter.Status != nil && *filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, utils.Validation("invalid job status %q", *filter.Status)
		}
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.MachineId != nil && *filter.MachineId != "" {
		dbCtx = dbCtx.Where("machine_id = ?", *filter.MachineId)
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		term := "%" + escapeLike(strings.ToLower(strings.TrimSpace(*filter.Search))) + "%"
		dbCtx = dbCtx.Where("(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(colors) LIKE ? ESCAPE '!')", term, term)
	}
	var results []*Job
	if err := dbCtx.Order("queue_order ASC, created_at ASC, id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func UpdateJob(ctx context.Context, id string, input *UpdateJobInput) (*Job, error) {
	var job *Job
	err := withKeyLock(ctx, utils.JobLockKey(id), func(tx *gorm.DB) error {
		current, err := fetchForUpdate[Job](tx, id, "job")
		if err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return utils.Validation("job name is required")
			}
			updates["name"] = name
		}
		if input.KoliCount != nil {
			if *input.KoliCount <= 0 {
				return utils.Validation("koli_count must be positive")
			}
			if *input.KoliCount < current.CompletedKoli {
				return utils.Validation("koli_count %d is below completed_koli %d", *input.KoliCount, current.CompletedKoli)
			}
			updates["koli_count"] = *input.KoliCount
		}
		if input.Colors != nil {
			updates["colors"] = *input.Colors
		}
		if input.MachineId != nil && *input.MachineId != current.MachineId {
			if current.Status == JobStatusInProgress {
				return utils.Conflict("job %s is in progress; it cannot move to another machine", current.Name)
			}
			machine, err := machineForJob(tx, *input.MachineId)
			if err != nil {
				return err
			}
			updates["machine_id"] = machine.ID
			updates["machine_name"] = machine.Name
		}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
		}
		if input.DeliveryDate != nil {
			updates["delivery_date"] = *input.DeliveryDate
		}
		if input.Order != nil {
			updates["queue_order"] = *input.Order
		}
		if len(updates) > 0 {
			if err := tx.Model(&Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}
		job, err = utils.FetchModelTx[Job](tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ReorderJob changes priority metadata only.
func ReorderJob(ctx context.Context, id string, order int) (*Job, error) {
	db := config.GetDB()
	var job *Job
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Job{}).Where("id = ?", id).Update("queue_order", order)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := utils.ValidateResourceId[Job](tx, id); err != nil {
				return utils.NotFound("job not found")
			}
		}
		var err error
		job, err = utils.FetchModelTx[Job](tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ReorderJobs applies each item independently; a failing item does not undo the others.
func ReorderJobs(ctx context.Context, items []JobOrder) *ReorderResult {
	result := &ReorderResult{Failed: []ReorderFailure{}}
	for _, item := range items {
		if item.Order == nil {
			result.Failed = append(result.Failed, ReorderFailure{JobId: item.JobId, Error: "order is required", Code: utils.CodeValidation})
			continue
		}
		if _, err := ReorderJob(ctx, item.JobId, *item.Order); err != nil {
			result.Failed = append(result.Failed, ReorderFailure{JobId: item.JobId, Error: err.Error(), Code: utils.ErrorCode(err)})
			continue
		}
		result.Updated++
	}
	return result
}

// StartJob moves a job to in_progress and claims its machine in the same transaction.
// If the machine cannot be claimed, nothing is written.
func StartJob(ctx context.Context, id string, operatorName string) (*Job, error) {
	operatorName = strings.TrimSpace(operatorName)
	if operatorName == "" {
		return nil, utils.Validation("operator_name is required")
	}
	// machine id is needed for the lock key before the transaction starts
	pre, err := GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	var job *Job
	err = withKeyLock(ctx, utils.MachineLockKey(pre.MachineId), func(tx *gorm.DB) error {
		current, err := fetchForUpdate[Job](tx, id, "job")
		if err != nil {
			return err
		}
		if current.Status == JobStatusCompleted {
			return utils.Conflict("job %s is already completed", current.Name)
		}
		if current.MachineId != pre.MachineId {
			return utils.Conflict("job %s was moved to another machine; retry", current.Name)
		}
		if err := claimMachine(tx, current.MachineId, current.ID); err != nil {
			return err
		}
		now := nowUTC()
		if err := tx.Model(&Job{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":        JobStatusInProgress,
			"operator_name": operatorName,
			"started_at":    now,
		}).Error; err != nil {
			return err
		}
		job, err = utils.FetchModelTx[Job](tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CompleteJob closes a job out. completedKoli defaults to koli_count.
func CompleteJob(ctx context.Context, id string, completedKoli *int) (*Job, error) {
	var job *Job
	err := withKeyLock(ctx, utils.JobLockKey(id), func(tx *gorm.DB) error {
		current, err := fetchForUpdate[Job](tx, id, "job")
		if err != nil {
			return err
		}
		if current.Status == JobStatusCompleted {
			return utils.Conflict("job %s is already completed", current.Name)
		}
		done := current.KoliCount
		if completedKoli != nil {
			if *completedKoli < 0 || *completedKoli > current.KoliCount {
				return utils.Validation("completed_koli must be between 0 and %d", current.KoliCount)
			}
			done = *completedKoli
		}
		job, err = closeOutJob(ctx, tx, current, done)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// closeOutJob marks the job completed, releases its machine and records job.completed.
func closeOutJob(ctx context.Context, tx *gorm.DB, current *Job, completedKoli int) (*Job, error) {
	now := nowUTC()
	res := tx.Model(&Job{}).
		Where("id = ? AND status <> ?", current.ID, JobStatusCompleted).
		Updates(map[string]interface{}{
			"status":         JobStatusCompleted,
			"completed_at":   now,
			"completed_koli": completedKoli,
			"remaining_koli": 0,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.Conflict("job %s is already completed", current.Name)
	}
	if err := releaseMachine(tx, current.MachineId, current.ID); err != nil {
		return nil, err
	}
	job, err := utils.FetchModelTx[Job](tx, current.ID)
	if err != nil {
		return nil, err
	}
	if err := PublishProductionEvent(ctx, tx, EventJobCompleted, ReferenceTypeJob, job.ID, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ApplyJobProgressTx records reconciled production against a job.
// remaining > 0 records a partial completion and keeps the status; remaining == 0 or isCompleted closes
// the job out. A job id that does not exist is skipped and reported as (nil, nil).
func ApplyJobProgressTx(ctx context.Context, tx *gorm.DB, jobId string, produced int, remaining int, isCompleted bool) (*Job, error) {
	current, err := utils.FetchModelTx[Job](lockingRead(tx), jobId)
	if err == utils.ErrorRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	completed := produced
	if completed > current.KoliCount {
		completed = current.KoliCount
	}
	if completed < 0 {
		completed = 0
	}
	if current.Status == JobStatusCompleted {
		// closed out elsewhere; only the count is reconciled
		if err := tx.Model(&Job{}).Where("id = ?", jobId).Update("completed_koli", completed).Error; err != nil {
			return nil, err
		}
		return utils.FetchModelTx[Job](tx, jobId)
	}
	if remaining == 0 || isCompleted {
		return closeOutJob(ctx, tx, current, completed)
	}
	if err := tx.Model(&Job{}).Where("id = ?", jobId).Updates(map[string]interface{}{
		"completed_koli": completed,
		"remaining_koli": remaining,
	}).Error; err != nil {
		return nil, err
	}
	return utils.FetchModelTx[Job](tx, jobId)
}

// CloneJob creates a new pending job from a template with selected fields overridden.
func CloneJob(ctx context.Context, id string, overrides *CloneJobInput) (*Job, error) {
	template, err := GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	input := NewJob{
		Name:         template.Name,
		KoliCount:    template.KoliCount,
		Colors:       template.Colors,
		MachineId:    template.MachineId,
		Notes:        template.Notes,
		DeliveryDate: template.DeliveryDate,
		Order:        &template.Order,
	}
	if overrides != nil {
		if overrides.Name != nil {
			input.Name = *overrides.Name
		}
		if overrides.KoliCount != nil {
			input.KoliCount = *overrides.KoliCount
		}
		if overrides.Colors != nil {
			input.Colors = *overrides.Colors
		}
		if overrides.MachineId != nil {
			input.MachineId = *overrides.MachineId
		}
		if overrides.Notes != nil {
			input.Notes = overrides.Notes
		}
		if overrides.DeliveryDate != nil {
			input.DeliveryDate = overrides.DeliveryDate
		}
		if overrides.Order != nil {
			input.Order = overrides.Order
		}
	}
	return CreateJob(ctx, &input)
}

// DeleteJob hard-deletes a job and frees its machine if the job occupies it.
func DeleteJob(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := withKeyLock(ctx, utils.JobLockKey(id), func(tx *gorm.DB) error {
		current, err := fetchForUpdate[Job](tx, id, "job")
		if err != nil {
			return err
		}
		if err := releaseMachine(tx, current.MachineId, current.ID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&Job{}).Error; err != nil {
			return err
		}
		job = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
