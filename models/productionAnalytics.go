package models

import (
	"context"

	"bitbucket.org/mmdatafocus/floor_backend/config"
)

const unknownOperator = "Unknown"

type ProductionStats struct {
	Period        string         `json:"period"`
	Days          int            `json:"days"`
	MachineStats  map[string]int `json:"machine_stats"`
	OperatorStats map[string]int `json:"operator_stats"`
	TotalKoli     int            `json:"total_koli"`
	JobCount      int            `json:"job_count"`
}

// CompletedJobsSince lists jobs completed within the last days, oldest first.
func CompletedJobsSince(ctx context.Context, days int) ([]*Job, error) {
	since := nowUTC().AddDate(0, 0, -days)
	db := config.GetDB()
	var jobs []*Job
	err := db.WithContext(ctx).
		Where("status = ? AND completed_at >= ?", JobStatusCompleted, since).
		Order("completed_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ProductionAnalytics totals completed koli per machine and per operator.
func ProductionAnalytics(ctx context.Context, period string) (*ProductionStats, error) {
	days, err := PeriodDays(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "weekly"
	}
	jobs, err := CompletedJobsSince(ctx, days)
	if err != nil {
		return nil, err
	}
	stats := &ProductionStats{
		Period:        period,
		Days:          days,
		MachineStats:  map[string]int{},
		OperatorStats: map[string]int{},
	}
	for _, j := range jobs {
		koli := j.CompletedKoli
		stats.MachineStats[j.MachineName] += koli
		operator := unknownOperator
		if j.OperatorName != nil && *j.OperatorName != "" {
			operator = *j.OperatorName
		}
		stats.OperatorStats[operator] += koli
		stats.TotalKoli += koli
		stats.JobCount++
	}
	return stats, nil
}
