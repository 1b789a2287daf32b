package models

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
)

// ListEventStatus returns the outbox rows of one referenced record, newest first.
func ListEventStatus(ctx context.Context, referenceType string, referenceId string) ([]*EventStatus, error) {
	referenceId = strings.TrimSpace(referenceId)
	if referenceId == "" {
		return nil, utils.Validation("reference_id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("reference_id = ?", referenceId)
	if t := strings.TrimSpace(referenceType); t != "" {
		dbCtx = dbCtx.Where("reference_type = ?", t)
	}
	var records []ProductionEvent
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, utils.NotFound("no events for %s", referenceId)
	}
	results := make([]*EventStatus, 0, len(records))
	for _, rec := range records {
		results = append(results, eventStatusFrom(rec))
	}
	return results, nil
}

func SummarizeOutbox(ctx context.Context) (*OutboxSummary, error) {
	type row struct {
		PublishStatus string
		Count         int64
	}
	var rows []row
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&ProductionEvent{}).
		Select("publish_status, COUNT(*) AS count").
		Group("publish_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	summary := &OutboxSummary{}
	for _, r := range rows {
		switch r.PublishStatus {
		case OutboxPublishStatusPending:
			summary.Pending = r.Count
		case OutboxPublishStatusProcessing:
			summary.Processing = r.Count
		case OutboxPublishStatusSent:
			summary.Sent = r.Count
		case OutboxPublishStatusFailed:
			summary.Failed = r.Count
		case OutboxPublishStatusDead:
			summary.Dead = r.Count
		}
	}
	return summary, nil
}
