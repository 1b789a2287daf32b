package models

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/config"
)

// RequeueEvents puts FAILED and DEAD events back to PENDING with a fresh attempt budget.
// With an empty referenceId every DEAD event is requeued. Returns the number of rows reset.
func RequeueEvents(ctx context.Context, referenceId string) (int64, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&ProductionEvent{})
	if id := strings.TrimSpace(referenceId); id != "" {
		q = q.Where("reference_id = ? AND publish_status IN ?", id, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead})
	} else {
		q = q.Where("publish_status = ?", OutboxPublishStatusDead)
	}
	res := q.Updates(map[string]interface{}{
		"publish_status":     OutboxPublishStatusPending,
		"publish_attempts":   0,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
		"last_publish_error": nil,
	})
	return res.RowsAffected, res.Error
}
