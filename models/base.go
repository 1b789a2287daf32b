package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// nowUTC is the single clock of the models package.
var nowUTC = func() time.Time {
	return time.Now().UTC()
}

func newId() string {
	return uuid.NewString()
}

// PublishProductionEvent implements the transactional outbox:
// it writes the event record inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func PublishProductionEvent(ctx context.Context, tx *gorm.DB, eventType ProductionEventType, refType string, refId string, payload interface{}) error {
	if !config.EventOutboxEnabled() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := ProductionEvent{
		EventType:     eventType,
		ReferenceType: refType,
		ReferenceId:   refId,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// GetResource fetches by id and maps a missing row to a NOT_FOUND error naming the resource.
func GetResource[T any](ctx context.Context, id string, resource string) (*T, error) {
	result, err := utils.FetchModel[T](ctx, id)
	if err == utils.ErrorRecordNotFound {
		return nil, utils.NotFound("%s not found", resource)
	}
	return result, err
}

func fetchForUpdate[T any](tx *gorm.DB, id string, resource string) (*T, error) {
	result, err := utils.FetchModelTx[T](lockingRead(tx), id)
	if err == utils.ErrorRecordNotFound {
		return nil, utils.NotFound("%s not found", resource)
	}
	return result, err
}

// withKeyLock runs fn in one transaction while holding the per-key lock.
// The lock is always taken before the transaction begins.
func withKeyLock(ctx context.Context, key string, fn func(tx *gorm.DB) error) error {
	release, err := utils.ObtainLock(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return config.GetDB().WithContext(ctx).Transaction(fn)
}

// lockingRead adds FOR UPDATE on MySQL. SQLite serializes writers itself and has no row locks.
func lockingRead(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
