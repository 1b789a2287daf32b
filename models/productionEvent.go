package models

import (
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"gorm.io/gorm"
)

// ProductionEvent is an outbox row. It is written in the same transaction as the state change it describes.
type ProductionEvent struct {
	ID               string              `gorm:"primaryKey;size:36" json:"id"`
	EventType        ProductionEventType `gorm:"size:40;not null;index" json:"event_type"`
	ReferenceType    string              `gorm:"size:40;not null" json:"reference_type"`
	ReferenceId      string              `gorm:"size:36;not null;index" json:"reference_id"`
	Payload          []byte              `gorm:"type:blob" json:"payload"`
	PublishStatus    string              `gorm:"size:20;index;not null;default:'PENDING';index:idx_event_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index;index:idx_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time          `gorm:"index" json:"published_at"`
	MessageId        *string             `gorm:"size:255" json:"message_id"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *ProductionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = newId()
	}
	return nil
}

func ConvertToEventMessage(record ProductionEvent) config.ProductionEventMessage {
	return config.ProductionEventMessage{
		ID:            record.ID,
		EventType:     string(record.EventType),
		ReferenceType: record.ReferenceType,
		ReferenceId:   record.ReferenceId,
		OccurredAt:    record.CreatedAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
