package models

import "time"

// EventStatus is an operator-facing view of one outbox row.
type EventStatus struct {
	EventId          string              `json:"event_id"`
	EventType        ProductionEventType `json:"event_type"`
	ReferenceType    string              `json:"reference_type"`
	ReferenceId      string              `json:"reference_id"`
	PublishStatus    string              `json:"publish_status"`
	PublishAttempts  int                 `json:"publish_attempts"`
	NextAttemptAt    *time.Time          `json:"next_attempt_at"`
	LastPublishError *string             `json:"last_publish_error"`
	MessageId        *string             `json:"message_id"`
	CreatedAt        time.Time           `json:"created_at"`
	PublishedAt      *time.Time          `json:"published_at"`
}

// OutboxSummary counts outbox rows per publish status.
type OutboxSummary struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
}

func eventStatusFrom(rec ProductionEvent) *EventStatus {
	return &EventStatus{
		EventId:          rec.ID,
		EventType:        rec.EventType,
		ReferenceType:    rec.ReferenceType,
		ReferenceId:      rec.ReferenceId,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		MessageId:        rec.MessageId,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}
}
