package models

// Outbox publish statuses for ProductionEvent.PublishStatus.
// Keep these as strings (DB values).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type ProductionEventType string

// Events collaborators may subscribe to.
const (
	EventJobCompleted   ProductionEventType = "job.completed"
	EventReportApproved ProductionEventType = "report.approved"
	EventDefectLogged   ProductionEventType = "defect.logged"
	EventShiftEnded     ProductionEventType = "shift.ended"
)

// Reference types stored on ProductionEvent.ReferenceType.
const (
	ReferenceTypeJob    = "job"
	ReferenceTypeReport = "operator_report"
	ReferenceTypeDefect = "defect_log"
	ReferenceTypeShift  = "shift"
)
