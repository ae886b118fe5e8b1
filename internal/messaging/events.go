package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys as constants
const (
	EventPatientCreated = "patient.created"
	EventPatientUpdated = "patient.updated"
	EventPatientDeleted = "patient.deleted"
	EventPatientMerged  = "patient.merged"
)

// ServiceName is stamped on every event this service emits.
const ServiceName = "patient-registry"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// PatientEvent is emitted for create, update and delete.
type PatientEvent struct {
	BaseEvent
	Data PatientEventData `json:"data"`
}

type PatientEventData struct {
	PatientID     string    `json:"patient_id"`
	MRN           string    `json:"mrn"`
	Status        string    `json:"status"`
	UserID        string    `json:"user_id"`
	WorkstationID string    `json:"workstation_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PatientMergedEvent is emitted after a merge commits.
type PatientMergedEvent struct {
	BaseEvent
	Data PatientMergedData `json:"data"`
}

type PatientMergedData struct {
	TargetID      string    `json:"target_id"`
	TargetMRN     string    `json:"target_mrn"`
	SourceID      string    `json:"source_id"`
	SourceMRN     string    `json:"source_mrn"`
	UserID        string    `json:"user_id"`
	WorkstationID string    `json:"workstation_id"`
	MergedAt      time.Time `json:"merged_at"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: ServiceName,
	}
}
