package patient

import "context"

// ServiceInterface defines the contract for patient business logic operations
type ServiceInterface interface {
	CreatePatient(ctx context.Context, req CreatePatientRequest, actor Actor) (*Patient, error)
	GetPatient(ctx context.Context, id string) (*Patient, error)
	SearchPatients(ctx context.Context, params SearchParams) ([]Patient, error)
	UpdatePatient(ctx context.Context, id string, req UpdatePatientRequest, actor Actor) (*Patient, error)
	DeletePatient(ctx context.Context, id string, actor Actor) error
	MergePatients(ctx context.Context, targetID, sourceID string, actor Actor) (*MergeResult, error)
}

// MetricsRecorder receives business metrics. *telemetry.Metrics satisfies it.
type MetricsRecorder interface {
	RecordPatientOperation(ctx context.Context, operation string)
	RecordMerge(ctx context.Context, outcome string)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
