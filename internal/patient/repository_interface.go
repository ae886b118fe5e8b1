package patient

import "context"

// Store is the data access used inside and outside transactions.
type Store interface {
	GetByID(ctx context.Context, id string) (*Patient, error)
	// GetByIDForUpdate row-locks the patient for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*Patient, error)
	NextMRN(ctx context.Context) (string, error)
	Insert(ctx context.Context, p *Patient) (*Patient, error)
	ApplyUpdate(ctx context.Context, id string, patch UpdatePatch) (int64, error)
	ApplyMergeTargetPatch(ctx context.Context, id string, patch MergeTargetPatch) (int64, error)
	ApplyMergeSourcePatch(ctx context.Context, id string, patch MergeSourcePatch) (int64, error)
	MarkDeleted(ctx context.Context, id string, audit AuditInfo) (int64, error)
	Search(ctx context.Context, q SearchQuery) ([]Patient, error)
}

// RepositoryInterface defines the contract for patient data access
type RepositoryInterface interface {
	Store
	// WithinTx runs fn with a Store bound to one transaction. The
	// transaction commits only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
