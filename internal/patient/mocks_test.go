package patient

import (
	"context"
	"errors"
)

var errUnexpectedCall = errors.New("unexpected call")

// mockRepository implements RepositoryInterface for testing. WithinTx runs
// the callback against the same mock and counts commits and rollbacks.
type mockRepository struct {
	getByIDFunc               func(ctx context.Context, id string) (*Patient, error)
	getByIDForUpdateFunc      func(ctx context.Context, id string) (*Patient, error)
	nextMRNFunc               func(ctx context.Context) (string, error)
	insertFunc                func(ctx context.Context, p *Patient) (*Patient, error)
	applyUpdateFunc           func(ctx context.Context, id string, patch UpdatePatch) (int64, error)
	applyMergeTargetPatchFunc func(ctx context.Context, id string, patch MergeTargetPatch) (int64, error)
	applyMergeSourcePatchFunc func(ctx context.Context, id string, patch MergeSourcePatch) (int64, error)
	markDeletedFunc           func(ctx context.Context, id string, audit AuditInfo) (int64, error)
	searchFunc                func(ctx context.Context, q SearchQuery) ([]Patient, error)

	txCount       int
	commitCount   int
	rollbackCount int
	inTx          bool
	lockOrder     []string
}

func (m *mockRepository) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	m.txCount++
	m.inTx = true
	defer func() { m.inTx = false }()

	if err := fn(m); err != nil {
		m.rollbackCount++
		return err
	}
	m.commitCount++
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, errUnexpectedCall
}

func (m *mockRepository) GetByIDForUpdate(ctx context.Context, id string) (*Patient, error) {
	m.lockOrder = append(m.lockOrder, id)
	if m.getByIDForUpdateFunc != nil {
		return m.getByIDForUpdateFunc(ctx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *mockRepository) NextMRN(ctx context.Context) (string, error) {
	if m.nextMRNFunc != nil {
		return m.nextMRNFunc(ctx)
	}
	return "", errUnexpectedCall
}

func (m *mockRepository) Insert(ctx context.Context, p *Patient) (*Patient, error) {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, p)
	}
	return nil, errUnexpectedCall
}

func (m *mockRepository) ApplyUpdate(ctx context.Context, id string, patch UpdatePatch) (int64, error) {
	if m.applyUpdateFunc != nil {
		return m.applyUpdateFunc(ctx, id, patch)
	}
	return 0, errUnexpectedCall
}

func (m *mockRepository) ApplyMergeTargetPatch(ctx context.Context, id string, patch MergeTargetPatch) (int64, error) {
	if m.applyMergeTargetPatchFunc != nil {
		return m.applyMergeTargetPatchFunc(ctx, id, patch)
	}
	return 0, errUnexpectedCall
}

func (m *mockRepository) ApplyMergeSourcePatch(ctx context.Context, id string, patch MergeSourcePatch) (int64, error) {
	if m.applyMergeSourcePatchFunc != nil {
		return m.applyMergeSourcePatchFunc(ctx, id, patch)
	}
	return 0, errUnexpectedCall
}

func (m *mockRepository) MarkDeleted(ctx context.Context, id string, audit AuditInfo) (int64, error) {
	if m.markDeletedFunc != nil {
		return m.markDeletedFunc(ctx, id, audit)
	}
	return 0, errUnexpectedCall
}

func (m *mockRepository) Search(ctx context.Context, q SearchQuery) ([]Patient, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, q)
	}
	return nil, errUnexpectedCall
}

// mockMetrics records business metrics for assertions.
type mockMetrics struct {
	operations []string
	merges     []string
}

func (m *mockMetrics) RecordPatientOperation(ctx context.Context, operation string) {
	m.operations = append(m.operations, operation)
}

func (m *mockMetrics) RecordMerge(ctx context.Context, outcome string) {
	m.merges = append(m.merges, outcome)
}
