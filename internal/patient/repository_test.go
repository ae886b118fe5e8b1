package patient

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/sequence"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db, zap.NewNop()), mock
}

func patientRow(id, mrn string, status Status, mergedTo interface{}) *sqlmock.Rows {
	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(patientColumns).AddRow(
		id, mrn, "3174010101850001", "Budi Santoso",
		time.Date(1985, 2, 11, 0, 0, 0, 0, time.UTC), "male", nil,
		false, nil, string(status), mergedTo,
		[]byte(`[{"type":"current","street":"Jl. Merdeka 1","city_id":"3174"}]`),
		[]byte(`{"phones":["08111"],"emails":[]}`),
		[]byte(`{"emergency_contacts":[]}`),
		[]byte(`{"blood_type":"O"}`),
		[]byte(`{}`),
		[]byte(`{"created_by_user_id":"registrar-7","created_workstation_id":"ws-1","last_updated_by_user_id":"registrar-7","last_updated_workstation_id":"ws-1"}`),
		created, created,
	)
}

func TestRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, mrn, national_id")).
		WithArgs(sourceUUID).
		WillReturnRows(patientRow(sourceUUID, "MR-000002", StatusMerged, targetUUID))

	p, err := repo.GetByID(context.Background(), sourceUUID)
	require.NoError(t, err)

	assert.Equal(t, "MR-000002", p.MRN)
	assert.Equal(t, "1985-02-11", p.BirthDate)
	assert.Equal(t, StatusMerged, p.Status)
	require.NotNil(t, p.MergedToID)
	assert.Equal(t, targetUUID, *p.MergedToID)
	assert.Nil(t, p.PhotoURL)
	assert.Equal(t, []string{"08111"}, p.ContactInfo.Phones)
	assert.Equal(t, "O", p.ClinicalInfo[ClinicalBloodType])
	assert.Equal(t, "registrar-7", p.AuditInfo.CreatedBy)
	assert.Len(t, p.AddressInfo, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM patients").
		WithArgs(targetUUID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), targetUUID)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByIDForUpdate_Locks(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT (.+) FROM patients WHERE id = \$1 FOR UPDATE`).
		WithArgs(targetUUID).
		WillReturnRows(patientRow(targetUUID, "MR-000001", StatusActive, nil))

	p, err := repo.GetByIDForUpdate(context.Background(), targetUUID)
	require.NoError(t, err)
	assert.Nil(t, p.MergedToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_NextMRN(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO id_sequences")).
		WithArgs(sequence.MRNKey).
		WillReturnRows(sqlmock.NewRows([]string{"current_val"}).AddRow(42))

	mrn, err := repo.NextMRN(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MR-000042", mrn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Insert_DuplicateNationalID(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO patients")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: nationalIDConstraint})

	now := time.Now().UTC()
	p := activePatient(targetUUID, "MR-000001")
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := repo.Insert(context.Background(), p)
	assert.ErrorIs(t, err, ErrDuplicateNationalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Insert_OtherUniqueViolation(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO patients")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "patients_mrn_key"})

	_, err := repo.Insert(context.Background(), activePatient(targetUUID, "MR-000001"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateNationalID))
}

func TestRepository_Insert_ReturnsStoredRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO patients (.+) RETURNING id, mrn`).
		WillReturnRows(patientRow(targetUUID, "MR-000001", StatusActive, nil))

	created, err := repo.Insert(context.Background(), activePatient(targetUUID, "MR-000001"))
	require.NoError(t, err)
	assert.Equal(t, targetUUID, created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GuardedWrites(t *testing.T) {
	audit := NewAuditInfo(Actor{UserID: "him-1", WorkstationID: "ws-3"}, time.Now().UTC())

	testCases := []struct {
		name  string
		write func(r *Repository) (int64, error)
	}{
		{"Merge target", func(r *Repository) (int64, error) {
			return r.ApplyMergeTargetPatch(context.Background(), targetUUID, MergeTargetPatch{AuditInfo: audit})
		}},
		{"Merge source", func(r *Repository) (int64, error) {
			return r.ApplyMergeSourcePatch(context.Background(), targetUUID, MergeSourcePatch{MergedToID: sourceUUID, AuditInfo: audit})
		}},
		{"Delete", func(r *Repository) (int64, error) {
			return r.MarkDeleted(context.Background(), targetUUID, audit)
		}},
		{"Update", func(r *Repository) (int64, error) {
			name := "Siti"
			return r.ApplyUpdate(context.Background(), targetUUID, UpdatePatch{Request: UpdatePatientRequest{Name: &name}, AuditInfo: audit})
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, rows := range []int64{1, 0} {
				repo, mock := newMockRepository(t)

				mock.ExpectExec(`UPDATE patients SET (.+) WHERE id = \$\d+ AND status = \$\d+`).
					WillReturnResult(sqlmock.NewResult(0, rows))

				affected, err := tc.write(repo)
				require.NoError(t, err)
				assert.Equal(t, rows, affected)
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}

func TestRepository_ApplyUpdate_OnlyProvidedColumns(t *testing.T) {
	repo, mock := newMockRepository(t)

	gender := "female"
	mock.ExpectExec(`UPDATE patients SET gender = \$1, audit_info = \$2, updated_at = NOW\(\) WHERE (.+)`).
		WithArgs("female", sqlmock.AnyArg(), targetUUID, string(StatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.ApplyUpdate(context.Background(), targetUUID, UpdatePatch{Request: UpdatePatientRequest{Gender: &gender}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_WithinTx_Commit(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO id_sequences")).
		WillReturnRows(sqlmock.NewRows([]string{"current_val"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(tx Store) error {
		mrn, err := tx.NextMRN(context.Background())
		assert.Equal(t, "MR-000001", mrn)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_WithinTx_RollbackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO id_sequences")).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(tx Store) error {
		_, err := tx.NextMRN(context.Background())
		return err
	})
	assert.ErrorIs(t, err, sequence.ErrAllocationFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_WithinTx_RollbackOnPanic(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = repo.WithinTx(context.Background(), func(tx Store) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_WithinTx_Nested(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(tx Store) error {
		inner, ok := tx.(*Repository)
		require.True(t, ok)
		return inner.WithinTx(context.Background(), func(Store) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Search(t *testing.T) {
	repo, mock := newMockRepository(t)

	q, ok := BuildSearchQuery(SearchParams{MRN: "000", Limit: 11})
	require.True(t, ok)

	rows := patientRow(targetUUID, "MR-000001", StatusActive, nil)
	mock.ExpectQuery(regexp.QuoteMeta(q.SQL)).WillReturnRows(rows)

	patients, err := repo.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, patients, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Search_Empty(t *testing.T) {
	repo, mock := newMockRepository(t)

	q, _ := BuildSearchQuery(SearchParams{Name: "nobody", Limit: 11})
	mock.ExpectQuery("SELECT (.+) FROM patients").WillReturnRows(sqlmock.NewRows(patientColumns))

	patients, err := repo.Search(context.Background(), q)
	require.NoError(t, err)
	assert.NotNil(t, patients)
	assert.Empty(t, patients)
}
