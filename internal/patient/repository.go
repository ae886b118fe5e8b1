package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/sequence"
)

const (
	uniqueViolation      = "23505"
	nationalIDConstraint = "patients_national_id_visible_key"
	birthDateLayout      = "2006-01-02"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Repository struct {
	db        *sql.DB // nil when bound to a transaction
	q         queryer
	allocator *sequence.Allocator
	logger    *zap.Logger
}

func NewRepository(db *sql.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:        db,
		q:         db,
		allocator: sequence.NewAllocator(),
		logger:    logger,
	}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txRepo := &Repository{q: tx, allocator: r.allocator, logger: r.logger}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn("failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Patient, error) {
	return r.getByID(ctx, id, false)
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, id string) (*Patient, error) {
	return r.getByID(ctx, id, true)
}

func (r *Repository) getByID(ctx context.Context, id string, forUpdate bool) (*Patient, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(patientColumns...).From(patientTable).Where(sb.Equal("id", id))

	query, args := sb.Build()
	if forUpdate {
		query += " FOR UPDATE"
	}

	patient, err := scanPatient(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient: %w", err)
	}
	return patient, nil
}

func (r *Repository) NextMRN(ctx context.Context) (string, error) {
	return r.allocator.NextMRN(ctx, r.q)
}

func (r *Repository) Insert(ctx context.Context, p *Patient) (*Patient, error) {
	ib := sqlFlavor.NewInsertBuilder()
	ib.InsertInto(patientTable)
	ib.Cols(
		"id", "mrn", "national_id", "name", "birth_date", "gender", "status",
		"address_info", "contact_info", "family_info", "clinical_info", "payer_info",
		"audit_info", "created_at", "updated_at",
	)
	ib.Values(
		p.ID, p.MRN, p.NationalID, p.Name, p.BirthDate, p.Gender, string(p.Status),
		p.AddressInfo, p.ContactInfo, p.FamilyInfo, p.ClinicalInfo, p.PayerInfo,
		p.AuditInfo, p.CreatedAt, p.UpdatedAt,
	)

	query, args := ib.Build()
	query += " RETURNING " + strings.Join(patientColumns, ", ")

	created, err := scanPatient(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNationalIDConflict(err) {
			return nil, ErrDuplicateNationalID
		}
		return nil, fmt.Errorf("failed to insert patient: %w", err)
	}
	return created, nil
}

func (r *Repository) ApplyUpdate(ctx context.Context, id string, patch UpdatePatch) (int64, error) {
	ub := sqlFlavor.NewUpdateBuilder()
	ub.Update(patientTable)

	req := patch.Request
	if req.Name != nil {
		ub.SetMore(ub.Assign("name", *req.Name))
	}
	if req.BirthDate != nil {
		ub.SetMore(ub.Assign("birth_date", *req.BirthDate))
	}
	if req.Gender != nil {
		ub.SetMore(ub.Assign("gender", *req.Gender))
	}
	if req.NationalID != nil {
		ub.SetMore(ub.Assign("national_id", *req.NationalID))
	}
	if req.PhotoURL != nil {
		ub.SetMore(ub.Assign("photo_url", *req.PhotoURL))
	}
	if req.IsDeceased != nil {
		ub.SetMore(ub.Assign("is_deceased", *req.IsDeceased))
	}
	if req.DeceasedDate != nil {
		ub.SetMore(ub.Assign("deceased_date", *req.DeceasedDate))
	}
	if req.AddressInfo != nil {
		ub.SetMore(ub.Assign("address_info", *req.AddressInfo))
	}
	if req.ContactInfo != nil {
		ub.SetMore(ub.Assign("contact_info", *req.ContactInfo))
	}
	if req.FamilyInfo != nil {
		ub.SetMore(ub.Assign("family_info", *req.FamilyInfo))
	}
	if req.ClinicalInfo != nil {
		ub.SetMore(ub.Assign("clinical_info", *req.ClinicalInfo))
	}
	if req.PayerInfo != nil {
		ub.SetMore(ub.Assign("payer_info", *req.PayerInfo))
	}
	ub.SetMore(
		ub.Assign("audit_info", patch.AuditInfo),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)

	affected, err := r.execGuarded(ctx, ub, id)
	if err != nil {
		if isNationalIDConflict(err) {
			return 0, ErrDuplicateNationalID
		}
		return 0, fmt.Errorf("failed to update patient: %w", err)
	}
	return affected, nil
}

func (r *Repository) ApplyMergeTargetPatch(ctx context.Context, id string, patch MergeTargetPatch) (int64, error) {
	ub := sqlFlavor.NewUpdateBuilder()
	ub.Update(patientTable).Set(
		ub.Assign("address_info", patch.AddressInfo),
		ub.Assign("contact_info", patch.ContactInfo),
		ub.Assign("family_info", patch.FamilyInfo),
		ub.Assign("clinical_info", patch.ClinicalInfo),
		ub.Assign("payer_info", patch.PayerInfo),
		ub.Assign("audit_info", patch.AuditInfo),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)

	affected, err := r.execGuarded(ctx, ub, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update merge target: %w", err)
	}
	return affected, nil
}

func (r *Repository) ApplyMergeSourcePatch(ctx context.Context, id string, patch MergeSourcePatch) (int64, error) {
	ub := sqlFlavor.NewUpdateBuilder()
	ub.Update(patientTable).Set(
		ub.Assign("status", string(patch.Status())),
		ub.Assign("merged_to_id", patch.MergedToID),
		ub.Assign("audit_info", patch.AuditInfo),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)

	affected, err := r.execGuarded(ctx, ub, id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark merge source: %w", err)
	}
	return affected, nil
}

func (r *Repository) MarkDeleted(ctx context.Context, id string, audit AuditInfo) (int64, error) {
	ub := sqlFlavor.NewUpdateBuilder()
	ub.Update(patientTable).Set(
		ub.Assign("status", string(StatusDeleted)),
		ub.Assign("audit_info", audit),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)

	affected, err := r.execGuarded(ctx, ub, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete patient: %w", err)
	}
	return affected, nil
}

// execGuarded runs ub against a single active patient and returns the
// number of rows it changed.
func (r *Repository) execGuarded(ctx context.Context, ub *sqlbuilder.UpdateBuilder, id string) (int64, error) {
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", string(StatusActive)),
	)

	query, args := ub.Build()
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *Repository) Search(ctx context.Context, q SearchQuery) ([]Patient, error) {
	rows, err := r.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	patients := make([]Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, *p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patients: %w", err)
	}

	return patients, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPatient reads the columns listed in patientColumns.
func scanPatient(row rowScanner) (*Patient, error) {
	var p Patient
	var status string
	var birthDate time.Time
	var photoURL sql.NullString
	var deceasedDate sql.NullTime
	var mergedToID sql.NullString

	err := row.Scan(
		&p.ID,
		&p.MRN,
		&p.NationalID,
		&p.Name,
		&birthDate,
		&p.Gender,
		&photoURL,
		&p.IsDeceased,
		&deceasedDate,
		&status,
		&mergedToID,
		&p.AddressInfo,
		&p.ContactInfo,
		&p.FamilyInfo,
		&p.ClinicalInfo,
		&p.PayerInfo,
		&p.AuditInfo,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = Status(status)
	p.BirthDate = birthDate.Format(birthDateLayout)
	if photoURL.Valid {
		p.PhotoURL = &photoURL.String
	}
	if deceasedDate.Valid {
		p.DeceasedDate = &deceasedDate.Time
	}
	if mergedToID.Valid {
		p.MergedToID = &mergedToID.String
	}

	return &p, nil
}

func isNationalIDConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation && pqErr.Constraint == nationalIDConstraint
	}
	return false
}
