package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/messaging"
)

type Service struct {
	repo      RepositoryInterface
	publisher messaging.PublisherInterface
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the patient service. publisher and metrics may be nil.
func NewService(repo RepositoryInterface, publisher messaging.PublisherInterface, metrics MetricsRecorder, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreatePatient(ctx context.Context, req CreatePatientRequest, actor Actor) (*Patient, error) {
	now := s.now()
	if err := validateCreate(req, now); err != nil {
		return nil, err
	}
	actor = actor.Normalize()

	p := &Patient{
		ID:           uuid.NewString(),
		NationalID:   strings.TrimSpace(req.NationalID),
		Name:         strings.TrimSpace(req.Name),
		BirthDate:    req.BirthDate,
		Gender:       req.Gender,
		Status:       StatusActive,
		AddressInfo:  req.AddressInfo,
		ClinicalInfo: req.ClinicalInfo,
		PayerInfo:    req.PayerInfo,
		AuditInfo:    NewAuditInfo(actor, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.ContactInfo != nil {
		p.ContactInfo = *req.ContactInfo
	}
	if req.FamilyInfo != nil {
		p.FamilyInfo = *req.FamilyInfo
	}

	var created *Patient
	err := s.repo.WithinTx(ctx, func(tx Store) error {
		mrn, err := tx.NextMRN(ctx)
		if err != nil {
			return err
		}
		p.MRN = mrn

		created, err = tx.Insert(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("patient created",
		zap.String("patient_id", created.ID),
		zap.String("mrn", created.MRN),
		zap.String("user_id", actor.UserID),
	)
	s.recordOperation(ctx, "create")
	s.publishPatientEvent(ctx, messaging.EventPatientCreated, created, actor)

	return created, nil
}

// GetPatient returns active and merged records. Soft-deleted records are
// reported as not found.
func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	if !validID(id) {
		return nil, ErrPatientNotFound
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusDeleted {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *Service) SearchPatients(ctx context.Context, params SearchParams) ([]Patient, error) {
	q, ok := BuildSearchQuery(params)
	if !ok {
		return []Patient{}, nil
	}
	return s.repo.Search(ctx, q)
}

func (s *Service) UpdatePatient(ctx context.Context, id string, req UpdatePatientRequest, actor Actor) (*Patient, error) {
	if req.IsEmpty() {
		return nil, ErrNoFieldsToUpdate
	}
	now := s.now()
	if err := validateUpdate(req, now); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrPatientNotFound
	}
	actor = actor.Normalize()
	req = trimUpdate(req)

	var updated *Patient
	err := s.repo.WithinTx(ctx, func(tx Store) error {
		current, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusActive {
			return ErrNotActive
		}

		patch := UpdatePatch{Request: req, AuditInfo: current.AuditInfo.Stamp(actor, now)}
		affected, err := tx.ApplyUpdate(ctx, id, patch)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotActive
		}

		updated, err = tx.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("patient updated", zap.String("patient_id", id), zap.String("user_id", actor.UserID))
	s.recordOperation(ctx, "update")
	s.publishPatientEvent(ctx, messaging.EventPatientUpdated, updated, actor)

	return updated, nil
}

// DeletePatient soft deletes an active record.
func (s *Service) DeletePatient(ctx context.Context, id string, actor Actor) error {
	if !validID(id) {
		return ErrPatientNotFound
	}
	actor = actor.Normalize()
	now := s.now()

	var deleted Patient
	err := s.repo.WithinTx(ctx, func(tx Store) error {
		current, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusDeleted {
			return ErrPatientNotFound
		}
		if current.Status != StatusActive {
			return ErrNotActive
		}

		audit := current.AuditInfo.Stamp(actor, now)
		affected, err := tx.MarkDeleted(ctx, id, audit)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotActive
		}

		deleted = *current
		deleted.Status = StatusDeleted
		deleted.AuditInfo = audit
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("patient deleted", zap.String("patient_id", id), zap.String("user_id", actor.UserID))
	s.recordOperation(ctx, "delete")
	s.publishPatientEvent(ctx, messaging.EventPatientDeleted, &deleted, actor)

	return nil
}

// MergePatients folds source into target. Both records are re-read under
// row locks inside one transaction, so a concurrent merge or delete either
// wins before the locks are taken or is rejected after.
func (s *Service) MergePatients(ctx context.Context, targetID, sourceID string, actor Actor) (*MergeResult, error) {
	result, err := s.mergePatients(ctx, targetID, sourceID, actor)
	if s.metrics != nil {
		s.metrics.RecordMerge(ctx, mergeOutcome(err))
	}
	if err != nil {
		s.logger.Warn("patient merge rejected",
			zap.String("target_id", targetID),
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

func (s *Service) mergePatients(ctx context.Context, targetID, sourceID string, actor Actor) (*MergeResult, error) {
	if targetID == sourceID {
		return nil, ErrSelfMerge
	}
	actor = actor.Normalize()

	target, err := s.loadForMerge(ctx, s.repo, targetID, ErrTargetNotFound)
	if err != nil {
		return nil, err
	}
	source, err := s.loadForMerge(ctx, s.repo, sourceID, ErrSourceNotFound)
	if err != nil {
		return nil, err
	}
	if target.Status != StatusActive || source.Status != StatusActive {
		return nil, ErrInactivePatients
	}

	now := s.now()
	err = s.repo.WithinTx(ctx, func(tx Store) error {
		lockedTarget, lockedSource, err := s.lockPair(ctx, tx, targetID, sourceID)
		if err != nil {
			return err
		}
		if lockedTarget.Status != StatusActive || lockedSource.Status != StatusActive {
			return ErrInactivePatients
		}

		targetPatch, sourcePatch := ResolveMerge(*lockedTarget, *lockedSource, actor, now)

		affected, err := tx.ApplyMergeTargetPatch(ctx, targetID, targetPatch)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrPartialWrite
		}

		affected, err = tx.ApplyMergeSourcePatch(ctx, sourceID, sourcePatch)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrPartialWrite
		}

		target, source = lockedTarget, lockedSource
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("patients merged",
		zap.String("target_id", targetID),
		zap.String("source_id", sourceID),
		zap.String("user_id", actor.UserID),
	)
	s.publish(ctx, messaging.EventPatientMerged, messaging.PatientMergedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPatientMerged),
		Data: messaging.PatientMergedData{
			TargetID:      target.ID,
			TargetMRN:     target.MRN,
			SourceID:      source.ID,
			SourceMRN:     source.MRN,
			UserID:        actor.UserID,
			WorkstationID: actor.WorkstationID,
			MergedAt:      now,
		},
	})

	return &MergeResult{Success: true, TargetID: targetID, SourceID: sourceID}, nil
}

// lockPair takes both row locks in id order so two merges over the same
// pair in opposite directions cannot deadlock.
func (s *Service) lockPair(ctx context.Context, tx Store, targetID, sourceID string) (*Patient, *Patient, error) {
	if targetID < sourceID {
		target, err := s.loadForMergeLocked(ctx, tx, targetID, ErrTargetNotFound)
		if err != nil {
			return nil, nil, err
		}
		source, err := s.loadForMergeLocked(ctx, tx, sourceID, ErrSourceNotFound)
		if err != nil {
			return nil, nil, err
		}
		return target, source, nil
	}

	source, err := s.loadForMergeLocked(ctx, tx, sourceID, ErrSourceNotFound)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.loadForMergeLocked(ctx, tx, targetID, ErrTargetNotFound)
	if err != nil {
		return nil, nil, err
	}
	return target, source, nil
}

func (s *Service) loadForMerge(ctx context.Context, store Store, id string, notFound error) (*Patient, error) {
	if !validID(id) {
		return nil, notFound
	}
	p, err := store.GetByID(ctx, id)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, notFound
	}
	return p, err
}

func (s *Service) loadForMergeLocked(ctx context.Context, tx Store, id string, notFound error) (*Patient, error) {
	p, err := tx.GetByIDForUpdate(ctx, id)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, notFound
	}
	return p, err
}

func mergeOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPartialWrite):
		return "partial_write"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrPatientNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) recordOperation(ctx context.Context, operation string) {
	if s.metrics != nil {
		s.metrics.RecordPatientOperation(ctx, operation)
	}
}

func (s *Service) publishPatientEvent(ctx context.Context, routingKey string, p *Patient, actor Actor) {
	s.publish(ctx, routingKey, messaging.PatientEvent{
		BaseEvent: messaging.NewBaseEvent(routingKey),
		Data: messaging.PatientEventData{
			PatientID:     p.ID,
			MRN:           p.MRN,
			Status:        string(p.Status),
			UserID:        actor.UserID,
			WorkstationID: actor.WorkstationID,
			OccurredAt:    s.now(),
		},
	})
}

// publish never fails the caller; the mutation has already committed.
func (s *Service) publish(ctx context.Context, routingKey string, event interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// validID accepts only the canonical hyphenated uuid form.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func trimUpdate(req UpdatePatientRequest) UpdatePatientRequest {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.NationalID != nil {
		nationalID := strings.TrimSpace(*req.NationalID)
		req.NationalID = &nationalID
	}
	return req
}
