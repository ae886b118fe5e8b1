package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/auth"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/pagination"
)

// Audit identity headers. With auth enabled the token subject replaces
// X-User-ID.
const (
	HeaderUserID        = "X-User-ID"
	HeaderWorkstationID = "X-Workstation-ID"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service ServiceInterface
	logger  *zap.Logger
}

func NewHandler(service ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type PatientSuccessResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Patient *Patient `json:"patient,omitempty"`
}

type PatientListResponse struct {
	Success    bool            `json:"success"`
	Patients   []Patient       `json:"patients"`
	Pagination pagination.Meta `json:"pagination"`
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patient, err := h.service.CreatePatient(r.Context(), req, actorFromRequest(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, PatientSuccessResponse{
		Success: true,
		Message: "Patient created successfully",
		Patient: patient,
	})
}

func (h *Handler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pagination.ParseParams(r)

	params := SearchParams{
		Name:       strings.TrimSpace(q.Get("name")),
		MRN:        strings.TrimSpace(q.Get("mrn")),
		NationalID: strings.TrimSpace(q.Get("national_id")),
		Phone:      strings.TrimSpace(q.Get("phone")),
		Limit:      page.FetchLimit(),
		Offset:     page.CalculateOffset(),
	}

	patients, err := h.service.SearchPatients(r.Context(), params)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	meta, keep := page.MetaFor(len(patients))
	respondJSON(w, http.StatusOK, PatientListResponse{
		Success:    true,
		Patients:   patients[:keep],
		Pagination: meta,
	})
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := h.service.GetPatient(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, PatientSuccessResponse{
		Success: true,
		Message: "Patient retrieved successfully",
		Patient: patient,
	})
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req UpdatePatientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patient, err := h.service.UpdatePatient(r.Context(), mux.Vars(r)["id"], req, actorFromRequest(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, PatientSuccessResponse{
		Success: true,
		Message: "Patient updated successfully",
		Patient: patient,
	})
}

func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePatient(r.Context(), mux.Vars(r)["id"], actorFromRequest(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MergePatients(w http.ResponseWriter, r *http.Request) {
	var req MergePatientsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.TargetID == "" || req.SourceID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "targetId and sourceId are required")
		return
	}

	result, err := h.service.MergePatients(r.Context(), req.TargetID, req.SourceID, actorFromRequest(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// actorFromRequest reads the audit identity, defaulting to the system actor.
func actorFromRequest(r *http.Request) Actor {
	actor := Actor{
		UserID:        strings.TrimSpace(r.Header.Get(HeaderUserID)),
		WorkstationID: strings.TrimSpace(r.Header.Get(HeaderWorkstationID)),
	}
	if pr, ok := auth.FromContext(r.Context()); ok {
		actor.UserID = pr.UserID
	}
	return actor.Normalize()
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return false
	}
	return true
}

// respondServiceError maps service errors to status codes. Storage and
// allocation failures get a generic message; the cause is only logged.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoFieldsToUpdate):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, ErrPartialWrite):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ErrInvalidState):
		respondError(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, ErrPatientNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrDuplicateNationalID):
		respondError(w, http.StatusConflict, "duplicate_national_id", err.Error())
	default:
		h.logger.Error("patient operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "The operation could not be completed")
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondJSON(w, statusCode, map[string]interface{}{
		"error":   errorType,
		"message": message,
	})
}
