package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/auth"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/patient"
	"github.com/WailSalutem-Health-Care/patient-registry/internal/telemetry"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the router is built from. A nil Verifier
// disables authentication; the audit actor then comes from X-User-ID.
type Deps struct {
	ServiceName    string
	Patients       *patient.Handler
	Store          Pinger
	Verifier       *auth.Verifier
	Permissions    auth.Permissions
	Metrics        *telemetry.Metrics
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter initializes all routes for the application
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(d.ServiceName))
	r.Use(metricsMiddleware(d.Metrics))

	r.HandleFunc("/health", healthHandler(d.ServiceName, d.Store)).Methods(http.MethodGet)

	protect := func(permission string, h http.HandlerFunc) http.Handler {
		if d.Verifier == nil {
			return h
		}
		return auth.Middleware(d.Verifier, d.Metrics, d.Logger)(
			auth.RequirePermission(permission, d.Permissions, d.Metrics, d.Logger)(h),
		)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.Handle("/patients", protect(auth.PermPatientCreate, d.Patients.CreatePatient)).Methods(http.MethodPost)
	v1.Handle("/patients", protect(auth.PermPatientView, d.Patients.SearchPatients)).Methods(http.MethodGet)

	// registered before /patients/{id} so "merge" is never read as an id
	v1.Handle("/patients/merge", protect(auth.PermPatientMerge, d.Patients.MergePatients)).Methods(http.MethodPost)

	v1.Handle("/patients/{id}", protect(auth.PermPatientView, d.Patients.GetPatient)).Methods(http.MethodGet)
	v1.Handle("/patients/{id}", protect(auth.PermPatientUpdate, d.Patients.UpdatePatient)).Methods(http.MethodPatch)
	v1.Handle("/patients/{id}", protect(auth.PermPatientDelete, d.Patients.DeletePatient)).Methods(http.MethodDelete)

	return CORSMiddleware(d.AllowedOrigins)(r)
}

func healthHandler(serviceName string, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.PingContext(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status, "service": serviceName})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request count and latency per route template.
func metricsMiddleware(metrics *telemetry.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.status,
				float64(time.Since(start).Microseconds())/1000)
		})
	}
}
