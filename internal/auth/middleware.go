package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey string

const principalKey ctxKey = "auth_principal"

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/patient-registry/auth")

// MetricsRecorder interface for recording auth metrics
type MetricsRecorder interface {
	RecordAuthFailure(ctx context.Context, reason string)
	RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool)
}

// Middleware validates the bearer token and injects the Principal into the
// request context. metrics may be nil.
func Middleware(ver *Verifier, metrics MetricsRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "auth.Middleware",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			reject := func(reason, message string) {
				span.SetStatus(codes.Error, message)
				span.SetAttributes(attribute.String("error.type", reason))
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, reason)
				}
				writeError(w, http.StatusUnauthorized, "unauthenticated", message)
			}

			authz := r.Header.Get("Authorization")
			if authz == "" {
				reject("missing_authorization", "missing authorization")
				return
			}

			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				reject("invalid_header_format", "invalid authorization header")
				return
			}

			pr, err := ver.ParseAndVerifyToken(parts[1])
			if err != nil {
				logger.Warn("token validation failed", zap.Error(err))
				reject("invalid_token", "invalid token")
				return
			}

			span.SetAttributes(
				attribute.String("user.id", pr.UserID),
				attribute.StringSlice("user.roles", pr.Roles),
			)
			span.SetStatus(codes.Ok, "authentication successful")

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, principalKey, pr)))
		})
	}
}

// RequirePermission ensures the principal holds permission. metrics may be nil.
func RequirePermission(permission string, perms Permissions, metrics MetricsRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), "auth.RequirePermission",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attribute.String("permission.required", permission)),
			)
			defer span.End()

			pr, ok := FromContext(ctx)
			if !ok {
				span.SetStatus(codes.Error, "unauthenticated")
				if metrics != nil {
					metrics.RecordPermissionCheck(ctx, permission, elapsedMs(start), false)
				}
				writeError(w, http.StatusUnauthorized, "unauthenticated", "User not authenticated")
				return
			}

			allowed := HasPermission(pr, permission, perms)
			span.SetAttributes(
				attribute.Bool("permission.allowed", allowed),
				attribute.String("user.id", pr.UserID),
			)
			if metrics != nil {
				metrics.RecordPermissionCheck(ctx, permission, elapsedMs(start), allowed)
			}

			if !allowed {
				logger.Info("permission denied",
					zap.String("user_id", pr.UserID),
					zap.Strings("roles", pr.Roles),
					zap.String("permission", permission),
				)
				span.SetStatus(codes.Error, "forbidden")
				writeError(w, http.StatusForbidden, "forbidden", "Missing permission "+permission)
				return
			}

			span.SetStatus(codes.Ok, "permission granted")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext extracts Principal from context.
func FromContext(ctx context.Context) (*Principal, bool) {
	pr, ok := ctx.Value(principalKey).(*Principal)
	return pr, ok
}

// HasPermission checks roles -> permissions mapping. Role lookup falls back
// to the upper-cased role name, so realm role "registrar" matches REGISTRAR.
func HasPermission(pr *Principal, permission string, perms Permissions) bool {
	for _, role := range pr.Roles {
		pList, ok := perms[role]
		if !ok {
			pList, ok = perms[strings.ToUpper(role)]
		}
		if !ok {
			continue
		}
		for _, p := range pList {
			if p == permission {
				return true
			}
		}
	}
	return false
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func writeError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   errorType,
		"message": message,
	})
}
