package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockMetrics struct {
	authFailures     []string
	permissionChecks map[string]bool
}

func (m *mockMetrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.authFailures = append(m.authFailures, reason)
}

func (m *mockMetrics) RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool) {
	if m.permissionChecks == nil {
		m.permissionChecks = map[string]bool{}
	}
	m.permissionChecks[permission] = allowed
}

func TestMiddleware_ValidToken(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	verifier := NewVerifier(Config{Issuer: testIssuer}, NewTestJWKS(publicKey))

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		principal, ok := FromContext(r.Context())
		if !ok {
			t.Error("Expected principal in context, got none")
			return
		}
		if principal.UserID != "user-123" {
			t.Errorf("Expected UserID 'user-123', got '%s'", principal.UserID)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, privateKey, TestKeyID, validClaims()))
	rr := httptest.NewRecorder()

	Middleware(verifier, nil, zap.NewNop())(next).ServeHTTP(rr, req)

	if !called {
		t.Error("Expected next handler to be called")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	verifier := NewVerifier(Config{Issuer: testIssuer}, NewTestJWKS(publicKey))

	testCases := []struct {
		name   string
		header string
		reason string
	}{
		{name: "Missing header", header: "", reason: "missing_authorization"},
		{name: "Basic scheme", header: "Basic dXNlcjpwYXNz", reason: "invalid_header_format"},
		{name: "No token part", header: "Bearer", reason: "invalid_header_format"},
		{name: "Garbage token", header: "Bearer not.a.jwt", reason: "invalid_token"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &mockMetrics{}
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("Expected next handler not to be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/v1/patients", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			Middleware(verifier, metrics, zap.NewNop())(next).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", rr.Code)
			}
			if len(metrics.authFailures) != 1 || metrics.authFailures[0] != tc.reason {
				t.Errorf("Expected auth failure %q, got %v", tc.reason, metrics.authFailures)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	perms := Permissions{
		"REGISTRAR": {PermPatientCreate, PermPatientView, PermPatientUpdate},
		"HIM_LEAD":  {PermPatientMerge},
	}

	testCases := []struct {
		name       string
		roles      []string
		permission string
		expected   bool
	}{
		{"Exact role match", []string{"REGISTRAR"}, PermPatientCreate, true},
		{"Lowercase realm role", []string{"registrar"}, PermPatientView, true},
		{"Second role grants", []string{"REGISTRAR", "HIM_LEAD"}, PermPatientMerge, true},
		{"Missing permission", []string{"REGISTRAR"}, PermPatientMerge, false},
		{"Unknown role", []string{"VISITOR"}, PermPatientView, false},
		{"No roles", nil, PermPatientView, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := HasPermission(&Principal{UserID: "u", Roles: tc.roles}, tc.permission, perms)
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	perms := Permissions{"HIM_LEAD": {PermPatientMerge}}

	testCases := []struct {
		name           string
		principal      *Principal
		expectedStatus int
	}{
		{"Allowed", &Principal{UserID: "u1", Roles: []string{"HIM_LEAD"}}, http.StatusOK},
		{"Forbidden", &Principal{UserID: "u2", Roles: []string{"REGISTRAR"}}, http.StatusForbidden},
		{"Unauthenticated", nil, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &mockMetrics{}
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/v1/patients/merge", nil)
			if tc.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), tc.principal))
			}
			rr := httptest.NewRecorder()

			RequirePermission(PermPatientMerge, perms, metrics, zap.NewNop())(next).ServeHTTP(rr, req)

			if rr.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d", tc.expectedStatus, rr.Code)
			}
			allowed, recorded := metrics.permissionChecks[PermPatientMerge]
			if !recorded {
				t.Fatal("Expected permission check to be recorded")
			}
			if allowed != (tc.expectedStatus == http.StatusOK) {
				t.Errorf("Expected allowed=%v, got %v", tc.expectedStatus == http.StatusOK, allowed)
			}
		})
	}
}
