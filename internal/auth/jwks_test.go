package auth

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func serveJWKS(t *testing.T, kid string, calls *int32) *httptest.Server {
	t.Helper()
	_, publicKey := generateTestKeyPair(t)

	body := jwksJSON{Keys: []jwkKey{
		{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		},
		{Kty: "EC", Kid: "ignored"},
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKS_LoadsRSAKeys(t *testing.T) {
	var calls int32
	srv := serveJWKS(t, "k1", &calls)

	jwks, err := NewJWKS(srv.URL, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer jwks.Close()

	key, err := jwks.Get("k1")
	if err != nil {
		t.Fatalf("Expected key k1, got error: %v", err)
	}
	if key.E != 65537 {
		t.Errorf("Expected exponent 65537, got %d", key.E)
	}
}

func TestJWKS_MissRefreshesOnce(t *testing.T) {
	var calls int32
	srv := serveJWKS(t, "k1", &calls)

	jwks, err := NewJWKS(srv.URL, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer jwks.Close()

	if _, err := jwks.Get("ignored"); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound for non-RSA key, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected initial load plus one refresh, got %d fetches", got)
	}
}

func TestJWKS_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewJWKS(srv.URL, 0, zap.NewNop()); err == nil {
		t.Error("Expected error for unavailable JWKS endpoint, got nil")
	}
}
