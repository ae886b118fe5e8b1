package auth

import (
	"context"
	"crypto/rsa"
)

// ContextWithPrincipal adds a principal to the context. Handler tests use
// it to skip token verification.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// TestKeyID is the kid served by NewTestJWKS.
const TestKeyID = "test-key-id"

// StaticKeys is a fixed KeySource.
type StaticKeys map[string]*rsa.PublicKey

func (s StaticKeys) Get(kid string) (*rsa.PublicKey, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

// NewTestJWKS serves publicKey under TestKeyID.
func NewTestJWKS(publicKey *rsa.PublicKey) StaticKeys {
	return StaticKeys{TestKeyID: publicKey}
}
