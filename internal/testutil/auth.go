package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/auth"
)

// TestIssuer is the issuer accepted by CreateTestVerifier.
const TestIssuer = "https://test-keycloak.com/realms/test"

// GenerateTestKeyPair generates an RSA key pair for signing test tokens
func GenerateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

// CreateTestVerifier returns a verifier and the private key whose tokens it accepts.
func CreateTestVerifier(t *testing.T) (*auth.Verifier, *rsa.PrivateKey) {
	t.Helper()

	privateKey, publicKey := GenerateTestKeyPair(t)
	verifier := auth.NewVerifier(auth.Config{Issuer: TestIssuer}, auth.NewTestJWKS(publicKey))
	return verifier, privateKey
}

// GenerateTestJWT signs a one-hour token for userID carrying the given realm roles.
func GenerateTestJWT(t *testing.T, privateKey *rsa.PrivateKey, userID string, roles []string) string {
	t.Helper()

	realmRoles := make([]interface{}, len(roles))
	for i, r := range roles {
		realmRoles[i] = r
	}

	claims := jwt.MapClaims{
		"sub": userID,
		"iss": TestIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"realm_access": map[string]interface{}{
			"roles": realmRoles,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = auth.TestKeyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}
