package auth

import "github.com/WailSalutem-Health-Care/patient-registry/internal/config"

// Config holds token verification settings
type Config struct {
	Issuer   string
	JWKSURL  string
	Audience string // optional
}

// FromConfig picks the verification settings out of the service config.
func FromConfig(c config.AuthConfig) Config {
	return Config{
		Issuer:   c.Issuer,
		JWKSURL:  c.JWKSURL,
		Audience: c.Audience,
	}
}
