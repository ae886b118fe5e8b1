package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRefreshInterval = 15 * time.Minute
	fetchTimeout           = 10 * time.Second
)

var ErrKeyNotFound = errors.New("jwks: key not found")

// KeySource resolves a token's kid to its RSA verification key.
type KeySource interface {
	Get(kid string) (*rsa.PublicKey, error)
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksJSON struct {
	Keys []jwkKey `json:"keys"`
}

// JWKS caches RSA public keys by kid and refreshes them in the background.
type JWKS struct {
	url    string
	client *http.Client
	logger *zap.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey

	ticker *time.Ticker
	quit   chan struct{}
}

var _ KeySource = (*JWKS)(nil)

// NewJWKS loads keys immediately and refreshes them every refreshInterval.
// Pass 0 to use the default of 15m.
func NewJWKS(url string, refreshInterval time.Duration, logger *zap.Logger) (*JWKS, error) {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	j := &JWKS{
		url:    url,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
		keys:   map[string]*rsa.PublicKey{},
		ticker: time.NewTicker(refreshInterval),
		quit:   make(chan struct{}),
	}
	if err := j.refresh(); err != nil {
		j.ticker.Stop()
		return nil, fmt.Errorf("failed to load JWKS: %w", err)
	}
	go j.loop()
	return j, nil
}

func (j *JWKS) loop() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.refresh(); err != nil {
				j.logger.Warn("JWKS refresh failed", zap.Error(err))
			}
		case <-j.quit:
			return
		}
	}
}

// Close stops background refresh.
func (j *JWKS) Close() {
	close(j.quit)
	j.ticker.Stop()
}

func (j *JWKS) refresh() error {
	resp, err := j.client.Get(j.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	var raw jwksJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return err
	}

	newKeys, err := parseKeys(raw)
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.keys = newKeys
	j.mu.Unlock()
	return nil
}

func parseKeys(raw jwksJSON) (map[string]*rsa.PublicKey, error) {
	keys := make(map[string]*rsa.PublicKey)
	for _, k := range raw.Keys {
		if k.Kty != "RSA" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}
	}
	return keys, nil
}

// Get returns the key for kid, refreshing once on a miss.
func (j *JWKS) Get(kid string) (*rsa.PublicKey, error) {
	j.mu.RLock()
	p := j.keys[kid]
	j.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	if err := j.refresh(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if p = j.keys[kid]; p == nil {
		return nil, ErrKeyNotFound
	}
	return p, nil
}
