package identity

import (
	"context"
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
	"golang.org/x/sync/singleflight"
)

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(nb) == 0 || len(eb) == 0 || len(eb) > 4 {
		return nil, errors.New("bad rsa key parameters")
	}
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// minKidRefetch bounds how often an unknown kid may force a refetch of a
// fresh key set.
const minKidRefetch = time.Minute

// keySet caches the provider's signing keys and refetches them when the TTL
// lapses or an unknown kid shows up. Concurrent refetches collapse into one.
type keySet struct {
	url    string
	client *http.Client
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

func (s *keySet) lookup(kid string) (*rsa.PublicKey, bool, bool, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[kid]
	age := s.now().Sub(s.fetchedAt)
	fresh := !s.fetchedAt.IsZero() && age < s.ttl
	return key, ok, fresh, age
}

func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok, fresh, age := s.lookup(kid)
	if ok && fresh {
		return key, nil
	}
	if fresh && age < minKidRefetch {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	_, err, _ := s.group.Do("jwks", func() (any, error) { return nil, s.refresh(ctx) })
	if err != nil {
		if ok {
			s.log.Warn("jwks refresh failed, using cached key", zap.String("kid", kid), zap.Error(err))
			return key, nil
		}
		return nil, err
	}

	if key, ok, _, _ = s.lookup(kid); !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

func (s *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("jwks request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			s.log.Warn("skip jwk", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks: no usable rsa keys")
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = s.now()
	s.mu.Unlock()

	s.log.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return nil
}
