package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testClientID = "client-123.apps.googleusercontent.com"

type provider struct {
	key     *rsa.PrivateKey
	kid     string
	fetches atomic.Int32
	srv     *httptest.Server
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &provider{key: key, kid: "k1"}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.fetches.Add(1)
		doc := map[string]any{"keys": []map[string]string{{
			"kid": p.kid,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *provider) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = p.kid
	s, err := tok.SignedString(p.key)
	require.NoError(t, err)
	return s
}

func baseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "1100",
		"email":          "jane@example.com",
		"email_verified": true,
		"name":           "Jane",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func newVerifier(t *testing.T, p *provider, now time.Time) *GoogleVerifier {
	t.Helper()
	v, err := NewGoogleVerifier(Config{ClientID: testClientID, JWKSURL: p.srv.URL}, zap.NewNop(),
		WithHTTPClient(p.srv.Client()),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	return v
}

func TestVerifyAssertion(t *testing.T) {
	p := newProvider(t)
	now := time.Now().UTC().Truncate(time.Second)
	v := newVerifier(t, p, now)

	a, err := v.VerifyAssertion(context.Background(), p.sign(t, baseClaims(now)))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", a.Email)
	assert.True(t, a.EmailVerified)
	assert.Equal(t, "Jane", a.Name)

	// keys are cached between calls
	_, err = v.VerifyAssertion(context.Background(), p.sign(t, baseClaims(now)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.fetches.Load())
}

func TestVerifyAssertion_StringEmailVerified(t *testing.T) {
	p := newProvider(t)
	now := time.Now().UTC()
	v := newVerifier(t, p, now)

	cl := baseClaims(now)
	cl["email_verified"] = "false"
	a, err := v.VerifyAssertion(context.Background(), p.sign(t, cl))
	require.NoError(t, err)
	assert.False(t, a.EmailVerified)
}

func TestVerifyAssertion_Rejects(t *testing.T) {
	p := newProvider(t)
	now := time.Now().UTC()

	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
		{"expired", func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Minute).Unix() }},
		{"no email", func(c jwt.MapClaims) { delete(c, "email") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newVerifier(t, p, now)
			cl := baseClaims(now)
			tc.mutate(cl)
			_, err := v.VerifyAssertion(context.Background(), p.sign(t, cl))
			assert.ErrorIs(t, err, ErrInvalidAssertion)
		})
	}
}

func TestVerifyAssertion_ForeignKey(t *testing.T) {
	p := newProvider(t)
	other := newProvider(t)
	now := time.Now().UTC()
	v := newVerifier(t, p, now)

	_, err := v.VerifyAssertion(context.Background(), other.sign(t, baseClaims(now)))
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestVerifyAssertion_UnknownKid(t *testing.T) {
	p := newProvider(t)
	now := time.Now().UTC()
	v := newVerifier(t, p, now)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(now))
	tok.Header["kid"] = "rotated-away"
	raw, err := tok.SignedString(p.key)
	require.NoError(t, err)

	_, err = v.VerifyAssertion(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestVerifyAssertion_UnknownKidRefetchIsBounded(t *testing.T) {
	p := newProvider(t)
	now := time.Now().UTC().Truncate(time.Second)
	clock := now
	v, err := NewGoogleVerifier(Config{ClientID: testClientID, JWKSURL: p.srv.URL}, zap.NewNop(),
		WithHTTPClient(p.srv.Client()),
		WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)

	_, err = v.VerifyAssertion(context.Background(), p.sign(t, baseClaims(now)))
	require.NoError(t, err)
	require.Equal(t, int32(1), p.fetches.Load())

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(now))
	tok.Header["kid"] = "bogus"
	raw, err := tok.SignedString(p.key)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err = v.VerifyAssertion(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	}
	assert.Equal(t, int32(1), p.fetches.Load())

	// past the refetch interval an unknown kid may pull the set once more
	clock = now.Add(minKidRefetch + time.Second)
	for i := 0; i < 5; i++ {
		_, err = v.VerifyAssertion(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	}
	assert.Equal(t, int32(2), p.fetches.Load())
}

func TestNewGoogleVerifier_RequiresClientID(t *testing.T) {
	_, err := NewGoogleVerifier(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestDisabledRejects(t *testing.T) {
	_, err := Disabled{}.VerifyAssertion(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}
