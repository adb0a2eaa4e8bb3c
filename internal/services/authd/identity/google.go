package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	GoogleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
	defaultKeysTTL = time.Hour
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

var ErrInvalidAssertion = errors.New("invalid identity assertion")

// Assertion is what the external provider vouches for.
type Assertion struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type Config struct {
	ClientID string        `mapstructure:"client_id"`
	JWKSURL  string        `mapstructure:"jwks_url"`
	KeysTTL  time.Duration `mapstructure:"keys_ttl"`
}

type GoogleVerifier struct {
	audience string
	issuers  []string
	keys     *keySet
	now      func() time.Time
}

type Option func(*GoogleVerifier)

func WithHTTPClient(c *http.Client) Option {
	return func(v *GoogleVerifier) { v.keys.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(v *GoogleVerifier) {
		v.now = now
		v.keys.now = now
	}
}

func WithIssuers(iss ...string) Option {
	return func(v *GoogleVerifier) { v.issuers = iss }
}

func NewGoogleVerifier(cfg Config, log *zap.Logger, opts ...Option) (*GoogleVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google verifier: empty client id")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = GoogleJWKSURL
	}
	if cfg.KeysTTL <= 0 {
		cfg.KeysTTL = defaultKeysTTL
	}
	now := func() time.Time { return time.Now().UTC() }

	v := &GoogleVerifier{
		audience: cfg.ClientID,
		issuers:  googleIssuers,
		now:      now,
		keys: &keySet{
			url:    cfg.JWKSURL,
			ttl:    cfg.KeysTTL,
			now:    now,
			log:    log.With(zap.String("component", "jwks")),
			client: &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		},
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// flexBool accepts both true and "true"; providers have emitted either.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = flexBool(parsed)
	return nil
}

type googleClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	jwt.RegisteredClaims
}

// VerifyAssertion checks an ID token's RS256 signature against the provider
// keys, its audience, issuer and lifetime.
func (v *GoogleVerifier) VerifyAssertion(ctx context.Context, credential string) (Assertion, error) {
	var cl googleClaims
	_, err := jwt.ParseWithClaims(credential, &cl,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.keys.get(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidAssertion, err)
	}
	if !slices.Contains(v.issuers, cl.Issuer) {
		return Assertion{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidAssertion, cl.Issuer)
	}
	if cl.Email == "" {
		return Assertion{}, fmt.Errorf("%w: no email claim", ErrInvalidAssertion)
	}

	return Assertion{
		Subject:       cl.Subject,
		Email:         cl.Email,
		EmailVerified: bool(cl.EmailVerified),
		Name:          cl.Name,
	}, nil
}
