package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL      = time.Hour
	DefaultRefreshTTL     = 30 * 24 * time.Hour
	DefaultRotationWindow = 3 * 24 * time.Hour
)

type Config struct {
	Secret         []byte
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	RotationWindow time.Duration
	Now            func() time.Time
}

// profile binds a token type to its signing algorithm and lifetime. Access and
// refresh tokens never share an algorithm, so one cannot pass for the other.
type profile struct {
	method jwt.SigningMethod
	ttl    time.Duration
}

type Codec struct {
	secret   []byte
	now      func() time.Time
	window   time.Duration
	profiles map[TokenType]profile
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("codec: empty secret")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RotationWindow <= 0 {
		cfg.RotationWindow = DefaultRotationWindow
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Codec{
		secret: cfg.Secret,
		now:    cfg.Now,
		window: cfg.RotationWindow,
		profiles: map[TokenType]profile{
			TypeAccess:  {method: jwt.SigningMethodHS384, ttl: cfg.AccessTTL},
			TypeRefresh: {method: jwt.SigningMethodHS256, ttl: cfg.RefreshTTL},
		},
	}, nil
}

func (c *Codec) TTL(typ TokenType) time.Duration { return c.profiles[typ].ttl }

type tokenClaims struct {
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Mint signs a fresh token of the given type for id. Every token gets a random
// jti, so two tokens minted in the same second for the same subject differ.
func (c *Codec) Mint(id Identity, typ TokenType) (string, Claims, error) {
	p, ok := c.profiles[typ]
	if !ok {
		return "", Claims{}, fmt.Errorf("mint: unknown token type %q", typ)
	}
	now := c.now().Truncate(time.Second)
	cl := Claims{
		Identity:  id,
		Type:      typ,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(p.ttl),
	}

	signed, err := jwt.NewWithClaims(p.method, toWire(cl)).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, cl, nil
}

type verifyOpts struct {
	enforce  bool
	expected TokenType
}

type VerifyOption func(*verifyOpts)

// EnforceType makes Verify fail with ErrTypeMismatch unless the token carries
// the given type tag. The tag is checked before the signature.
func EnforceType(t TokenType) VerifyOption {
	return func(o *verifyOpts) {
		o.enforce = true
		o.expected = t
	}
}

func (c *Codec) Verify(raw string, opts ...VerifyOption) (Claims, error) {
	var o verifyOpts
	for _, opt := range opts {
		opt(&o)
	}

	hint, err := c.DecodeUnsafe(raw)
	if err != nil {
		return Claims{}, err
	}
	if o.enforce && hint.Type != o.expected {
		return Claims{}, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, o.expected, hint.Type)
	}
	return c.parse(raw, hint.Type, true)
}

// DecodeUnsafe reads the claims without checking the signature. The result is
// an identity hint for lookups and logs and must never authorize anything.
func (c *Codec) DecodeUnsafe(raw string) (Claims, error) {
	var wc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &wc); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return fromWire(wc)
}

// ExpiryStatus checks the signature but not the lifetime, then reports where
// the token sits relative to its expiry and the rotation window.
func (c *Codec) ExpiryStatus(raw string) (ExpiryStatus, error) {
	hint, err := c.DecodeUnsafe(raw)
	if err != nil {
		return ExpiryStatus{}, err
	}
	cl, err := c.parse(raw, hint.Type, false)
	if err != nil {
		return ExpiryStatus{}, err
	}

	remaining := cl.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		return ExpiryStatus{Expired: true}, nil
	}
	return ExpiryStatus{ExpiringSoon: remaining <= c.window, Remaining: remaining}, nil
}

func (c *Codec) parse(raw string, typ TokenType, validate bool) (Claims, error) {
	p, ok := c.profiles[typ]
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, typ)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var wc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &wc, func(*jwt.Token) (any, error) { return c.secret, nil }, opts...)
	if err != nil {
		return Claims{}, classify(err)
	}
	return fromWire(wc)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

func toWire(cl Claims) tokenClaims {
	return tokenClaims{
		Email: cl.Email,
		Name:  cl.DisplayName,
		Type:  cl.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(cl.SubjectID, 10),
			ID:        cl.ID,
			IssuedAt:  jwt.NewNumericDate(cl.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cl.ExpiresAt),
		},
	}
}

func fromWire(wc tokenClaims) (Claims, error) {
	if !wc.Type.valid() {
		return Claims{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, wc.Type)
	}
	if wc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	sub, err := strconv.ParseInt(wc.Subject, 10, 64)
	if err != nil || sub <= 0 {
		return Claims{}, fmt.Errorf("%w: bad subject %q", ErrMalformed, wc.Subject)
	}
	if wc.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrMalformed)
	}

	cl := Claims{
		Identity:  Identity{SubjectID: sub, Email: wc.Email, DisplayName: wc.Name},
		Type:      wc.Type,
		ID:        wc.ID,
		ExpiresAt: wc.ExpiresAt.Time.UTC(),
	}
	if wc.IssuedAt != nil {
		cl.IssuedAt = wc.IssuedAt.Time.UTC()
	}
	return cl, nil
}
