package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{SubjectID: 42, Email: "jane@example.com", DisplayName: "Jane"}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCodec(t *testing.T, secret string) (*Codec, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, err := NewCodec(Config{Secret: []byte(secret), Now: clk.now})
	require.NoError(t, err)
	return c, clk
}

func TestMintVerifyRoundTrip(t *testing.T) {
	c, clk := newTestCodec(t, "s3cret")

	for _, typ := range []TokenType{TypeAccess, TypeRefresh} {
		raw, minted, err := c.Mint(testIdentity, typ)
		require.NoError(t, err)

		got, err := c.Verify(raw, EnforceType(typ))
		require.NoError(t, err)
		assert.Equal(t, testIdentity, got.Identity)
		assert.Equal(t, typ, got.Type)
		assert.Equal(t, minted.ID, got.ID)
		assert.Equal(t, clk.t.Add(c.TTL(typ)), got.ExpiresAt)
	}
}

func TestMintProfiles(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")

	access, _, err := c.Mint(testIdentity, TypeAccess)
	require.NoError(t, err)
	refresh, _, err := c.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)

	ta, _, err := jwt.NewParser().ParseUnverified(access, &tokenClaims{})
	require.NoError(t, err)
	tr, _, err := jwt.NewParser().ParseUnverified(refresh, &tokenClaims{})
	require.NoError(t, err)

	assert.Equal(t, "HS384", ta.Method.Alg())
	assert.Equal(t, "HS256", tr.Method.Alg())
	assert.Equal(t, time.Hour, c.TTL(TypeAccess))
	assert.Equal(t, 30*24*time.Hour, c.TTL(TypeRefresh))
}

func TestMintSameSecondDiffers(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	a, _, err := c.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)
	b, _, err := c.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyTypeIsolation(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	other, _ := newTestCodec(t, "another")

	access, _, err := c.Mint(testIdentity, TypeAccess)
	require.NoError(t, err)
	refresh, _, err := c.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)

	_, err = c.Verify(access, EnforceType(TypeRefresh))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = c.Verify(refresh, EnforceType(TypeAccess))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	// signed with a foreign secret: the type check still fires first
	_, err = other.Verify(access, EnforceType(TypeRefresh))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	// without enforcement either type verifies
	_, err = c.Verify(access)
	assert.NoError(t, err)
}

func TestVerifyRejectsForeignProfile(t *testing.T) {
	c, clk := newTestCodec(t, "s3cret")

	forged := toWire(Claims{
		Identity:  testIdentity,
		Type:      TypeRefresh,
		ID:        "x",
		IssuedAt:  clk.t,
		ExpiresAt: clk.t.Add(time.Hour),
	})
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS384, forged).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = c.Verify(raw, EnforceType(TypeRefresh))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyFailures(t *testing.T) {
	c, clk := newTestCodec(t, "s3cret")
	other, _ := newTestCodec(t, "another")

	raw, _, err := other.Mint(testIdentity, TypeAccess)
	require.NoError(t, err)
	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	raw, _, err = c.Mint(testIdentity, TypeAccess)
	require.NoError(t, err)
	clk.t = clk.t.Add(2 * time.Hour)
	_, err = c.Verify(raw, EnforceType(TypeAccess))
	assert.ErrorIs(t, err, ErrExpired)

	_, err = c.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnsafe(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	other, _ := newTestCodec(t, "another")

	raw, _, err := other.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)

	cl, err := c.DecodeUnsafe(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cl.SubjectID)
	assert.Equal(t, TypeRefresh, cl.Type)

	_, err = c.DecodeUnsafe("a.b.c")
	assert.ErrorIs(t, err, ErrMalformed)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Type:             TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = c.DecodeUnsafe(noSub)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestExpiryStatus(t *testing.T) {
	c, clk := newTestCodec(t, "s3cret")
	raw, _, err := c.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)
	issued := clk.t

	cases := []struct {
		name        string
		elapsed     time.Duration
		expired     bool
		soon        bool
		needsRotate bool
	}{
		{"fresh", 0, false, false, false},
		{"ten days left", 20 * 24 * time.Hour, false, false, false},
		{"exactly three days left", 27 * 24 * time.Hour, false, true, true},
		{"one day left", 29 * 24 * time.Hour, false, true, true},
		{"expired", 31 * 24 * time.Hour, true, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clk.t = issued.Add(tc.elapsed)
			st, err := c.ExpiryStatus(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expired, st.Expired)
			assert.Equal(t, tc.soon, st.ExpiringSoon)
			assert.Equal(t, tc.needsRotate, st.NeedsRotation())
		})
	}
}

func TestExpiryStatusChecksSignature(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	other, _ := newTestCodec(t, "another")

	raw, _, err := other.Mint(testIdentity, TypeRefresh)
	require.NoError(t, err)
	_, err = c.ExpiryStatus(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.True(t, h.Compare("hunter22", hash))
	assert.False(t, h.Compare("hunter23", hash))
}

func TestFingerprint(t *testing.T) {
	assert.Len(t, Fingerprint("abc"), 8)
	assert.Empty(t, Fingerprint(""))
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
}
