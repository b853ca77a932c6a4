package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 30 * 24 * time.Hour
	resetTTL   = 10 * time.Minute
	eps        = 2 * time.Second
)

// clock is a settable time source; seconds only because exp is encoded in seconds.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newManager(t *testing.T, c *clock) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenOptions{
		Secret:     "super-secret",
		Algorithm:  "HS256",
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		ResetTTL:   resetTTL,
		Now:        c.Now,
	})
	require.NoError(t, err)
	return m
}

func TestSessionTokensRoundTrip(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)

	for _, sub := range []string{"0190f5a4-1b2c-7d3e-8f90-123456789abc", "x", "user with spaces"} {
		pair, err := m.IssueSessionTokens(sub)
		require.NoError(t, err)
		assert.NotEqual(t, pair.Access, pair.Refresh)

		claims, err := m.Decode(pair.Access, PurposeAccess)
		require.NoError(t, err)
		assert.Equal(t, sub, claims.Subject)

		claims, err = m.Decode(pair.Refresh, PurposeRefresh)
		require.NoError(t, err)
		assert.Equal(t, sub, claims.Subject)
		assert.Equal(t, c.t.Add(refreshTTL), pair.RefreshExp)
	}
}

func TestTokensInSameSecondDiffer(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)

	a, err := m.IssueSessionTokens("u1")
	require.NoError(t, err)
	b, err := m.IssueSessionTokens("u1")
	require.NoError(t, err)
	assert.NotEqual(t, a.Refresh, b.Refresh)
}

func TestExpiry(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	cases := []struct {
		name    string
		ttl     time.Duration
		purpose Purpose
		issue   func(m *TokenManager) string
	}{
		{"access", accessTTL, PurposeAccess, func(m *TokenManager) string {
			p, _ := m.IssueSessionTokens("u1")
			return p.Access
		}},
		{"refresh", refreshTTL, PurposeRefresh, func(m *TokenManager) string {
			p, _ := m.IssueSessionTokens("u1")
			return p.Refresh
		}},
		{"reset", resetTTL, PurposeReset, func(m *TokenManager) string {
			tok, _ := m.IssueResetToken("u1")
			return tok
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &clock{t: t0}
			m := newManager(t, c)
			tok := tc.issue(m)
			require.NotEmpty(t, tok)

			c.t = t0.Add(tc.ttl - eps)
			_, err := m.Decode(tok, tc.purpose)
			require.NoError(t, err)

			c.t = t0.Add(tc.ttl + eps)
			_, err = m.Decode(tok, tc.purpose)
			assert.ErrorIs(t, err, ErrTokenExpired)
			assert.NotErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDecodeRejectsOtherPurpose(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)

	reset, err := m.IssueResetToken("u1")
	require.NoError(t, err)
	_, err = m.Decode(reset, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	pair, err := m.IssueSessionTokens("u1")
	require.NoError(t, err)
	_, err = m.Decode(pair.Access, PurposeRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Decode(pair.Refresh, PurposeReset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeRejectsForeignSignature(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)
	other, err := NewTokenManager(TokenOptions{
		Secret: "another-secret", Algorithm: "HS256",
		AccessTTL: accessTTL, RefreshTTL: refreshTTL, ResetTTL: resetTTL,
		Now: c.Now,
	})
	require.NoError(t, err)

	pair, err := other.IssueSessionTokens("u1")
	require.NoError(t, err)
	_, err = m.Decode(pair.Access, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// an expired token with a bad signature is invalid, not expired
	c.t = c.t.Add(accessTTL + eps)
	_, err = m.Decode(pair.Access, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestDecodeRejectsOtherAlgorithm(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)

	claims := Claims{
		Purpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)
	_, err = m.Decode(tok, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Decode(none, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Decode("not.a.token", PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenManagerValidation(t *testing.T) {
	base := TokenOptions{Secret: "s", Algorithm: "HS256", AccessTTL: time.Minute, RefreshTTL: time.Hour, ResetTTL: time.Minute}

	_, err := NewTokenManager(base)
	require.NoError(t, err)

	bad := base
	bad.Secret = ""
	_, err = NewTokenManager(bad)
	assert.Error(t, err)

	bad = base
	bad.Algorithm = "RS256"
	_, err = NewTokenManager(bad)
	assert.Error(t, err)

	bad = base
	bad.ResetTTL = 0
	_, err = NewTokenManager(bad)
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("abc"))
	assert.NotEqual(t, h, HashToken("abd"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
}
