package utils // package utils provides token signing, verification and hashing helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned only for tokens whose signature verified.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken covers bad signatures, wrong algorithms, malformed
	// payloads and tokens minted for another purpose.
	ErrInvalidToken = errors.New("invalid token")
)

// Purpose separates token classes signed with the same secret so a reset
// token is never accepted as a session token and vice versa.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeReset   Purpose = "reset"
)

// Claims is the payload of every token: sub, exp, iat and jti from the
// registered set plus the purpose under "typ".
type Claims struct {
	Purpose Purpose `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a login or a refresh rotation.
type TokenPair struct {
	Access     string
	AccessExp  time.Time
	Refresh    string
	RefreshExp time.Time
}

// TokenManager issues and decodes signed tokens. It holds no state other
// than its configuration and is safe for concurrent use.
type TokenManager struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// TokenOptions configures NewTokenManager. Now defaults to time.Now.
type TokenOptions struct {
	Secret     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Now        func() time.Time
}

// NewTokenManager validates the options. Only the HMAC family (HS256,
// HS384, HS512) is supported.
func NewTokenManager(opts TokenOptions) (*TokenManager, error) {
	const op = "utils.NewTokenManager"

	if opts.Secret == "" {
		return nil, fmt.Errorf("%s: empty secret", op)
	}
	method, ok := jwt.GetSigningMethod(opts.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported algorithm %q", op, opts.Algorithm)
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 || opts.ResetTTL <= 0 {
		return nil, fmt.Errorf("%s: token ttl must be positive", op)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		secret:     []byte(opts.Secret),
		method:     method,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		resetTTL:   opts.ResetTTL,
		now:        now,
	}, nil
}

// IssueSessionTokens mints an access and a refresh token for subject.
func (m *TokenManager) IssueSessionTokens(subject string) (TokenPair, error) {
	access, accessExp, err := m.issue(subject, PurposeAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := m.issue(subject, PurposeRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:     access,
		AccessExp:  accessExp,
		Refresh:    refresh,
		RefreshExp: refreshExp,
	}, nil
}

// IssueResetToken mints a short lived password reset token.
func (m *TokenManager) IssueResetToken(subject string) (string, error) {
	token, _, err := m.issue(subject, PurposeReset, m.resetTTL)
	return token, err
}

func (m *TokenManager) issue(subject string, purpose Purpose, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			// two tokens minted within the same second still differ
			ID: uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("utils.issue: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies signature, algorithm, expiry and purpose. Callers branch
// on ErrTokenExpired (try a refresh) versus ErrInvalidToken (re-authenticate).
func (m *TokenManager) Decode(token string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// the parser checks the signature before claims, so an expiry
		// error always belongs to an authentic token
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q, want %q", ErrInvalidToken, claims.Purpose, purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims, nil
}

// HashToken returns the SHA-256 hash of a raw token as a hex string. Only
// hashes are persisted, so a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
