package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stuffr/marketplace/internal/model"
	"github.com/stuffr/marketplace/internal/repository"
	"github.com/stuffr/marketplace/internal/utils"
)

// TokenStore is the per-user set of valid refresh token hashes.
type TokenStore interface {
	Add(ctx context.Context, userID, tokenHash string, exp time.Time) error
	Rotate(ctx context.Context, userID, oldHash, newHash string, exp time.Time) error
	Remove(ctx context.Context, userID, tokenHash string) error
	RemoveAllForUser(ctx context.Context, userID string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserStore loads and writes user rows.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id any) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
}

// Session is the result of resolving a request's cookies.
type Session struct {
	User *model.User
	// Rotated is set when the access token had expired and a new pair was
	// minted; the caller must send both cookies back.
	Rotated *utils.TokenPair
	// Refresh is the refresh token valid after this request.
	Refresh string
}

// AuthService resolves identities from the access/refresh cookie pair and
// owns refresh rotation and revocation.
type AuthService struct {
	tokens *utils.TokenManager
	store  TokenStore
	users  UserStore
	log    *slog.Logger
	now    func() time.Time
}

func NewAuthService(tokens *utils.TokenManager, store TokenStore, users UserStore, log *slog.Logger) *AuthService {
	return &AuthService{tokens: tokens, store: store, users: users, log: log, now: time.Now}
}

// IssueSession mints a token pair and records the refresh token.
func (s *AuthService) IssueSession(ctx context.Context, user *model.User) (utils.TokenPair, error) {
	const op = "service.IssueSession"

	pair, err := s.tokens.IssueSessionTokens(user.ID)
	if err != nil {
		return utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Add(ctx, user.ID, utils.HashToken(pair.Refresh), pair.RefreshExp); err != nil {
		return utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// Resolve identifies the caller.
//
//   - no access token: ErrUnauthorized
//   - valid access token: the user it names
//   - expired access token: the refresh token is decoded and, if it is in
//     the user's set, consumed and replaced by a fresh pair. An expired
//     refresh token gives ErrTokenExpired, a forged one ErrInvalidToken and
//     one that was already consumed ErrUnauthorized.
//   - invalid access token: ErrInvalidToken, never retried
func (s *AuthService) Resolve(ctx context.Context, access, refresh string) (*Session, error) {
	const op = "service.Resolve"

	if access == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.tokens.Decode(access, utils.PurposeAccess)
	switch {
	case err == nil:
		user, err := s.loadUser(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &Session{User: user, Refresh: refresh}, nil
	case errors.Is(err, utils.ErrTokenExpired):
		return s.rotate(ctx, refresh)
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
}

func (s *AuthService) rotate(ctx context.Context, refresh string) (*Session, error) {
	const op = "service.rotate"

	if refresh == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.tokens.Decode(refresh, utils.PurposeRefresh)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	user, err := s.loadUser(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.tokens.IssueSessionTokens(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = s.store.Rotate(ctx, user.ID, utils.HashToken(refresh), utils.HashToken(pair.Refresh), pair.RefreshExp)
	if errors.Is(err, repository.ErrTokenNotFound) {
		// already rotated or logged out: a replayed token
		s.log.Warn("refresh token reuse", slog.String("user_id", user.ID))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Session{User: user, Rotated: &pair, Refresh: pair.Refresh}, nil
}

func (s *AuthService) loadUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return user, err
}

// Logout removes the presented refresh token, and only that one, from the
// user's set. A token that is already gone is not an error.
func (s *AuthService) Logout(ctx context.Context, userID, refresh string) error {
	if refresh == "" {
		return nil
	}
	err := s.store.Remove(ctx, userID, utils.HashToken(refresh))
	if err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		return fmt.Errorf("service.Logout: %w", err)
	}
	return nil
}

// RevokeAll ends every session of the user.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) error {
	n, err := s.store.RemoveAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("service.RevokeAll: %w", err)
	}
	s.log.Info("sessions revoked", slog.String("user_id", userID), slog.Int64("count", n))
	return nil
}

// PurgeExpired drops refresh hashes past their expiry.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service.PurgeExpired: %w", err)
	}
	return n, nil
}

// RunPurge calls PurgeExpired every interval until ctx is done.
func (s *AuthService) RunPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.log.Error("purge expired refresh tokens", slog.Any("err", err))
				continue
			}
			if n > 0 {
				s.log.Info("purged expired refresh tokens", slog.Int64("count", n))
			}
		}
	}
}
