package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stuffr/marketplace/internal/model"
	"github.com/stuffr/marketplace/internal/queue"
	"github.com/stuffr/marketplace/internal/repository"
	"github.com/stuffr/marketplace/internal/utils"
)

// MailQueue enqueues outbound mail; delivery happens in the mail worker.
type MailQueue interface {
	Enqueue(ctx context.Context, ev queue.MailEvent) error
}

type RegisterInput struct {
	Name       string
	SecondName *string
	Phone      *string
	Email      string
	Password   string
}

type UserService struct {
	users     UserStore
	auth      *AuthService
	tokens    *utils.TokenManager
	passwords utils.PasswordManager
	mail      MailQueue
	resetURL  string
	log       *slog.Logger
}

func NewUserService(
	users UserStore,
	auth *AuthService,
	tokens *utils.TokenManager,
	passwords utils.PasswordManager,
	mail MailQueue,
	resetURL string,
	log *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		auth:      auth,
		tokens:    tokens,
		passwords: passwords,
		mail:      mail,
		resetURL:  resetURL,
		log:       log,
	}
}

// Register creates a regular user and opens a session for it.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, utils.TokenPair, error) {
	const op = "service.Register"

	email := repository.NormalizeEmail(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, ErrConflict)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	user := &model.User{
		Name:         in.Name,
		SecondName:   in.SecondName,
		Phone:        in.Phone,
		Email:        email,
		PasswordHash: hash,
		RoleID:       model.RoleRegular,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.auth.IssueSession(ctx, user)
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user registered", slog.String("user_id", user.ID))
	return user, pair, nil
}

// Login checks the credentials and opens a new session.
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, utils.TokenPair, error) {
	const op = "service.Login"

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if !s.passwords.Verify(password, user.PasswordHash) {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.auth.IssueSession(ctx, user)
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, pair, nil
}

// ForgotPassword mails a reset link to a known address.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	const op = "service.ForgotPassword"

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	token, err := s.tokens.IssueResetToken(user.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = s.mail.Enqueue(ctx, queue.MailEvent{
		Kind:     queue.MailForgotPassword,
		Email:    user.Email,
		Link:     s.resetURL + token,
		QueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CheckResetToken returns the user a reset token was issued for.
func (s *UserService) CheckResetToken(ctx context.Context, token string) (*model.User, error) {
	const op = "service.CheckResetToken"

	claims, err := s.tokens.Decode(token, utils.PurposeReset)
	if errors.Is(err, utils.ErrTokenExpired) {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ResetPassword sets a new password and ends every open session of the
// user. The confirmation mail is best effort.
func (s *UserService) ResetPassword(ctx context.Context, token, password, repeat string) (*model.User, error) {
	const op = "service.ResetPassword"

	user, err := s.CheckResetToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if password != repeat {
		return nil, fmt.Errorf("%s: %w", op, ErrPasswordsMismatch)
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.auth.RevokeAll(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.PasswordHash = hash

	err = s.mail.Enqueue(ctx, queue.MailEvent{
		Kind:     queue.MailPasswordChanged,
		Email:    user.Email,
		QueuedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("password changed mail not queued", slog.String("user_id", user.ID), slog.Any("err", err))
	}
	return user, nil
}

// Profile returns the user by id.
func (s *UserService) Profile(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("service.Profile: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("service.Profile: %w", err)
	}
	return user, nil
}
