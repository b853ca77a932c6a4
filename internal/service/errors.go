// Package service holds the business rules: session resolution and
// rotation, user account flows and the announcement lifecycle. Services
// return the sentinels below, wrapped with operation context; the HTTP
// layer maps them to status codes.
package service

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrBadRequest         = errors.New("bad request")
	ErrUnderReview        = errors.New("announcement is under review")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordsMismatch  = errors.New("passwords do not match")
	ErrUserNotFound       = errors.New("user not found")
)
