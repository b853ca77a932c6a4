// Package repository holds the gorm backed persistence layer. The sentinel
// values below let services distinguish failure scenarios without looking
// at driver specific errors.
package repository

import "errors"

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write cannot be applied because the
	// row is no longer in the state the caller expected, for example a
	// status transition racing with another moderator.
	ErrConflict = errors.New("conflict")

	// ErrEmailExists is returned by UserRepo.Create on a duplicate email.
	ErrEmailExists = errors.New("email already exists")

	// ErrTokenNotFound means the refresh token hash is not in the user's
	// set: it was rotated, logged out or never issued.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrInvalidQuery is returned for filters or sort columns outside the
	// model's allow list.
	ErrInvalidQuery = errors.New("invalid query")
)
