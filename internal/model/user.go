package model

import (
	"time"

	"gorm.io/gorm"
)

// Role is the gate value attached to every user. Only the ID is stored on
// the user row; the roles table keeps the human readable name.
type Role uint8

const (
	RoleRegular   Role = 1 // default for self registered accounts
	RoleModerator Role = 2 // may approve or decline announcements
)

// String returns the role name used in logs and responses.
func (r Role) String() string {
	switch r {
	case RoleRegular:
		return "regular"
	case RoleModerator:
		return "moderator"
	default:
		return "unknown"
	}
}

// CanModerate reports whether a user holding the role may move an
// announcement out of moderation.
func CanModerate(r Role) bool {
	return r == RoleModerator
}

// RoleRow represents a row in the `roles` table.
type RoleRow struct {
	ID   Role   `gorm:"primaryKey;autoIncrement:false"`
	Name string `gorm:"size:30;not null"`
}

func (RoleRow) TableName() string { return "roles" }

// DefaultRoles are seeded on startup so users.role_id always references a row.
func DefaultRoles() []RoleRow {
	return []RoleRow{
		{ID: RoleRegular, Name: RoleRegular.String()},
		{ID: RoleModerator, Name: RoleModerator.String()},
	}
}

// User represents an application user record as stored in the `users`
// table. Valid refresh tokens are not kept on this row; they live in
// `refresh_tokens` keyed by user id so they can be consumed atomically.
type User struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name         string    `gorm:"size:30;not null" json:"name"`
	SecondName   *string   `gorm:"size:30" json:"second_name,omitempty"`
	AvatarURL    *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	RoleID       Role      `gorm:"not null;default:1" json:"role_id"`
	Rating       *float64  `json:"rating,omitempty"`
	Phone        *string   `gorm:"size:20" json:"phone,omitempty"`
	Email        string    `gorm:"size:50;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID != "" {
		return nil
	}
	id, err := NewID()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// RefreshToken models an entry in the `refresh_tokens` table. The set of
// rows for a user is that user's revocation list: a refresh token is
// accepted only while its hash is present here.
type RefreshToken struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;index"`
	TokenHash string    `gorm:"size:64;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (RefreshToken) TableName() string { return "refresh_tokens" }
