package model

import (
	"time"

	"gorm.io/gorm"
)

// Category groups announcements; every announcement references one.
type Category struct {
	ID    uint64 `gorm:"primaryKey" json:"id"`
	Title string `gorm:"size:100;not null" json:"title"`
}

func (Category) TableName() string { return "categories" }

// Review is a free text rating one user leaves for another.
type Review struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	Text       *string   `gorm:"type:text" json:"text,omitempty"`
	UserToID   string    `gorm:"type:char(36);not null;index" json:"user_to_id"`
	UserFromID string    `gorm:"type:char(36);not null" json:"user_from_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Review) TableName() string { return "reviews" }

func (r *Review) BeforeCreate(*gorm.DB) error {
	if r.ID != "" {
		return nil
	}
	id, err := NewID()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}
