package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnnouncementStatus is the moderation state of an announcement.
type AnnouncementStatus string

const (
	StatusUnderReview AnnouncementStatus = "UNDER_REVIEW"
	StatusPublished   AnnouncementStatus = "PUBLISHED"
	StatusDeclined    AnnouncementStatus = "DECLINE"
	StatusUnpublished AnnouncementStatus = "UNPUBLISHED"
	StatusArchived    AnnouncementStatus = "ARCHIVED"
)

// DefaultCurrency is applied when a client omits the currency code.
const DefaultCurrency = "RUB"

// allowedFrom lists, per target status, the statuses it may be entered from.
// Repositories use it to build conditional updates, so a transition that was
// valid when read is re-checked at write time.
var allowedFrom = map[AnnouncementStatus][]AnnouncementStatus{
	StatusPublished:   {StatusUnderReview},
	StatusDeclined:    {StatusUnderReview},
	StatusUnpublished: {StatusPublished},
	StatusArchived:    {StatusUnderReview, StatusPublished, StatusDeclined, StatusUnpublished, StatusArchived},
	// resubmission after an edit
	StatusUnderReview: {StatusPublished, StatusDeclined, StatusUnpublished, StatusArchived},
}

// AllowedFrom returns the source statuses for a transition into to.
func AllowedFrom(to AnnouncementStatus) []AnnouncementStatus {
	return allowedFrom[to]
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to AnnouncementStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Announcement represents a listing in the `announcements` table. Price
// and PriceWithDiscount are minor currency units.
type Announcement struct {
	ID                string             `gorm:"type:char(36);primaryKey" json:"id"`
	Title             string             `gorm:"size:100;not null" json:"title"`
	Description       string             `gorm:"type:text;not null" json:"description"`
	Price             int64              `gorm:"not null;index" json:"price"`
	Discount          *int               `json:"discount,omitempty"`
	PriceWithDiscount *int64             `json:"price_with_discount,omitempty"`
	Currency          string             `gorm:"size:3;not null;default:RUB" json:"currency"`
	Status            AnnouncementStatus `gorm:"size:15;not null;index" json:"status"`
	UserID            string             `gorm:"type:char(36);not null;index" json:"user_id"`
	CategoryID        uint64             `gorm:"not null;index" json:"category_id"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	Media []AnnouncementMedia `gorm:"foreignKey:AnnouncementID" json:"media,omitempty"`
}

func (Announcement) TableName() string { return "announcements" }

// BeforeCreate assigns a time ordered id when none was set.
func (a *Announcement) BeforeCreate(*gorm.DB) error {
	if a.ID != "" {
		return nil
	}
	id, err := NewID()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// ApplyPricing recomputes PriceWithDiscount from Price and Discount. It is
// called on every write so the derived value never drifts from its inputs.
func (a *Announcement) ApplyPricing() {
	a.PriceWithDiscount = DiscountedPrice(a.Price, a.Discount)
}

// DiscountedPrice returns price - round(price*discount/100), rounding half
// to even, or nil when no discount is set.
func DiscountedPrice(price int64, discount *int) *int64 {
	if discount == nil || *discount == 0 {
		return nil
	}
	off := int64(math.RoundToEven(float64(price) * float64(*discount) / 100))
	v := price - off
	return &v
}

// AnnouncementMedia is a file attached to an announcement. FileKey is the
// object storage key and is needed to delete the object later.
type AnnouncementMedia struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	AnnouncementID string    `gorm:"type:char(36);not null;index" json:"announcement_id"`
	FileURL        string    `gorm:"type:text;not null" json:"file_url"`
	FileKey        string    `gorm:"size:255;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (AnnouncementMedia) TableName() string { return "announcement_media" }

// UserFavorite links a user to an announcement they saved. The pair is
// unique, so adding the same favorite twice is a no-op.
type UserFavorite struct {
	ID             uint64    `gorm:"primaryKey"`
	UserID         string    `gorm:"type:char(36);not null;index;uniqueIndex:idx_user_favorite,priority:1"`
	AnnouncementID string    `gorm:"type:char(36);not null;uniqueIndex:idx_user_favorite,priority:2"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (UserFavorite) TableName() string { return "user_favorites" }

// NewID returns a UUIDv7 string; ids sort by creation time.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
