package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stuffr/marketplace/internal/model"
)

// announcementColumns may be filtered on or sorted by.
var announcementColumns = []string{
	"id", "title", "price", "price_with_discount", "discount", "currency",
	"status", "user_id", "category_id", "created_at", "updated_at",
}

type AnnouncementRepo struct {
	*Repository[model.Announcement]
}

func NewAnnouncementRepo(db *gorm.DB) *AnnouncementRepo {
	return &AnnouncementRepo{Repository: NewRepository[model.Announcement](db, announcementColumns, "-updated_at")}
}

// GetWithMedia loads an announcement and its attached media.
func (r *AnnouncementRepo) GetWithMedia(ctx context.Context, id string) (*model.Announcement, error) {
	var a model.Announcement
	err := r.db.WithContext(ctx).
		Preload("Media", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// TransitionStatus moves the announcement into `to` only if its current
// status is a legal source for that target. The check and the write are
// one conditional UPDATE. ErrNotFound if the row is missing, ErrConflict
// if it exists in a state the transition does not start from.
func (r *AnnouncementRepo) TransitionStatus(ctx context.Context, id string, to model.AnnouncementStatus) (*model.Announcement, error) {
	res := r.db.WithContext(ctx).Model(&model.Announcement{}).
		Where("id = ? AND status IN ?", id, statusStrings(model.AllowedFrom(to))).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	return r.GetByID(ctx, id)
}

// UpdateContent writes the editable fields and resubmits the announcement
// for moderation. It refuses rows that are already under review with
// ErrConflict, so an edit cannot slip in while a moderator decides.
func (r *AnnouncementRepo) UpdateContent(ctx context.Context, a *model.Announcement) error {
	a.Status = model.StatusUnderReview
	a.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.Announcement{}).
		Where("id = ? AND status IN ?", a.ID, statusStrings(model.AllowedFrom(model.StatusUnderReview))).
		Updates(map[string]any{
			"title":               a.Title,
			"description":         a.Description,
			"price":               a.Price,
			"discount":            a.Discount,
			"price_with_discount": a.PriceWithDiscount,
			"currency":            a.Currency,
			"category_id":         a.CategoryID,
			"status":              string(a.Status),
			"updated_at":          a.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, a.ID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// DeleteCascade removes the media rows, favorites and the announcement in
// one transaction.
func (r *AnnouncementRepo) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("announcement_id = ?", id).Delete(&model.AnnouncementMedia{}).Error; err != nil {
			return err
		}
		if err := tx.Where("announcement_id = ?", id).Delete(&model.UserFavorite{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Announcement{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddMedia inserts all rows or none.
func (r *AnnouncementRepo) AddMedia(ctx context.Context, media []model.AnnouncementMedia) error {
	if len(media) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&media).Error
	})
}

// ListMedia returns the announcement's media in upload order.
func (r *AnnouncementRepo) ListMedia(ctx context.Context, announcementID string) ([]model.AnnouncementMedia, error) {
	var out []model.AnnouncementMedia
	err := r.db.WithContext(ctx).Where("announcement_id = ?", announcementID).Order("id").Find(&out).Error
	return out, err
}

func (r *AnnouncementRepo) GetMedia(ctx context.Context, mediaID uint64) (*model.AnnouncementMedia, error) {
	var m model.AnnouncementMedia
	err := r.db.WithContext(ctx).Where("id = ?", mediaID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *AnnouncementRepo) DeleteMedia(ctx context.Context, mediaID uint64) error {
	res := r.db.WithContext(ctx).Where("id = ?", mediaID).Delete(&model.AnnouncementMedia{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddFavorite is idempotent: the (user, announcement) pair is unique and a
// repeated insert does nothing.
func (r *AnnouncementRepo) AddFavorite(ctx context.Context, userID, announcementID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserFavorite{UserID: userID, AnnouncementID: announcementID}).Error
}

// RemoveFavorite is idempotent as well; removing a missing pair succeeds.
func (r *AnnouncementRepo) RemoveFavorite(ctx context.Context, userID, announcementID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND announcement_id = ?", userID, announcementID).
		Delete(&model.UserFavorite{}).Error
}

// ListFavorites returns the user's saved announcements, newest update first.
// A favorite that is no longer published stays saved but is only listed
// to its owner, so unmoderated edits never reach other users.
func (r *AnnouncementRepo) ListFavorites(ctx context.Context, userID string, offset, limit int) ([]model.Announcement, error) {
	db := r.db.WithContext(ctx)
	sub := db.Model(&model.UserFavorite{}).Select("announcement_id").Where("user_id = ?", userID)
	tx := db.Where("id IN (?)", sub).
		Where("(status = ? OR user_id = ?)", string(model.StatusPublished), userID)
	tx, err := r.apply(tx, ListQuery{Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	var out []model.Announcement
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func statusStrings(in []model.AnnouncementStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
