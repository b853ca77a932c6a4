package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/stuffr/marketplace/internal/model"
)

type CategoryRepo struct {
	*Repository[model.Category]
}

func NewCategoryRepo(db *gorm.DB) *CategoryRepo {
	return &CategoryRepo{Repository: NewRepository[model.Category](db, []string{"id", "title"}, "title")}
}

// All returns every category ordered by title.
func (r *CategoryRepo) All(ctx context.Context) ([]model.Category, error) {
	return r.List(ctx, ListQuery{})
}

// Exists is checked before an announcement references a category.
func (r *CategoryRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}
