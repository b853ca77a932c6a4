package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListQuery describes a filtered, sorted and paginated select. Price bounds
// are inclusive and either may be omitted. Equals holds column -> value
// equality predicates; nil values are skipped. SortBy names one column,
// with a leading "-" for descending order.
type ListQuery struct {
	Offset   int
	Limit    int
	SortBy   string
	PriceMin *int64
	PriceMax *int64
	Equals   map[string]any
}

// Repository is the shared gorm access for one model. Columns is the allow
// list for filters and sorting; nothing outside it reaches the SQL text.
type Repository[T any] struct {
	db          *gorm.DB
	columns     map[string]bool
	defaultSort string
}

func NewRepository[T any](db *gorm.DB, columns []string, defaultSort string) *Repository[T] {
	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}
	return &Repository[T]{db: db, columns: allowed, defaultSort: defaultSort}
}

func (r *Repository[T]) Create(ctx context.Context, v *T) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository[T]) GetByID(ctx context.Context, id any) (*T, error) {
	var v T
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository[T]) List(ctx context.Context, q ListQuery) ([]T, error) {
	tx, err := r.apply(r.db.WithContext(ctx), q)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// apply adds the ListQuery predicates, order and window to tx.
func (r *Repository[T]) apply(tx *gorm.DB, q ListQuery) (*gorm.DB, error) {
	if q.PriceMin != nil || q.PriceMax != nil {
		if !r.columns["price"] {
			return nil, fmt.Errorf("%w: price filter", ErrInvalidQuery)
		}
		if q.PriceMin != nil {
			tx = tx.Where("price >= ?", *q.PriceMin)
		}
		if q.PriceMax != nil {
			tx = tx.Where("price <= ?", *q.PriceMax)
		}
	}

	// sorted so equal queries produce identical SQL
	keys := make([]string, 0, len(q.Equals))
	for k := range q.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := q.Equals[k]
		if v == nil {
			continue
		}
		if !r.columns[k] {
			return nil, fmt.Errorf("%w: filter %q", ErrInvalidQuery, k)
		}
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: k}, Value: v})
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = r.defaultSort
	}
	if sortBy != "" {
		desc := strings.HasPrefix(sortBy, "-")
		col := strings.TrimPrefix(sortBy, "-")
		if !r.columns[col] {
			return nil, fmt.Errorf("%w: sort %q", ErrInvalidQuery, col)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc})
		if col != "id" && r.columns["id"] {
			// tie breaker keeps pages stable
			tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
		}
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx, nil
}
