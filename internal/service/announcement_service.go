package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stuffr/marketplace/internal/cache"
	"github.com/stuffr/marketplace/internal/model"
	"github.com/stuffr/marketplace/internal/repository"
	"github.com/stuffr/marketplace/internal/storage"
)

// AnnouncementStore is implemented by *repository.AnnouncementRepo.
type AnnouncementStore interface {
	Create(ctx context.Context, a *model.Announcement) error
	GetByID(ctx context.Context, id any) (*model.Announcement, error)
	GetWithMedia(ctx context.Context, id string) (*model.Announcement, error)
	List(ctx context.Context, q repository.ListQuery) ([]model.Announcement, error)
	TransitionStatus(ctx context.Context, id string, to model.AnnouncementStatus) (*model.Announcement, error)
	UpdateContent(ctx context.Context, a *model.Announcement) error
	DeleteCascade(ctx context.Context, id string) error
	AddMedia(ctx context.Context, media []model.AnnouncementMedia) error
	GetMedia(ctx context.Context, mediaID uint64) (*model.AnnouncementMedia, error)
	ListMedia(ctx context.Context, announcementID string) ([]model.AnnouncementMedia, error)
	DeleteMedia(ctx context.Context, mediaID uint64) error
	AddFavorite(ctx context.Context, userID, announcementID string) error
	RemoveFavorite(ctx context.Context, userID, announcementID string) error
	ListFavorites(ctx context.Context, userID string, offset, limit int) ([]model.Announcement, error)
}

// CategoryStore is implemented by *repository.CategoryRepo.
type CategoryStore interface {
	All(ctx context.Context) ([]model.Category, error)
	Exists(ctx context.Context, id uint64) (bool, error)
}

// ObjectStore stores media bytes and returns a public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// AnnouncementInput is the client editable part of an announcement.
type AnnouncementInput struct {
	Title       string
	Description string
	Price       int64
	Discount    *int
	Currency    string
	CategoryID  uint64
}

// MediaFile is one uploaded file.
type MediaFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// CatalogQuery filters the public catalog. Empty strings and nil pointers
// are not filters.
type CatalogQuery struct {
	Offset     int
	Limit      int
	PriceMin   *int64
	PriceMax   *int64
	CategoryID *uint64
	Currency   string
	SellerID   string
	SortBy     string
}

type AnnouncementService struct {
	announcements AnnouncementStore
	categories    CategoryStore
	objects       ObjectStore
	cache         *cache.Gateway
	log           *slog.Logger
}

func NewAnnouncementService(
	announcements AnnouncementStore,
	categories CategoryStore,
	objects ObjectStore,
	cache *cache.Gateway,
	log *slog.Logger,
) *AnnouncementService {
	return &AnnouncementService{
		announcements: announcements,
		categories:    categories,
		objects:       objects,
		cache:         cache,
		log:           log,
	}
}

// Create stores a new announcement. The status is always UNDER_REVIEW,
// whatever the client sent.
func (s *AnnouncementService) Create(ctx context.Context, in AnnouncementInput, actor *model.User) (*model.Announcement, error) {
	const op = "service.CreateAnnouncement"

	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &model.Announcement{UserID: actor.ID, Status: model.StatusUnderReview}
	applyInput(a, in)
	if err := s.announcements.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("announcement created", slog.String("announcement_id", a.ID), slog.String("user_id", actor.ID))
	return a, nil
}

// Get returns an announcement with its media. Unpublished announcements
// are visible only to their owner and to moderators.
func (s *AnnouncementService) Get(ctx context.Context, id string, viewer *model.User) (*model.Announcement, error) {
	const op = "service.GetAnnouncement"

	a, err := s.announcements.GetWithMedia(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	if !canView(viewer, a) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return a, nil
}

// Edit replaces the editable fields and resubmits for moderation. Editing
// is refused while a moderator may be looking at the announcement.
func (s *AnnouncementService) Edit(ctx context.Context, id string, in AnnouncementInput, actor *model.User) (*model.Announcement, error) {
	const op = "service.EditAnnouncement"

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := requireOwner(actor, a); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.Status == model.StatusUnderReview {
		return nil, fmt.Errorf("%s: %w", op, ErrUnderReview)
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	applyInput(a, in)
	if err := s.announcements.UpdateContent(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnderReview)
		}
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	return a, nil
}

// Approve publishes an announcement waiting for moderation.
func (s *AnnouncementService) Approve(ctx context.Context, id string, actor *model.User) (*model.Announcement, error) {
	return s.moderate(ctx, id, actor, model.StatusPublished, "announcement approved")
}

// Decline sends an announcement back to its owner.
func (s *AnnouncementService) Decline(ctx context.Context, id string, actor *model.User) (*model.Announcement, error) {
	return s.moderate(ctx, id, actor, model.StatusDeclined, "announcement declined")
}

func (s *AnnouncementService) moderate(ctx context.Context, id string, actor *model.User, to model.AnnouncementStatus, msg string) (*model.Announcement, error) {
	op := "service.Moderate" + string(to)

	if err := requireModerator(actor); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a, err := s.announcements.TransitionStatus(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapTransitionErr(err))
	}
	s.log.Info(msg, slog.String("announcement_id", id), slog.String("moderator_id", actor.ID))
	return a, nil
}

// Unpublish hides a published announcement; only its owner may do that.
func (s *AnnouncementService) Unpublish(ctx context.Context, id string, actor *model.User) (*model.Announcement, error) {
	const op = "service.Unpublish"

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := requireOwner(actor, a); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a, err = s.announcements.TransitionStatus(ctx, id, model.StatusUnpublished)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapTransitionErr(err))
	}
	return a, nil
}

// Archive moves an announcement to ARCHIVED from any state. There is no
// ownership check; any authenticated actor may archive and is logged.
func (s *AnnouncementService) Archive(ctx context.Context, id string, actor *model.User) (*model.Announcement, error) {
	const op = "service.Archive"

	a, err := s.announcements.TransitionStatus(ctx, id, model.StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapTransitionErr(err))
	}
	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	s.log.Info("announcement archived",
		slog.String("announcement_id", id),
		slog.String("actor_id", actorID),
		slog.Bool("owner", actorID == a.UserID),
	)
	return a, nil
}

// Delete removes the announcement with its media and favorites. Object
// deletion is best effort: a failure is logged and the rows are removed
// anyway.
func (s *AnnouncementService) Delete(ctx context.Context, id string, actor *model.User) error {
	const op = "service.DeleteAnnouncement"

	a, err := s.load(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := requireOwner(actor, a); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	media, err := s.announcements.ListMedia(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, m := range media {
		if err := s.objects.Delete(ctx, m.FileKey); err != nil {
			s.log.Error("delete media object",
				slog.String("announcement_id", id),
				slog.String("key", m.FileKey),
				slog.Any("err", err),
			)
		}
	}
	if err := s.announcements.DeleteCascade(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	return nil
}

// AddMedia uploads files one by one and records them. If any upload or
// the final insert fails, the objects uploaded by this call are deleted
// and the error returned; media from earlier calls is untouched.
func (s *AnnouncementService) AddMedia(ctx context.Context, id string, files []MediaFile, actor *model.User) ([]model.AnnouncementMedia, error) {
	const op = "service.AddMedia"

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := requireOwner(actor, a); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w: no files", op, ErrBadRequest)
	}

	rows := make([]model.AnnouncementMedia, 0, len(files))
	for _, f := range files {
		key, err := storage.MediaKey(id, f.Name)
		if err != nil {
			s.compensate(ctx, id, rows)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		url, err := s.objects.Upload(ctx, key, f.Data, f.ContentType)
		if err != nil {
			s.compensate(ctx, id, rows)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rows = append(rows, model.AnnouncementMedia{AnnouncementID: id, FileURL: url, FileKey: key})
	}
	if err := s.announcements.AddMedia(ctx, rows); err != nil {
		s.compensate(ctx, id, rows)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// compensate deletes objects uploaded by a failed AddMedia call.
func (s *AnnouncementService) compensate(ctx context.Context, id string, uploaded []model.AnnouncementMedia) {
	// the request context may be the reason we are here
	ctx = context.WithoutCancel(ctx)
	for _, m := range uploaded {
		if err := s.objects.Delete(ctx, m.FileKey); err != nil {
			s.log.Error("compensating delete failed",
				slog.String("announcement_id", id),
				slog.String("key", m.FileKey),
				slog.Any("err", err),
			)
		}
	}
}

// RemoveMedia detaches one media item. The object goes first; if that
// fails the row stays so the delete can be retried.
func (s *AnnouncementService) RemoveMedia(ctx context.Context, mediaID uint64, actor *model.User) error {
	const op = "service.RemoveMedia"

	m, err := s.announcements.GetMedia(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	a, err := s.load(ctx, m.AnnouncementID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := requireOwner(actor, a); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.objects.Delete(ctx, m.FileKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.announcements.DeleteMedia(ctx, mediaID); err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	return nil
}

// AddFavorite saves an announcement for the actor. Adding twice is a no-op.
func (s *AnnouncementService) AddFavorite(ctx context.Context, id string, actor *model.User) error {
	const op = "service.AddFavorite"

	a, err := s.load(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !canView(actor, a) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err := s.announcements.AddFavorite(ctx, actor.ID, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveFavorite is idempotent.
func (s *AnnouncementService) RemoveFavorite(ctx context.Context, id string, actor *model.User) error {
	if err := s.announcements.RemoveFavorite(ctx, actor.ID, id); err != nil {
		return fmt.Errorf("service.RemoveFavorite: %w", err)
	}
	return nil
}

func (s *AnnouncementService) ListFavorites(ctx context.Context, actor *model.User, offset, limit int) ([]model.Announcement, error) {
	offset, limit = page(offset, limit)
	out, err := s.announcements.ListFavorites(ctx, actor.ID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("service.ListFavorites: %w", err)
	}
	return out, nil
}

// ListCatalog returns published announcements. Results are cached per
// query shape for the cache TTL; writes do not invalidate them.
func (s *AnnouncementService) ListCatalog(ctx context.Context, q CatalogQuery) ([]model.Announcement, error) {
	const op = "service.ListCatalog"

	q.Offset, q.Limit = page(q.Offset, q.Limit)
	lq := repository.ListQuery{
		Offset:   q.Offset,
		Limit:    q.Limit,
		SortBy:   q.SortBy,
		PriceMin: q.PriceMin,
		PriceMax: q.PriceMax,
		Equals:   map[string]any{"status": string(model.StatusPublished)},
	}
	if q.CategoryID != nil {
		lq.Equals["category_id"] = *q.CategoryID
	}
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	if q.Currency != "" {
		lq.Equals["currency"] = q.Currency
	}
	q.SellerID = strings.TrimSpace(q.SellerID)
	if q.SellerID != "" {
		lq.Equals["user_id"] = q.SellerID
	}
	key := s.cache.Key("catalog",
		strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		optInt(q.PriceMin), optInt(q.PriceMax), optUint(q.CategoryID),
		q.Currency, q.SellerID,
		strings.TrimSpace(q.SortBy),
	)
	out, err := cache.ReadThrough(ctx, s.cache, key, func(ctx context.Context) ([]model.Announcement, error) {
		return s.announcements.List(ctx, lq)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	return out, nil
}

// ListMine returns the actor's own announcements in every status, cached
// per user and page.
func (s *AnnouncementService) ListMine(ctx context.Context, actor *model.User, offset, limit int) ([]model.Announcement, error) {
	const op = "service.ListMine"

	offset, limit = page(offset, limit)
	key := s.cache.Key("my", actor.ID, strconv.Itoa(offset), strconv.Itoa(limit))
	out, err := cache.ReadThrough(ctx, s.cache, key, func(ctx context.Context) ([]model.Announcement, error) {
		return s.announcements.List(ctx, repository.ListQuery{
			Offset: offset,
			Limit:  limit,
			Equals: map[string]any{"user_id": actor.ID},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListModeration returns the review queue, oldest first. Not cached.
func (s *AnnouncementService) ListModeration(ctx context.Context, actor *model.User, offset, limit int) ([]model.Announcement, error) {
	const op = "service.ListModeration"

	if err := requireModerator(actor); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	offset, limit = page(offset, limit)
	out, err := s.announcements.List(ctx, repository.ListQuery{
		Offset: offset,
		Limit:  limit,
		SortBy: "created_at",
		Equals: map[string]any{"status": string(model.StatusUnderReview)},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *AnnouncementService) Categories(ctx context.Context) ([]model.Category, error) {
	out, err := s.categories.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Categories: %w", err)
	}
	return out, nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*model.Announcement, error) {
	a, err := s.announcements.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return a, nil
}

func (s *AnnouncementService) checkCategory(ctx context.Context, id uint64) error {
	ok, err := s.categories.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown category %d", ErrBadRequest, id)
	}
	return nil
}

func applyInput(a *model.Announcement, in AnnouncementInput) {
	a.Title = strings.TrimSpace(in.Title)
	a.Description = in.Description
	a.Price = in.Price
	a.Discount = in.Discount
	a.Currency = strings.ToUpper(in.Currency)
	if a.Currency == "" {
		a.Currency = model.DefaultCurrency
	}
	a.CategoryID = in.CategoryID
	a.ApplyPricing()
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrInvalidQuery):
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	default:
		return err
	}
}

func mapTransitionErr(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return ErrInvalidTransition
	}
	return mapRepoErr(err)
}

func optInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func optUint(v *uint64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(*v, 10)
}
