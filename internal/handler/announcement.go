package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/middleware"
	"github.com/stuffr/marketplace/internal/service"
)

type AnnouncementHandler struct {
	svc   *service.AnnouncementService
	media config.MediaConfig
}

func NewAnnouncementHandler(svc *service.AnnouncementService, media config.MediaConfig) *AnnouncementHandler {
	return &AnnouncementHandler{svc: svc, media: media}
}

type announcementReq struct {
	Title       string `json:"title" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"required"`
	Price       int64  `json:"price" validate:"gte=0"`
	Discount    *int   `json:"discount" validate:"omitempty,min=1,max=99"`
	Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
	CategoryID  uint64 `json:"category_id" validate:"required,min=1"`
}

func (r announcementReq) input() service.AnnouncementInput {
	return service.AnnouncementInput{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Discount:    r.Discount,
		Currency:    r.Currency,
		CategoryID:  r.CategoryID,
	}
}

func (h *AnnouncementHandler) Create(c echo.Context) error {
	var req announcementReq
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), req.input(), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *AnnouncementHandler) Get(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Edit(c echo.Context) error {
	var req announcementReq
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Edit(c.Request().Context(), c.Param("id"), req.input(), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Approve(c echo.Context) error {
	id, err := announcementID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Approve(c.Request().Context(), id, middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Decline(c echo.Context) error {
	id, err := announcementID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Decline(c.Request().Context(), id, middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Unpublish(c echo.Context) error {
	id, err := announcementID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Unpublish(c.Request().Context(), id, middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Archive(c echo.Context) error {
	a, err := h.svc.Archive(c.Request().Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), middleware.CurrentUser(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// List is the public catalog. Filters: price_min, price_max, category_id,
// currency and user_id (seller); sort_by takes a column, "-" for descending.
func (h *AnnouncementHandler) List(c echo.Context) error {
	var q service.CatalogQuery
	var err error
	if q.Offset, q.Limit, err = pagination(c); err != nil {
		return err
	}
	if q.PriceMin, err = optionalInt64(c, "price_min"); err != nil {
		return err
	}
	if q.PriceMax, err = optionalInt64(c, "price_max"); err != nil {
		return err
	}
	if q.CategoryID, err = optionalUint64(c, "category_id"); err != nil {
		return err
	}
	q.Currency = c.QueryParam("currency")
	q.SellerID = c.QueryParam("user_id")
	q.SortBy = c.QueryParam("sort_by")

	items, err := h.svc.ListCatalog(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AnnouncementHandler) ListMine(c echo.Context) error {
	offset, limit, err := pagination(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListMine(c.Request().Context(), middleware.CurrentUser(c), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AnnouncementHandler) ListModeration(c echo.Context) error {
	offset, limit, err := pagination(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListModeration(c.Request().Context(), middleware.CurrentUser(c), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AnnouncementHandler) AddFavorite(c echo.Context) error {
	id, err := announcementID(c)
	if err != nil {
		return err
	}
	if err := h.svc.AddFavorite(c.Request().Context(), id, middleware.CurrentUser(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "added to favorites"})
}

func (h *AnnouncementHandler) RemoveFavorite(c echo.Context) error {
	id, err := announcementID(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveFavorite(c.Request().Context(), id, middleware.CurrentUser(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AnnouncementHandler) ListFavorites(c echo.Context) error {
	offset, limit, err := pagination(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListFavorites(c.Request().Context(), middleware.CurrentUser(c), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// AddMedia accepts multipart uploads under the "files" field.
func (h *AnnouncementHandler) AddMedia(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files")
	}
	if len(headers) > h.media.MaxFiles {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", h.media.MaxFiles))
	}

	files := make([]service.MediaFile, 0, len(headers))
	for _, fh := range headers {
		f, err := h.readFile(fh)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	media, err := h.svc.AddMedia(c.Request().Context(), c.Param("id"), files, middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"items": media})
}

var errTooLarge = errors.New("file too large")

func (h *AnnouncementHandler) readFile(fh *multipart.FileHeader) (service.MediaFile, error) {
	if fh.Size > h.media.MaxBytes {
		return service.MediaFile{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, errTooLarge.Error())
	}
	src, err := fh.Open()
	if err != nil {
		return service.MediaFile{}, fmt.Errorf("handler.readFile: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.media.MaxBytes+1))
	if err != nil {
		return service.MediaFile{}, fmt.Errorf("handler.readFile: %w", err)
	}
	if int64(len(data)) > h.media.MaxBytes {
		return service.MediaFile{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, errTooLarge.Error())
	}
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" || ct == echo.MIMEOctetStream {
		ct = http.DetectContentType(data)
	}
	return service.MediaFile{Name: fh.Filename, ContentType: ct, Data: data}, nil
}

func (h *AnnouncementHandler) RemoveMedia(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("media_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	if err := h.svc.RemoveMedia(c.Request().Context(), id, middleware.CurrentUser(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AnnouncementHandler) Categories(c echo.Context) error {
	items, err := h.svc.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// announcementID reads the announcement_id query parameter used by the
// moderation and favorite routes.
func announcementID(c echo.Context) (string, error) {
	id := c.QueryParam("announcement_id")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "announcement_id is required")
	}
	return id, nil
}

func pagination(c echo.Context) (offset, limit int, err error) {
	err = echo.QueryParamsBinder(c).
		Int("offset", &offset).
		Int("limit", &limit).
		BindError()
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid pagination")
	}
	return offset, limit, nil
}

func optionalInt64(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &v, nil
}

func optionalUint64(c echo.Context, name string) (*uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &v, nil
}
