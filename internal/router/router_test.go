package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stuffr/marketplace/internal/cache"
	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/database"
	"github.com/stuffr/marketplace/internal/model"
	"github.com/stuffr/marketplace/internal/queue"
	"github.com/stuffr/marketplace/internal/repository"
	"github.com/stuffr/marketplace/internal/service"
	"github.com/stuffr/marketplace/internal/utils"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type nopMail struct{}

func (nopMail) Enqueue(context.Context, queue.MailEvent) error { return nil }

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "http://s3.local/" + key, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return errors.New("no such key")
	}
	delete(m.objects, key)
	return nil
}

type api struct {
	e        *echo.Echo
	clock    *clock
	users    *repository.UserRepo
	objects  *memObjects
	category uint64
}

func newAPI(t *testing.T, capacity int) *api {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	cat := &model.Category{Title: "Bikes"}
	require.NoError(t, db.Create(cat).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		Cookie: config.CookieConfig{Secure: true},
		Cache:  config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cached"},
		RateLimit: config.RateLimitConfig{
			Enabled:        true,
			Capacity:       capacity,
			RefillTokens:   1,
			RefillInterval: time.Hour,
			TTL:            5 * time.Hour,
			KeyStrategy:    "ip_route",
			Prefix:         "rl",
		},
		Media: config.MediaConfig{MaxBytes: 1 << 10, MaxFiles: 2},
	}

	c := &clock{t: time.Now().UTC().Truncate(time.Second)}
	tokens, err := utils.NewTokenManager(utils.TokenOptions{
		Secret:     "router-secret",
		Algorithm:  "HS256",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		ResetTTL:   15 * time.Minute,
		Now:        c.Now,
	})
	require.NoError(t, err)

	users := repository.NewUserRepo(db)
	auth := service.NewAuthService(tokens, repository.NewTokenRepo(db), users, log)
	objects := &memObjects{objects: map[string][]byte{}}
	svc := Services{
		DB:    db,
		Redis: rdb,
		Auth:  auth,
		Users: service.NewUserService(users, auth, tokens, utils.NewPasswordManager(bcrypt.MinCost), nopMail{}, "http://front/reset?token=", log),
		Announcements: service.NewAnnouncementService(
			repository.NewAnnouncementRepo(db),
			repository.NewCategoryRepo(db),
			objects,
			cache.New(rdb, cfg.Cache, log),
			log,
		),
	}
	return &api{e: New(cfg, svc, log), clock: c, users: users, objects: objects, category: cat.ID}
}

func (a *api) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// session returns the non-expired session cookies set by rec.
func session(rec *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Value != "" {
			out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
	return out
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func (a *api) register(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/user/register", map[string]any{
		"name": "Ann", "email": email, "password": "password1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return session(rec)
}

func (a *api) moderator(t *testing.T) []*http.Cookie {
	t.Helper()
	hash, err := utils.NewPasswordManager(bcrypt.MinCost).Hash("password1")
	require.NoError(t, err)
	require.NoError(t, a.users.Create(context.Background(), &model.User{
		Name: "Mod", Email: "mod@x.com", PasswordHash: hash, RoleID: model.RoleModerator,
	}))
	rec := a.do(t, http.MethodPost, "/user/login", map[string]any{"email": "mod@x.com", "password": "password1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return session(rec)
}

func (a *api) create(t *testing.T, cookies []*http.Cookie, price int64, discount *int) model.Announcement {
	t.Helper()
	body := map[string]any{"title": "Bike", "description": "red", "price": price, "category_id": a.category}
	if discount != nil {
		body["discount"] = *discount
	}
	rec := a.do(t, http.MethodPost, "/announcement", body, cookies)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out model.Announcement
	decode(t, rec, &out)
	return out
}

func TestRegisterLoginMe(t *testing.T) {
	a := newAPI(t, 100)

	rec := a.do(t, http.MethodPost, "/user/register", map[string]any{
		"name": "Ann", "email": "A@x.com", "password": "password1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var names []string
	for _, ck := range rec.Result().Cookies() {
		names = append(names, ck.Name)
		assert.True(t, ck.HttpOnly)
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	}
	assert.ElementsMatch(t, []string{"access", "refresh"}, names)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = a.do(t, http.MethodPost, "/user/register", map[string]any{
		"name": "Bob", "email": "a@x.com", "password": "password2",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/user/login", map[string]any{"email": "a@x.com", "password": "password1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := session(rec)

	rec = a.do(t, http.MethodGet, "/user/me", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	decode(t, rec, &me)
	assert.Equal(t, "a@x.com", me["email"])

	rec = a.do(t, http.MethodPost, "/user/login", map[string]any{"email": "a@x.com", "password": "wrong-pass"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/user/login", map[string]any{"email": "nobody@x.com", "password": "password1"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidation(t *testing.T) {
	a := newAPI(t, 100)

	rec := a.do(t, http.MethodPost, "/user/register", map[string]any{
		"name": "Ann", "email": "a@x.com", "password": "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "password")

	rec = a.do(t, http.MethodPost, "/user/register", map[string]any{
		"name": "Ann", "email": "not-an-email", "password": "password1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	a := newAPI(t, 100)

	rec := a.do(t, http.MethodGet, "/user/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/user/me", nil, []*http.Cookie{{Name: "access", Value: "forged"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	cleared := 0
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			cleared++
		}
	}
	assert.Equal(t, 2, cleared)
}

func TestExpiredAccessRotatesCookies(t *testing.T) {
	a := newAPI(t, 100)
	old := a.register(t, "a@x.com")

	a.clock.Advance(16 * time.Minute)

	rec := a.do(t, http.MethodGet, "/user/me", nil, old)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := session(rec)
	require.Len(t, rotated, 2)

	// the old refresh cookie was consumed
	rec = a.do(t, http.MethodGet, "/user/me", nil, old)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/user/me", nil, rotated)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaleCookiesReadPublicAnnouncementAnonymously(t *testing.T) {
	a := newAPI(t, 100)
	owner := a.register(t, "owner@x.com")
	mod := a.moderator(t)
	ann := a.create(t, owner, 1000, nil)
	rec := a.do(t, http.MethodPatch, "/announcement/approve?announcement_id="+ann.ID, nil, mod)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// both tokens are past their lifetime
	a.clock.Advance(25 * time.Hour)

	rec = a.do(t, http.MethodGet, "/announcement/"+ann.ID, nil, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := 0
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			cleared++
		}
	}
	assert.Equal(t, 2, cleared)

	// routes that need a session still refuse
	rec = a.do(t, http.MethodGet, "/user/me", nil, owner)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	a := newAPI(t, 100)
	cookies := a.register(t, "a@x.com")

	rec := a.do(t, http.MethodPost, "/user/logout", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	// the access token is still valid until it expires, the refresh is gone
	a.clock.Advance(16 * time.Minute)
	rec = a.do(t, http.MethodGet, "/user/me", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnnouncementFlow(t *testing.T) {
	a := newAPI(t, 100)
	owner := a.register(t, "owner@x.com")
	other := a.register(t, "other@x.com")
	mod := a.moderator(t)

	ten := 10
	ann := a.create(t, owner, 1000, &ten)
	assert.Equal(t, model.StatusUnderReview, ann.Status)
	require.NotNil(t, ann.PriceWithDiscount)
	assert.Equal(t, int64(900), *ann.PriceWithDiscount)

	// hidden from the public while under review
	rec := a.do(t, http.MethodGet, "/announcement/"+ann.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, "/announcement/"+ann.ID, nil, owner)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPatch, "/announcement/edit/"+ann.ID, map[string]any{
		"title": "Bike", "description": "blue", "price": 1000, "category_id": a.category,
	}, owner)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPatch, "/announcement/approve?announcement_id="+ann.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/announcement/moderation", nil, mod)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPatch, "/announcement/approve?announcement_id="+ann.ID, nil, mod)
	require.Equal(t, http.StatusOK, rec.Code)
	var approved model.Announcement
	decode(t, rec, &approved)
	assert.Equal(t, model.StatusPublished, approved.Status)

	rec = a.do(t, http.MethodPatch, "/announcement/approve?announcement_id="+ann.ID, nil, mod)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/announcement?price_min=500&price_max=1000", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.Announcement `json:"items"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, ann.ID, list.Items[0].ID)

	rec = a.do(t, http.MethodGet, "/announcement?price_min=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/announcement/add_favorite?announcement_id="+ann.ID, nil, other)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(t, http.MethodGet, "/announcement/favorites", nil, other)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list.Items, 1)
	rec = a.do(t, http.MethodDelete, "/announcement/delete_favorite?announcement_id="+ann.ID, nil, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodPatch, "/announcement/unpublish?announcement_id="+ann.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPatch, "/announcement/unpublish?announcement_id="+ann.ID, nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/announcement/my_announcements", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)

	rec = a.do(t, http.MethodPatch, "/announcement/archive/"+ann.ID, nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodDelete, "/announcement/delete/"+ann.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodDelete, "/announcement/delete/"+ann.ID, nil, owner)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodGet, "/announcement/"+ann.ID, nil, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func upload(t *testing.T, a *api, id string, cookies []*http.Cookie, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/announcement/"+id+"/media", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func TestMediaUpload(t *testing.T) {
	a := newAPI(t, 100)
	owner := a.register(t, "owner@x.com")
	ann := a.create(t, owner, 100, nil)

	rec := upload(t, a, ann.ID, owner, map[string][]byte{"a.png": []byte("png"), "b.jpg": []byte("jpg")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Items []model.AnnouncementMedia `json:"items"`
	}
	decode(t, rec, &out)
	require.Len(t, out.Items, 2)
	assert.True(t, strings.HasPrefix(out.Items[0].FileURL, "http://s3.local/announcements/"+ann.ID+"/"))
	assert.Len(t, a.objects.objects, 2)

	rec = upload(t, a, ann.ID, owner, map[string][]byte{"big.png": bytes.Repeat([]byte("x"), 2<<10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = upload(t, a, ann.ID, owner, map[string][]byte{"1.png": {1}, "2.png": {2}, "3.png": {3}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodDelete, "/announcement/media/"+strconv.FormatUint(out.Items[0].ID, 10), nil, owner)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, a.objects.objects, 1)
}

func TestRateLimit(t *testing.T) {
	a := newAPI(t, 2)
	body := map[string]any{"email": "nobody@x.com", "password": "password1"}

	for i := 0; i < 2; i++ {
		rec := a.do(t, http.MethodPost, "/user/login", body, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := a.do(t, http.MethodPost, "/user/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes have their own bucket
	rec = a.do(t, http.MethodPost, "/user/register", map[string]any{"name": "Ann", "email": "a@x.com", "password": "password1"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t, 100)

	rec := a.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/category", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bikes")

	rec = a.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_http_requests_total")
}
