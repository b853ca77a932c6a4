package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/stuffr/marketplace/internal/cache"
	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/database"
	"github.com/stuffr/marketplace/internal/model"
	"github.com/stuffr/marketplace/internal/queue"
	"github.com/stuffr/marketplace/internal/repository"
	"github.com/stuffr/marketplace/internal/utils"
)

const resetURL = "http://front.local/reset?token="

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

type fakeMail struct {
	mu     sync.Mutex
	events []queue.MailEvent
	fail   map[queue.MailKind]bool
}

func (f *fakeMail) Enqueue(_ context.Context, ev queue.MailEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[ev.Kind] {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeObjects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	uploads      int
	failUploadAt int // 1-based upload call that fails, 0 never
	failDeletes  map[string]bool
	deleted      []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, failDeletes: map[string]bool{}}
}

func (f *fakeObjects) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploads == f.failUploadAt {
		return "", errors.New("upload failed")
	}
	f.objects[key] = data
	return "http://s3.local/media/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.failDeletes[key] {
		return errors.New("delete failed")
	}
	delete(f.objects, key)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	clock    *clock
	tokens   *utils.TokenManager
	users    *repository.UserRepo
	auth     *AuthService
	accounts *UserService
	ann      *AnnouncementService
	mail     *fakeMail
	objects  *fakeObjects
	mr       *miniredis.Miniredis
	category uint64
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	c := &clock{t: time.Now().UTC().Truncate(time.Second)}
	tokens, err := utils.NewTokenManager(utils.TokenOptions{
		Secret:     "test-secret",
		Algorithm:  "HS256",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		ResetTTL:   15 * time.Minute,
		Now:        c.Now,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	gw := cache.New(rdb, config.CacheConfig{Enabled: true, TTL: 60 * time.Second, Prefix: "cached"}, discardLogger())
	t.Cleanup(func() { _ = gw.Close() })

	log := discardLogger()
	users := repository.NewUserRepo(db)
	auth := NewAuthService(tokens, repository.NewTokenRepo(db), users, log)
	mail := &fakeMail{fail: map[queue.MailKind]bool{}}
	objects := newFakeObjects()

	cat := &model.Category{Title: "Bikes"}
	require.NoError(t, db.Create(cat).Error)

	return &testEnv{
		db:       db,
		clock:    c,
		tokens:   tokens,
		users:    users,
		auth:     auth,
		accounts: NewUserService(users, auth, tokens, utils.NewPasswordManager(bcrypt.MinCost), mail, resetURL, log),
		ann: NewAnnouncementService(
			repository.NewAnnouncementRepo(db),
			repository.NewCategoryRepo(db),
			objects,
			gw,
			log,
		),
		mail:     mail,
		objects:  objects,
		mr:       mr,
		category: cat.ID,
	}
}

// hashes lists the stored refresh token hashes of the user, oldest first.
func (e *testEnv) hashes(t *testing.T, userID string) []string {
	t.Helper()
	var out []string
	require.NoError(t, e.db.Model(&model.RefreshToken{}).Where("user_id = ?", userID).Order("id").Pluck("token_hash", &out).Error)
	return out
}

func (e *testEnv) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Name: "Test", Email: email, PasswordHash: "x", RoleID: role}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) announcement(t *testing.T, owner *model.User, price int64, discount *int) *model.Announcement {
	t.Helper()
	a, err := e.ann.Create(context.Background(), AnnouncementInput{
		Title:       "Bike",
		Description: "red, barely used",
		Price:       price,
		Discount:    discount,
		CategoryID:  e.category,
	}, owner)
	require.NoError(t, err)
	return a
}

func intPtr(v int) *int { return &v }
