package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	usersrepo "github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// fakeUsersRepo keeps users in memory. The *Err fields force failures.
type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]models.User
	byName map[string]string

	findErr   error
	existsErr error
	insertErr error
	saveErr   error
	casErr    error

	inserts int
	saves   int
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]models.User{}, byName: map[string]string{}}
}

func (f *fakeUsersRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	id, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := f.byID[id]
	return &u, nil
}

func (f *fakeUsersRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (f *fakeUsersRepo) Exists(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byName[username]
	return ok, nil
}

func (f *fakeUsersRepo) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if _, ok := f.byName[user.UserName]; ok {
		return nil, common.ErrConflict
	}
	f.byID[user.ID] = *user
	f.byName[user.UserName] = user.ID
	u := *user
	return &u, nil
}

func (f *fakeUsersRepo) Save(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	u, ok := f.byID[user.ID]
	if !ok {
		return common.ErrorNotFound
	}
	u.RefreshToken, u.RefreshTokenExpiresAt = user.RefreshToken, user.RefreshTokenExpiresAt
	f.byID[user.ID] = u
	return nil
}

func (f *fakeUsersRepo) CompareAndSwapRefreshToken(ctx context.Context, userID, expected, token string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.casErr != nil {
		return false, f.casErr
	}
	u, ok := f.byID[userID]
	if !ok || u.RefreshToken == nil || *u.RefreshToken != expected {
		return false, nil
	}
	u.RefreshToken, u.RefreshTokenExpiresAt = &token, &expiresAt
	f.byID[userID] = u
	return true, nil
}

func (f *fakeUsersRepo) stored(t *testing.T, username string) models.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byName[username]
	require.True(t, ok, "user %q not stored", username)
	return f.byID[id]
}

type fakeRepoManager struct {
	u *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository { return m.u }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = strings.Repeat("s", config.MinSecretKeyLength)
	cfg.Argon2Time = 1
	cfg.Argon2MemoryKiB = 1024
	cfg.Argon2Threads = 1
	cfg.BcryptCost = 4
	cfg.AccessTokenValidityDuration = time.Hour
	cfg.RefreshTokenValidityDuration = 24 * time.Hour
	cfg.AdminUsers = []string{"root"}
	return cfg
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

func newTestService(t *testing.T, db *sql.DB, repo *fakeUsersRepo, c *clock) *AuthService {
	t.Helper()
	s, err := NewAuthService(db, &fakeRepoManager{u: repo}, testConfig(), WithClock(c.Now))
	require.NoError(t, err)
	return s
}
