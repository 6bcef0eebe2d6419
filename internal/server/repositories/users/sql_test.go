package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	userColumns = []string{"id", "username", "password_hash", "role", "refresh_token", "refresh_token_expires_at", "created_at"}
	created     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

const (
	qSelectByName = `(?s)^SELECT\s+id,\s*username,\s*password_hash,\s*role,\s*refresh_token,\s*refresh_token_expires_at,\s*created_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1$`
	qSelectByID   = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	qExists       = `(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\)$`
	qInsert       = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*username,\s*password_hash,\s*role,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`
	qSave         = `(?s)^UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$1,\s*refresh_token_expires_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3\s*$`
	qCAS          = `(?s)^UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$1,\s*refresh_token_expires_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3\s+AND\s+refresh_token\s*=\s*\$4\s*$`
)

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewSQLRepository(db), mock
}

func TestFindByUsername_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := created.Add(time.Hour)

	mock.ExpectQuery(qSelectByName).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-1", "alice", "$argon2id$x", "Admin", "tok", exp, created))

	got, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, "alice", got.UserName)
	assert.Equal(t, "$argon2id$x", got.PasswordHash)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	require.NotNil(t, got.RefreshToken)
	assert.Equal(t, "tok", *got.RefreshToken)
	require.NotNil(t, got.RefreshTokenExpiresAt)
	assert.True(t, got.RefreshTokenExpiresAt.Equal(exp))
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestFindByUsername_NullRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(qSelectByName).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-2", "bob", "h", "User", nil, nil, created))

	got, err := repo.FindByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Nil(t, got.RefreshToken)
	assert.Nil(t, got.RefreshTokenExpiresAt)
	assert.False(t, got.HasRefreshToken())
}

func TestFindByUsername_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(qSelectByName).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestFindByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(qSelectByID).WithArgs("u-1").WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), "u-1")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFindByID_UnknownRole(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(qSelectByID).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u-1", "alice", "h", "Root", nil, nil, created))

	_, err := repo.FindByID(context.Background(), "u-1")
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestFindByID_ContextCanceled(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(qSelectByID).WithArgs("u-1").WillReturnError(context.Canceled)

	_, err := repo.FindByID(context.Background(), "u-1")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExists(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(qExists).WithArgs("alice").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(qExists).WithArgs("bob").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(qExists).WithArgs("carol").WillReturnError(errors.New("db down"))

	ok, err := repo.Exists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Exists(context.Background(), "carol")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestInsert(t *testing.T) {
	user := &models.User{ID: "u-1", UserName: "alice", PasswordHash: "h", Role: auth.RoleUser, CreatedAt: created}

	t.Run("success", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qInsert).
			WithArgs("u-1", "alice", "h", "User", created).
			WillReturnResult(sqlmock.NewResult(0, 1))

		got, err := repo.Insert(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, *user, *got)
		assert.NotSame(t, user, got)
	})

	t.Run("postgres unique violation", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qInsert).
			WithArgs("u-1", "alice", "h", "User", created).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

		_, err := repo.Insert(context.Background(), user)
		require.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("other postgres error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qInsert).
			WithArgs("u-1", "alice", "h", "User", created).
			WillReturnError(&pgconn.PgError{Code: "57P01"})

		_, err := repo.Insert(context.Background(), user)
		require.ErrorIs(t, err, common.ErrStorageUnavailable)
		assert.NotErrorIs(t, err, common.ErrConflict)
	})
}

func TestSave(t *testing.T) {
	tok := "new-token"
	exp := created.Add(7 * 24 * time.Hour)
	user := &models.User{ID: "u-1", RefreshToken: &tok, RefreshTokenExpiresAt: &exp}

	t.Run("updates refresh token", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qSave).WithArgs("new-token", exp, "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Save(context.Background(), user))
	})

	t.Run("clears refresh token", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qSave).WithArgs(nil, nil, "u-2").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Save(context.Background(), &models.User{ID: "u-2"}))
	})

	t.Run("unknown user", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qSave).WithArgs("new-token", exp, "u-1").WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, repo.Save(context.Background(), user), common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qSave).WillReturnError(errors.New("db down"))
		require.ErrorIs(t, repo.Save(context.Background(), user), common.ErrStorageUnavailable)
	})
}

func TestCompareAndSwapRefreshToken(t *testing.T) {
	exp := created.Add(time.Hour)

	t.Run("swapped", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qCAS).WithArgs("r2", exp, "u-1", "r1").WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.CompareAndSwapRefreshToken(context.Background(), "u-1", "r1", "r2", exp)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lost the race", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qCAS).WithArgs("r2", exp, "u-1", "r1").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.CompareAndSwapRefreshToken(context.Background(), "u-1", "r1", "r2", exp)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(qCAS).WillReturnError(errors.New("db down"))

		_, err := repo.CompareAndSwapRefreshToken(context.Background(), "u-1", "r1", "r2", exp)
		require.ErrorIs(t, err, common.ErrStorageUnavailable)
	})
}
