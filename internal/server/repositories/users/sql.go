package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// SQLRepository implements Repository for both Postgres (pgx) and SQLite
// (modernc). The queries use $N placeholders, which both drivers accept.
type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

const selectUser = `SELECT id, username, password_hash, role, refresh_token, refresh_token_expires_at, created_at
		 FROM users
		`

func (r *SQLRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, selectUser+`WHERE username = $1`, username)
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, selectUser+`WHERE id = $1`, id)
}

func (r *SQLRepository) findOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		u         models.User
		role      string
		token     sql.NullString
		expiresAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.UserName, &u.PasswordHash, &role, &token, &expiresAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, storageError(err)
	}

	u.Role, err = auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", common.ErrorInternal, u.ID, err)
	}
	if token.Valid {
		u.RefreshToken = &token.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		u.RefreshTokenExpiresAt = &t
	}

	return &u, nil
}

func (r *SQLRepository) Exists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, storageError(err)
	}
	return exists, nil
}

func (r *SQLRepository) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (id, username, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.UserName, user.PasswordHash, string(user.Role), user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %q", common.ErrConflict, user.UserName)
		}
		return nil, storageError(err)
	}

	created := *user
	return &created, nil
}

func (r *SQLRepository) Save(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET refresh_token = $1, refresh_token_expires_at = $2
		 WHERE id = $3
		`

	res, err := r.db.ExecContext(ctx, query, nullString(user.RefreshToken), nullTime(user.RefreshTokenExpiresAt), user.ID)
	if err != nil {
		return storageError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storageError(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLRepository) CompareAndSwapRefreshToken(ctx context.Context, userID, expected, token string, expiresAt time.Time) (bool, error) {
	query :=
		`UPDATE users SET refresh_token = $1, refresh_token_expires_at = $2
		 WHERE id = $3 AND refresh_token = $4
		`

	res, err := r.db.ExecContext(ctx, query, token, expiresAt.UTC(), userID, expected)
	if err != nil {
		return false, storageError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storageError(err)
	}
	return n == 1, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// storageError hides driver details behind common.ErrStorageUnavailable while
// keeping context cancellation matchable.
func storageError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
