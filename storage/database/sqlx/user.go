package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cheti/core/user"
)

type userRow struct {
	ID           string      `db:"id"`
	Name         null.String `db:"name"`
	Username     string      `db:"username"`
	Email        string      `db:"email"`
	Agency       null.String `db:"agency"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name.String,
		Username:     r.Username,
		Email:        r.Email,
		Agency:       r.Agency.String,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

const selectUser = `
SELECT id, name, username, email, agency, is_active, password_hash, created_at, updated_at
FROM "user"`

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
INSERT INTO "user" (id, name, username, email, agency, is_active, password_hash)
VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7)
RETURNING created_at, updated_at`
	err := repo.db.QueryRowxContext(
		ctx, q, usr.ID, usr.Name, usr.Username, usr.Email, usr.Agency, usr.IsActive, usr.PasswordHash,
	).Scan(&usr.CreatedAt, &usr.UpdatedAt)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, selectUser); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) getOne(ctx context.Context, q string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "querying user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getOne(ctx, selectUser+` WHERE lower(username) = lower($1)`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getOne(ctx, selectUser+` WHERE lower(email) = lower($1)`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getOne(ctx, selectUser+` WHERE lower(username) = lower($1) OR lower(email) = lower($1)`, username)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
UPDATE "user"
SET name          = COALESCE(NULLIF($2, ''), name),
    username      = COALESCE(NULLIF($3, ''), username),
    email         = COALESCE(NULLIF($4, ''), email),
    agency        = COALESCE(NULLIF($5, ''), agency),
    is_active     = $6,
    password_hash = COALESCE($7, password_hash),
    updated_at    = now()
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, usr.ID, usr.Name, usr.Username, usr.Email, usr.Agency, usr.IsActive, usr.PasswordHash)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}
