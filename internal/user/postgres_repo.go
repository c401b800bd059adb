package user

import (
	"context"
	"errors"
	"time"

	"libraryapi/internal/platform/db"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, first_name, last_name, password_hash, role, created_at, updated_at`

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(pool *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: pool, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) Create(ctx context.Context, u *User) error {
	const query = `
	INSERT INTO users (id, email, first_name, last_name, password_hash, role)
	VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
	RETURNING id, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(db.Conn(ctx, r.db).QueryRow(timeoutCtx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (User, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(db.Conn(ctx, r.db).QueryRow(timeoutCtx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PostgresRepo) UpdateProfile(ctx context.Context, userID string, p Profile) (User, error) {
	const query = `
	UPDATE users SET
		first_name = COALESCE($2, first_name),
		last_name  = COALESCE($3, last_name),
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + userColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, userID, p.FirstName, p.LastName))
}
