package user

import (
	"context"
	"time"

	"libraryapi/internal/platform/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRevocations keeps revoked token ids in revoked_tokens.
type PostgresRevocations struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRevocations(pool *pgxpool.Pool, timeout time.Duration) *PostgresRevocations {
	return &PostgresRevocations{db: pool, timeout: timeout}
}

func (r *PostgresRevocations) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	const query = `
	INSERT INTO revoked_tokens (jti, user_id, expires_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (jti) DO NOTHING
	`
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query, jti, userID, expiresAt)
	return err
}

func (r *PostgresRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `
	SELECT EXISTS(
		SELECT 1 FROM revoked_tokens
		WHERE jti = $1 AND expires_at > NOW()
	)
	`
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var revoked bool
	err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, jti).Scan(&revoked)
	return revoked, err
}

func (r *PostgresRevocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	tag, err := db.Conn(ctx, r.db).Exec(timeoutCtx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
