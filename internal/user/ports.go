package user

//go:generate mockgen -source=ports.go -destination=mock_repository_test.go -package=user

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	UpdateProfile(ctx context.Context, userID string, p Profile) (User, error)
}

// RevocationStore remembers logged-out token ids until the token would have
// expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
