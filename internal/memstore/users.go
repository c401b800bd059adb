package memstore

import (
	"context"
	"time"

	"libraryapi/internal/user"

	"github.com/google/uuid"
)

// Users is the user.Repository view of the store. Its method names clash
// with the book repository, so it is a separate type over the same state.
type Users struct{ s *Store }

func (s *Store) Users() Users { return Users{s: s} }

func (u Users) Create(ctx context.Context, usr *user.User) error {
	defer u.s.lock(ctx)()

	if _, taken := u.s.emails[usr.Email]; taken {
		return user.ErrAlreadyExists
	}
	now := u.s.now()
	usr.ID = uuid.NewString()
	usr.CreatedAt, usr.UpdatedAt = now, now
	u.s.users[usr.ID] = *usr
	u.s.emails[usr.Email] = usr.ID
	return nil
}

func (u Users) GetByEmail(ctx context.Context, email string) (user.User, error) {
	defer u.s.lock(ctx)()

	id, ok := u.s.emails[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u.s.users[id], nil
}

func (u Users) GetByID(ctx context.Context, id string) (user.User, error) {
	defer u.s.lock(ctx)()

	usr, ok := u.s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (u Users) UpdateProfile(ctx context.Context, userID string, p user.Profile) (user.User, error) {
	defer u.s.lock(ctx)()

	usr, ok := u.s.users[userID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if p.FirstName != nil {
		usr.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		usr.LastName = *p.LastName
	}
	usr.UpdatedAt = u.s.now()
	u.s.users[userID] = usr
	return usr, nil
}

// Revoke records a logged-out token. Revocations sit outside transaction
// snapshots.
func (u Users) Revoke(ctx context.Context, jti, _ string, expiresAt time.Time) error {
	defer u.s.lock(ctx)()

	if _, ok := u.s.revoked[jti]; !ok {
		u.s.revoked[jti] = expiresAt
	}
	return nil
}

func (u Users) IsRevoked(ctx context.Context, jti string) (bool, error) {
	defer u.s.lock(ctx)()

	exp, ok := u.s.revoked[jti]
	return ok && exp.After(u.s.now()), nil
}

func (u Users) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	defer u.s.lock(ctx)()

	var n int64
	for jti, exp := range u.s.revoked {
		if !exp.After(now) {
			delete(u.s.revoked, jti)
			n++
		}
	}
	return n, nil
}
