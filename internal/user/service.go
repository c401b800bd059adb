package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"libraryapi/internal/platform/crypto"
)

const DefaultTokenTTL = 24 * time.Hour

type Service struct {
	repo     Repository
	revoked  RevocationStore
	secret   string
	tokenTTL time.Duration
}

type Option func(*Service)

// WithRevocations enables Logout. Without a store tokens stay valid until
// they expire.
func WithRevocations(store RevocationStore) Option {
	return func(s *Service) { s.revoked = store }
}

func NewService(repo Repository, secret string, tokenTTL time.Duration, opts ...Option) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	s := &Service{repo: repo, secret: secret, tokenTTL: tokenTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// Register creates a user. Role defaults to library_user.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := crypto.HashPassword(reg.Password)
	if err != nil {
		return User{}, err
	}

	role := reg.Role
	if role == "" {
		role = RoleLibraryUser
	}
	u := &User{
		Email:        email,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return *u, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}
	if !crypto.VerifyPassword(u.PasswordHash, password) {
		return "", User{}, ErrInvalidCredentials
	}

	token, _, err := crypto.GenerateToken(s.secret, u.ID, u.Role, s.tokenTTL)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

// Logout revokes the token's jti until its expiry.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.revoked == nil {
		return ErrRevocationDisabled
	}
	claims, err := crypto.ParseToken(s.secret, token)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ErrInvalidToken
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.Sub, claims.ExpiresAt.Time)
}

// IsRevoked is the auth middleware's revocation check.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.revoked == nil || jti == "" {
		return false, nil
	}
	return s.revoked.IsRevoked(ctx, jti)
}

// PurgeRevoked drops revocations whose tokens have expired.
func (s *Service) PurgeRevoked(ctx context.Context, now time.Time) (int64, error) {
	if s.revoked == nil {
		return 0, nil
	}
	return s.revoked.PurgeExpired(ctx, now)
}

func (s *Service) TokenTTL() time.Duration { return s.tokenTTL }

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, p Profile) (User, error) {
	return s.repo.UpdateProfile(ctx, userID, p)
}

// Exists lets circulation check a loan recipient.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
