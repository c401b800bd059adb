package user

import (
	"errors"
	"time"
)

const (
	RoleLibrarian   = "librarian"
	RoleLibraryUser = "library_user"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRevocationDisabled = errors.New("token revocation is not configured")
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u User) IsLibrarian() bool { return u.Role == RoleLibrarian }

// Profile is the editable part of a user.
type Profile struct {
	FirstName *string
	LastName  *string
}
