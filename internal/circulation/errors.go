package circulation

import (
	"errors"

	"libraryapi/internal/book"
)

var (
	// ErrOutOfStock shares identity with the book ledger's error.
	ErrOutOfStock        = book.ErrOutOfStock
	ErrLimitExceeded     = errors.New("limit exceeded")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotOwner          = errors.New("not the owner")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateHold     = errors.New("user already holds this book")
	ErrSameUser          = errors.New("cannot share a loan with yourself")
)

type ErrCode string

const (
	CodeOutOfStock        ErrCode = "OUT_OF_STOCK"
	CodeLimitExceeded     ErrCode = "LIMIT_EXCEEDED"
	CodeInvalidTransition ErrCode = "INVALID_TRANSITION"
	CodeNotOwner          ErrCode = "NOT_OWNER"
	CodeNotFound          ErrCode = "NOT_FOUND"
	CodeDuplicateHold     ErrCode = "DUPLICATE_HOLD"
	CodeSameUser          ErrCode = "SAME_USER"
	CodeInternal          ErrCode = "INTERNAL_ERROR"
)

// Code maps err to a stable API code.
func Code(err error) ErrCode {
	switch {
	case errors.Is(err, ErrOutOfStock):
		return CodeOutOfStock
	case errors.Is(err, ErrLimitExceeded):
		return CodeLimitExceeded
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, ErrNotFound), errors.Is(err, book.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateHold):
		return CodeDuplicateHold
	case errors.Is(err, ErrSameUser):
		return CodeSameUser
	default:
		return CodeInternal
	}
}
