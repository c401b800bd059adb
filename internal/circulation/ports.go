package circulation

//go:generate mockgen -source=ports.go -destination=mock_ports_test.go -package=circulation

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
}

type IDGen interface {
	New() (string, error)
}

// Ledger moves Book.available_quantity. Take fails with ErrOutOfStock at zero;
// Restore never exceeds the book's quantity.
type Ledger interface {
	Take(ctx context.Context, bookID string) (int, error)
	Restore(ctx context.Context, bookID string) (int, error)
}

// TxRunner runs fn in one transaction. Repository and Ledger calls made with
// the ctx passed to fn join it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository stores reservations, loans and transfers. The Update* methods
// are compare-and-swap on status and return ErrInvalidTransition when the
// row is no longer in the expected status.
type Repository interface {
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id string, forUpdate bool) (Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error)
	CountActiveReservations(ctx context.Context, userID string) (int, error)
	HasActiveReservation(ctx context.Context, userID, bookID string) (bool, error)
	UpdateReservationStatus(ctx context.Context, id string, t ReservationTransition, at time.Time) error
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	CreateLoan(ctx context.Context, l *Loan) error
	GetLoan(ctx context.Context, id string, forUpdate bool) (Loan, error)
	GetLoans(ctx context.Context, ids []string) ([]Loan, error)
	ListLoans(ctx context.Context, f LoanFilter) ([]Loan, error)
	CountOpenLoans(ctx context.Context, userID string) (int, error)
	HasOpenLoan(ctx context.Context, userID, bookID string) (bool, error)
	UpdateLoanStatus(ctx context.Context, id string, t LoanTransition, at time.Time) error
	ReassignLoan(ctx context.Context, id, fromUser, toUser string, at time.Time) error
	DueLoans(ctx context.Context, now time.Time, limit int) ([]Loan, error)

	CreateTransfer(ctx context.Context, t *LoanTransfer) error
	GetTransfer(ctx context.Context, id string) (LoanTransfer, error)
	ListTransfers(ctx context.Context, f TransferFilter) ([]LoanTransfer, error)

	// LockUser serialises limit checks for one user until the transaction ends.
	LockUser(ctx context.Context, userID string) error
}

type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// DueIndex is an optional external index of loan due dates.
type DueIndex interface {
	Schedule(ctx context.Context, loanID string, due time.Time) error
	Remove(ctx context.Context, loanIDs ...string) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
}
