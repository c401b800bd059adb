package circulation

import (
	"time"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationConverted ReservationStatus = "converted_to_loan"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
)

// Open reports whether the loan still holds a copy of the book.
func (s LoanStatus) Open() bool {
	return s == LoanActive || s == LoanOverdue
}

// Reservation is a short-lived hold on one copy of a book.
type Reservation struct {
	ID         string            `json:"id"`
	BookID     string            `json:"book_id"`
	UserID     string            `json:"user_id"`
	ReservedAt time.Time         `json:"reserved_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// IsExpired is true for an active reservation past its expiry.
func (r Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}

// RemainingTime is zero once the reservation is no longer active or has lapsed.
func (r Reservation) RemainingTime(now time.Time) time.Duration {
	if r.Status != ReservationActive || !now.Before(r.ExpiresAt) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Loan is a copy of a book checked out to a user.
type Loan struct {
	ID            string     `json:"id"`
	BookID        string     `json:"book_id"`
	UserID        string     `json:"user_id"`
	ReservationID *string    `json:"reservation_id,omitempty"`
	BorrowedAt    time.Time  `json:"borrowed_at"`
	DueAt         time.Time  `json:"due_at"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	Status        LoanStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (l Loan) IsOverdue(now time.Time) bool {
	return l.Status.Open() && now.After(l.DueAt)
}

func (l Loan) RemainingTime(now time.Time) time.Duration {
	if !l.Status.Open() || !now.Before(l.DueAt) {
		return 0
	}
	return l.DueAt.Sub(now)
}

// LoanTransfer records a change of loan holder. Rows are never updated.
type LoanTransfer struct {
	ID            string    `json:"id"`
	LoanID        string    `json:"loan_id"`
	FromUserID    string    `json:"from_user_id"`
	ToUserID      string    `json:"to_user_id"`
	TransferredAt time.Time `json:"transferred_at"`
	Accepted      bool      `json:"accepted"`
}

// Actor is the user performing an operation.
type Actor struct {
	UserID    string
	Librarian bool
}

// canAct is true when the actor holds the record or is staff.
func (a Actor) canAct(holderID string) bool {
	return a.Librarian || a.UserID == holderID
}

type ReservationFilter struct {
	UserID string
	BookID string
	Status ReservationStatus
	// AfterID pages by id; ids sort by creation time.
	AfterID string
	Limit   int
}

type LoanFilter struct {
	UserID   string
	BookID   string
	Statuses []LoanStatus
	AfterID  string
	Limit    int
}

// TransferFilter matches transfers where UserID is either side.
type TransferFilter struct {
	UserID  string
	LoanID  string
	AfterID string
	Limit   int
}
