package circulation

import (
	"fmt"
	"time"
)

// NewLoan builds an active loan borrowed at now. reservationID is nil for direct loans.
func NewLoan(id, userID, bookID string, reservationID *string, now time.Time, period time.Duration) Loan {
	return Loan{
		ID:            id,
		BookID:        bookID,
		UserID:        userID,
		ReservationID: reservationID,
		BorrowedAt:    now,
		DueAt:         now.Add(period),
		Status:        LoanActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (l Loan) MarkOverdue(now time.Time) (LoanTransition, error) {
	if l.Status != LoanActive {
		return LoanTransition{}, fmt.Errorf("mark overdue loan in status %s: %w", l.Status, ErrInvalidTransition)
	}
	if !now.After(l.DueAt) {
		return LoanTransition{}, fmt.Errorf("mark overdue loan due %s: %w", l.DueAt.Format(time.RFC3339), ErrInvalidTransition)
	}
	return LoanTransition{From: LoanActive, To: LoanOverdue}, nil
}

// Return closes an active or overdue loan and restores its copy.
func (l Loan) Return() (LoanTransition, error) {
	if !l.Status.Open() {
		return LoanTransition{}, fmt.Errorf("return loan in status %s: %w", l.Status, ErrInvalidTransition)
	}
	return LoanTransition{From: l.Status, To: LoanReturned, RestoresCopy: true}, nil
}
