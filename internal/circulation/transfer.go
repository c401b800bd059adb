package circulation

import (
	"fmt"
	"time"
)

// CanShare checks that fromUser may hand the loan to toUser.
// The loan keeps its status and due date.
func (l Loan) CanShare(fromUser, toUser string) error {
	if !l.Status.Open() {
		return fmt.Errorf("share loan in status %s: %w", l.Status, ErrInvalidTransition)
	}
	if l.UserID != fromUser {
		return ErrNotOwner
	}
	if fromUser == toUser {
		return ErrSameUser
	}
	return nil
}

func NewTransfer(id string, l Loan, toUser string, now time.Time) LoanTransfer {
	return LoanTransfer{
		ID:            id,
		LoanID:        l.ID,
		FromUserID:    l.UserID,
		ToUserID:      toUser,
		TransferredAt: now,
		Accepted:      true,
	}
}
