package circulation

import (
	"context"
	"fmt"
)

// Standing is a user's usage against the circulation limits.
type Standing struct {
	UserID                string `json:"user_id"`
	ActiveReservations    int    `json:"active_reservations"`
	MaxActiveReservations int    `json:"max_active_reservations"`
	OpenLoans             int    `json:"open_loans"`
	MaxActiveLoans        int    `json:"max_active_loans"`
	CanReserve            bool   `json:"can_reserve"`
	CanBorrow             bool   `json:"can_borrow"`
}

// Standing counts the user's active reservations and open loans. Library
// users may only ask about themselves.
func (s *Service) Standing(ctx context.Context, actor Actor, userID string) (Standing, error) {
	if !actor.canAct(userID) {
		return Standing{}, ErrNotOwner
	}
	reservations, err := s.repo.CountActiveReservations(ctx, userID)
	if err != nil {
		return Standing{}, fmt.Errorf("count reservations: %w", err)
	}
	loans, err := s.repo.CountOpenLoans(ctx, userID)
	if err != nil {
		return Standing{}, fmt.Errorf("count loans: %w", err)
	}
	return Standing{
		UserID:                userID,
		ActiveReservations:    reservations,
		MaxActiveReservations: s.policy.MaxActiveReservations,
		OpenLoans:             loans,
		MaxActiveLoans:        s.policy.MaxActiveLoans,
		CanReserve:            s.policy.CanCreateReservation(reservations) == nil,
		CanBorrow:             s.policy.CanCreateLoan(loans) == nil,
	}, nil
}
