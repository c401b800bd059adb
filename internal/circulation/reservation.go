package circulation

import (
	"fmt"
	"time"
)

// NewReservation builds an active reservation starting at now.
func NewReservation(id, userID, bookID string, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:         id,
		BookID:     bookID,
		UserID:     userID,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
		Status:     ReservationActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Expire moves an active reservation past its expiry to expired.
func (r Reservation) Expire(now time.Time) (ReservationTransition, error) {
	if r.Status != ReservationActive {
		return ReservationTransition{}, fmt.Errorf("expire reservation in status %s: %w", r.Status, ErrInvalidTransition)
	}
	if !now.After(r.ExpiresAt) {
		return ReservationTransition{}, fmt.Errorf("expire reservation before %s: %w", r.ExpiresAt.Format(time.RFC3339), ErrInvalidTransition)
	}
	return ReservationTransition{From: ReservationActive, To: ReservationExpired, RestoresCopy: true}, nil
}

func (r Reservation) Cancel() (ReservationTransition, error) {
	if r.Status != ReservationActive {
		return ReservationTransition{}, fmt.Errorf("cancel reservation in status %s: %w", r.Status, ErrInvalidTransition)
	}
	return ReservationTransition{From: ReservationActive, To: ReservationCancelled, RestoresCopy: true}, nil
}

// ConvertToLoan keeps the held copy with the user, so availability is untouched.
// A reservation that has lapsed but not yet been swept cannot be converted.
func (r Reservation) ConvertToLoan(now time.Time) (ReservationTransition, error) {
	if r.Status != ReservationActive {
		return ReservationTransition{}, fmt.Errorf("convert reservation in status %s: %w", r.Status, ErrInvalidTransition)
	}
	if now.After(r.ExpiresAt) {
		return ReservationTransition{}, fmt.Errorf("convert reservation expired at %s: %w", r.ExpiresAt.Format(time.RFC3339), ErrInvalidTransition)
	}
	return ReservationTransition{From: ReservationActive, To: ReservationConverted}, nil
}
