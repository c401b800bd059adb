package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"libraryapi/internal/circulation"
)

// sortedByID returns the values of m in id order. Ids are ULIDs, so this is
// creation order.
func sortedByID[T any](m map[string]T, keep func(T) bool) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := []T{}
	for _, id := range ids {
		if v := m[id]; keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) CreateReservation(ctx context.Context, r *circulation.Reservation) error {
	defer s.lock(ctx)()

	if _, ok := s.books[r.BookID]; !ok {
		return fmt.Errorf("%w: book %s", circulation.ErrNotFound, r.BookID)
	}
	for _, other := range s.reservations {
		if other.UserID == r.UserID && other.BookID == r.BookID && other.Status == circulation.ReservationActive {
			return circulation.ErrDuplicateHold
		}
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string, _ bool) (circulation.Reservation, error) {
	defer s.lock(ctx)()

	r, ok := s.reservations[id]
	if !ok {
		return circulation.Reservation{}, fmt.Errorf("%w: reservation %s", circulation.ErrNotFound, id)
	}
	return r, nil
}

func (s *Store) ListReservations(ctx context.Context, f circulation.ReservationFilter) ([]circulation.Reservation, error) {
	defer s.lock(ctx)()

	out := sortedByID(s.reservations, func(r circulation.Reservation) bool {
		return (f.UserID == "" || r.UserID == f.UserID) &&
			(f.BookID == "" || r.BookID == f.BookID) &&
			(f.Status == "" || r.Status == f.Status) &&
			(f.AfterID == "" || r.ID > f.AfterID)
	})
	return page(out, f.Limit), nil
}

func (s *Store) CountActiveReservations(ctx context.Context, userID string) (int, error) {
	defer s.lock(ctx)()

	n := 0
	for _, r := range s.reservations {
		if r.UserID == userID && r.Status == circulation.ReservationActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasActiveReservation(ctx context.Context, userID, bookID string) (bool, error) {
	defer s.lock(ctx)()

	for _, r := range s.reservations {
		if r.UserID == userID && r.BookID == bookID && r.Status == circulation.ReservationActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, t circulation.ReservationTransition, at time.Time) error {
	defer s.lock(ctx)()

	r, ok := s.reservations[id]
	if !ok {
		return fmt.Errorf("%w: reservation %s", circulation.ErrNotFound, id)
	}
	if r.Status != t.From {
		return fmt.Errorf("reservation %s is %s, not %s: %w", id, r.Status, t.From, circulation.ErrInvalidTransition)
	}
	r.Status = t.To
	r.UpdatedAt = at
	s.reservations[id] = r
	return nil
}

func (s *Store) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]circulation.Reservation, error) {
	defer s.lock(ctx)()

	out := sortedByID(s.reservations, func(r circulation.Reservation) bool { return r.IsExpired(now) })
	slices.SortStableFunc(out, func(a, b circulation.Reservation) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return page(out, limit), nil
}

func (s *Store) CreateLoan(ctx context.Context, l *circulation.Loan) error {
	defer s.lock(ctx)()

	if _, ok := s.books[l.BookID]; !ok {
		return fmt.Errorf("%w: book %s", circulation.ErrNotFound, l.BookID)
	}
	for _, other := range s.loans {
		if other.UserID == l.UserID && other.BookID == l.BookID && other.Status.Open() {
			return circulation.ErrDuplicateHold
		}
	}
	s.loans[l.ID] = *l
	return nil
}

func (s *Store) GetLoan(ctx context.Context, id string, _ bool) (circulation.Loan, error) {
	defer s.lock(ctx)()

	l, ok := s.loans[id]
	if !ok {
		return circulation.Loan{}, fmt.Errorf("%w: loan %s", circulation.ErrNotFound, id)
	}
	return l, nil
}

// GetLoans skips ids that do not exist.
func (s *Store) GetLoans(ctx context.Context, ids []string) ([]circulation.Loan, error) {
	defer s.lock(ctx)()

	out := make([]circulation.Loan, 0, len(ids))
	for _, id := range ids {
		if l, ok := s.loans[id]; ok {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b circulation.Loan) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) ListLoans(ctx context.Context, f circulation.LoanFilter) ([]circulation.Loan, error) {
	defer s.lock(ctx)()

	out := sortedByID(s.loans, func(l circulation.Loan) bool {
		return (f.UserID == "" || l.UserID == f.UserID) &&
			(f.BookID == "" || l.BookID == f.BookID) &&
			(len(f.Statuses) == 0 || slices.Contains(f.Statuses, l.Status)) &&
			(f.AfterID == "" || l.ID > f.AfterID)
	})
	return page(out, f.Limit), nil
}

func (s *Store) CountOpenLoans(ctx context.Context, userID string) (int, error) {
	defer s.lock(ctx)()

	n := 0
	for _, l := range s.loans {
		if l.UserID == userID && l.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasOpenLoan(ctx context.Context, userID, bookID string) (bool, error) {
	defer s.lock(ctx)()

	for _, l := range s.loans {
		if l.UserID == userID && l.BookID == bookID && l.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateLoanStatus(ctx context.Context, id string, t circulation.LoanTransition, at time.Time) error {
	defer s.lock(ctx)()

	l, ok := s.loans[id]
	if !ok {
		return fmt.Errorf("%w: loan %s", circulation.ErrNotFound, id)
	}
	if l.Status != t.From {
		return fmt.Errorf("loan %s is %s, not %s: %w", id, l.Status, t.From, circulation.ErrInvalidTransition)
	}
	l.Status = t.To
	l.UpdatedAt = at
	if t.To == circulation.LoanReturned {
		l.ReturnedAt = &at
	}
	s.loans[id] = l
	return nil
}

// ReassignLoan moves an open loan held by fromUser to toUser.
func (s *Store) ReassignLoan(ctx context.Context, id, fromUser, toUser string, at time.Time) error {
	defer s.lock(ctx)()

	l, ok := s.loans[id]
	if !ok {
		return fmt.Errorf("%w: loan %s", circulation.ErrNotFound, id)
	}
	if !l.Status.Open() || l.UserID != fromUser {
		return fmt.Errorf("reassign loan %s: %w", id, circulation.ErrInvalidTransition)
	}
	l.UserID = toUser
	l.UpdatedAt = at
	s.loans[id] = l
	return nil
}

func (s *Store) DueLoans(ctx context.Context, now time.Time, limit int) ([]circulation.Loan, error) {
	defer s.lock(ctx)()

	out := sortedByID(s.loans, func(l circulation.Loan) bool {
		return l.Status == circulation.LoanActive && now.After(l.DueAt)
	})
	slices.SortStableFunc(out, func(a, b circulation.Loan) int { return a.DueAt.Compare(b.DueAt) })
	return page(out, limit), nil
}

func (s *Store) CreateTransfer(ctx context.Context, t *circulation.LoanTransfer) error {
	defer s.lock(ctx)()

	if _, ok := s.loans[t.LoanID]; !ok {
		return fmt.Errorf("%w: loan %s", circulation.ErrNotFound, t.LoanID)
	}
	s.transfers[t.ID] = *t
	return nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (circulation.LoanTransfer, error) {
	defer s.lock(ctx)()

	t, ok := s.transfers[id]
	if !ok {
		return circulation.LoanTransfer{}, fmt.Errorf("%w: transfer %s", circulation.ErrNotFound, id)
	}
	return t, nil
}

func (s *Store) ListTransfers(ctx context.Context, f circulation.TransferFilter) ([]circulation.LoanTransfer, error) {
	defer s.lock(ctx)()

	out := sortedByID(s.transfers, func(t circulation.LoanTransfer) bool {
		return (f.UserID == "" || t.FromUserID == f.UserID || t.ToUserID == f.UserID) &&
			(f.LoanID == "" || t.LoanID == f.LoanID) &&
			(f.AfterID == "" || t.ID > f.AfterID)
	})
	return page(out, f.Limit), nil
}
