package circulation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"libraryapi/internal/book"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type ulidGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Service runs the reservation, loan and transfer operations.
type Service struct {
	repo   Repository
	ledger Ledger
	tx     TxRunner
	users  UserDirectory
	index  DueIndex
	clock  Clock
	ids    IDGen
	policy Policy
	log    logrus.FieldLogger
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithIDGen(g IDGen) Option { return func(s *Service) { s.ids = g } }

func WithPolicy(p Policy) Option { return func(s *Service) { s.policy = p } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

func WithUserDirectory(u UserDirectory) Option { return func(s *Service) { s.users = u } }

// WithDueIndex enables the external due-date index.
func WithDueIndex(i DueIndex) Option { return func(s *Service) { s.index = i } }

func NewService(repo Repository, ledger Ledger, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ledger: ledger,
		tx:     tx,
		clock:  realClock{},
		ids:    newULIDGen(),
		policy: DefaultPolicy(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }

// Now reads the service clock.
func (s *Service) Now() time.Time { return s.clock.Now() }

func (s *Service) take(ctx context.Context, bookID string) error {
	if _, err := s.ledger.Take(ctx, bookID); err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return fmt.Errorf("%w: book %s", ErrNotFound, bookID)
		}
		return err
	}
	return nil
}

func (s *Service) restore(ctx context.Context, bookID string) error {
	if _, err := s.ledger.Restore(ctx, bookID); err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return fmt.Errorf("%w: book %s", ErrNotFound, bookID)
		}
		return err
	}
	return nil
}

func (s *Service) lockUser(ctx context.Context, userID string) error {
	if !s.policy.HardLimits {
		return nil
	}
	return s.repo.LockUser(ctx, userID)
}

func (s *Service) checkLoanLimit(ctx context.Context, userID string) error {
	open, err := s.repo.CountOpenLoans(ctx, userID)
	if err != nil {
		return err
	}
	return s.policy.CanCreateLoan(open)
}

func (s *Service) scheduleDue(ctx context.Context, l Loan) {
	if s.index == nil {
		return
	}
	if err := s.index.Schedule(ctx, l.ID, l.DueAt); err != nil {
		s.log.WithError(err).WithField("loan_id", l.ID).Warn("schedule loan due date")
	}
}

func (s *Service) unscheduleDue(ctx context.Context, ids ...string) {
	if s.index == nil || len(ids) == 0 {
		return
	}
	if err := s.index.Remove(ctx, ids...); err != nil {
		s.log.WithError(err).WithField("loan_ids", ids).Warn("remove loans from due index")
	}
}

// CreateReservation holds one copy of bookID for userID.
func (s *Service) CreateReservation(ctx context.Context, userID, bookID string) (Reservation, error) {
	id, err := s.ids.New()
	if err != nil {
		return Reservation{}, err
	}
	r := NewReservation(id, userID, bookID, s.clock.Now(), s.policy.ReservationTTL)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lockUser(ctx, userID); err != nil {
			return err
		}
		active, err := s.repo.CountActiveReservations(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.policy.CanCreateReservation(active); err != nil {
			return err
		}
		dup, err := s.repo.HasActiveReservation(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateHold
		}
		if err := s.take(ctx, bookID); err != nil {
			return err
		}
		return s.repo.CreateReservation(ctx, &r)
	})
	if err != nil {
		return Reservation{}, err
	}

	s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "book_id": bookID, "user_id": userID}).Info("reservation created")
	return r, nil
}

// CreateLoan checks a copy out to userID. With reservationID set, the
// reservation is converted instead and availability does not move again.
func (s *Service) CreateLoan(ctx context.Context, userID, bookID string, reservationID *string) (Loan, error) {
	if reservationID != nil {
		return s.convert(ctx, Actor{UserID: userID}, *reservationID, bookID)
	}

	id, err := s.ids.New()
	if err != nil {
		return Loan{}, err
	}
	l := NewLoan(id, userID, bookID, nil, s.clock.Now(), s.policy.LoanPeriod)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lockUser(ctx, userID); err != nil {
			return err
		}
		if err := s.checkLoanLimit(ctx, userID); err != nil {
			return err
		}
		dup, err := s.repo.HasOpenLoan(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateHold
		}
		if err := s.take(ctx, bookID); err != nil {
			return err
		}
		return s.repo.CreateLoan(ctx, &l)
	})
	if err != nil {
		return Loan{}, err
	}

	s.scheduleDue(ctx, l)
	s.log.WithFields(logrus.Fields{"loan_id": l.ID, "book_id": bookID, "user_id": userID}).Info("loan created")
	return l, nil
}

func (s *Service) CancelReservation(ctx context.Context, actor Actor, id string) error {
	now := s.clock.Now()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetReservation(ctx, id, true)
		if err != nil {
			return err
		}
		if !actor.canAct(r.UserID) {
			return ErrNotOwner
		}
		t, err := r.Cancel()
		if err != nil {
			return err
		}
		if err := s.repo.UpdateReservationStatus(ctx, id, t, now); err != nil {
			return err
		}
		return s.restore(ctx, r.BookID)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"reservation_id": id, "user_id": actor.UserID}).Info("reservation cancelled")
	return nil
}

// ConvertReservation turns the actor's active reservation into a loan.
func (s *Service) ConvertReservation(ctx context.Context, actor Actor, id string) (Loan, error) {
	return s.convert(ctx, actor, id, "")
}

func (s *Service) convert(ctx context.Context, actor Actor, reservationID, bookID string) (Loan, error) {
	loanID, err := s.ids.New()
	if err != nil {
		return Loan{}, err
	}
	now := s.clock.Now()

	var l Loan
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetReservation(ctx, reservationID, true)
		if err != nil {
			return err
		}
		if !actor.canAct(r.UserID) {
			return ErrNotOwner
		}
		if bookID != "" && r.BookID != bookID {
			return fmt.Errorf("reservation %s is for book %s: %w", r.ID, r.BookID, ErrInvalidTransition)
		}
		t, err := r.ConvertToLoan(now)
		if err != nil {
			return err
		}
		if err := s.lockUser(ctx, r.UserID); err != nil {
			return err
		}
		if err := s.checkLoanLimit(ctx, r.UserID); err != nil {
			return err
		}
		dup, err := s.repo.HasOpenLoan(ctx, r.UserID, r.BookID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateHold
		}
		if err := s.repo.UpdateReservationStatus(ctx, r.ID, t, now); err != nil {
			return err
		}
		rid := r.ID
		l = NewLoan(loanID, r.UserID, r.BookID, &rid, now, s.policy.LoanPeriod)
		return s.repo.CreateLoan(ctx, &l)
	})
	if err != nil {
		return Loan{}, err
	}

	s.scheduleDue(ctx, l)
	s.log.WithFields(logrus.Fields{"reservation_id": reservationID, "loan_id": l.ID, "user_id": l.UserID}).Info("reservation converted to loan")
	return l, nil
}

func (s *Service) ReturnLoan(ctx context.Context, actor Actor, id string) (Loan, error) {
	now := s.clock.Now()
	var l Loan
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		l, err = s.repo.GetLoan(ctx, id, true)
		if err != nil {
			return err
		}
		if !actor.canAct(l.UserID) {
			return ErrNotOwner
		}
		t, err := l.Return()
		if err != nil {
			return err
		}
		if err := s.repo.UpdateLoanStatus(ctx, id, t, now); err != nil {
			return err
		}
		l.Status = t.To
		l.ReturnedAt = &now
		l.UpdatedAt = now
		return s.restore(ctx, l.BookID)
	})
	if err != nil {
		return Loan{}, err
	}

	s.unscheduleDue(ctx, id)
	s.log.WithFields(logrus.Fields{"loan_id": id, "user_id": actor.UserID}).Info("loan returned")
	return l, nil
}

// ShareLoan hands an open loan from its holder to another user. The due
// date and availability are unchanged.
func (s *Service) ShareLoan(ctx context.Context, id, fromUser, toUser string) (LoanTransfer, error) {
	transferID, err := s.ids.New()
	if err != nil {
		return LoanTransfer{}, err
	}
	now := s.clock.Now()

	var tr LoanTransfer
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetLoan(ctx, id, true)
		if err != nil {
			return err
		}
		if err := l.CanShare(fromUser, toUser); err != nil {
			return err
		}
		if s.users != nil {
			ok, err := s.users.Exists(ctx, toUser)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: user %s", ErrNotFound, toUser)
			}
		}
		if err := s.lockUser(ctx, toUser); err != nil {
			return err
		}
		if err := s.checkLoanLimit(ctx, toUser); err != nil {
			return err
		}
		if err := s.repo.ReassignLoan(ctx, id, fromUser, toUser, now); err != nil {
			return err
		}
		tr = NewTransfer(transferID, l, toUser, now)
		return s.repo.CreateTransfer(ctx, &tr)
	})
	if err != nil {
		return LoanTransfer{}, err
	}

	s.log.WithFields(logrus.Fields{"loan_id": id, "from_user_id": fromUser, "to_user_id": toUser}).Info("loan shared")
	return tr, nil
}

// ExpireReservation is the sweep step for one reservation.
func (s *Service) ExpireReservation(ctx context.Context, id string, now time.Time) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetReservation(ctx, id, true)
		if err != nil {
			return err
		}
		t, err := r.Expire(now)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateReservationStatus(ctx, id, t, now); err != nil {
			return err
		}
		return s.restore(ctx, r.BookID)
	})
}

// MarkLoanOverdue is the sweep step for one loan.
func (s *Service) MarkLoanOverdue(ctx context.Context, id string, now time.Time) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetLoan(ctx, id, true)
		if err != nil {
			return err
		}
		t, err := l.MarkOverdue(now)
		if err != nil {
			return err
		}
		return s.repo.UpdateLoanStatus(ctx, id, t, now)
	})
}

func (s *Service) GetReservation(ctx context.Context, actor Actor, id string) (Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id, false)
	if err != nil {
		return Reservation{}, err
	}
	if !actor.canAct(r.UserID) {
		return Reservation{}, ErrNotFound
	}
	return r, nil
}

// ListReservations scopes library users to their own records.
func (s *Service) ListReservations(ctx context.Context, actor Actor, f ReservationFilter) ([]Reservation, error) {
	if !actor.Librarian {
		f.UserID = actor.UserID
	}
	return s.repo.ListReservations(ctx, f)
}

func (s *Service) GetLoan(ctx context.Context, actor Actor, id string) (Loan, error) {
	l, err := s.repo.GetLoan(ctx, id, false)
	if err != nil {
		return Loan{}, err
	}
	if !actor.canAct(l.UserID) {
		return Loan{}, ErrNotFound
	}
	return l, nil
}

func (s *Service) ListLoans(ctx context.Context, actor Actor, f LoanFilter) ([]Loan, error) {
	if !actor.Librarian {
		f.UserID = actor.UserID
	}
	return s.repo.ListLoans(ctx, f)
}

// ListActiveLoans returns the actor's loans that still hold a copy.
func (s *Service) ListActiveLoans(ctx context.Context, actor Actor) ([]Loan, error) {
	return s.repo.ListLoans(ctx, LoanFilter{UserID: actor.UserID, Statuses: []LoanStatus{LoanActive, LoanOverdue}})
}

func (s *Service) GetTransfer(ctx context.Context, actor Actor, id string) (LoanTransfer, error) {
	t, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return LoanTransfer{}, err
	}
	if !actor.Librarian && actor.UserID != t.FromUserID && actor.UserID != t.ToUserID {
		return LoanTransfer{}, ErrNotFound
	}
	return t, nil
}

func (s *Service) ListTransfers(ctx context.Context, actor Actor, f TransferFilter) ([]LoanTransfer, error) {
	if !actor.Librarian {
		f.UserID = actor.UserID
	}
	return s.repo.ListTransfers(ctx, f)
}
