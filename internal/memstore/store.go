// Package memstore keeps books, users and circulation records in process
// memory. A transaction holds the store lock until it ends, so every
// transaction is serialisable and is rolled back from a snapshot on error.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"libraryapi/internal/book"
	"libraryapi/internal/circulation"
	"libraryapi/internal/user"
)

type txKey struct{}

type bookEntry struct {
	book    book.Book
	counter *book.Counter
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	books  map[string]*bookEntry
	isbns  map[string]string
	users  map[string]user.User
	emails map[string]string
	// revoked maps a token id to its expiry
	revoked map[string]time.Time

	reservations map[string]circulation.Reservation
	loans        map[string]circulation.Loan
	transfers    map[string]circulation.LoanTransfer
}

type Option func(*Store)

// WithNow sets the clock used for created_at and updated_at.
func WithNow(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func New(opts ...Option) *Store {
	s := &Store{
		now:          func() time.Time { return time.Now().UTC() },
		books:        map[string]*bookEntry{},
		isbns:        map[string]string{},
		users:        map[string]user.User{},
		emails:       map[string]string{},
		revoked:      map[string]time.Time{},
		reservations: map[string]circulation.Reservation{},
		loans:        map[string]circulation.Loan{},
		transfers:    map[string]circulation.LoanTransfer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock takes the store lock unless ctx already runs inside one of this
// store's transactions.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	books        map[string]bookEntry
	counts       map[string][2]int
	isbns        map[string]string
	users        map[string]user.User
	emails       map[string]string
	reservations map[string]circulation.Reservation
	loans        map[string]circulation.Loan
	transfers    map[string]circulation.LoanTransfer
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		books:        make(map[string]bookEntry, len(s.books)),
		counts:       make(map[string][2]int, len(s.books)),
		isbns:        maps.Clone(s.isbns),
		users:        maps.Clone(s.users),
		emails:       maps.Clone(s.emails),
		reservations: maps.Clone(s.reservations),
		loans:        maps.Clone(s.loans),
		transfers:    maps.Clone(s.transfers),
	}
	for id, e := range s.books {
		snap.books[id] = *e
		snap.counts[id] = [2]int{e.counter.Quantity(), e.counter.Available()}
	}
	return snap
}

func (s *Store) rollback(snap snapshot) {
	s.books = make(map[string]*bookEntry, len(snap.books))
	for id, e := range snap.books {
		c := snap.counts[id]
		e.counter.Reset(c[0], c[1])
		s.books[id] = &e
	}
	s.isbns = snap.isbns
	s.users = snap.users
	s.emails = snap.emails
	s.reservations = snap.reservations
	s.loans = snap.loans
	s.transfers = snap.transfers
}

// RunInTx runs fn under the store lock. Calls made with the ctx passed to
// fn join the transaction; nested RunInTx calls run inline.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.rollback(snap)
		return err
	}
	return nil
}

// LockUser is a no-op: transactions already exclude each other.
func (s *Store) LockUser(ctx context.Context, userID string) error {
	return ctx.Err()
}

func page[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
