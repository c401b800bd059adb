package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"libraryapi/internal/book"

	"github.com/google/uuid"
)

func (e *bookEntry) view() book.Book {
	b := e.book
	b.Quantity = e.counter.Quantity()
	b.AvailableQuantity = e.counter.Available()
	return b
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func matchBook(b book.Book, q book.Query) bool {
	if q.Title != "" && !containsFold(b.Title, q.Title) {
		return false
	}
	if q.Author != "" && !containsFold(b.Author, q.Author) {
		return false
	}
	if q.ISBN != "" && !containsFold(b.ISBN, book.NormalizeISBN(q.ISBN)) {
		return false
	}
	if q.Q != "" && !containsFold(b.Title, q.Q) && !containsFold(b.Author, q.Q) && !containsFold(b.ISBN, q.Q) {
		return false
	}
	if q.Available != nil && b.IsAvailable() != *q.Available {
		return false
	}
	return true
}

func compareBooks(q book.Query) func(a, b book.Book) int {
	return func(a, b book.Book) int {
		var c int
		switch q.Sort {
		case "author":
			c = strings.Compare(a.Author, b.Author)
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "available":
			c = cmp.Compare(a.AvailableQuantity, b.AvailableQuantity)
		default:
			c = strings.Compare(a.Title, b.Title)
		}
		if q.Desc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		return c
	}
}

func (s *Store) List(ctx context.Context, q book.Query) ([]book.Book, int, error) {
	defer s.lock(ctx)()

	out := []book.Book{}
	for _, e := range s.books {
		if b := e.view(); matchBook(b, q) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, compareBooks(q))

	total := len(out)
	if q.Offset >= len(out) {
		return []book.Book{}, total, nil
	}
	return page(out[q.Offset:], q.Limit), total, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (book.Book, error) {
	defer s.lock(ctx)()

	e, ok := s.books[id]
	if !ok {
		return book.Book{}, book.ErrNotFound
	}
	return e.view(), nil
}

func (s *Store) Create(ctx context.Context, b *book.Book) error {
	defer s.lock(ctx)()

	if b.ISBN != "" {
		if _, taken := s.isbns[b.ISBN]; taken {
			return book.ErrDuplicateISBN
		}
	}
	if b.AvailableQuantity < 0 || b.AvailableQuantity > b.Quantity {
		return fmt.Errorf("available %d outside 0..%d", b.AvailableQuantity, b.Quantity)
	}

	now := s.now()
	b.ID = uuid.NewString()
	b.CreatedAt, b.UpdatedAt = now, now
	s.books[b.ID] = &bookEntry{book: *b, counter: book.NewCounter(b.Quantity, b.AvailableQuantity)}
	if b.ISBN != "" {
		s.isbns[b.ISBN] = b.ID
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, u book.Update) (book.Book, error) {
	defer s.lock(ctx)()

	e, ok := s.books[id]
	if !ok {
		return book.Book{}, book.ErrNotFound
	}
	if u.ISBN != nil && *u.ISBN != "" && *u.ISBN != e.book.ISBN {
		if _, taken := s.isbns[*u.ISBN]; taken {
			return book.Book{}, book.ErrDuplicateISBN
		}
	}
	if u.Quantity != nil {
		if err := e.counter.SetQuantity(*u.Quantity); err != nil {
			return book.Book{}, err
		}
	}

	if u.Title != nil {
		e.book.Title = *u.Title
	}
	if u.Author != nil {
		e.book.Author = *u.Author
	}
	if u.Description != nil {
		e.book.Description = *u.Description
	}
	if u.ISBN != nil {
		delete(s.isbns, e.book.ISBN)
		e.book.ISBN = *u.ISBN
		if e.book.ISBN != "" {
			s.isbns[e.book.ISBN] = id
		}
	}
	e.book.UpdatedAt = s.now()
	return e.view(), nil
}

// Delete refuses books with copies out or any circulation record.
func (s *Store) Delete(ctx context.Context, id string) error {
	defer s.lock(ctx)()

	e, ok := s.books[id]
	if !ok {
		return book.ErrNotFound
	}
	if e.counter.Available() != e.counter.Quantity() || s.referenced(id) {
		return book.ErrInUse
	}
	delete(s.books, id)
	delete(s.isbns, e.book.ISBN)
	return nil
}

func (s *Store) referenced(bookID string) bool {
	for _, r := range s.reservations {
		if r.BookID == bookID {
			return true
		}
	}
	for _, l := range s.loans {
		if l.BookID == bookID {
			return true
		}
	}
	return false
}

func (s *Store) Take(ctx context.Context, id string) (int, error) {
	defer s.lock(ctx)()

	e, ok := s.books[id]
	if !ok {
		return 0, book.ErrNotFound
	}
	n, err := e.counter.Take()
	if err != nil {
		return 0, err
	}
	e.book.UpdatedAt = s.now()
	return n, nil
}

func (s *Store) Restore(ctx context.Context, id string) (int, error) {
	defer s.lock(ctx)()

	e, ok := s.books[id]
	if !ok {
		return 0, book.ErrNotFound
	}
	e.book.UpdatedAt = s.now()
	return e.counter.Restore(), nil
}
