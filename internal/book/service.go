package book

import (
	"context"
	"errors"
	"strings"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Service provides book-related business logic.
type Service struct {
	repo Repository
}

// NewService creates a new book service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns a list of books matching the query.
func (s *Service) List(ctx context.Context, q Query) ([]Book, int, error) {
	return s.repo.List(ctx, q)
}

func (s *Service) Get(ctx context.Context, id string) (Book, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Availability(ctx context.Context, id string) (Availability, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	return b.Availability(), nil
}

// Create adds a book with every copy on the shelf.
func (s *Service) Create(ctx context.Context, b *Book) error {
	if b.Quantity < 1 {
		return ErrInvalidQuantity
	}
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = NormalizeISBN(b.ISBN)
	b.AvailableQuantity = b.Quantity
	return s.repo.Create(ctx, b)
}

func (s *Service) Update(ctx context.Context, id string, u Update) (Book, error) {
	if u.Quantity != nil && *u.Quantity < 1 {
		return Book{}, ErrInvalidQuantity
	}
	if u.ISBN != nil {
		isbn := NormalizeISBN(*u.ISBN)
		u.ISBN = &isbn
	}
	return s.repo.Update(ctx, id, u)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Take and Restore expose the repository's ledger to circulation.
func (s *Service) Take(ctx context.Context, id string) (int, error) {
	return s.repo.Take(ctx, id)
}

func (s *Service) Restore(ctx context.Context, id string) (int, error) {
	return s.repo.Restore(ctx, id)
}
