package book

//go:generate mockgen -source=ports.go -destination=mock_repository_test.go -package=book

import (
	"context"
)

// Repository defines the contract for book data storage. Take and Restore
// are the availability ledger and must be atomic per call.
type Repository interface {
	List(ctx context.Context, q Query) ([]Book, int, error)
	GetByID(ctx context.Context, id string) (Book, error)
	Create(ctx context.Context, b *Book) error
	Update(ctx context.Context, id string, u Update) (Book, error)
	Delete(ctx context.Context, id string) error

	Take(ctx context.Context, id string) (int, error)
	Restore(ctx context.Context, id string) (int, error)
}
