package book

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a book is not found.
	ErrNotFound      = errors.New("book not found")
	ErrOutOfStock    = errors.New("book is out of stock")
	ErrDuplicateISBN = errors.New("isbn already exists")
	// ErrQuantityBelowBorrowed rejects a quantity smaller than the copies on loan.
	ErrQuantityBelowBorrowed = errors.New("quantity is below the number of borrowed copies")
	ErrInUse                 = errors.New("book has circulation records")
)

// Book is a catalogue entry with its copy counts.
type Book struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn,omitempty"`
	Description       string    `json:"description,omitempty"`
	Quantity          int       `json:"quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	CreatedBy         *string   `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (b Book) IsAvailable() bool { return b.AvailableQuantity > 0 }

func (b Book) BorrowedCount() int { return b.Quantity - b.AvailableQuantity }

// Availability is the public view of a book's copy counts.
type Availability struct {
	BookID            string `json:"book_id"`
	Title             string `json:"title"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	BorrowedCount     int    `json:"borrowed_count"`
	IsAvailable       bool   `json:"is_available"`
}

func (b Book) Availability() Availability {
	return Availability{
		BookID:            b.ID,
		Title:             b.Title,
		Quantity:          b.Quantity,
		AvailableQuantity: b.AvailableQuantity,
		BorrowedCount:     b.BorrowedCount(),
		IsAvailable:       b.IsAvailable(),
	}
}

// Update is a partial change; nil fields are left alone.
type Update struct {
	Title       *string
	Author      *string
	ISBN        *string
	Description *string
	Quantity    *int
}

// Query defines filters and pagination for listing books.
type Query struct {
	Title     string
	Author    string
	ISBN      string
	Q         string
	Available *bool
	Sort      string
	Desc      bool
	Limit     int
	Offset    int
}

// NormalizeISBN strips dashes and spaces.
func NormalizeISBN(isbn string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(isbn))
}
