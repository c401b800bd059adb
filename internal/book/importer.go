package book

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"libraryapi/internal/platform/openlibrary"

	"github.com/sirupsen/logrus"
)

const importBatchSize = 20

// MetadataClient looks books up by ISBN. *openlibrary.Client satisfies it.
type MetadataClient interface {
	GetBooksByISBN(ctx context.Context, isbns []string) (map[string]openlibrary.BookDetails, error)
}

// ImportResult sorts the requested ISBNs by outcome.
type ImportResult struct {
	Created  []Book   `json:"created"`
	Existing []string `json:"existing"`
	Missing  []string `json:"missing"`
	Failed   []string `json:"failed"`
}

// Importer creates catalogue entries from Open Library metadata.
type Importer struct {
	books  *Service
	client MetadataClient
	log    logrus.FieldLogger
}

func NewImporter(books *Service, client MetadataClient, log logrus.FieldLogger) *Importer {
	return &Importer{books: books, client: client, log: log.WithField("component", "book_import")}
}

// Import fetches metadata in batches and creates one book per known ISBN
// with quantity copies. A lookup failure aborts the remaining batches and is
// returned with the partial result.
func (im *Importer) Import(ctx context.Context, isbns []string, quantity int, createdBy *string) (ImportResult, error) {
	res := ImportResult{Created: []Book{}, Existing: []string{}, Missing: []string{}, Failed: []string{}}
	if quantity < 1 {
		return res, ErrInvalidQuantity
	}

	pending := dedupeISBNs(isbns)
	for start := 0; start < len(pending); start += importBatchSize {
		batch := pending[start:min(start+importBatchSize, len(pending))]
		found, err := im.client.GetBooksByISBN(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("lookup isbns: %w", err)
		}

		for _, isbn := range batch {
			details, ok := found[isbn]
			if !ok || details.Title == "" {
				res.Missing = append(res.Missing, isbn)
				continue
			}
			b := fromDetails(isbn, details, quantity, createdBy)
			switch err := im.books.Create(ctx, b); {
			case err == nil:
				res.Created = append(res.Created, *b)
			case errors.Is(err, ErrDuplicateISBN):
				res.Existing = append(res.Existing, isbn)
			default:
				im.log.WithError(err).WithField("isbn", isbn).Error("import book")
				res.Failed = append(res.Failed, isbn)
			}
		}
	}
	im.log.WithFields(logrus.Fields{
		"created":  len(res.Created),
		"existing": len(res.Existing),
		"missing":  len(res.Missing),
		"failed":   len(res.Failed),
	}).Info("import finished")
	return res, nil
}

func dedupeISBNs(isbns []string) []string {
	seen := make(map[string]bool, len(isbns))
	out := make([]string, 0, len(isbns))
	for _, raw := range isbns {
		isbn := NormalizeISBN(raw)
		if isbn == "" || seen[isbn] {
			continue
		}
		seen[isbn] = true
		out = append(out, isbn)
	}
	return out
}

func fromDetails(isbn string, d openlibrary.BookDetails, quantity int, createdBy *string) *Book {
	title := d.Title
	if d.Subtitle != "" {
		title += ": " + d.Subtitle
	}

	authors := make([]string, 0, len(d.Authors))
	for _, a := range d.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	author := strings.Join(authors, ", ")
	if author == "" {
		author = "Unknown"
	}

	return &Book{
		Title:       title,
		Author:      author,
		ISBN:        isbn,
		Description: describe(d),
		Quantity:    quantity,
		CreatedBy:   createdBy,
	}
}

func describe(d openlibrary.BookDetails) string {
	if d.Notes != "" {
		return d.Notes
	}
	var parts []string
	if len(d.Publishers) > 0 {
		names := make([]string, len(d.Publishers))
		for i, p := range d.Publishers {
			names[i] = p.Name
		}
		parts = append(parts, "Published by "+strings.Join(names, ", "))
	}
	if d.PublishDate != "" {
		parts = append(parts, d.PublishDate)
	}
	if d.NumberOfPages > 0 {
		parts = append(parts, fmt.Sprintf("%d pages", d.NumberOfPages))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ") + "."
}
