// Command seed fills a fresh database with a librarian, a few members and a
// catalog of books.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"

	"libraryapi/internal/app"
	"libraryapi/internal/book"
	"libraryapi/internal/config"
	"libraryapi/internal/platform/logging"
	"libraryapi/internal/user"

	"github.com/sirupsen/logrus"
)

type options struct {
	books          int
	members        int
	librarianEmail string
	password       string
}

func main() {
	var opts options
	flag.IntVar(&opts.books, "books", 200, "number of books to create")
	flag.IntVar(&opts.members, "members", 5, "number of library users to create")
	flag.StringVar(&opts.librarianEmail, "librarian", "librarian@library.local", "librarian account email")
	flag.StringVar(&opts.password, "password", "Passw0rd!", "password for every seeded account")
	flag.Parse()

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("invalid logging configuration")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("connect")
	}
	defer a.Close()

	if err := seed(ctx, a, opts, log); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
}

func seed(ctx context.Context, a *app.App, opts options, log logrus.FieldLogger) error {
	librarian, err := ensureUser(ctx, a.Users, user.Registration{
		Email:     opts.librarianEmail,
		Password:  opts.password,
		FirstName: "Head",
		LastName:  "Librarian",
		Role:      user.RoleLibrarian,
	})
	if err != nil {
		return fmt.Errorf("librarian: %w", err)
	}

	for i := range opts.members {
		_, err := ensureUser(ctx, a.Users, user.Registration{
			Email:     fmt.Sprintf("member%d@library.local", i+1),
			Password:  opts.password,
			FirstName: "Member",
			LastName:  fmt.Sprint(i + 1),
		})
		if err != nil {
			return fmt.Errorf("member %d: %w", i+1, err)
		}
	}
	log.WithField("members", opts.members).Info("users ready")

	created := 0
	for i := range opts.books {
		b := randomBook(i, librarian.ID)
		err := a.Books.Create(ctx, b)
		switch {
		case errors.Is(err, book.ErrDuplicateISBN):
			continue
		case err != nil:
			return fmt.Errorf("book %d: %w", i+1, err)
		}
		created++
		if created%100 == 0 {
			log.WithField("books", created).Info("seeding books")
		}
	}
	log.WithField("books", created).Info("seed complete")
	return nil
}

// ensureUser registers the account or returns the existing one.
func ensureUser(ctx context.Context, users *user.Service, reg user.Registration) (user.User, error) {
	u, err := users.Register(ctx, reg)
	if errors.Is(err, user.ErrAlreadyExists) {
		_, u, err = users.Login(ctx, reg.Email, reg.Password)
	}
	return u, err
}

var words = []string{
	"Adventure", "Mystery", "Journey", "Discovery", "Secrets", "Dreams", "Hope",
	"Peace", "Science", "Nature", "History", "Future", "Wisdom", "Light",
	"Darkness", "World", "Universe", "Time", "Space", "Mind",
}

var authors = []string{
	"Ursula K. Le Guin", "Octavia E. Butler", "Italo Calvino", "Jorge Luis Borges",
	"Toni Morrison", "Stanislaw Lem", "Chinua Achebe", "Kazuo Ishiguro",
}

func word() string { return words[rand.IntN(len(words))] }

func randomBook(i int, createdBy string) *book.Book {
	return &book.Book{
		Title:       fmt.Sprintf("%s of %s", word(), word()),
		Author:      authors[rand.IntN(len(authors))],
		ISBN:        isbn13(i),
		Description: fmt.Sprintf("A book about %s and %s.", word(), word()),
		Quantity:    1 + rand.IntN(5),
		CreatedBy:   &createdBy,
	}
}

// isbn13 builds a valid ISBN-13 in the 979-8 range from a sequence number.
func isbn13(n int) string {
	body := fmt.Sprintf("9798%08d", n)
	sum := 0
	for i, c := range body {
		d := int(c - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return body + fmt.Sprint((10-sum%10)%10)
}
