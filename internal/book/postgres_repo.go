package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"libraryapi/internal/platform/db"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var dialect = goqu.Dialect("postgres")

var bookColumns = []any{
	"id", "title", "author", goqu.L("COALESCE(isbn, '')"), "description",
	"quantity", "available_quantity", "created_by", "created_at", "updated_at",
}

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(pool *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: pool, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func scanBook(row pgx.Row, b *Book) error {
	return row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description,
		&b.Quantity, &b.AvailableQuantity, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ErrDuplicateISBN
		case pgerrcode.ForeignKeyViolation:
			return ErrInUse
		case pgerrcode.CheckViolation:
			return ErrQuantityBelowBorrowed
		case pgerrcode.InvalidTextRepresentation:
			return ErrNotFound
		}
	}
	return err
}

// isBadID reports a malformed uuid, which can never match a row.
func isBadID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

func filterExpressions(q Query) []exp.Expression {
	var where []exp.Expression
	if q.Title != "" {
		where = append(where, goqu.C("title").ILike("%"+q.Title+"%"))
	}
	if q.Author != "" {
		where = append(where, goqu.C("author").ILike("%"+q.Author+"%"))
	}
	if q.ISBN != "" {
		where = append(where, goqu.C("isbn").ILike("%"+NormalizeISBN(q.ISBN)+"%"))
	}
	if q.Q != "" {
		pattern := "%" + q.Q + "%"
		where = append(where, goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
			goqu.C("isbn").ILike(pattern),
		))
	}
	if q.Available != nil {
		if *q.Available {
			where = append(where, goqu.C("available_quantity").Gt(0))
		} else {
			where = append(where, goqu.C("available_quantity").Eq(0))
		}
	}
	return where
}

func orderExpression(q Query) exp.OrderedExpression {
	col := goqu.C("title")
	switch q.Sort {
	case "author":
		col = goqu.C("author")
	case "created_at":
		col = goqu.C("created_at")
	case "available":
		col = goqu.C("available_quantity")
	}
	if q.Desc {
		return col.Desc()
	}
	return col.Asc()
}

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]Book, int, error) {
	where := filterExpressions(q)

	countSQL, countArgs, err := dialect.From("books").Prepared(true).
		Select(goqu.COUNT(goqu.Star())).Where(where...).ToSQL()
	if err != nil {
		return nil, 0, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	ds := dialect.From("books").Prepared(true).
		Select(bookColumns...).
		Where(where...).
		Order(orderExpression(q), goqu.C("id").Asc())
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	if q.Offset > 0 {
		ds = ds.Offset(uint(q.Offset))
	}
	dataSQL, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.Conn(ctx, r.db).Query(timeoutCtx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		var b Book
		if err := scanBook(rows, &b); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Book, error) {
	query, args, err := dialect.From("books").Prepared(true).
		Select(bookColumns...).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return Book{}, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var b Book
	if err := scanBook(db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, args...), &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isBadID(err) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}

func (r *PostgresRepo) Create(ctx context.Context, b *Book) error {
	const query = `
		INSERT INTO books (id, title, author, isbn, description, quantity, available_quantity, created_by)
		VALUES (gen_random_uuid(), $1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, query,
		b.Title, b.Author, b.ISBN, b.Description, b.Quantity, b.AvailableQuantity, b.CreatedBy,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	return mapWriteErr(err)
}

// Update shifts available_quantity by the quantity delta so the borrowed
// count is preserved.
func (r *PostgresRepo) Update(ctx context.Context, id string, u Update) (Book, error) {
	record := goqu.Record{"updated_at": goqu.L("NOW()")}
	if u.Title != nil {
		record["title"] = *u.Title
	}
	if u.Author != nil {
		record["author"] = *u.Author
	}
	if u.ISBN != nil {
		record["isbn"] = goqu.L("NULLIF(?, '')", *u.ISBN)
	}
	if u.Description != nil {
		record["description"] = *u.Description
	}
	where := []exp.Expression{goqu.C("id").Eq(id)}
	if u.Quantity != nil {
		record["quantity"] = *u.Quantity
		record["available_quantity"] = goqu.L("available_quantity + (? - quantity)", *u.Quantity)
		where = append(where, goqu.L("available_quantity + (? - quantity) >= 0", *u.Quantity))
	}

	query, args, err := dialect.Update("books").Prepared(true).
		Set(record).Where(where...).Returning(bookColumns...).ToSQL()
	if err != nil {
		return Book{}, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var b Book
	if err := scanBook(db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, args...), &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return Book{}, getErr
			}
			return Book{}, ErrQuantityBelowBorrowed
		}
		return Book{}, mapWriteErr(err)
	}
	return b, nil
}

// Delete refuses books with copies out or circulation history.
func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := db.Conn(ctx, r.db).Exec(timeoutCtx,
		`DELETE FROM books WHERE id = $1 AND available_quantity = quantity`, id)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInUse
	}
	return nil
}

// Take decrements available_quantity only while it is positive.
func (r *PostgresRepo) Take(ctx context.Context, id string) (int, error) {
	const query = `
		UPDATE books SET available_quantity = available_quantity - 1, updated_at = NOW()
		WHERE id = $1 AND available_quantity > 0
		RETURNING available_quantity`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var available int
	err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, id).Scan(&available)
	if isBadID(err) {
		return 0, ErrNotFound
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, ErrOutOfStock
	}
	if err != nil {
		return 0, fmt.Errorf("take copy of %s: %w", id, err)
	}
	return available, nil
}

// Restore increments available_quantity, never past quantity.
func (r *PostgresRepo) Restore(ctx context.Context, id string) (int, error) {
	const query = `
		UPDATE books SET available_quantity = LEAST(available_quantity + 1, quantity), updated_at = NOW()
		WHERE id = $1
		RETURNING available_quantity`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var available int
	err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) || isBadID(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("restore copy of %s: %w", id, err)
	}
	return available, nil
}
