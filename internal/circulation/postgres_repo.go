package circulation

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

var (
	reservationColumns = []any{"id", "book_id", "user_id", "reserved_at", "expires_at", "status", "created_at", "updated_at"}
	loanColumns        = []any{"id", "book_id", "user_id", "reservation_id", "borrowed_at", "due_at", "returned_at", "status", "created_at", "updated_at"}
	transferColumns    = []any{"id", "loan_id", "from_user_id", "to_user_id", "transferred_at", "accepted"}
)

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

func scanReservation(row pgx.Row, res *Reservation) error {
	return row.Scan(&res.ID, &res.BookID, &res.UserID, &res.ReservedAt, &res.ExpiresAt, &res.Status, &res.CreatedAt, &res.UpdatedAt)
}

func scanLoan(row pgx.Row, l *Loan) error {
	return row.Scan(&l.ID, &l.BookID, &l.UserID, &l.ReservationID, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt, &l.Status, &l.CreatedAt, &l.UpdatedAt)
}

func scanTransfer(row pgx.Row, t *LoanTransfer) error {
	return row.Scan(&t.ID, &t.LoanID, &t.FromUserID, &t.ToUserID, &t.TransferredAt, &t.Accepted)
}

// mapErr turns constraint failures into domain errors. The partial unique
// indexes on (user_id, book_id) guard against duplicate holds.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ErrDuplicateHold
		case pgerrcode.ForeignKeyViolation, pgerrcode.InvalidTextRepresentation:
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		}
	}
	return err
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// queryAll runs a goqu dataset and scans every row with scan.
func queryAll[T any](ctx context.Context, r *PostgresRepo, ds *goqu.SelectDataset, scan func(pgx.Row, *T) error) ([]T, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := db.Conn(ctx, r.db).Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func withPage(ds *goqu.SelectDataset, afterID string, limit int) *goqu.SelectDataset {
	if afterID != "" {
		ds = ds.Where(goqu.C("id").Gt(afterID))
	}
	ds = ds.Order(goqu.C("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return ds
}

func (r *PostgresRepo) count(ctx context.Context, query string, args ...any) (int, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var n int
	err := db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, args...).Scan(&n)
	if isBadID(err) {
		// The failed statement has aborted any enclosing transaction.
		if db.InTx(ctx) {
			return 0, ErrNotFound
		}
		return 0, nil
	}
	return n, err
}

func isBadID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

// LockUser takes a transaction-scoped advisory lock keyed on the user id.
func (r *PostgresRepo) LockUser(ctx context.Context, userID string) error {
	if !db.InTx(ctx) {
		return errors.New("lock user outside a transaction")
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := db.Conn(ctx, r.db).Exec(timeoutCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	return err
}

func (r *PostgresRepo) CreateReservation(ctx context.Context, res *Reservation) error {
	const query = `
		INSERT INTO reservations (id, book_id, user_id, reserved_at, expires_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query,
		res.ID, res.BookID, res.UserID, res.ReservedAt, res.ExpiresAt, string(res.Status), res.CreatedAt, res.UpdatedAt)
	return mapErr(err, "book "+res.BookID)
}

func (r *PostgresRepo) GetReservation(ctx context.Context, id string, forUpdate bool) (Reservation, error) {
	query := `SELECT id, book_id, user_id, reserved_at, expires_at, status, created_at, updated_at
		FROM reservations WHERE id = $1` + lockClause(forUpdate)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var res Reservation
	err := scanReservation(db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, id), &res)
	return res, mapErr(err, "reservation "+id)
}

func (r *PostgresRepo) ListReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error) {
	var where []exp.Expression
	if f.UserID != "" {
		where = append(where, goqu.C("user_id").Eq(f.UserID))
	}
	if f.BookID != "" {
		where = append(where, goqu.C("book_id").Eq(f.BookID))
	}
	if f.Status != "" {
		where = append(where, goqu.C("status").Eq(string(f.Status)))
	}
	ds := withPage(dialect.From("reservations").Select(reservationColumns...).Where(where...), f.AfterID, f.Limit)
	out, err := queryAll(ctx, r, ds, scanReservation)
	if isBadID(err) {
		return []Reservation{}, nil
	}
	return out, err
}

func (r *PostgresRepo) CountActiveReservations(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND status = 'active'`, userID)
}

func (r *PostgresRepo) HasActiveReservation(ctx context.Context, userID, bookID string) (bool, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND book_id = $2 AND status = 'active'`, userID, bookID)
	return n > 0, err
}

// UpdateReservationStatus only matches a row still in t.From.
func (r *PostgresRepo) UpdateReservationStatus(ctx context.Context, id string, t ReservationTransition, at time.Time) error {
	const query = `UPDATE reservations SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query, id, string(t.From), string(t.To), at)
	if err != nil {
		return mapErr(err, "reservation "+id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetReservation(ctx, id, false); err != nil {
			return err
		}
		return fmt.Errorf("reservation %s is no longer %s: %w", id, t.From, ErrInvalidTransition)
	}
	return nil
}

func (r *PostgresRepo) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	ds := dialect.From("reservations").Select(reservationColumns...).
		Where(goqu.C("status").Eq(string(ReservationActive)), goqu.C("expires_at").Lt(now)).
		Order(goqu.C("expires_at").Asc(), goqu.C("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return queryAll(ctx, r, ds, scanReservation)
}

func (r *PostgresRepo) CreateLoan(ctx context.Context, l *Loan) error {
	const query = `
		INSERT INTO loans (id, book_id, user_id, reservation_id, borrowed_at, due_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query,
		l.ID, l.BookID, l.UserID, l.ReservationID, l.BorrowedAt, l.DueAt, string(l.Status), l.CreatedAt, l.UpdatedAt)
	return mapErr(err, "book "+l.BookID)
}

func (r *PostgresRepo) GetLoan(ctx context.Context, id string, forUpdate bool) (Loan, error) {
	query := `SELECT id, book_id, user_id, reservation_id, borrowed_at, due_at, returned_at, status, created_at, updated_at
		FROM loans WHERE id = $1` + lockClause(forUpdate)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var l Loan
	err := scanLoan(db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, id), &l)
	return l, mapErr(err, "loan "+id)
}

func (r *PostgresRepo) GetLoans(ctx context.Context, ids []string) ([]Loan, error) {
	if len(ids) == 0 {
		return []Loan{}, nil
	}
	ds := dialect.From("loans").Select(loanColumns...).
		Where(goqu.C("id").In(ids)).Order(goqu.C("id").Asc())
	return queryAll(ctx, r, ds, scanLoan)
}

func (r *PostgresRepo) ListLoans(ctx context.Context, f LoanFilter) ([]Loan, error) {
	var where []exp.Expression
	if f.UserID != "" {
		where = append(where, goqu.C("user_id").Eq(f.UserID))
	}
	if f.BookID != "" {
		where = append(where, goqu.C("book_id").Eq(f.BookID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, goqu.C("status").In(statuses))
	}
	ds := withPage(dialect.From("loans").Select(loanColumns...).Where(where...), f.AfterID, f.Limit)
	out, err := queryAll(ctx, r, ds, scanLoan)
	if isBadID(err) {
		return []Loan{}, nil
	}
	return out, err
}

func (r *PostgresRepo) CountOpenLoans(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status IN ('active', 'overdue')`, userID)
}

func (r *PostgresRepo) HasOpenLoan(ctx context.Context, userID, bookID string) (bool, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND book_id = $2 AND status IN ('active', 'overdue')`, userID, bookID)
	return n > 0, err
}

// UpdateLoanStatus only matches a row still in t.From. returned_at is
// stamped when the loan closes.
func (r *PostgresRepo) UpdateLoanStatus(ctx context.Context, id string, t LoanTransition, at time.Time) error {
	const query = `
		UPDATE loans SET status = $3, updated_at = $4,
			returned_at = CASE WHEN $3 = 'returned' THEN $4 ELSE returned_at END
		WHERE id = $1 AND status = $2`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query, id, string(t.From), string(t.To), at)
	if err != nil {
		return mapErr(err, "loan "+id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetLoan(ctx, id, false); err != nil {
			return err
		}
		return fmt.Errorf("loan %s is no longer %s: %w", id, t.From, ErrInvalidTransition)
	}
	return nil
}

func (r *PostgresRepo) ReassignLoan(ctx context.Context, id, fromUser, toUser string, at time.Time) error {
	const query = `
		UPDATE loans SET user_id = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status IN ('active', 'overdue')`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query, id, fromUser, toUser, at)
	if err != nil {
		return mapErr(err, "user "+toUser)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reassign loan %s: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (r *PostgresRepo) DueLoans(ctx context.Context, now time.Time, limit int) ([]Loan, error) {
	ds := dialect.From("loans").Select(loanColumns...).
		Where(goqu.C("status").Eq(string(LoanActive)), goqu.C("due_at").Lt(now)).
		Order(goqu.C("due_at").Asc(), goqu.C("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return queryAll(ctx, r, ds, scanLoan)
}

func (r *PostgresRepo) CreateTransfer(ctx context.Context, t *LoanTransfer) error {
	const query = `
		INSERT INTO loan_transfers (id, loan_id, from_user_id, to_user_id, transferred_at, accepted)
		VALUES ($1, $2, $3, $4, $5, $6)`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := db.Conn(ctx, r.db).Exec(timeoutCtx, query, t.ID, t.LoanID, t.FromUserID, t.ToUserID, t.TransferredAt, t.Accepted)
	return mapErr(err, "loan "+t.LoanID)
}

func (r *PostgresRepo) GetTransfer(ctx context.Context, id string) (LoanTransfer, error) {
	query, args, err := dialect.From("loan_transfers").Prepared(true).
		Select(transferColumns...).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return LoanTransfer{}, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var t LoanTransfer
	err = scanTransfer(db.Conn(ctx, r.db).QueryRow(timeoutCtx, query, args...), &t)
	return t, mapErr(err, "transfer "+id)
}

func (r *PostgresRepo) ListTransfers(ctx context.Context, f TransferFilter) ([]LoanTransfer, error) {
	var where []exp.Expression
	if f.UserID != "" {
		where = append(where, goqu.Or(goqu.C("from_user_id").Eq(f.UserID), goqu.C("to_user_id").Eq(f.UserID)))
	}
	if f.LoanID != "" {
		where = append(where, goqu.C("loan_id").Eq(f.LoanID))
	}
	ds := withPage(dialect.From("loan_transfers").Select(transferColumns...).Where(where...), f.AfterID, f.Limit)
	out, err := queryAll(ctx, r, ds, scanTransfer)
	if isBadID(err) {
		return []LoanTransfer{}, nil
	}
	return out, err
}
