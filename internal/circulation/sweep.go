package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSweepLimit        = 1000
	DefaultIndexSyncInterval = 24 * time.Hour
	syncPageSize             = 500
)

type SweepOptions struct {
	// Limit caps how many reservations and how many loans one pass touches.
	Limit int
	// DryRun only counts the candidates.
	DryRun bool
}

type SweepReport struct {
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
	DryRun              bool          `json:"dry_run"`
	ReservationsFound   int           `json:"reservations_found"`
	ReservationsExpired int           `json:"reservations_expired"`
	LoansFound          int           `json:"loans_found"`
	LoansMarkedOverdue  int           `json:"loans_marked_overdue"`
	Skipped             int           `json:"skipped"`
	Failed              int           `json:"failed"`
	UsedDueIndex        bool          `json:"used_due_index"`
}

// Sweeper expires lapsed reservations and marks late loans overdue. Each
// entity is handled in its own transaction and one failure never stops the
// batch.
type Sweeper struct {
	svc          *Service
	opts         SweepOptions
	syncInterval time.Duration
	log          logrus.FieldLogger
}

type SweeperOption func(*Sweeper)

func WithSweepLimit(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.opts.Limit = n
		}
	}
}

func WithIndexSyncInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.syncInterval = d }
}

func NewSweeper(svc *Service, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		svc:          svc,
		opts:         SweepOptions{Limit: DefaultSweepLimit},
		syncInterval: DefaultIndexSyncInterval,
		log:          svc.log.WithField("component", "sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSweep runs one pass with the sweeper's configured options.
func (s *Sweeper) RunSweep(ctx context.Context, now time.Time) SweepReport {
	return s.RunSweepWith(ctx, now, s.opts)
}

func (s *Sweeper) RunSweepWith(ctx context.Context, now time.Time, opts SweepOptions) SweepReport {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSweepLimit
	}
	started := time.Now()
	rep := SweepReport{StartedAt: now, DryRun: opts.DryRun}

	s.expireReservations(ctx, now, opts, &rep)
	s.markOverdueLoans(ctx, now, opts, &rep)

	rep.Duration = time.Since(started)
	s.log.WithFields(logrus.Fields{
		"dry_run":              rep.DryRun,
		"reservations_found":   rep.ReservationsFound,
		"reservations_expired": rep.ReservationsExpired,
		"loans_found":          rep.LoansFound,
		"loans_marked_overdue": rep.LoansMarkedOverdue,
		"skipped":              rep.Skipped,
		"failed":               rep.Failed,
		"duration_ms":          rep.Duration.Milliseconds(),
	}).Info("sweep finished")
	return rep
}

// record logs a per-entity outcome. A lost race is expected and only
// skipped; anything else counts as a failure.
func (s *Sweeper) record(err error, rep *SweepReport, entry *logrus.Entry, action string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
		rep.Skipped++
		entry.WithError(err).Debug(action + " skipped")
	default:
		rep.Failed++
		entry.WithError(err).Error(action + " failed")
	}
	return false
}

func (s *Sweeper) expireReservations(ctx context.Context, now time.Time, opts SweepOptions, rep *SweepReport) {
	candidates, err := s.svc.repo.ExpiredReservations(ctx, now, opts.Limit)
	if err != nil {
		rep.Failed++
		s.log.WithError(err).Error("list expired reservations")
		return
	}
	rep.ReservationsFound = len(candidates)
	if opts.DryRun {
		return
	}

	for _, r := range candidates {
		if ctx.Err() != nil {
			return
		}
		entry := s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "book_id": r.BookID})
		if s.record(s.svc.ExpireReservation(ctx, r.ID, now), rep, entry, "expire reservation") {
			rep.ReservationsExpired++
		}
	}
}

func (s *Sweeper) markOverdueLoans(ctx context.Context, now time.Time, opts SweepOptions, rep *SweepReport) {
	ids, fromIndex := s.overdueCandidates(ctx, now, opts.Limit, rep)
	rep.UsedDueIndex = fromIndex
	if ids == nil {
		return
	}
	rep.LoansFound = len(ids)
	if opts.DryRun {
		return
	}

	var done []string
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		entry := s.log.WithField("loan_id", id)
		err := s.svc.MarkLoanOverdue(ctx, id, now)
		if s.record(err, rep, entry, "mark loan overdue") {
			rep.LoansMarkedOverdue++
			done = append(done, id)
		} else if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			done = append(done, id)
		}
	}
	if fromIndex {
		s.svc.unscheduleDue(ctx, done...)
	}
}

// overdueCandidates merges the due index with a scan of the loans table so
// loans the index missed are still marked. The index result is used alone
// only when the scan fails.
func (s *Sweeper) overdueCandidates(ctx context.Context, now time.Time, limit int, rep *SweepReport) ([]string, bool) {
	var ids []string
	fromIndex := false
	if s.svc.index != nil {
		indexed, err := s.svc.index.Due(ctx, now, limit)
		if err != nil {
			s.log.WithError(err).Warn("due index unavailable, scanning loans")
		} else {
			ids, fromIndex = append([]string{}, indexed...), true
		}
	}

	loans, err := s.svc.repo.DueLoans(ctx, now, limit)
	if err != nil {
		rep.Failed++
		s.log.WithError(err).Error("list due loans")
		return ids, fromIndex
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	if ids == nil {
		ids = make([]string, 0, len(loans))
	}
	for _, l := range loans {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		if fromIndex {
			s.log.WithField("loan_id", l.ID).Warn("due loan missing from index")
		}
		ids = append(ids, l.ID)
	}
	return ids, fromIndex
}

// SyncDueIndex schedules every active loan in the due index. It repairs
// entries lost to a Redis restart or failed writes.
func (s *Sweeper) SyncDueIndex(ctx context.Context) (int, error) {
	if s.svc.index == nil {
		return 0, nil
	}
	synced := 0
	after := ""
	for {
		loans, err := s.svc.repo.ListLoans(ctx, LoanFilter{
			Statuses: []LoanStatus{LoanActive},
			AfterID:  after,
			Limit:    syncPageSize,
		})
		if err != nil {
			return synced, err
		}
		for _, l := range loans {
			if err := s.svc.index.Schedule(ctx, l.ID, l.DueAt); err != nil {
				return synced, err
			}
			synced++
			after = l.ID
		}
		if len(loans) < syncPageSize {
			break
		}
	}
	s.log.WithField("synced", synced).Info("due index synced")
	return synced, nil
}

// Run sweeps every interval until ctx is done. With a due index it also
// resyncs the index at start and every sync interval.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSync time.Time
	s.log.WithField("interval", interval.String()).Info("sweeper started")
	for {
		if s.svc.index != nil && time.Since(lastSync) >= s.syncInterval {
			if _, err := s.SyncDueIndex(ctx); err != nil {
				s.log.WithError(err).Error("sync due index")
			}
			lastSync = time.Now()
		}

		s.RunSweep(ctx, s.svc.clock.Now())

		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
