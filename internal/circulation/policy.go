package circulation

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultReservationTTL        = time.Hour
	DefaultLoanPeriod            = 48 * time.Hour
	DefaultMaxActiveReservations = 3
	DefaultMaxActiveLoans        = 5
)

// Policy holds the circulation rules. Field tags match the YAML policy file.
type Policy struct {
	ReservationTTL        time.Duration `yaml:"reservation_ttl"`
	LoanPeriod            time.Duration `yaml:"loan_period"`
	MaxActiveReservations int           `yaml:"max_active_reservations"`
	MaxActiveLoans        int           `yaml:"max_active_loans"`
	// HardLimits serialises creations per user so concurrent requests cannot
	// overshoot the caps.
	HardLimits bool `yaml:"hard_limits"`
}

func DefaultPolicy() Policy {
	return Policy{
		ReservationTTL:        DefaultReservationTTL,
		LoanPeriod:            DefaultLoanPeriod,
		MaxActiveReservations: DefaultMaxActiveReservations,
		MaxActiveLoans:        DefaultMaxActiveLoans,
	}
}

func (p Policy) Validate() error {
	var errs []error
	if p.ReservationTTL <= 0 {
		errs = append(errs, errors.New("reservation_ttl must be positive"))
	}
	if p.LoanPeriod <= 0 {
		errs = append(errs, errors.New("loan_period must be positive"))
	}
	if p.MaxActiveReservations < 1 {
		errs = append(errs, errors.New("max_active_reservations must be at least 1"))
	}
	if p.MaxActiveLoans < 1 {
		errs = append(errs, errors.New("max_active_loans must be at least 1"))
	}
	return errors.Join(errs...)
}

// CanCreateReservation checks the count of the user's active reservations.
func (p Policy) CanCreateReservation(active int) error {
	if active >= p.MaxActiveReservations {
		return fmt.Errorf("%d active reservations, maximum is %d: %w", active, p.MaxActiveReservations, ErrLimitExceeded)
	}
	return nil
}

// CanCreateLoan checks the count of the user's active and overdue loans.
func (p Policy) CanCreateLoan(open int) error {
	if open >= p.MaxActiveLoans {
		return fmt.Errorf("%d open loans, maximum is %d: %w", open, p.MaxActiveLoans, ErrLimitExceeded)
	}
	return nil
}
