package procedures

import (
	"math"
	"time"

	"github.com/libdesk/libdesk/internal/config"
	"github.com/libdesk/libdesk/internal/entities"
)

// LoanPolicy holds the circulation limits and the overdue fine schedule.
type LoanPolicy struct {
	PeriodDays      int
	FinePerDay      float64
	MaxLoansStudent int
	MaxLoansStaff   int
	MaxLoansAdmin   int
}

// DefaultLoanPolicy is a 30 day loan with a 0.5 per day fine.
func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{
		PeriodDays:      30,
		FinePerDay:      0.5,
		MaxLoansStudent: 5,
		MaxLoansStaff:   10,
		MaxLoansAdmin:   20,
	}
}

// LoanPolicyFromConfig fills unset values from DefaultLoanPolicy.
func LoanPolicyFromConfig(cfg config.Loans) LoanPolicy {
	p := DefaultLoanPolicy()
	if cfg.PeriodDays > 0 {
		p.PeriodDays = cfg.PeriodDays
	}
	if cfg.FinePerDay > 0 {
		p.FinePerDay = cfg.FinePerDay
	}
	if cfg.MaxLoansStudent > 0 {
		p.MaxLoansStudent = cfg.MaxLoansStudent
	}
	if cfg.MaxLoansStaff > 0 {
		p.MaxLoansStaff = cfg.MaxLoansStaff
	}
	if cfg.MaxLoansAdmin > 0 {
		p.MaxLoansAdmin = cfg.MaxLoansAdmin
	}
	return p
}

// MaxLoans returns how many books a borrower of the given type may hold at once.
func (p LoanPolicy) MaxLoans(t entities.IdentityType) int {
	switch {
	case t.IsAdmin():
		return p.MaxLoansAdmin
	case t == entities.IdentityStaff:
		return p.MaxLoansStaff
	default:
		return p.MaxLoansStudent
	}
}

// OverdueDays counts whole calendar days past the loan period. Never negative.
func (p LoanPolicy) OverdueDays(borrowed, returned time.Time) int {
	days := calendarDays(borrowed, returned) - p.PeriodDays
	if days < 0 {
		return 0
	}
	return days
}

// Fine is the amount owed for the given number of overdue days, rounded to cents.
func (p LoanPolicy) Fine(overdueDays int) float64 {
	if overdueDays <= 0 {
		return 0
	}
	return math.Round(float64(overdueDays)*p.FinePerDay*100) / 100
}

// DueDate is the last day a loan started on borrowed can be returned without a fine.
func (p LoanPolicy) DueDate(borrowed time.Time) time.Time {
	return truncateDay(borrowed).AddDate(0, 0, p.PeriodDays)
}

func calendarDays(from, to time.Time) int {
	a := truncateDay(from)
	b := truncateDay(to.In(from.Location()))
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
