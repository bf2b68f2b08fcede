package engine

import (
	"time"
)

// =============================================================================
// BUSINESS DATE - Day-granularity time abstraction
// =============================================================================
// Loan accounting is date-based: transactions take effect on a business date,
// never at an intra-day instant. Normalizing to UTC midnight up front keeps
// every comparison and day count exact.

type BusinessDate struct {
	Time time.Time
}

// NewDate constructs a BusinessDate at UTC midnight.
func NewDate(year int, month time.Month, day int) BusinessDate {
	return BusinessDate{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its business date.
func DateOf(t time.Time) BusinessDate {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (BusinessDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return BusinessDate{}, err
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for fixtures and tests.
func MustDate(s string) BusinessDate {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d BusinessDate) Before(other BusinessDate) bool        { return d.Time.Before(other.Time) }
func (d BusinessDate) After(other BusinessDate) bool         { return d.Time.After(other.Time) }
func (d BusinessDate) Equal(other BusinessDate) bool         { return d.Time.Equal(other.Time) }
func (d BusinessDate) BeforeOrEqual(other BusinessDate) bool { return !d.After(other) }
func (d BusinessDate) AfterOrEqual(other BusinessDate) bool  { return !d.Before(other) }
func (d BusinessDate) IsZero() bool                          { return d.Time.IsZero() }

// Arithmetic
func (d BusinessDate) AddDays(n int) BusinessDate   { return BusinessDate{Time: d.Time.AddDate(0, 0, n)} }
func (d BusinessDate) AddMonths(n int) BusinessDate { return BusinessDate{Time: d.Time.AddDate(0, n, 0)} }

// Min returns the earlier of two dates.
func (d BusinessDate) Min(other BusinessDate) BusinessDate {
	if other.Before(d) {
		return other
	}
	return d
}

func (d BusinessDate) String() string { return d.Time.Format("2006-01-02") }

// DaysBetween returns the calendar-day difference to - from.
// Negative when to precedes from.
func DaysBetween(from, to BusinessDate) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// =============================================================================
// DAY-COUNT CONVENTION
// =============================================================================

// DayCountConvention defines how elapsed days translate into a year fraction
// for interest. The engine consumes it as a pure function: calendar day
// difference over days-in-year.
type DayCountConvention string

const (
	// ActualActual counts exact calendar days over a 365-day year.
	ActualActual DayCountConvention = "actual/actual"
	// Actual360 counts exact calendar days over a 360-day year.
	Actual360 DayCountConvention = "actual/360"
)

// DaysInYear returns the convention's year denominator.
func (c DayCountConvention) DaysInYear() int {
	switch c {
	case Actual360:
		return 360
	default:
		return 365
	}
}

// =============================================================================
// REST FREQUENCY - How often interest is recalculated
// =============================================================================

type RestFrequency string

const (
	RestDaily RestFrequency = "daily"
)

// =============================================================================
// CLOCK - Business-date source
// =============================================================================

// Clock supplies "today" for as-of computations. Production uses SystemClock;
// tests pin a fixed simulated date per scenario.
type Clock interface {
	Today() BusinessDate
}

type SystemClock struct{}

func (SystemClock) Today() BusinessDate { return DateOf(time.Now().UTC()) }

// FixedClock always reports the same business date.
type FixedClock struct {
	Date BusinessDate
}

func (c FixedClock) Today() BusinessDate { return c.Date }
