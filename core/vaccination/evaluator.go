package vaccination

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// DefaultUpcomingWindow is the number of days before its due date a dose is reported as upcoming.
const DefaultUpcomingWindow = 30

// Statuses
const (
	StatusDone     Status = "done"
	StatusOverdue  Status = "overdue"
	StatusUpcoming Status = "upcoming"
	StatusFuture   Status = "future"
)

var errNegativeWindow = errors.New("upcoming window must not be negative")

type (
	Status string

	// Record maps each administered dose to the date it was given.
	Record map[DoseKey]time.Time

	StatusResult struct {
		Spec             DoseSpec  `json:"spec"`
		DueDate          time.Time `json:"due_date"`
		Status           Status    `json:"status"`
		AdministeredDate null.Time `json:"administered_date"`
	}

	// Evaluator derives the status of every scheduled dose for a child.
	// It holds no mutable state and is safe for concurrent use.
	Evaluator struct {
		schedule       Schedule
		upcomingWindow int // days
	}
)

// NewEvaluator returns an Evaluator over a validated schedule.
func NewEvaluator(schedule Schedule, upcomingWindowDays int) (*Evaluator, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if upcomingWindowDays < 0 {
		return nil, errNegativeWindow
	}
	s := make(Schedule, len(schedule))
	copy(s, schedule)
	return &Evaluator{schedule: s, upcomingWindow: upcomingWindowDays}, nil
}

// Schedule returns a copy of the evaluated schedule.
func (ev *Evaluator) Schedule() Schedule {
	s := make(Schedule, len(ev.schedule))
	copy(s, ev.schedule)
	return s
}

func (ev *Evaluator) UpcomingWindow() int {
	return ev.upcomingWindow
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months to date. When the day of month does not exist in the
// resulting month it is clamped to that month's last day (Jan 31 + 1 month = Feb 28/29).
func AddMonths(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(civilDate(to).Sub(civilDate(from)).Hours() / 24))
}

// evaluate leaves DueDate zero when birthDate is zero; such doses are FUTURE unless done.
func (ev *Evaluator) evaluate(spec DoseSpec, birthDate time.Time, record Record, today time.Time) StatusResult {
	res := StatusResult{Spec: spec}
	if !birthDate.IsZero() {
		res.DueDate = AddMonths(birthDate, spec.DueAgeMonths)
	}
	if given, ok := record[spec.Key()]; ok {
		res.Status = StatusDone
		res.AdministeredDate = null.TimeFrom(given)
		return res
	}
	if birthDate.IsZero() {
		res.Status = StatusFuture
		return res
	}

	switch days := daysBetween(today, res.DueDate); {
	case days < 0:
		res.Status = StatusOverdue
	case days <= ev.upcomingWindow:
		res.Status = StatusUpcoming
	default:
		res.Status = StatusFuture
	}
	return res
}

// StatusForChild evaluates every scheduled dose, in schedule order, for a child born on
// birthDate. Doses are independent of each other: a dose may be overdue while an earlier
// one is not done.
func (ev *Evaluator) StatusForChild(birthDate time.Time, record Record, today time.Time) []StatusResult {
	results := make([]StatusResult, 0, len(ev.schedule))
	for _, spec := range ev.schedule {
		results = append(results, ev.evaluate(spec, birthDate, record, today))
	}
	return results
}

// Due returns the overdue and upcoming doses, in schedule order.
func (ev *Evaluator) Due(birthDate time.Time, record Record, today time.Time) []StatusResult {
	var due []StatusResult
	for _, res := range ev.StatusForChild(birthDate, record, today) {
		if res.Status == StatusOverdue || res.Status == StatusUpcoming {
			due = append(due, res)
		}
	}
	return due
}

// MarkDone returns a copy of record with the dose marked as administered on date.
// The date is not checked for plausibility; future dates are accepted.
func MarkDone(record Record, vaccine string, dose int, date time.Time) Record {
	updated := make(Record, len(record)+1)
	for k, v := range record {
		updated[k] = v
	}
	updated[DoseKey{Vaccine: vaccine, Dose: dose}] = date
	return updated
}
