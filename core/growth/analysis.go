package growth

import (
	"math"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"
)

// DaysPerMonth is the average Gregorian month length used for every growth age.
// Vaccination due dates use calendar months instead (see package vaccination).
const DaysPerMonth = 30.4375

// trendThreshold is the percentile difference beyond which a trend is reported.
const trendThreshold = 5

// Statuses
const (
	StatusLow     Status = "low"
	StatusNormal  Status = "normal"
	StatusHigh    Status = "high"
	StatusUnknown Status = "unknown"
)

// Trends
const (
	TrendStable    Trend = "stable"
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
)

type (
	Status string
	Trend  string

	// Observation is one growth measurement; any metric may be missing.
	Observation struct {
		Date              time.Time    `json:"date"`
		Height            null.Float64 `json:"height"`             // cm
		Weight            null.Float64 `json:"weight"`             // kg
		HeadCircumference null.Float64 `json:"head_circumference"` // cm
	}

	// Subject is the snapshot of a child the engine works on.
	Subject struct {
		BirthDate    time.Time
		Sex          Sex
		Observations []Observation
	}

	Result struct {
		Value      null.Float64 `json:"value"`
		Percentile null.Float64 `json:"percentile"`
		Status     Status       `json:"status"`
		Trend      Trend        `json:"trend"`
	}
)

// Value returns the measurement of metric, if recorded.
func (o Observation) Value(metric Metric) (float64, bool) {
	var v null.Float64
	switch metric {
	case MetricHeight:
		v = o.Height
	case MetricWeight:
		v = o.Weight
	case MetricHeadCircumference:
		v = o.HeadCircumference
	}
	return v.Float64, v.Valid
}

// HasAny reports whether at least one metric is recorded.
func (o Observation) HasAny() bool {
	return o.Height.Valid || o.Weight.Valid || o.HeadCircumference.Valid
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AgeInMonths returns the age at `at` of a child born on `birth`, in DaysPerMonth months.
// Only the calendar dates are considered. The result is negative when at precedes birth.
func AgeInMonths(birth, at time.Time) float64 {
	days := math.Round(civilDate(at).Sub(civilDate(birth)).Hours() / 24)
	return days / DaysPerMonth
}

// StatusFor classifies a percentile. 3 and 97 are within the normal range.
func StatusFor(percentile null.Float64) Status {
	switch {
	case !percentile.Valid:
		return StatusUnknown
	case percentile.Float64 < 3:
		return StatusLow
	case percentile.Float64 > 97:
		return StatusHigh
	default:
		return StatusNormal
	}
}

func trendBetween(previous, latest null.Float64) Trend {
	if !previous.Valid || !latest.Valid {
		return TrendStable
	}
	diff := latest.Float64 - previous.Float64
	switch {
	case diff > trendThreshold:
		return TrendImproving
	case diff < -trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

type point struct {
	date  time.Time
	value float64
}

// series returns the subject's measurements of metric sorted by date.
func (s Subject) series(metric Metric) []point {
	obs := make([]Observation, len(s.Observations))
	copy(obs, s.Observations)
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })

	points := make([]point, 0, len(obs))
	for _, o := range obs {
		if v, ok := o.Value(metric); ok {
			points = append(points, point{date: o.Date, value: v})
		}
	}
	return points
}

func (e *Engine) percentileAt(metric Metric, s Subject, p point) (null.Float64, error) {
	if s.BirthDate.IsZero() {
		return null.Float64{}, nil
	}
	return e.PercentileFor(metric, s.Sex, AgeInMonths(s.BirthDate, p.date), p.value)
}

// Analyze classifies the latest measurement of metric and its trend against the previous one.
// Missing data degrades to an unknown status; only a metric/sex pair without a reference
// table is reported as an error (ErrUnsupportedMetric).
func (e *Engine) Analyze(metric Metric, s Subject) (Result, error) {
	if _, err := e.table(metric, s.Sex); err != nil {
		return Result{}, err
	}

	points := s.series(metric)
	if len(points) == 0 {
		return Result{Status: StatusUnknown, Trend: TrendStable}, nil
	}

	latest := points[len(points)-1]
	latestPct, err := e.percentileAt(metric, s, latest)
	if err != nil {
		return Result{}, err
	}

	trend := TrendStable
	if len(points) > 1 {
		prevPct, err := e.percentileAt(metric, s, points[len(points)-2])
		if err != nil {
			return Result{}, err
		}
		trend = trendBetween(prevPct, latestPct)
	}

	return Result{
		Value:      null.Float64From(latest.value),
		Percentile: latestPct,
		Status:     StatusFor(latestPct),
		Trend:      trend,
	}, nil
}

// AnalyzeAll runs Analyze for every metric supported for the subject's sex.
func (e *Engine) AnalyzeAll(s Subject) (map[Metric]Result, error) {
	results := make(map[Metric]Result, len(AllMetrics))
	for _, metric := range AllMetrics {
		if !e.Supports(metric, s.Sex) {
			continue
		}
		res, err := e.Analyze(metric, s)
		if err != nil {
			return nil, err
		}
		results[metric] = res
	}
	return results, nil
}
