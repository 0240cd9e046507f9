package growth

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Engine maps raw measurements onto reference percentiles.
// It is immutable once built and safe for concurrent use.
type Engine struct {
	tables map[tableKey]Table
}

// NewEngine builds an Engine from the given tables.
// Tables are validated; a later table for the same (Metric, Sex) replaces an earlier one.
func NewEngine(tables ...Table) (*Engine, error) {
	e := &Engine{tables: make(map[tableKey]Table, len(tables))}
	for _, t := range tables {
		if err := t.check(); err != nil {
			return nil, err
		}
		cps := make([]Checkpoint, len(t.Checkpoints))
		copy(cps, t.Checkpoints)
		t.Checkpoints = cps
		e.tables[tableKey{t.Metric, t.Sex}] = t
	}
	return e, nil
}

// NewWHOEngine builds an Engine over the embedded WHO growth standards.
func NewWHOEngine() (*Engine, error) {
	tables, err := WHOTables()
	if err != nil {
		return nil, err
	}
	return NewEngine(tables...)
}

func (e *Engine) table(metric Metric, sex Sex) (Table, error) {
	t, ok := e.tables[tableKey{metric, sex}]
	if !ok {
		return Table{}, errors.Wrapf(ErrUnsupportedMetric, "%s/%s", metric, sex)
	}
	return t, nil
}

// Supports reports whether a reference table exists for metric and sex.
func (e *Engine) Supports(metric Metric, sex Sex) bool {
	_, ok := e.tables[tableKey{metric, sex}]
	return ok
}

// Tables returns the loaded tables ordered by metric then sex.
func (e *Engine) Tables() []Table {
	tables := make([]Table, 0, len(e.tables))
	for _, t := range e.tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Metric != tables[j].Metric {
			return tables[i].Metric < tables[j].Metric
		}
		return tables[i].Sex < tables[j].Sex
	})
	return tables
}

// BandAt returns the reference band at ageMonths, interpolating between the bracketing checkpoints.
// ok is false when ageMonths falls outside the table; there is no extrapolation.
func (t Table) BandAt(ageMonths float64) (band Checkpoint, ok bool) {
	cps := t.Checkpoints
	n := len(cps)
	if n == 0 || math.IsNaN(ageMonths) || ageMonths < cps[0].AgeMonths || ageMonths > cps[n-1].AgeMonths {
		return Checkpoint{}, false
	}

	// smallest checkpoint with age >= target
	i := sort.Search(n, func(i int) bool { return cps[i].AgeMonths >= ageMonths })
	upper := cps[i]
	if upper.AgeMonths == ageMonths {
		return upper, true
	}
	lower := cps[i-1]

	factor := (ageMonths - lower.AgeMonths) / (upper.AgeMonths - lower.AgeMonths)
	lerp := func(a, b float64) float64 { return a + (b-a)*factor }
	return Checkpoint{
		AgeMonths: ageMonths,
		P3:        lerp(lower.P3, upper.P3),
		P50:       lerp(lower.P50, upper.P50),
		P97:       lerp(lower.P97, upper.P97),
	}, true
}

// Percentile maps value onto [3, 97] against the band.
func (band Checkpoint) Percentile(value float64) float64 {
	switch {
	case value < band.P3:
		return 3
	case value > band.P97:
		return 97
	case value < band.P50:
		if band.P50 == band.P3 {
			return 3
		}
		return 3 + 47*(value-band.P3)/(band.P50-band.P3)
	default:
		if band.P97 == band.P50 {
			return 97
		}
		return 50 + 47*(value-band.P50)/(band.P97-band.P50)
	}
}

// PercentileFor computes the percentile of value for a child of the given sex at ageMonths.
// It returns ErrUnsupportedMetric when no reference table exists for metric and sex,
// and a null percentile when ageMonths lies outside the table.
func (e *Engine) PercentileFor(metric Metric, sex Sex, ageMonths, value float64) (null.Float64, error) {
	t, err := e.table(metric, sex)
	if err != nil {
		return null.Float64{}, err
	}
	band, ok := t.BandAt(ageMonths)
	if !ok {
		return null.Float64{}, nil
	}
	return null.Float64From(band.Percentile(value)), nil
}
