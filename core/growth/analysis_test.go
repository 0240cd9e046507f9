package growth

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func height(d time.Time, v float64) Observation {
	return Observation{Date: d, Height: null.Float64From(v)}
}

func TestAgeInMonths(t *testing.T) {
	birth := date(2022, time.January, 1)
	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{name: "birth", at: birth, want: 0},
		{name: "one average month", at: birth.AddDate(0, 0, 30), want: 30 / DaysPerMonth},
		{name: "one year", at: date(2023, time.January, 1), want: 365 / DaysPerMonth},
		{name: "time of day ignored", at: time.Date(2022, time.January, 2, 23, 59, 0, 0, time.UTC), want: 1 / DaysPerMonth},
		{name: "before birth", at: date(2021, time.December, 31), want: -1 / DaysPerMonth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AgeInMonths(birth, tt.at), 1e-9)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		percentile null.Float64
		want       Status
	}{
		{percentile: null.Float64{}, want: StatusUnknown},
		{percentile: null.Float64From(2.999), want: StatusLow},
		{percentile: null.Float64From(3), want: StatusNormal},
		{percentile: null.Float64From(50), want: StatusNormal},
		{percentile: null.Float64From(97), want: StatusNormal},
		{percentile: null.Float64From(97.001), want: StatusHigh},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.percentile); got != tt.want {
			t.Errorf("StatusFor(%v) = %v, want %v", tt.percentile.Ptr(), got, tt.want)
		}
	}
}

func TestEngine_Analyze(t *testing.T) {
	e := whoEngine(t)
	birth := date(2022, time.January, 1)

	tests := []struct {
		name           string
		metric         Metric
		subject        Subject
		wantValue      null.Float64
		wantPercentile null.Float64
		wantStatus     Status
		wantTrend      Trend
		wantErr        error
	}{
		{
			name:    "unsupported metric",
			metric:  "shoe_size",
			subject: Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{height(birth, 50)}},
			wantErr: ErrUnsupportedMetric,
		},
		{
			name:    "unsupported metric without observations",
			metric:  "shoe_size",
			subject: Subject{BirthDate: birth, Sex: SexMale},
			wantErr: ErrUnsupportedMetric,
		},
		{
			name:       "no observations",
			metric:     MetricHeight,
			subject:    Subject{BirthDate: birth, Sex: SexMale},
			wantStatus: StatusUnknown,
			wantTrend:  TrendStable,
		},
		{
			name:   "no observation with the metric",
			metric: MetricHeight,
			subject: Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{
				{Date: birth, Weight: null.Float64From(3.3)},
			}},
			wantStatus: StatusUnknown,
			wantTrend:  TrendStable,
		},
		{
			name:           "single observation is stable",
			metric:         MetricWeight,
			subject:        Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{{Date: birth, Weight: null.Float64From(2)}}},
			wantValue:      null.Float64From(2),
			wantPercentile: null.Float64From(3),
			wantStatus:     StatusNormal,
			wantTrend:      TrendStable,
		},
		{
			name:   "missing birth date",
			metric: MetricHeight,
			subject: Subject{Sex: SexFemale, Observations: []Observation{
				height(date(2022, time.March, 1), 55),
				height(date(2022, time.May, 1), 60),
			}},
			wantValue:  null.Float64From(60),
			wantStatus: StatusUnknown,
			wantTrend:  TrendStable,
		},
		{
			name:   "latest observation outside the reference range",
			metric: MetricHeight,
			subject: Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{
				height(date(2026, time.January, 1), 110),
				height(date(2027, time.June, 1), 118),
			}},
			wantValue:  null.Float64From(118),
			wantStatus: StatusUnknown,
			wantTrend:  TrendStable,
		},
		{
			name:   "improving",
			metric: MetricHeight,
			subject: Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{
				height(birth, 46.3),                    // P3
				height(date(2023, time.January, 1), 78), // > P50
			}},
			wantValue:  null.Float64From(78),
			wantStatus: StatusNormal,
			wantTrend:  TrendImproving,
		},
		{
			name:   "declining, unsorted input",
			metric: MetricHeight,
			subject: Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{
				height(date(2023, time.January, 1), 70), // < P3
				height(birth, 53.4),                    // P97
			}},
			wantValue:      null.Float64From(70),
			wantPercentile: null.Float64From(3),
			wantStatus:     StatusNormal,
			wantTrend:      TrendDeclining,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Analyze(tt.metric, tt.subject)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got.Value)
			if tt.wantPercentile.Valid {
				assert.InDelta(t, tt.wantPercentile.Float64, got.Percentile.Float64, 1e-9)
			}
			if tt.wantStatus == StatusUnknown {
				assert.False(t, got.Percentile.Valid)
			}
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantTrend, got.Trend)
		})
	}
}

func TestEngine_Analyze_firstYearExample(t *testing.T) {
	e := whoEngine(t)
	birth := date(2022, time.January, 1)
	subject := Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{
		height(birth, 50),
		height(date(2023, time.January, 1), 75.7),
	}}

	first, err := e.PercentileFor(MetricHeight, SexMale, 0, 50)
	require.NoError(t, err)
	assert.Greater(t, first.Float64, 50.0)
	assert.Less(t, first.Float64, 52.0)

	got, err := e.Analyze(MetricHeight, subject)
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(75.7), got.Value)
	assert.InDelta(t, 50, got.Percentile.Float64, 0.5)
	assert.Equal(t, StatusNormal, got.Status)
	assert.Equal(t, TrendStable, got.Trend)
}

func TestEngine_Analyze_trendUsesLastTwoOnly(t *testing.T) {
	e := whoEngine(t)
	birth := date(2022, time.January, 1)
	subject := Subject{BirthDate: birth, Sex: SexMale, Observations: []Observation{
		height(birth, 46.3),                       // P3
		height(date(2022, time.July, 2), 67.6),    // ~P50
		height(date(2023, time.January, 1), 75.7), // ~P50
	}}
	got, err := e.Analyze(MetricHeight, subject)
	require.NoError(t, err)
	assert.Equal(t, TrendStable, got.Trend)
}

func TestEngine_AnalyzeAll(t *testing.T) {
	e := whoEngine(t)
	birth := date(2024, time.March, 10)
	subject := Subject{BirthDate: birth, Sex: SexFemale, Observations: []Observation{
		{Date: birth, Height: null.Float64From(49.1), Weight: null.Float64From(3.2)},
	}}

	got, err := e.AnalyzeAll(subject)
	require.NoError(t, err)
	assert.Len(t, got, len(AllMetrics))
	assert.Equal(t, StatusNormal, got[MetricHeight].Status)
	assert.InDelta(t, 50, got[MetricWeight].Percentile.Float64, 1e-9)
	assert.Equal(t, StatusUnknown, got[MetricHeadCircumference].Status)

	got, err = e.AnalyzeAll(Subject{BirthDate: birth})
	require.NoError(t, err)
	assert.Empty(t, got)
}
