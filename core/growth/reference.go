package growth

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Metrics
const (
	MetricHeight            Metric = "height"             // cm
	MetricWeight            Metric = "weight"             // kg
	MetricHeadCircumference Metric = "head_circumference" // cm
)

// Sexes
const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

var (
	AllMetrics = []Metric{MetricHeight, MetricWeight, MetricHeadCircumference}
	AllSexes   = []Sex{SexMale, SexFemale}

	//go:embed data/who.yaml
	whoTables []byte

	// errors
	ErrUnsupportedMetric = errors.New("unsupported metric")
	errInvalidTable      = errors.New("invalid reference table")
)

type (
	Metric string
	Sex    string

	// Checkpoint fixes the P3/P50/P97 reference values at one age.
	Checkpoint struct {
		AgeMonths float64 `yaml:"age" json:"age_months"`
		P3        float64 `yaml:"p3" json:"p3"`
		P50       float64 `yaml:"p50" json:"p50"`
		P97       float64 `yaml:"p97" json:"p97"`
	}

	// Table is the reference curve of one (Metric, Sex) pair, sorted by age.
	Table struct {
		Metric      Metric       `yaml:"metric" json:"metric"`
		Sex         Sex          `yaml:"sex" json:"sex"`
		Checkpoints []Checkpoint `yaml:"checkpoints" json:"checkpoints"`
	}

	tableKey struct {
		metric Metric
		sex    Sex
	}
)

func (m Metric) IsValid() bool {
	for _, metric := range AllMetrics {
		if m == metric {
			return true
		}
	}
	return false
}

func (s Sex) IsValid() bool {
	return s == SexMale || s == SexFemale
}

// check enforces strictly increasing ages and P3 <= P50 <= P97 on every checkpoint.
func (t Table) check() error {
	if len(t.Checkpoints) == 0 {
		return errors.Wrapf(errInvalidTable, "%s/%s: no checkpoints", t.Metric, t.Sex)
	}
	for i, cp := range t.Checkpoints {
		if cp.AgeMonths < 0 {
			return errors.Wrapf(errInvalidTable, "%s/%s: negative age %v", t.Metric, t.Sex, cp.AgeMonths)
		}
		if i > 0 && cp.AgeMonths <= t.Checkpoints[i-1].AgeMonths {
			return errors.Wrapf(errInvalidTable, "%s/%s: ages not strictly increasing at %v", t.Metric, t.Sex, cp.AgeMonths)
		}
		if !(cp.P3 <= cp.P50 && cp.P50 <= cp.P97) {
			return errors.Wrapf(errInvalidTable, "%s/%s: unordered percentiles at age %v", t.Metric, t.Sex, cp.AgeMonths)
		}
	}
	return nil
}

func (t Table) String() string {
	return fmt.Sprintf("%s/%s (%d checkpoints)", t.Metric, t.Sex, len(t.Checkpoints))
}

// LoadTables decodes reference tables from YAML.
func LoadTables(r io.Reader) ([]Table, error) {
	var doc struct {
		Tables []Table `yaml:"tables"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding reference tables")
	}
	return doc.Tables, nil
}

// WHOTables returns the embedded WHO growth standards.
func WHOTables() ([]Table, error) {
	return LoadTables(bytes.NewReader(whoTables))
}
