package vaccination

import (
	"bytes"
	_ "embed"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed data/schedule.yaml
	defaultSchedule []byte

	// errors
	errInvalidSchedule = errors.New("invalid schedule")
	errInvalidDoseKey  = errors.New("invalid dose key")
)

type (
	// DoseSpec is one scheduled dose of a vaccine, due at a target age.
	DoseSpec struct {
		Vaccine      string `yaml:"vaccine" json:"vaccine"`
		Dose         int    `yaml:"dose" json:"dose"`
		DueAgeMonths int    `yaml:"due_age_months" json:"due_age_months"`
	}

	// Schedule is the ordered list of doses shared by all children.
	Schedule []DoseSpec

	// DoseKey identifies a dose. Its text form is "<vaccine>#<dose>".
	DoseKey struct {
		Vaccine string
		Dose    int
	}
)

func (d DoseSpec) Key() DoseKey {
	return DoseKey{Vaccine: d.Vaccine, Dose: d.Dose}
}

func (k DoseKey) String() string {
	return k.Vaccine + "#" + strconv.Itoa(k.Dose)
}

func (k DoseKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DoseKey) UnmarshalText(text []byte) error {
	s := string(text)
	i := strings.LastIndex(s, "#")
	if i <= 0 {
		return errors.Wrap(errInvalidDoseKey, s)
	}
	dose, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return errors.Wrap(errInvalidDoseKey, s)
	}
	k.Vaccine, k.Dose = s[:i], dose
	return nil
}

// Validate checks that every dose is well-formed and unique, and that due ages never decrease.
func (s Schedule) Validate() error {
	seen := make(map[DoseKey]bool, len(s))
	for i, d := range s {
		switch {
		case strings.TrimSpace(d.Vaccine) == "":
			return errors.Wrapf(errInvalidSchedule, "entry %d: missing vaccine name", i)
		case d.Dose < 1:
			return errors.Wrapf(errInvalidSchedule, "%s: dose must be >= 1", d.Key())
		case d.DueAgeMonths < 0:
			return errors.Wrapf(errInvalidSchedule, "%s: negative due age", d.Key())
		case seen[d.Key()]:
			return errors.Wrapf(errInvalidSchedule, "%s: duplicate dose", d.Key())
		case i > 0 && d.DueAgeMonths < s[i-1].DueAgeMonths:
			return errors.Wrapf(errInvalidSchedule, "%s: due age before previous dose", d.Key())
		}
		seen[d.Key()] = true
	}
	return nil
}

// Lookup finds the dose identified by key.
func (s Schedule) Lookup(key DoseKey) (DoseSpec, bool) {
	for _, d := range s {
		if d.Key() == key {
			return d, true
		}
	}
	return DoseSpec{}, false
}

// LoadSchedule decodes and validates a schedule from YAML.
func LoadSchedule(r io.Reader) (Schedule, error) {
	var doc struct {
		Doses Schedule `yaml:"doses"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding schedule")
	}
	if err := doc.Doses.Validate(); err != nil {
		return nil, err
	}
	return doc.Doses, nil
}

// DefaultSchedule returns the embedded routine immunization schedule.
func DefaultSchedule() (Schedule, error) {
	s, err := LoadSchedule(bytes.NewReader(defaultSchedule))
	if err != nil {
		return nil, errors.Wrap(err, "loading default schedule")
	}
	return s, nil
}
