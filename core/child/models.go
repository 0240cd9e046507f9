package child

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/vaccination"
)

type (
	// Checkup is a lab checkup or medical visit result.
	Checkup struct {
		ID     string    `json:"id"`
		Date   time.Time `json:"date"`
		Kind   string    `json:"kind"`
		Result string    `json:"result"`
		Notes  string    `json:"notes"`
	}

	Child struct {
		ID           string               `json:"id"`
		ParentID     string               `json:"parent_id"`
		Name         string               `json:"name"`
		BirthDate    time.Time            `json:"birth_date"`
		Sex          growth.Sex           `json:"sex"`
		Growth       []growth.Observation `json:"growth"`
		Vaccinations vaccination.Record   `json:"vaccinations"`
		Checkups     []Checkup            `json:"checkups"`
		CreatedAt    time.Time            `json:"created_at"` // UTC
		UpdatedAt    time.Time            `json:"updated_at"` // UTC
	}
)

// Subject returns the growth snapshot of the child.
func (c Child) Subject() growth.Subject {
	return growth.Subject{
		BirthDate:    c.BirthDate,
		Sex:          c.Sex,
		Observations: c.Growth,
	}
}

// NewChild contains information needed to create a new Child.
type NewChild struct {
	ParentID  string `json:"parent_id" validate:"omitempty,uuid"` // admins only
	Name      string `json:"name" validate:"required,notblank,max=150"`
	BirthDate string `json:"birth_date" validate:"required,isodate"`
	Sex       string `json:"sex" validate:"required,oneof=male female"`
}

func (nc *NewChild) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Sex = core.CleanString(nc.Sex, true /* lower */)
	nc.ParentID = core.CleanString(nc.ParentID)
	return validate.Struct(nc)
}

// UpdateChild defines what information may be provided to modify an existing Child.
type UpdateChild struct {
	Name      string `json:"name" validate:"omitempty,notblank,max=150"`
	BirthDate string `json:"birth_date" validate:"omitempty,isodate"`
	Sex       string `json:"sex" validate:"omitempty,oneof=male female"`
}

func (uc *UpdateChild) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Sex = core.CleanString(uc.Sex, true /* lower */)
	return validate.Struct(uc)
}

// NewGrowthObservation is one measurement session; at least one metric is required.
type NewGrowthObservation struct {
	Date              string   `json:"date" validate:"required,isodate"`
	Height            *float64 `json:"height" validate:"omitempty,gt=0,lt=250"`
	Weight            *float64 `json:"weight" validate:"omitempty,gt=0,lt=250"`
	HeadCircumference *float64 `json:"head_circumference" validate:"omitempty,gt=0,lt=100"`
}

func (no *NewGrowthObservation) Validate(validate *validator.Validate) error {
	if err := validate.Struct(no); err != nil {
		return err
	}
	if no.Height == nil && no.Weight == nil && no.HeadCircumference == nil {
		return core.NewValidationError(errNoMetric, core.FieldError{Field: "metrics", Error: errNoMetric.Error()})
	}
	return nil
}

// NewVaccination records the administration of a scheduled dose.
type NewVaccination struct {
	Vaccine string `json:"vaccine" validate:"required,notblank"`
	Dose    int    `json:"dose" validate:"required,min=1"`
	Date    string `json:"date" validate:"required,isodate"`
}

func (nv *NewVaccination) Validate(validate *validator.Validate) error {
	nv.Vaccine = core.CleanString(nv.Vaccine)
	return validate.Struct(nv)
}

type NewCheckup struct {
	Date   string `json:"date" validate:"required,isodate"`
	Kind   string `json:"kind" validate:"required,notblank,max=100"`
	Result string `json:"result"`
	Notes  string `json:"notes"`
}

func (nc *NewCheckup) Validate(validate *validator.Validate) error {
	nc.Kind = core.CleanString(nc.Kind)
	nc.Result = core.CleanString(nc.Result)
	nc.Notes = core.CleanString(nc.Notes)
	return validate.Struct(nc)
}

type QueryFilter struct {
	ParentID string    `query:"parent_id"`
	Search   string    `query:"search"`
	Sex      string    `query:"sex"`
	BornFrom time.Time `query:"born_from"`
	BornTo   time.Time `query:"born_to"`
}

func (qf *QueryFilter) Clean() {
	qf.ParentID = core.CleanString(qf.ParentID)
	qf.Search = core.CleanString(qf.Search)
	qf.Sex = core.CleanString(qf.Sex, true /* lower */)
}

// Match reports whether c satisfies every set field of the filter.
// Search is a case-insensitive substring match on the name.
func (qf *QueryFilter) Match(c Child) bool {
	if qf == nil {
		return true
	}
	if qf.ParentID != "" && c.ParentID != qf.ParentID {
		return false
	}
	if qf.Search != "" && !containsFold(c.Name, qf.Search) {
		return false
	}
	if qf.Sex != "" && string(c.Sex) != qf.Sex {
		return false
	}
	if !qf.BornFrom.IsZero() && c.BirthDate.Before(core.Today(qf.BornFrom)) {
		return false
	}
	if !qf.BornTo.IsZero() && c.BirthDate.After(core.Today(qf.BornTo)) {
		return false
	}
	return true
}

type (
	// DoseReminder lists the doses of one child needing attention.
	DoseReminder struct {
		ChildID string                     `json:"child_id"`
		Name    string                     `json:"name"`
		Doses   []vaccination.StatusResult `json:"doses"`
	}

	// Reminder groups the due doses of all children of a parent.
	Reminder struct {
		ParentID string         `json:"parent_id"`
		Children []DoseReminder `json:"children"`
	}
)
