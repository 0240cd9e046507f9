package child

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/vaccination"
)

var (
	// errors
	ErrNotFound = errors.New("child not found")

	errNoMetric = errors.New("at least one of height, weight or head_circumference is required")
	errNoParent = errors.New("child must belong to a parent")

	beforeBirthText   = "date cannot be before the birth date"
	birthInFutureText = "birth date cannot be in the future"
	unknownDoseText   = "dose not found in the vaccination schedule"
	unknownSexText    = "sex must be one of [male female]"

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateChild(ctx context.Context, c Child) (Child, error)
		// GetChild returns the child with its growth observations (by date),
		// vaccination record and checkups (by date).
		GetChild(ctx context.Context, id string) (Child, error)
		// QueryChildren returns complete children, like GetChild.
		QueryChildren(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Child, error)
		// UpdateChild saves the profile fields: Name, BirthDate, Sex and UpdatedAt.
		UpdateChild(ctx context.Context, c Child) (Child, error)
		DeleteChildrenByID(ctx context.Context, ids ...string) (int, error)
		AddGrowthObservation(ctx context.Context, childID string, obs growth.Observation) error
		// RecordVaccination stores a single dose, overwriting the date of a dose already recorded.
		// Other doses of the child are left untouched.
		RecordVaccination(ctx context.Context, childID string, key vaccination.DoseKey, date time.Time) error
		AddCheckup(ctx context.Context, childID string, c Checkup) (Checkup, error)
	}

	Service interface {
		Engine() *growth.Engine
		Evaluator() *vaccination.Evaluator

		Create(ctx context.Context, parentID string, nc NewChild) (Child, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Child, error)
		GetByID(ctx context.Context, id string) (Child, error)
		Update(ctx context.Context, id string, uc UpdateChild) (Child, error)
		Delete(ctx context.Context, ids ...string) error

		AddGrowthObservation(ctx context.Context, id string, no NewGrowthObservation) (Child, error)
		GrowthAssessment(ctx context.Context, id string, metric growth.Metric) (growth.Result, error)
		GrowthAssessments(ctx context.Context, id string) (map[growth.Metric]growth.Result, error)

		VaccinationStatus(ctx context.Context, id string) ([]vaccination.StatusResult, error)
		RecordVaccination(ctx context.Context, id string, nv NewVaccination) (Child, error)

		AddCheckup(ctx context.Context, id string, nc NewCheckup) (Checkup, error)

		// DueReminders collects the upcoming and overdue doses of every child, grouped by parent.
		DueReminders(ctx context.Context, today time.Time) ([]Reminder, error)
	}

	service struct {
		repo      Repository
		engine    *growth.Engine
		evaluator *vaccination.Evaluator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, engine *growth.Engine, evaluator *vaccination.Evaluator) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(engine, "engine"),
		vala.IsNotNil(evaluator, "evaluator"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		engine:    engine,
		evaluator: evaluator,
	}
}

func (svc *service) Engine() *growth.Engine            { return svc.engine }
func (svc *service) Evaluator() *vaccination.Evaluator { return svc.evaluator }

func today() time.Time {
	return core.Today(NowFunc())
}

func (svc *service) Create(ctx context.Context, parentID string, nc NewChild) (Child, error) {
	if parentID == "" {
		return Child{}, errNoParent
	}
	birthDate, err := core.ParseDate(nc.BirthDate)
	if err != nil {
		return Child{}, core.NewFieldValidationError("birth_date", err.Error())
	}
	if birthDate.After(today()) {
		return Child{}, core.NewFieldValidationError("birth_date", birthInFutureText)
	}
	sex := growth.Sex(nc.Sex)
	if !sex.IsValid() {
		return Child{}, core.NewFieldValidationError("sex", unknownSexText)
	}

	now := NowFunc().UTC()
	c := Child{
		ParentID:     parentID,
		Name:         nc.Name,
		BirthDate:    birthDate,
		Sex:          sex,
		Vaccinations: vaccination.Record{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c, err = svc.repo.CreateChild(ctx, c)
	if err != nil {
		return Child{}, errors.Wrap(err, "creating child")
	}
	return c, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Child, error) {
	return svc.repo.QueryChildren(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Child, error) {
	return svc.repo.GetChild(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateChild) (Child, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return Child{}, err
	}
	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.BirthDate != "" {
		birthDate, err := core.ParseDate(uc.BirthDate)
		if err != nil {
			return Child{}, core.NewFieldValidationError("birth_date", err.Error())
		}
		if birthDate.After(today()) {
			return Child{}, core.NewFieldValidationError("birth_date", birthInFutureText)
		}
		c.BirthDate = birthDate
	}
	if uc.Sex != "" {
		sex := growth.Sex(uc.Sex)
		if !sex.IsValid() {
			return Child{}, core.NewFieldValidationError("sex", unknownSexText)
		}
		c.Sex = sex
	}
	c.UpdatedAt = NowFunc().UTC()

	if _, err = svc.repo.UpdateChild(ctx, c); err != nil {
		return Child{}, errors.Wrap(err, "updating child")
	}
	return c, nil
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteChildrenByID(ctx, ids...)
	return err
}

func (svc *service) AddGrowthObservation(ctx context.Context, id string, no NewGrowthObservation) (Child, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return Child{}, err
	}
	date, err := core.ParseDate(no.Date)
	if err != nil {
		return Child{}, core.NewFieldValidationError("date", err.Error())
	}
	if date.Before(c.BirthDate) {
		return Child{}, core.NewFieldValidationError("date", beforeBirthText)
	}

	obs := growth.Observation{Date: date}
	if no.Height != nil {
		obs.Height.SetValid(*no.Height)
	}
	if no.Weight != nil {
		obs.Weight.SetValid(*no.Weight)
	}
	if no.HeadCircumference != nil {
		obs.HeadCircumference.SetValid(*no.HeadCircumference)
	}

	if err = svc.repo.AddGrowthObservation(ctx, id, obs); err != nil {
		return Child{}, errors.Wrap(err, "adding growth observation")
	}
	c.Growth = append(c.Growth, obs)
	sort.SliceStable(c.Growth, func(i, j int) bool { return c.Growth[i].Date.Before(c.Growth[j].Date) })
	return c, nil
}

func (svc *service) GrowthAssessment(ctx context.Context, id string, metric growth.Metric) (growth.Result, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return growth.Result{}, err
	}
	// unknown metrics are reported by the engine as growth.ErrUnsupportedMetric
	return svc.engine.Analyze(metric, c.Subject())
}

func (svc *service) GrowthAssessments(ctx context.Context, id string) (map[growth.Metric]growth.Result, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return nil, err
	}
	return svc.engine.AnalyzeAll(c.Subject())
}

func (svc *service) VaccinationStatus(ctx context.Context, id string) ([]vaccination.StatusResult, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return nil, err
	}
	return svc.evaluator.StatusForChild(c.BirthDate, c.Vaccinations, today()), nil
}

// RecordVaccination marks a scheduled dose as administered and persists it before
// returning, so that the next VaccinationStatus reflects it.
func (svc *service) RecordVaccination(ctx context.Context, id string, nv NewVaccination) (Child, error) {
	if _, err := svc.repo.GetChild(ctx, id); err != nil {
		return Child{}, err
	}
	key := vaccination.DoseKey{Vaccine: nv.Vaccine, Dose: nv.Dose}
	if _, ok := svc.evaluator.Schedule().Lookup(key); !ok {
		return Child{}, core.NewFieldValidationError("dose", unknownDoseText)
	}
	date, err := core.ParseDate(nv.Date)
	if err != nil {
		return Child{}, core.NewFieldValidationError("date", err.Error())
	}

	if err = svc.repo.RecordVaccination(ctx, id, key, date); err != nil {
		return Child{}, errors.Wrap(err, "recording vaccination")
	}
	return svc.repo.GetChild(ctx, id)
}

func (svc *service) AddCheckup(ctx context.Context, id string, nc NewCheckup) (Checkup, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return Checkup{}, err
	}
	date, err := core.ParseDate(nc.Date)
	if err != nil {
		return Checkup{}, core.NewFieldValidationError("date", err.Error())
	}
	if date.Before(c.BirthDate) {
		return Checkup{}, core.NewFieldValidationError("date", beforeBirthText)
	}

	checkup, err := svc.repo.AddCheckup(ctx, id, Checkup{
		Date:   date,
		Kind:   nc.Kind,
		Result: nc.Result,
		Notes:  nc.Notes,
	})
	if err != nil {
		return Checkup{}, errors.Wrap(err, "adding checkup")
	}
	return checkup, nil
}

func (svc *service) DueReminders(ctx context.Context, today time.Time) ([]Reminder, error) {
	children, err := svc.repo.QueryChildren(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}})
	if err != nil {
		return nil, errors.Wrap(err, "querying children")
	}

	byParent := make(map[string]*Reminder)
	parentIDs := make([]string, 0)
	for _, c := range children {
		doses := svc.evaluator.Due(c.BirthDate, c.Vaccinations, today)
		if len(doses) == 0 {
			continue
		}
		rem, ok := byParent[c.ParentID]
		if !ok {
			rem = &Reminder{ParentID: c.ParentID}
			byParent[c.ParentID] = rem
			parentIDs = append(parentIDs, c.ParentID)
		}
		rem.Children = append(rem.Children, DoseReminder{ChildID: c.ID, Name: c.Name, Doses: doses})
	}

	sort.Strings(parentIDs)
	reminders := make([]Reminder, 0, len(parentIDs))
	for _, pid := range parentIDs {
		reminders = append(reminders, *byParent[pid])
	}
	return reminders, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
