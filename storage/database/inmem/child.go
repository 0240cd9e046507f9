package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/vaccination"
)

var errUnknownParent = errors.New("parent user does not exist")

var childOrderingFields = map[string]comparator[child.Child]{
	"name":       func(a, b child.Child) int { return compareStrings(a.Name, b.Name) },
	"birth_date": func(a, b child.Child) int { return compareTimes(a.BirthDate, b.BirthDate) },
	"created_at": func(a, b child.Child) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b child.Child) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
}

type childRepository struct {
	db *DB
}

var _ child.Repository = (*childRepository)(nil) // interface compliance check

func NewChildRepository(db *DB) child.Repository {
	return &childRepository{db: db}
}

func copyChild(c child.Child) child.Child {
	obs := make([]growth.Observation, len(c.Growth))
	copy(obs, c.Growth)
	c.Growth = obs

	checkups := make([]child.Checkup, len(c.Checkups))
	copy(checkups, c.Checkups)
	c.Checkups = checkups

	record := make(vaccination.Record, len(c.Vaccinations))
	for k, v := range c.Vaccinations {
		record[k] = v
	}
	c.Vaccinations = record
	return c
}

func byDate(dates func(i int) time.Time) func(i, j int) bool {
	return func(i, j int) bool { return dates(i).Before(dates(j)) }
}

func (repo *childRepository) CreateChild(_ context.Context, c child.Child) (child.Child, error) {
	users, children := repo.db.user, repo.db.child
	users.mutex.RLock()
	defer users.mutex.RUnlock()
	children.mutex.Lock()
	defer children.mutex.Unlock()

	if _, ok := users.table[c.ParentID]; !ok {
		return child.Child{}, errUnknownParent
	}
	c.ID = uuid.New().String()
	c = copyChild(c)
	children.table[c.ID] = &c
	return copyChild(c), nil
}

func (repo *childRepository) GetChild(_ context.Context, id string) (child.Child, error) {
	tbl := repo.db.child
	tbl.mutex.RLock()
	defer tbl.mutex.RUnlock()

	if c, ok := tbl.table[id]; ok {
		return copyChild(*c), nil
	}
	return child.Child{}, child.ErrNotFound
}

func (repo *childRepository) QueryChildren(_ context.Context, filter *child.QueryFilter, ordering []core.DBOrdering) ([]child.Child, error) {
	tbl := repo.db.child
	tbl.mutex.RLock()
	defer tbl.mutex.RUnlock()

	children := make([]child.Child, 0, len(tbl.table))
	for _, c := range tbl.table {
		if filter.Match(*c) {
			children = append(children, copyChild(*c))
		}
	}
	sortRows(children, ordering, childOrderingFields, core.DBOrdering{Field: "created_at"})
	return children, nil
}

func (repo *childRepository) UpdateChild(_ context.Context, c child.Child) (child.Child, error) {
	tbl := repo.db.child
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	orig, ok := tbl.table[c.ID]
	if !ok {
		return child.Child{}, child.ErrNotFound
	}
	// only save profile fields
	orig.Name = c.Name
	orig.BirthDate = c.BirthDate
	orig.Sex = c.Sex
	orig.UpdatedAt = c.UpdatedAt
	return copyChild(*orig), nil
}

func (repo *childRepository) DeleteChildrenByID(_ context.Context, ids ...string) (int, error) {
	tbl := repo.db.child
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := tbl.table[id]; ok {
			delete(tbl.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *childRepository) AddGrowthObservation(_ context.Context, childID string, obs growth.Observation) error {
	tbl := repo.db.child
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	c, ok := tbl.table[childID]
	if !ok {
		return child.ErrNotFound
	}
	c.Growth = append(c.Growth, obs)
	sort.SliceStable(c.Growth, byDate(func(i int) time.Time { return c.Growth[i].Date }))
	return nil
}

func (repo *childRepository) RecordVaccination(_ context.Context, childID string, key vaccination.DoseKey, date time.Time) error {
	tbl := repo.db.child
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	c, ok := tbl.table[childID]
	if !ok {
		return child.ErrNotFound
	}
	c.Vaccinations = vaccination.MarkDone(c.Vaccinations, key.Vaccine, key.Dose, date)
	return nil
}

func (repo *childRepository) AddCheckup(_ context.Context, childID string, checkup child.Checkup) (child.Checkup, error) {
	tbl := repo.db.child
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	c, ok := tbl.table[childID]
	if !ok {
		return child.Checkup{}, child.ErrNotFound
	}
	checkup.ID = uuid.New().String()
	c.Checkups = append(c.Checkups, checkup)
	sort.SliceStable(c.Checkups, byDate(func(i int) time.Time { return c.Checkups[i].Date }))
	return checkup, nil
}
