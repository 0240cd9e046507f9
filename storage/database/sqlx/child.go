package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/vaccination"
)

const childColumns = `id, parent_id, name, birth_date, sex, created_at, updated_at`

var childOrderingFields = []string{"name", "birth_date", "created_at", "updated_at"}

type (
	childRow struct {
		ID        string    `db:"id"`
		ParentID  string    `db:"parent_id"`
		Name      string    `db:"name"`
		BirthDate time.Time `db:"birth_date"`
		Sex       string    `db:"sex"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	growthRow struct {
		ChildID           string       `db:"child_id"`
		Date              time.Time    `db:"date"`
		Height            null.Float64 `db:"height"`
		Weight            null.Float64 `db:"weight"`
		HeadCircumference null.Float64 `db:"head_circumference"`
	}

	vaccinationRow struct {
		ChildID        string    `db:"child_id"`
		Vaccine        string    `db:"vaccine"`
		Dose           int       `db:"dose"`
		AdministeredOn time.Time `db:"administered_on"`
	}

	checkupRow struct {
		ID      string    `db:"id"`
		ChildID string    `db:"child_id"`
		Date    time.Time `db:"date"`
		Kind    string    `db:"kind"`
		Result  string    `db:"result"`
		Notes   string    `db:"notes"`
	}
)

func toChildRow(c child.Child) childRow {
	return childRow{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Name:      c.Name,
		BirthDate: core.Today(c.BirthDate),
		Sex:       string(c.Sex),
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func (row childRow) child() child.Child {
	return child.Child{
		ID:           row.ID,
		ParentID:     row.ParentID,
		Name:         row.Name,
		BirthDate:    core.Today(row.BirthDate),
		Sex:          growth.Sex(row.Sex),
		Growth:       []growth.Observation{},
		Vaccinations: vaccination.Record{},
		Checkups:     []child.Checkup{},
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type childRepository struct {
	db *sqlx.DB
}

var _ child.Repository = (*childRepository)(nil) // interface compliance check

func NewChildRepository(db *sqlx.DB) child.Repository {
	return &childRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to child.ErrNotFound
func (repo *childRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return child.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *childRepository) exists(ctx context.Context, exec sqlx.QueryerContext, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return child.ErrNotFound
	}
	var found bool
	if err := sqlx.GetContext(ctx, exec, &found, repo.db.Rebind(`SELECT EXISTS (SELECT 1 FROM child WHERE id = ?)`), id); err != nil {
		return errors.Wrap(err, "checking child")
	}
	if !found {
		return child.ErrNotFound
	}
	return nil
}

func (repo *childRepository) CreateChild(ctx context.Context, c child.Child) (child.Child, error) {
	c.ID = uuid.New().String()
	row := toChildRow(c)
	q := `INSERT INTO child (` + childColumns + `)
		VALUES (:id, :parent_id, :name, :birth_date, :sex, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return child.Child{}, errors.Wrap(err, "inserting child")
	}
	return row.child(), nil
}

func (repo *childRepository) GetChild(ctx context.Context, id string) (child.Child, error) {
	if _, err := uuid.Parse(id); err != nil {
		return child.Child{}, child.ErrNotFound
	}
	var row childRow
	q := repo.db.Rebind(`SELECT ` + childColumns + ` FROM child WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return child.Child{}, repo.trapNoRowsErr(err, "finding child")
	}

	children, err := repo.load(ctx, []childRow{row})
	if err != nil {
		return child.Child{}, err
	}
	return children[0], nil
}

func (repo *childRepository) QueryChildren(ctx context.Context, filter *child.QueryFilter, ordering []core.DBOrdering) ([]child.Child, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter != nil {
		if filter.ParentID != "" {
			if _, err := uuid.Parse(filter.ParentID); err != nil {
				return []child.Child{}, nil
			}
			conds = append(conds, "parent_id = ?")
			args = append(args, filter.ParentID)
		}
		if filter.Search != "" {
			conds = append(conds, "name ILIKE ?")
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Sex != "" {
			conds = append(conds, "sex = ?")
			args = append(args, filter.Sex)
		}
		if !filter.BornFrom.IsZero() {
			conds = append(conds, "birth_date >= ?")
			args = append(args, core.Today(filter.BornFrom))
		}
		if !filter.BornTo.IsZero() {
			conds = append(conds, "birth_date <= ?")
			args = append(args, core.Today(filter.BornTo))
		}
	}

	q := `SELECT ` + childColumns + ` FROM child`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	orderBy := core.OrderingClause(ordering, childOrderingFields...)
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	q += " ORDER BY " + orderBy

	var rows []childRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	return repo.load(ctx, rows)
}

// load fetches the growth observations, vaccinations and checkups of the given children.
func (repo *childRepository) load(ctx context.Context, rows []childRow) ([]child.Child, error) {
	children := make([]child.Child, 0, len(rows))
	if len(rows) == 0 {
		return children, nil
	}

	ids := make([]string, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		ids = append(ids, row.ID)
		index[row.ID] = i
		children = append(children, row.child())
	}

	var growthRows []growthRow
	if err := repo.selectIn(ctx, &growthRows,
		`SELECT child_id, date, height, weight, head_circumference FROM growth_observation
		WHERE child_id IN (?) ORDER BY date, id`, ids); err != nil {
		return nil, errors.Wrap(err, "loading growth observations")
	}
	for _, g := range growthRows {
		c := &children[index[g.ChildID]]
		c.Growth = append(c.Growth, growth.Observation{
			Date:              core.Today(g.Date),
			Height:            g.Height,
			Weight:            g.Weight,
			HeadCircumference: g.HeadCircumference,
		})
	}

	var vaccinationRows []vaccinationRow
	if err := repo.selectIn(ctx, &vaccinationRows,
		`SELECT child_id, vaccine, dose, administered_on FROM vaccination WHERE child_id IN (?)`, ids); err != nil {
		return nil, errors.Wrap(err, "loading vaccinations")
	}
	for _, v := range vaccinationRows {
		c := &children[index[v.ChildID]]
		c.Vaccinations[vaccination.DoseKey{Vaccine: v.Vaccine, Dose: v.Dose}] = core.Today(v.AdministeredOn)
	}

	var checkupRows []checkupRow
	if err := repo.selectIn(ctx, &checkupRows,
		`SELECT id, child_id, date, kind, result, notes FROM checkup WHERE child_id IN (?) ORDER BY date`, ids); err != nil {
		return nil, errors.Wrap(err, "loading checkups")
	}
	for _, ch := range checkupRows {
		c := &children[index[ch.ChildID]]
		c.Checkups = append(c.Checkups, child.Checkup{
			ID:     ch.ID,
			Date:   core.Today(ch.Date),
			Kind:   ch.Kind,
			Result: ch.Result,
			Notes:  ch.Notes,
		})
	}

	return children, nil
}

func (repo *childRepository) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return repo.db.SelectContext(ctx, dest, repo.db.Rebind(q), args...)
}

func (repo *childRepository) UpdateChild(ctx context.Context, c child.Child) (child.Child, error) {
	if _, err := uuid.Parse(c.ID); err != nil {
		return child.Child{}, child.ErrNotFound
	}
	row := toChildRow(c)
	q := `UPDATE child SET name = :name, birth_date = :birth_date, sex = :sex, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return child.Child{}, errors.Wrap(err, "updating child")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return child.Child{}, child.ErrNotFound
	}
	return repo.GetChild(ctx, c.ID)
}

func (repo *childRepository) DeleteChildrenByID(ctx context.Context, ids ...string) (int, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`DELETE FROM child WHERE id IN (?)`, valid)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting children")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting children")
	}
	return int(cnt), nil
}

func (repo *childRepository) AddGrowthObservation(ctx context.Context, childID string, obs growth.Observation) error {
	if err := repo.exists(ctx, repo.db, childID); err != nil {
		return err
	}
	row := growthRow{
		ChildID:           childID,
		Date:              core.Today(obs.Date),
		Height:            obs.Height,
		Weight:            obs.Weight,
		HeadCircumference: obs.HeadCircumference,
	}
	q := `INSERT INTO growth_observation (child_id, date, height, weight, head_circumference)
		VALUES (:child_id, :date, :height, :weight, :head_circumference)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "inserting growth observation")
	}
	return nil
}

// RecordVaccination upserts a single dose, so concurrent writes to different doses of
// the same child never overwrite each other.
func (repo *childRepository) RecordVaccination(ctx context.Context, childID string, key vaccination.DoseKey, date time.Time) error {
	if err := repo.exists(ctx, repo.db, childID); err != nil {
		return err
	}
	row := vaccinationRow{ChildID: childID, Vaccine: key.Vaccine, Dose: key.Dose, AdministeredOn: core.Today(date)}
	q := `INSERT INTO vaccination (child_id, vaccine, dose, administered_on)
		VALUES (:child_id, :vaccine, :dose, :administered_on)
		ON CONFLICT (child_id, vaccine, dose) DO UPDATE SET administered_on = EXCLUDED.administered_on`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "upserting vaccination")
	}
	return nil
}

func (repo *childRepository) AddCheckup(ctx context.Context, childID string, c child.Checkup) (child.Checkup, error) {
	if err := repo.exists(ctx, repo.db, childID); err != nil {
		return child.Checkup{}, err
	}
	c.ID = uuid.New().String()
	c.Date = core.Today(c.Date)
	row := checkupRow{ID: c.ID, ChildID: childID, Date: c.Date, Kind: c.Kind, Result: c.Result, Notes: c.Notes}
	q := `INSERT INTO checkup (id, child_id, date, kind, result, notes)
		VALUES (:id, :child_id, :date, :kind, :result, :notes)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return child.Checkup{}, errors.Wrap(err, "inserting checkup")
	}
	return c, nil
}
