package reportsvc

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/vaccination"
)

// ContentType of the workbooks written by ExcelReporter.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheets
const (
	SheetProfile      = "Profile"
	SheetGrowth       = "Growth"
	SheetAssessment   = "Assessment"
	SheetVaccinations = "Vaccinations"
	SheetCheckups     = "Checkups"
)

var (
	growthHeader = []string{
		"Date", "Age (months)",
		"Height (cm)", "Height percentile",
		"Weight (kg)", "Weight percentile",
		"Head circumference (cm)", "Head circumference percentile",
	}
	assessmentHeader   = []string{"Metric", "Latest value", "Percentile", "Status", "Trend"}
	vaccinationsHeader = []string{"Vaccine", "Dose", "Due age (months)", "Due date", "Status", "Administered"}
	checkupsHeader     = []string{"Date", "Kind", "Result", "Notes"}
)

// ExcelReporter writes the growth and vaccination report of a child as an xlsx workbook.
type ExcelReporter struct {
	engine    *growth.Engine
	evaluator *vaccination.Evaluator
}

func NewExcelReporter(engine *growth.Engine, evaluator *vaccination.Evaluator) *ExcelReporter {
	vala.BeginValidation().Validate(
		vala.IsNotNil(engine, "engine"),
		vala.IsNotNil(evaluator, "evaluator"),
	).CheckAndPanic()

	return &ExcelReporter{engine: engine, evaluator: evaluator}
}

// Filename suggests a download name for the report of c.
func Filename(c child.Child, today time.Time) string {
	name := strings.Join(strings.Fields(core.CleanString(c.Name, true /* lower */)), "-")
	return fmt.Sprintf("%s-%s.xlsx", name, today.Format(core.DateLayout))
}

// ChildWorkbook returns the report of c as of today.
func (r *ExcelReporter) ChildWorkbook(c child.Child, today time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}

	if err = r.writeProfile(f, c, today); err != nil {
		return nil, err
	}
	// the default sheet becomes the profile
	if err = f.SetSheetName("Sheet1", SheetProfile); err != nil {
		return nil, errors.Wrap(err, "renaming default sheet")
	}

	sheets := []struct {
		name   string
		header []string
		rows   func() ([][]interface{}, error)
	}{
		{SheetGrowth, growthHeader, func() ([][]interface{}, error) { return r.growthRows(c) }},
		{SheetAssessment, assessmentHeader, func() ([][]interface{}, error) { return r.assessmentRows(c) }},
		{SheetVaccinations, vaccinationsHeader, func() ([][]interface{}, error) { return r.vaccinationRows(c, today), nil }},
		{SheetCheckups, checkupsHeader, func() ([][]interface{}, error) { return checkupRows(c), nil }},
	}
	for _, sh := range sheets {
		rows, err := sh.rows()
		if err != nil {
			return nil, err
		}
		if err = writeSheet(f, sh.name, sh.header, rows, headerStyle); err != nil {
			return nil, err
		}
	}

	buf := new(bytes.Buffer)
	if _, err = f.WriteTo(buf); err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}

func (r *ExcelReporter) writeProfile(f *excelize.File, c child.Child, today time.Time) error {
	rows := [][]interface{}{
		{"Name", c.Name},
		{"Birth date", c.BirthDate.Format(core.DateLayout)},
		{"Sex", string(c.Sex)},
		{"Age (months)", round(growth.AgeInMonths(c.BirthDate, today))},
		{"Report date", today.Format(core.DateLayout)},
	}
	for i, row := range rows {
		if err := f.SetSheetRow("Sheet1", cellName(1, i+1), &row); err != nil {
			return errors.Wrap(err, "writing profile")
		}
	}
	return nil
}

func writeSheet(f *excelize.File, name string, header []string, rows [][]interface{}, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return errors.Wrapf(err, "creating sheet %s", name)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return errors.Wrapf(err, "writing %s header", name)
	}
	last := cellName(len(header), 1)
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		return errors.Wrapf(err, "styling %s header", name)
	}
	for i, row := range rows {
		row := row
		if err := f.SetSheetRow(name, cellName(1, i+2), &row); err != nil {
			return errors.Wrapf(err, "writing %s row %d", name, i+2)
		}
	}
	return nil
}

func (r *ExcelReporter) growthRows(c child.Child) ([][]interface{}, error) {
	obs := make([]growth.Observation, len(c.Growth))
	copy(obs, c.Growth)
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })

	rows := make([][]interface{}, 0, len(obs))
	for _, o := range obs {
		age := growth.AgeInMonths(c.BirthDate, o.Date)
		row := []interface{}{o.Date.Format(core.DateLayout), round(age)}
		for _, metric := range growth.AllMetrics {
			value, ok := o.Value(metric)
			if !ok {
				row = append(row, nil, nil)
				continue
			}
			var pct null.Float64
			if r.engine.Supports(metric, c.Sex) {
				p, err := r.engine.PercentileFor(metric, c.Sex, age, value)
				if err != nil {
					return nil, errors.Wrapf(err, "computing %s percentile", metric)
				}
				pct = p
			}
			row = append(row, value, optional(pct))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *ExcelReporter) assessmentRows(c child.Child) ([][]interface{}, error) {
	results, err := r.engine.AnalyzeAll(c.Subject())
	if err != nil {
		return nil, errors.Wrap(err, "analyzing growth")
	}
	rows := make([][]interface{}, 0, len(results))
	for _, metric := range growth.AllMetrics {
		res, ok := results[metric]
		if !ok {
			continue
		}
		rows = append(rows, []interface{}{
			string(metric), optional(res.Value), optional(res.Percentile), string(res.Status), string(res.Trend),
		})
	}
	return rows, nil
}

func (r *ExcelReporter) vaccinationRows(c child.Child, today time.Time) [][]interface{} {
	statuses := r.evaluator.StatusForChild(c.BirthDate, c.Vaccinations, today)
	rows := make([][]interface{}, 0, len(statuses))
	for _, st := range statuses {
		var administered interface{}
		if st.AdministeredDate.Valid {
			administered = st.AdministeredDate.Time.Format(core.DateLayout)
		}
		rows = append(rows, []interface{}{
			st.Spec.Vaccine, st.Spec.Dose, st.Spec.DueAgeMonths,
			st.DueDate.Format(core.DateLayout), string(st.Status), administered,
		})
	}
	return rows
}

func checkupRows(c child.Child) [][]interface{} {
	rows := make([][]interface{}, 0, len(c.Checkups))
	for _, ch := range c.Checkups {
		rows = append(rows, []interface{}{ch.Date.Format(core.DateLayout), ch.Kind, ch.Result, ch.Notes})
	}
	return rows
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row) // col and row are always >= 1
	return name
}

func optional(v null.Float64) interface{} {
	if !v.Valid {
		return nil
	}
	return round(v.Float64)
}

func round(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
