package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/user"
	"github.com/trezcool/afya/core/vaccination"
	reportsvc "github.com/trezcool/afya/services/report"
	"github.com/trezcool/afya/tests"
)

func fixToday(t *testing.T, y int, m time.Month, d int) {
	child.NowFunc = func() time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { child.NowFunc = time.Now })
}

func fPtr(f float64) *float64 { return &f }

func Test_childApi_childQuery(t *testing.T) {
	resetDB()

	now := time.Now()
	mama := testutil.CreateUser(t, usrRepo, "Mama Amani", "mama", "mama@test.cd", "", []string{user.RoleParent}, true)
	baba := testutil.CreateUser(t, usrRepo, "Baba Juma", "baba", "baba@test.cd", "", []string{user.RoleParent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	amani := testutil.CreateChild(t, childRepo, mama, "Amani", "2023-02-01", growth.SexFemale, now)
	neema := testutil.CreateChild(t, childRepo, mama, "Neema", "2024-06-15", growth.SexFemale, now.Add(time.Hour))
	juma := testutil.CreateChild(t, childRepo, baba, "Juma", "2022-11-30", growth.SexMale, now.Add(2*time.Hour))

	mamaToken := getToken(t, mama)
	adminToken := getToken(t, admin)
	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/v1/children?" + v.Encode()
	}

	runTests(t, []httpTest{
		{name: "Auth required", path: "/v1/children", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "own children", path: "/v1/children", token: mamaToken, wantData: marchallList(t, neema, amani)},
		{name: "parent_id ignored for parents", path: path("parent_id", baba.ID), token: mamaToken, wantData: marchallList(t, neema, amani)},
		{name: "admin sees all", path: "/v1/children", token: adminToken, wantData: marchallList(t, juma, neema, amani)},
		{name: "admin by parent", path: path("parent_id", baba.ID), token: adminToken, wantData: marchallList(t, juma)},
		{name: "search", path: path("search", "NEE"), token: adminToken, wantData: marchallList(t, neema)},
		{name: "sex", path: path("sex", "male"), token: adminToken, wantData: marchallList(t, juma)},
		{name: "order by birth_date", path: path("ordering", "birth_date"), token: adminToken, wantData: marchallList(t, juma, amani, neema)},
		{name: "order by -name", path: path("ordering", "-name"), token: mamaToken, wantData: marchallList(t, neema, amani)},
	})
}

func Test_childApi_childCreate(t *testing.T) {
	resetDB()
	fixToday(t, 2024, time.August, 1)

	mama := testutil.CreateUser(t, usrRepo, "Mama Amani", "mama", "mama@test.cd", "", []string{user.RoleParent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	mamaToken := getToken(t, mama)
	adminToken := getToken(t, admin)

	reqMsg := "this field is required"
	runTests(t, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/children", token: mamaToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": reqMsg, "birth_date": reqMsg, "sex": reqMsg}),
		},
		{
			name: "invalid values", method: http.MethodPost, path: "/v1/children", token: mamaToken,
			body:     marchallObj(t, child.NewChild{Name: "  ", BirthDate: "01/02/2024", Sex: "other"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":       reqMsg,
				"birth_date": "must be a date formatted as YYYY-MM-DD",
				"sex":        "sex must be one of [male female]",
			}),
		},
		{
			name: "born in the future", method: http.MethodPost, path: "/v1/children", token: mamaToken,
			body:     marchallObj(t, child.NewChild{Name: "Amani", BirthDate: "2024-08-02", Sex: "female"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"birth_date": "birth date cannot be in the future"}),
		},
		{
			name: "admin must set parent", method: http.MethodPost, path: "/v1/children", token: adminToken,
			body:     marchallObj(t, child.NewChild{Name: "Amani", BirthDate: "2024-01-10", Sex: "female"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"parent_id": reqMsg}),
		},
		{
			name: "admin: unknown parent", method: http.MethodPost, path: "/v1/children", token: adminToken,
			body:     marchallObj(t, child.NewChild{ParentID: "9b2f0d0e-4c61-4a3e-9f55-6a0b8c0f2a11", Name: "Amani", BirthDate: "2024-01-10", Sex: "female"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"parent_id": "parent not found"}),
		},
	})

	t.Run("parent creates", func(t *testing.T) {
		body := marchallObj(t, child.NewChild{ParentID: admin.ID /* ignored */, Name: " Amani ", BirthDate: "2024-01-10", Sex: "Female"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/children", mamaToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c child.Child
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, mama.ID, c.ParentID)
		assert.Equal(t, "Amani", c.Name)
		assert.Equal(t, growth.SexFemale, c.Sex)
		assert.Equal(t, "2024-01-10", c.BirthDate.Format("2006-01-02"))
		assert.Empty(t, c.Growth)
		assert.Empty(t, c.Vaccinations)
	})

	t.Run("admin creates for parent", func(t *testing.T) {
		body := marchallObj(t, child.NewChild{ParentID: mama.ID, Name: "Neema", BirthDate: "2024-06-15", Sex: "female"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/children", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		children, err := childRepo.QueryChildren(context.Background(), &child.QueryFilter{ParentID: mama.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, children, 2)
	})
}

func Test_childApi_childDetail(t *testing.T) {
	resetDB()
	fixToday(t, 2024, time.August, 1)

	mama := testutil.CreateUser(t, usrRepo, "Mama Amani", "mama", "mama@test.cd", "", []string{user.RoleParent}, true)
	baba := testutil.CreateUser(t, usrRepo, "Baba Juma", "baba", "baba@test.cd", "", []string{user.RoleParent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	amani := testutil.CreateChild(t, childRepo, mama, "Amani", "2024-01-10", growth.SexFemale)
	juma := testutil.CreateChild(t, childRepo, baba, "Juma", "2022-11-30", growth.SexMale)

	mamaToken := getToken(t, mama)
	detail := func(c child.Child) string { return "/v1/children/" + c.ID }
	notFound := marchallObj(t, httpErr{Error: "not found"})

	runTests(t, []httpTest{
		{name: "own child", path: detail(amani), token: mamaToken, wantData: marchallObj(t, amani)},
		{name: "other parent's child", path: detail(juma), token: mamaToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", path: detail(juma), token: getToken(t, admin), wantData: marchallObj(t, juma)},
		{name: "unknown", path: "/v1/children/lol", token: mamaToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "cannot update other parent's child", method: http.MethodPut, path: detail(juma), token: mamaToken,
			body: marchallObj(t, child.UpdateChild{Name: "Lol"}), wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "invalid update", method: http.MethodPut, path: detail(amani), token: mamaToken,
			body:     marchallObj(t, child.UpdateChild{BirthDate: "2030-01-01"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"birth_date": "birth date cannot be in the future"}),
		},
	})

	t.Run("update", func(t *testing.T) {
		body := marchallObj(t, child.UpdateChild{Name: "Amani Neema", Sex: "female"})
		req, rec := newAuthRequest(http.MethodPut, detail(amani), mamaToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		c, err := childRepo.GetChild(context.Background(), amani.ID)
		require.NoError(t, err)
		assert.Equal(t, "Amani Neema", c.Name)
		assert.True(t, c.BirthDate.Equal(amani.BirthDate))
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, detail(amani), mamaToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, detail(amani), mamaToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_childApi_growth(t *testing.T) {
	resetDB()
	fixToday(t, 2024, time.August, 1)

	mama := testutil.CreateUser(t, usrRepo, "Mama Amani", "mama", "mama@test.cd", "", []string{user.RoleParent}, true)
	amani := testutil.CreateChild(t, childRepo, mama, "Amani", "2024-01-10", growth.SexFemale)
	token := getToken(t, mama)
	growthPath := "/v1/children/" + amani.ID + "/growth"

	runTests(t, []httpTest{
		{
			name: "no metric", method: http.MethodPost, path: growthPath, token: token,
			body:     marchallObj(t, child.NewGrowthObservation{Date: "2024-02-10"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"metrics": "at least one of height, weight or head_circumference is required"}),
		},
		{
			name: "before birth", method: http.MethodPost, path: growthPath, token: token,
			body:     marchallObj(t, child.NewGrowthObservation{Date: "2024-01-09", Weight: fPtr(3.1)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "date cannot be before the birth date"}),
		},
		{
			name: "negative weight", method: http.MethodPost, path: growthPath, token: token,
			body:     marchallObj(t, child.NewGrowthObservation{Date: "2024-02-10", Weight: fPtr(-3)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"weight": "weight must be greater than 0"}),
		},
		{
			name: "unsupported metric", path: growthPath + "/assessment?metric=bmi", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "unsupported metric"}),
		},
	})

	// measurements are kept sorted by date
	for _, obs := range []child.NewGrowthObservation{
		{Date: "2024-07-10", Height: fPtr(66), Weight: fPtr(7.3)},
		{Date: "2024-01-10", Height: fPtr(49.1), Weight: fPtr(3.2), HeadCircumference: fPtr(33.9)},
	} {
		req, rec := newAuthRequest(http.MethodPost, growthPath, token, marchallObj(t, obs))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, growthPath, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var observations []growth.Observation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &observations))
		require.Len(t, observations, 2)
		assert.Equal(t, "2024-01-10", observations[0].Date.Format("2006-01-02"))
		assert.Equal(t, 33.9, observations[0].HeadCircumference.Float64)
		assert.False(t, observations[1].HeadCircumference.Valid)
	})

	t.Run("assess one metric", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, growthPath+"/assessment?metric=weight", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res growth.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, 7.3, res.Value.Float64)
		assert.True(t, res.Percentile.Valid)
		assert.NotEqual(t, growth.StatusUnknown, res.Status)
	})

	t.Run("assess all metrics", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, growthPath+"/assessment", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var results map[growth.Metric]growth.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		assert.Len(t, results, len(growth.AllMetrics))
		assert.Equal(t, 66.0, results[growth.MetricHeight].Value.Float64)
		assert.Equal(t, 33.9, results[growth.MetricHeadCircumference].Value.Float64)
		assert.Equal(t, growth.TrendStable, results[growth.MetricHeadCircumference].Trend)
	})
}

func Test_childApi_vaccinations(t *testing.T) {
	resetDB()
	fixToday(t, 2024, time.August, 1)

	mama := testutil.CreateUser(t, usrRepo, "Mama Amani", "mama", "mama@test.cd", "", []string{user.RoleParent}, true)
	amani := testutil.CreateChild(t, childRepo, mama, "Amani", "2024-01-10", growth.SexFemale)
	token := getToken(t, mama)
	vaccPath := "/v1/children/" + amani.ID + "/vaccinations"

	runTests(t, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: vaccPath, token: token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"vaccine": "this field is required",
				"dose":    "this field is required",
				"date":    "this field is required",
			}),
		},
		{
			name: "unknown dose", method: http.MethodPost, path: vaccPath, token: token,
			body:     marchallObj(t, child.NewVaccination{Vaccine: "BCG", Dose: 7, Date: "2024-01-10"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"dose": "dose not found in the vaccination schedule"}),
		},
	})

	statusOf := func(t *testing.T, statuses []vaccination.StatusResult, vaccine string, dose int) vaccination.StatusResult {
		for _, st := range statuses {
			if st.Spec.Vaccine == vaccine && st.Spec.Dose == dose {
				return st
			}
		}
		t.Fatalf("dose %s#%d not found", vaccine, dose)
		return vaccination.StatusResult{}
	}

	t.Run("status before recording", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, vaccPath, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var statuses []vaccination.StatusResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
		schedule, err := vaccination.DefaultSchedule()
		require.NoError(t, err)
		require.Len(t, statuses, len(schedule))

		bcg := statusOf(t, statuses, "BCG", 1)
		assert.Equal(t, vaccination.StatusOverdue, bcg.Status)
		assert.Equal(t, "2024-01-10", bcg.DueDate.Format("2006-01-02"))
		assert.Equal(t, vaccination.StatusFuture, statusOf(t, statuses, "MMR", 1).Status)
	})

	t.Run("record", func(t *testing.T) {
		body := marchallObj(t, child.NewVaccination{Vaccine: " BCG ", Dose: 1, Date: "2024-01-12"})
		req, rec := newAuthRequest(http.MethodPost, vaccPath, token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var statuses []vaccination.StatusResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
		bcg := statusOf(t, statuses, "BCG", 1)
		assert.Equal(t, vaccination.StatusDone, bcg.Status)
		assert.Equal(t, "2024-01-12", bcg.AdministeredDate.Time.Format("2006-01-02"))

		// persisted
		c, err := childRepo.GetChild(context.Background(), amani.ID)
		require.NoError(t, err)
		assert.Contains(t, c.Vaccinations, vaccination.DoseKey{Vaccine: "BCG", Dose: 1})
	})
}

func Test_childApi_checkupsAndReport(t *testing.T) {
	resetDB()
	fixToday(t, 2024, time.August, 1)

	mama := testutil.CreateUser(t, usrRepo, "Mama Amani", "mama", "mama@test.cd", "", []string{user.RoleParent}, true)
	amani := testutil.CreateChild(t, childRepo, mama, "Amani", "2024-01-10", growth.SexFemale)
	token := getToken(t, mama)
	base := "/v1/children/" + amani.ID

	runTests(t, []httpTest{
		{
			name: "checkup: required fields", method: http.MethodPost, path: base + "/checkups", token: token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "this field is required", "kind": "this field is required"}),
		},
		{name: "no checkups", path: base + "/checkups", token: token, wantData: marchallList(t)},
	})

	body := marchallObj(t, child.NewCheckup{Date: "2024-03-01", Kind: "hemoglobin", Result: "11.2 g/dL"})
	req, rec := newAuthRequest(http.MethodPost, base+"/checkups", token, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var checkup child.Checkup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkup))
	assert.NotEmpty(t, checkup.ID)
	assert.Equal(t, "hemoglobin", checkup.Kind)

	t.Run("list checkups", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base+"/checkups", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		ok, err := jsonBytesEqual(rec.Body.Bytes(), marchallList(t, checkup))
		require.NoError(t, err)
		assert.True(t, ok, rec.Body.String())
	})

	t.Run("report", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base+"/report", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, reportsvc.ContentType, rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="amani-2024-08-01.xlsx"`, rec.Header().Get("Content-Disposition"))

		f, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		rows, err := f.GetRows(reportsvc.SheetCheckups)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "hemoglobin", rows[1][1])
	})
}

func Test_referenceApi(t *testing.T) {
	t.Run("vaccination schedule", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/vaccines/schedule")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			UpcomingWindowDays int                  `json:"upcoming_window_days"`
			Doses              vaccination.Schedule `json:"doses"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, conf.Vaccination.UpcomingWindowDays, resp.UpcomingWindowDays)
		require.NotEmpty(t, resp.Doses)
		assert.Equal(t, vaccination.DoseSpec{Vaccine: "BCG", Dose: 1, DueAgeMonths: 0}, resp.Doses[0])
	})

	t.Run("growth references", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/growth/references")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var tables []growth.Table
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
		assert.Len(t, tables, len(growth.AllMetrics)*len(growth.AllSexes))
		for _, tbl := range tables {
			assert.NotEmpty(t, tbl.Checkpoints, tbl.String())
		}
	})
}
