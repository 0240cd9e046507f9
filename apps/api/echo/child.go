package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/user"
	reportsvc "github.com/trezcool/afya/services/report"
)

var (
	errChildNotFoundInCtx = errors.New("child object not found in echo.Context")
	unknownParentText     = "parent not found"
	parentRequiredText    = "this field is required"
)

type childApi struct {
	usrSvc   user.Service
	svc      child.Service
	reporter *reportsvc.ExcelReporter
	validate *validator.Validate
}

func registerChildAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := childApi{
		usrSvc:   s.deps.UserSvc,
		svc:      s.deps.ChildSvc,
		reporter: s.deps.Reporter,
		validate: s.deps.Validate,
	}

	cg := g.Group("/children", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create)

	// detail endpoints
	dg := cg.Group("/:id", childOwnerOrAdminMiddleware(api.usrSvc, api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)

	dg.GET("/growth", api.queryGrowth)
	dg.POST("/growth", api.addGrowth)
	dg.GET("/growth/assessment", api.assessGrowth)

	dg.GET("/vaccinations", api.vaccinationStatus)
	dg.POST("/vaccinations", api.recordVaccination)

	dg.GET("/checkups", api.queryCheckups)
	dg.POST("/checkups", api.addCheckup)

	dg.GET("/report", api.report)
}

func contextChild(ctx echo.Context) (child.Child, error) {
	c, ok := ctx.Get(contextObjectKey).(child.Child)
	if !ok {
		return child.Child{}, errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	return c, nil
}

// Handlers

func (api *childApi) query(ctx echo.Context) error {
	filter := new(child.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []child.Child{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	// parents only see their own children
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		filter.ParentID = ctxUsr.ID
	}

	children, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying children")
	}
	if children == nil {
		children = []child.Child{}
	}
	return ctx.JSON(http.StatusOK, children)
}

func (api *childApi) create(ctx echo.Context) error {
	var data child.NewChild
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewChild")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// admins create children on behalf of a parent
	parentID := ctxUsr.ID
	if ctxUsr.IsAdmin() {
		if data.ParentID == "" {
			return core.NewFieldValidationError("parent_id", parentRequiredText)
		}
		if _, err = api.usrSvc.GetByID(ctx.Request().Context(), data.ParentID); err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewFieldValidationError("parent_id", unknownParentText)
			}
			return errors.Wrap(err, "finding parent")
		}
		parentID = data.ParentID
	}

	c, err := api.svc.Create(ctx.Request().Context(), parentID, data)
	if err != nil {
		return errors.Wrap(err, "creating child")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *childApi) retrieve(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *childApi) update(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}

	var data child.UpdateChild
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateChild")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating child")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *childApi) destroy(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting child")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *childApi) queryGrowth(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.Growth)
}

func (api *childApi) addGrowth(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}

	var data child.NewGrowthObservation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrowthObservation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.AddGrowthObservation(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding growth observation")
	}
	return ctx.JSON(http.StatusCreated, c.Growth)
}

// assessGrowth analyzes one metric (`?metric=weight`) or every supported metric.
func (api *childApi) assessGrowth(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}

	if metric := core.CleanString(ctx.QueryParam("metric"), true /* lower */); metric != "" {
		res, err := api.svc.GrowthAssessment(ctx.Request().Context(), c.ID, growth.Metric(metric))
		if err != nil {
			return errors.Wrap(err, "assessing growth")
		}
		return ctx.JSON(http.StatusOK, res)
	}

	results, err := api.svc.GrowthAssessments(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "assessing growth")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *childApi) vaccinationStatus(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}
	statuses, err := api.svc.VaccinationStatus(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "evaluating vaccinations")
	}
	return ctx.JSON(http.StatusOK, statuses)
}

func (api *childApi) recordVaccination(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}

	var data child.NewVaccination
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewVaccination")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if _, err = api.svc.RecordVaccination(ctx.Request().Context(), c.ID, data); err != nil {
		return errors.Wrap(err, "recording vaccination")
	}
	statuses, err := api.svc.VaccinationStatus(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "evaluating vaccinations")
	}
	return ctx.JSON(http.StatusCreated, statuses)
}

func (api *childApi) queryCheckups(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.Checkups)
}

func (api *childApi) addCheckup(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}

	var data child.NewCheckup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckup")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	checkup, err := api.svc.AddCheckup(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding checkup")
	}
	return ctx.JSON(http.StatusCreated, checkup)
}

func (api *childApi) report(ctx echo.Context) error {
	c, err := contextChild(ctx)
	if err != nil {
		return err
	}

	today := core.Today(child.NowFunc())
	data, err := api.reporter.ChildWorkbook(c, today)
	if err != nil {
		return errors.Wrap(err, "generating report")
	}
	return blobAttachment(ctx, reportsvc.Filename(c, today), reportsvc.ContentType, data)
}

func blobAttachment(ctx echo.Context, name, contentType string, data []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return ctx.Blob(http.StatusOK, contentType, data)
}
