package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/vaccination"
)

type referenceApi struct {
	svc child.Service
}

// ScheduleResponse is the vaccination schedule every child is evaluated against.
type ScheduleResponse struct {
	UpcomingWindowDays int                  `json:"upcoming_window_days"`
	Doses              vaccination.Schedule `json:"doses"`
}

func registerReferenceAPI(g *echo.Group, svc child.Service) {
	api := referenceApi{svc: svc}

	g.GET("/vaccines/schedule", api.schedule)
	g.GET("/growth/references", api.growthReferences)
}

func (api *referenceApi) schedule(ctx echo.Context) error {
	ev := api.svc.Evaluator()
	return ctx.JSON(http.StatusOK, ScheduleResponse{
		UpcomingWindowDays: ev.UpcomingWindow(),
		Doses:              ev.Schedule(),
	})
}

func (api *referenceApi) growthReferences(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Engine().Tables())
}
