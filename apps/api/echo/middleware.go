package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// ctxUserOrAdminMiddleware loads the `:id` user in the context when it is the context user or an admin asks.
func ctxUserOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

// childOwnerOrAdminMiddleware loads the `:id` child in the context when the context user is its parent or an admin.
// Other users get a 404, like for unknown children.
func childOwnerOrAdminMiddleware(usrSvc user.Service, childSvc child.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			c, err := childSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == child.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding child by ID")
			}
			if c.ParentID != ctxUsr.ID && !ctxUsr.IsAdmin() {
				return errHttpNotFound
			}
			ctx.Set(contextObjectKey, c)
			return next(ctx)
		}
	}
}
