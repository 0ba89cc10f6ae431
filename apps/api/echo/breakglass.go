package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/breakglass"
)

// Break-glass endpoints act with the user's own roles: a grant cannot be used to hand out more grants.
type breakGlassApi struct {
	auth     *authenticator
	svc      breakglass.ServiceInterface
	validate *validator.Validate
}

func registerBreakGlassAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc breakglass.ServiceInterface,
	validate *validator.Validate,
) {
	api := breakGlassApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	bg := g.Group("/break-glass", jwt)
	bg.GET("", api.query)
	bg.POST("", api.activate)
	bg.GET("/me", api.me)
	bg.POST("/:id/deactivate", api.deactivate)
}

func (api *breakGlassApi) query(ctx echo.Context) error {
	ctxUsr, err := api.auth.realUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		return errHttpForbidden
	}

	var filter breakglass.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []breakglass.Grant{})
	}

	grants, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying break-glass grants")
	}
	if grants == nil {
		grants = []breakglass.Grant{}
	}
	return ctx.JSON(http.StatusOK, grants)
}

func (api *breakGlassApi) activate(ctx echo.Context) error {
	var data breakglass.Activation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Activation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.realUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grant, err := api.svc.Activate(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "activating break-glass grant")
	}
	return ctx.JSON(http.StatusCreated, grant)
}

func (api *breakGlassApi) deactivate(ctx echo.Context) error {
	var data breakglass.Deactivation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Deactivation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.realUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grant, err := api.svc.Deactivate(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "deactivating break-glass grant")
	}
	return ctx.JSON(http.StatusOK, grant)
}

// me returns the active grant of the authenticated user.
func (api *breakGlassApi) me(ctx echo.Context) error {
	ctxUsr, err := api.auth.realUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grant, err := api.svc.Active(ctx.Request().Context(), ctxUsr.ID, time.Now())
	if err != nil {
		return errors.Wrap(err, "finding active break-glass grant")
	}
	return ctx.JSON(http.StatusOK, grant)
}
