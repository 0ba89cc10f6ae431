package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/grading"
)

type gradingApi struct {
	auth     *authenticator
	svc      grading.ServiceInterface
	validate *validator.Validate
}

func registerGradingAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc grading.ServiceInterface,
	validate *validator.Validate,
) {
	api := gradingApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	g.GET("/courses/:id/grade-components", api.queryComponents, jwt)
	g.POST("/courses/:id/grade-components", api.createComponent, jwt)
	g.GET("/courses/:id/class-record", api.classRecord, jwt)

	gg := g.Group("/grade-components/:id", jwt)
	gg.GET("", api.retrieveComponent)
	gg.PUT("", api.updateComponent)
	gg.DELETE("", api.destroyComponent)
	gg.POST("/scores", api.recordScores)
}

func (api *gradingApi) queryComponents(ctx echo.Context) error {
	components, err := api.svc.QueryComponents(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying grade components")
	}
	if components == nil {
		components = []grading.Component{}
	}
	return ctx.JSON(http.StatusOK, components)
}

func (api *gradingApi) createComponent(ctx echo.Context) error {
	var data grading.NewComponent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComponent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	data.CourseID = ctx.Param("id")

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	comp, err := api.svc.CreateComponent(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating grade component")
	}
	return ctx.JSON(http.StatusCreated, comp)
}

func (api *gradingApi) retrieveComponent(ctx echo.Context) error {
	comp, err := api.svc.GetComponent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding grade component")
	}
	return ctx.JSON(http.StatusOK, comp)
}

func (api *gradingApi) updateComponent(ctx echo.Context) error {
	var data grading.UpdateComponent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateComponent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	comp, err := api.svc.UpdateComponent(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating grade component")
	}
	return ctx.JSON(http.StatusOK, comp)
}

func (api *gradingApi) destroyComponent(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteComponent(ctx.Request().Context(), ctxUsr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting grade component")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *gradingApi) recordScores(ctx echo.Context) error {
	var data grading.RecordScores
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordScores")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data.ComponentID = ctx.Param("id")
	data.RecordedBy = ctxUsr.ID

	entries, err := api.svc.RecordScores(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "recording scores")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *gradingApi) classRecord(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cr, err := api.svc.ClassRecord(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing class record")
	}
	return ctx.JSON(http.StatusOK, cr)
}
