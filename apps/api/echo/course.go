package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
)

type courseApi struct {
	auth     *authenticator
	svc      course.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc course.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware(auth))
	cg.POST("/check-schedule", api.checkSchedule, facultyOrAdminMiddleware(auth))

	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update, adminMiddleware(auth))
	cg.DELETE("/:id", api.destroy, adminMiddleware(auth))
	cg.POST("/:id/archive", api.archive, adminMiddleware(auth))

	cg.GET("/:id/enrollments", api.queryEnrollments)
	cg.POST("/:id/enrollments", api.enroll, adminMiddleware(auth))
	cg.DELETE("/:id/enrollments", api.unenroll, adminMiddleware(auth))
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

// checkSchedule is a dry-run of the overlap validation. Faculty members may only check their own schedules.
func (api *courseApi) checkSchedule(ctx echo.Context) error {
	var data course.CheckSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() && data.FacultyID != "" && data.FacultyID != ctxUsr.ID {
		return errHttpForbidden
	}

	if err := api.svc.CheckScheduleOverlap(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "checking schedule overlap")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "No schedule conflict."})
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) archive(ctx echo.Context) error {
	c, err := api.svc.Archive(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "archiving course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	n, err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return errHttpNotFound
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryEnrollments(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	c, err := api.svc.Get(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !(ctxUsr.IsAdmin() || c.FacultyID == ctxUsr.ID) {
		return errHttpForbidden
	}

	enrollments, err := api.svc.QueryEnrollments(rctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	var data EnrollmentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollmentRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	n, err := api.svc.Enroll(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs...)
	if err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *courseApi) unenroll(ctx echo.Context) error {
	var data EnrollmentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollmentRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	n, err := api.svc.Unenroll(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs...)
	if err != nil {
		return errors.Wrap(err, "unenrolling students")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

type (
	EnrollmentRequest struct {
		StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)
