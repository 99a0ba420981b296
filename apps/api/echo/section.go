package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
)

type sectionApi struct {
	auth     *authenticator
	svc      *section.Service
	students *student.Service
	archives *archive.Service
	validate *validator.Validate
	logger   core.Logger
}

func registerSectionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *section.Service,
	students *student.Service,
	archives *archive.Service,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := sectionApi{
		auth:     auth,
		svc:      svc,
		students: students,
		archives: archives,
		validate: validate,
		logger:   logger,
	}

	sg := g.Group("/sections", jwt, staffMiddleware())
	sg.GET("", api.list)
	sg.POST("", api.create, adminMiddleware())

	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/students", api.queryStudents)
}

// Handlers

func (api *sectionApi) list(ctx echo.Context) error {
	sections, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing sections")
	}
	if sections == nil {
		sections = []section.Section{}
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *sectionApi) create(ctx echo.Context) error {
	var data section.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	sec, err := api.svc.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating section")
	}
	return ctx.JSON(http.StatusCreated, sec)
}

func (api *sectionApi) retrieve(ctx echo.Context) error {
	sec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting section")
	}
	return ctx.JSON(http.StatusOK, sec)
}

func (api *sectionApi) update(ctx echo.Context) error {
	var data section.UpdateSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sec, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating section")
	}
	return ctx.JSON(http.StatusOK, sec)
}

// destroy archives the section with all of its students.
// A failed cascade answers 500 with the partial archive left in place; calling it again resumes.
func (api *sectionApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	id := ctx.Param("id")
	reporter := core.ProgressFunc(func(p core.Progress) {
		api.logger.Debug(fmt.Sprintf("archiving section %s: [%d/%d] %s", id, p.Current, p.Total, p.Label))
	})

	res, err := api.archives.ArchiveSection(ctx.Request().Context(), id, actor, reporter)
	if err != nil {
		return errors.Wrap(err, "archiving section")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *sectionApi) queryStudents(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.Get(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "getting section")
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)
	students, err := api.students.Query(ctx.Request().Context(), student.QueryFilter{SectionID: &id}, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying section students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}
