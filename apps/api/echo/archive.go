package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/archive"
)

type archiveApi struct {
	svc *archive.Service
}

func registerArchiveAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *archive.Service) {
	api := archiveApi{svc: svc}

	ag := g.Group("/archives", jwt, adminMiddleware())
	ag.GET("/students", api.listStudents)
	ag.GET("/students/:id", api.retrieveStudent)
	ag.POST("/students/:id/restore", api.restoreStudent)
	ag.GET("/sections", api.listSections)
	ag.GET("/sections/:id", api.retrieveSection)
}

// Handlers

func (api *archiveApi) listStudents(ctx echo.Context) error {
	archs, err := api.svc.ListArchivedStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing archived students")
	}
	return ctx.JSON(http.StatusOK, archs)
}

func (api *archiveApi) retrieveStudent(ctx echo.Context) error {
	arch, err := api.svc.GetArchivedStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting archived student")
	}
	return ctx.JSON(http.StatusOK, arch)
}

// restoreStudent answers 409 when a live student already uses the archived id.
func (api *archiveApi) restoreStudent(ctx echo.Context) error {
	s, err := api.svc.RestoreStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "restoring student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *archiveApi) listSections(ctx echo.Context) error {
	archs, err := api.svc.ListArchivedSections(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing archived sections")
	}
	return ctx.JSON(http.StatusOK, archs)
}

func (api *archiveApi) retrieveSection(ctx echo.Context) error {
	arch, err := api.svc.GetArchivedSection(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting archived section")
	}
	return ctx.JSON(http.StatusOK, arch)
}
