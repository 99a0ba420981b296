package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/importer"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errSectionNotFound = core.NewValidationError(section.ErrNotFound, core.FieldError{
	Field: "sectionId",
	Error: section.ErrNotFound.Error(),
})

type studentApi struct {
	auth     *authenticator
	svc      *student.Service
	sections *section.Service
	archives *archive.Service
	importer *importer.Importer
	validate *validator.Validate
}

func registerStudentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *student.Service,
	sections *section.Service,
	archives *archive.Service,
	imp *importer.Importer,
	validate *validator.Validate,
) {
	api := studentApi{
		auth:     auth,
		svc:      svc,
		sections: sections,
		archives: archives,
		importer: imp,
		validate: validate,
	}

	sg := g.Group("/students", jwt, staffMiddleware())
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.POST("/import", api.importFile, adminMiddleware())
	sg.GET("/export", api.export, adminMiddleware())

	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/quiz-results", api.quizResults)
	dg.PUT("/quiz-results/:resultId", api.setQuizResult)
}

// queryFilter reads the filter from the query string. A present but empty `sectionId` selects unassigned students.
func queryFilter(ctx echo.Context) student.QueryFilter {
	params := ctx.QueryParams()
	filter := student.QueryFilter{
		Search: params.Get("search"),
		Status: params.Get("status"),
	}
	if ids, ok := params["sectionId"]; ok && len(ids) > 0 {
		id := core.CleanString(ids[0])
		filter.SectionID = &id
	}
	return filter
}

func (api *studentApi) checkSection(ctx echo.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := api.sections.Get(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == section.ErrNotFound {
			return errSectionNotFound
		}
		return errors.Wrap(err, "getting section")
	}
	return nil
}

func (api *studentApi) syncCounts(ctx echo.Context, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := api.sections.SyncStudentCount(ctx.Request().Context(), id); err != nil && errors.Cause(err) != section.ErrNotFound {
			return errors.Wrap(err, "syncing section student count")
		}
	}
	return nil
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), queryFilter(ctx), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.checkSection(ctx, data.SectionID); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	if err := api.syncCounts(ctx, s.SectionID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	orig, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	if data.SectionID != nil {
		if err := api.checkSection(ctx, core.CleanString(*data.SectionID)); err != nil {
			return err
		}
	}

	s, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	if s.SectionID != orig.SectionID {
		if err := api.syncCounts(ctx, orig.SectionID, s.SectionID); err != nil {
			return err
		}
	}
	return ctx.JSON(http.StatusOK, s)
}

// destroy moves the student into the archive. `?reason=` is recorded on the archive.
func (api *studentApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	arch, err := api.archives.ArchiveStudent(ctx.Request().Context(), ctx.Param("id"), actor, ctx.QueryParam("reason"))
	if err != nil {
		return errors.Wrap(err, "archiving student")
	}
	return ctx.JSON(http.StatusOK, arch)
}

func (api *studentApi) quizResults(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.Get(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "getting student")
	}
	results, err := api.svc.QuizResults(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if results == nil {
		results = []core.Document{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *studentApi) setQuizResult(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.Get(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "getting student")
	}

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading quiz result")
	}
	if !json.Valid(body) {
		return core.NewValidationError(errors.New("quiz result must be a JSON document"))
	}

	data := json.RawMessage(body)
	if err := api.svc.SetQuizResult(ctx.Request().Context(), id, ctx.Param("resultId"), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, core.Document{ID: ctx.Param("resultId"), Data: data})
}

// importFile imports the multipart `file` (.xlsx or .csv) into the `sectionId` form value.
func (api *studentApi) importFile(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	sectionID := core.CleanString(ctx.FormValue("sectionId"))
	if err := api.checkSection(ctx, sectionID); err != nil {
		return err
	}

	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	res, err := api.importer.ImportFile(ctx.Request().Context(), f, fh.Filename, importer.Options{
		SectionID: sectionID,
		Actor:     actor,
	})
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, ImportResponse{Result: res, Kind: res.Kind(), Summary: res.Summary()})
}

// export writes the filtered roster as an .xlsx file that can be imported back.
func (api *studentApi) export(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), queryFilter(ctx), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	sections, err := api.sections.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing sections")
	}
	names := make(map[string]string, len(sections))
	for _, sec := range sections {
		names[sec.ID] = sec.Name
	}

	var buf bytes.Buffer
	if err := importer.Export(&buf, students, names); err != nil {
		return errors.Wrap(err, "exporting students")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="students.xlsx"`)
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

type ImportResponse struct {
	importer.Result
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
}
