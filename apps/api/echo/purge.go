package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/services/sectionpurge"
)

// purgeApi is the privileged section delete endpoint used by the archival cascade.
// It is called server to server with the shared purge key instead of a user token,
// and only deletes sections whose students have all been archived.
type purgeApi struct {
	sections *section.Service
	students *student.Service
	archives *archive.Service
	logger   core.Logger
}

var (
	errPurgeLiveStudents = echo.NewHTTPError(http.StatusConflict, "section still has live students")
	errPurgeNotArchived  = echo.NewHTTPError(http.StatusConflict, "section has no complete archive")
)

func registerPurgeAPI(
	g *echo.Group,
	key string,
	sections *section.Service,
	students *student.Service,
	archives *archive.Service,
	logger core.Logger,
) {
	api := purgeApi{sections: sections, students: students, archives: archives, logger: logger}
	g.POST("/admin/purge-section", api.purgeSection, purgeKeyMiddleware(key))
}

func (api *purgeApi) purgeSection(ctx echo.Context) error {
	var data sectionpurge.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to purge request")
	}
	data.SectionID = core.CleanString(data.SectionID)
	if data.SectionID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "sectionId", Error: "this field is required"})
	}

	reqCtx := ctx.Request().Context()
	if _, err := api.sections.Get(reqCtx, data.SectionID); err != nil {
		return errors.Wrap(err, "getting section")
	}
	if err := api.checkArchived(reqCtx, data.SectionID); err != nil {
		return err
	}
	if err := api.sections.Purge(reqCtx, data.SectionID); err != nil {
		return errors.Wrap(err, "purging section")
	}

	api.logger.Info("section purged", map[string]interface{}{"sectionId": data.SectionID})
	return ctx.NoContent(http.StatusNoContent)
}

// checkArchived refuses the purge unless the cascade ran to completion for this section.
func (api *purgeApi) checkArchived(ctx context.Context, id string) error {
	members, err := api.students.Query(ctx, student.QueryFilter{SectionID: &id}, nil)
	if err != nil {
		return errors.Wrap(err, "querying section students")
	}
	if len(members) > 0 {
		api.logger.Warn("purge refused", map[string]interface{}{"sectionId": id, "liveStudents": len(members)})
		return errPurgeLiveStudents
	}

	arch, err := api.archives.GetArchivedSection(ctx, id)
	if err != nil {
		if errors.Cause(err) == archive.ErrNotFound {
			return errPurgeNotArchived
		}
		return errors.Wrap(err, "getting section archive")
	}
	if arch.Incomplete {
		return errPurgeNotArchived
	}
	return nil
}
