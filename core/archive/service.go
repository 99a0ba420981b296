package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
)

var (
	// errors
	ErrNotFound = errors.New("archive not found")
	ErrExists   = errors.New("an archive already exists for this id")
)

var nowFunc = time.Now // mockable

type (
	Deps struct {
		Store    core.DocumentStore
		Students *student.Service
		Sections *section.Service
		Logger   core.Logger
		Notifier core.Notifier
		// Deleters are tried in order to delete a live section. Defaults to StoreDeleter.
		Deleters []SectionDeleter
	}

	// Service moves live students & sections into the archive collections.
	// Every run is sequential: one document write or delete at a time, in roster order.
	Service struct {
		store    core.DocumentStore
		students *student.Service
		sections *section.Service
		logger   core.Logger
		notifier core.Notifier
		deleters []SectionDeleter
	}

	// SectionResult summarizes a section cascade.
	SectionResult struct {
		Archive ArchivedSection `json:"archive"`
		Deleted int             `json:"deleted"` // students deleted during this run
		Total   int             `json:"total"`   // students to delete at the start of this run
	}
)

func NewService(deps Deps) *Service {
	deleters := deps.Deleters
	if len(deleters) == 0 {
		deleters = []SectionDeleter{StoreDeleter(deps.Sections)}
	}
	return &Service{
		store:    deps.Store,
		students: deps.Students,
		sections: deps.Sections,
		logger:   deps.Logger,
		notifier: deps.Notifier,
		deleters: deleters,
	}
}

func (svc *Service) notify(title, message, kind string) {
	if svc.notifier != nil {
		svc.notifier.Notify(title, message, kind)
	}
}

// sectionName resolves the live section name, falling back to UnassignedSection.
func (svc *Service) sectionName(ctx context.Context, id string) (string, error) {
	if id == "" {
		return UnassignedSection, nil
	}
	sec, err := svc.sections.Get(ctx, id)
	if err != nil {
		if err == section.ErrNotFound {
			return UnassignedSection, nil
		}
		return "", errors.Wrap(err, "resolving section name")
	}
	return sec.Name, nil
}

// quizResults fetches the quiz results of a student. Failures are reported, never returned.
func (svc *Service) quizResults(ctx context.Context, id string) ([]EmbeddedDoc, Enrichment) {
	docs, err := svc.students.QuizResults(ctx, id)
	if err != nil {
		return nil, Enrichment{Status: EnrichmentFailed, Error: err.Error()}
	}
	if len(docs) == 0 {
		return nil, Enrichment{Status: EnrichmentAbsent}
	}
	embedded := make([]EmbeddedDoc, 0, len(docs))
	for _, d := range docs {
		embedded = append(embedded, EmbeddedDoc{ID: d.ID, Data: d.Data})
	}
	return embedded, Enrichment{Status: EnrichmentPresent, Count: len(embedded)}
}

// removeStudent deletes the live student. Its quiz results are only deleted once they were archived.
func (svc *Service) removeStudent(ctx context.Context, id string, enrichment Enrichment) error {
	if enrichment.Ok() {
		return svc.students.Remove(ctx, id)
	}
	svc.logger.Warn(fmt.Sprintf("quiz results of %s not archived, leaving them in place", id),
		map[string]interface{}{"studentId": id, "enrichmentError": enrichment.Error})
	return svc.students.Delete(ctx, id)
}

// ArchiveStudent moves a live student into `archivedStudents/arch_<id>`:
// the archive (with the resolved section name) is written first, quiz results are merged in on a best-effort basis,
// then the live student is deleted. An interruption leaves a duplicate, never a loss.
func (svc *Service) ArchiveStudent(ctx context.Context, id string, actor core.Actor, reason string) (ArchivedStudent, error) {
	if err := ctx.Err(); err != nil {
		return ArchivedStudent{}, err
	}
	s, err := svc.students.Get(ctx, id)
	if err != nil {
		return ArchivedStudent{}, err
	}
	secName, err := svc.sectionName(ctx, s.SectionID)
	if err != nil {
		return ArchivedStudent{}, err
	}
	if reason == "" {
		reason = ReasonStudentDeletion
	}

	key := Key(s.ID)
	arch := ArchivedStudent{
		ID:          key,
		OriginalID:  s.ID,
		Student:     s.Document(),
		SectionID:   s.SectionID,
		SectionName: secName,
		ArchivedAt:  nowFunc().UTC(),
		ArchivedBy:  actor,
		Reason:      reason,
		QuizResults: []EmbeddedDoc{},
	}
	// archives are write-once: an earlier archive under the same id is never replaced
	if err := svc.store.Create(ctx, core.ArchivedStudentsCollection, key, arch); err != nil {
		if errors.Cause(err) != core.ErrDocExists {
			return ArchivedStudent{}, errors.Wrap(err, "writing student archive")
		}
		var prev ArchivedStudent
		if err := svc.store.Get(ctx, core.ArchivedStudentsCollection, key, &prev); err != nil {
			return ArchivedStudent{}, errors.Wrap(err, "reading student archive")
		}
		// an earlier run archived this very record but stopped before deleting it
		if !prev.Student.CreatedAt.Equal(s.CreatedAt) {
			return ArchivedStudent{}, ErrExists
		}
		if err := svc.removeStudent(ctx, s.ID, prev.Enrichment); err != nil {
			return prev, err
		}
		return prev, nil
	}

	results, enrichment := svc.quizResults(ctx, s.ID)
	fields := map[string]interface{}{"quizResultsEnrichment": enrichment}
	if enrichment.Status == EnrichmentPresent {
		fields["quizResults"] = results
	}
	if err := svc.store.Update(ctx, core.ArchivedStudentsCollection, key, fields); err != nil {
		results, enrichment = nil, Enrichment{Status: EnrichmentFailed, Error: err.Error()}
	}
	if results != nil {
		arch.QuizResults = results
	}
	arch.Enrichment = enrichment

	if err := svc.removeStudent(ctx, s.ID, enrichment); err != nil {
		return arch, err
	}

	if secName != UnassignedSection {
		if _, err := svc.sections.SyncStudentCount(ctx, s.SectionID); err != nil && err != section.ErrNotFound {
			svc.logger.Warn("syncing section student count", err, map[string]interface{}{"sectionId": s.SectionID})
		}
	}

	svc.logger.Info(fmt.Sprintf("student %s archived", s.ID), actor,
		map[string]interface{}{"section": secName, "quizResults": enrichment.Status})
	svc.notify("Student archived", fmt.Sprintf("%s (%s) has been archived.", s.DisplayName(), s.ID), core.NoticeSuccess)
	return arch, nil
}

func (svc *Service) getSectionArchive(ctx context.Context, key string) (ArchivedSection, bool, error) {
	var arch ArchivedSection
	if err := svc.store.Get(ctx, core.ArchivedSectionsCollection, key, &arch); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return ArchivedSection{}, false, nil
		}
		return ArchivedSection{}, false, errors.Wrap(err, "getting section archive")
	}
	return arch, true, nil
}

func (svc *Service) writeSectionArchive(ctx context.Context, arch *ArchivedSection) error {
	arch.StudentCount = len(arch.Students)
	return errors.Wrap(svc.store.Set(ctx, core.ArchivedSectionsCollection, arch.ID, arch), "writing section archive")
}

// ArchiveSection archives a section with all of its live students, then deletes the section.
//
// Students are processed one at a time in roster order: progress is reported with the student's name,
// the student is embedded in the section archive (checkpointed as incomplete), its live document is deleted,
// and progress is reported again once the delete is confirmed.
// The first failure (or ctx cancellation) stops the cascade: the archive is left incomplete, the live section is kept,
// and a student whose delete failed stays both embedded and live. Calling ArchiveSection again resumes from there,
// finishing the deletes of embedded students before archiving the rest.
func (svc *Service) ArchiveSection(ctx context.Context, id string, actor core.Actor, reporter core.ProgressReporter) (SectionResult, error) {
	reporter = core.ReporterOrNop(reporter)
	key := Key(id)

	sec, err := svc.sections.Get(ctx, id)
	if err != nil {
		return SectionResult{}, err
	}
	arch, found, err := svc.getSectionArchive(ctx, key)
	if err != nil {
		return SectionResult{}, err
	}
	if !found {
		arch = ArchivedSection{
			ID:         key,
			OriginalID: id,
			Section:    sec,
			ArchivedAt: nowFunc().UTC(),
			ArchivedBy: actor,
			Reason:     ReasonSectionDeletion,
			Students:   []ArchivedStudentEntry{},
		}
	}

	roster, err := svc.students.Roster(ctx)
	if err != nil {
		return SectionResult{Archive: arch}, err
	}
	// members still live; those already embedded by an earlier run only need their delete
	var members []student.Student
	pending := 0
	for _, s := range roster {
		if s.SectionID != id {
			continue
		}
		members = append(members, s)
		if arch.studentIndex(s.ID) < 0 {
			pending++
		}
	}
	arch.Section = sec
	arch.ExpectedStudentCount = len(arch.Students) + pending
	res := SectionResult{Archive: arch, Total: len(members)}

	fail := func(err error) (SectionResult, error) {
		arch.Incomplete = true
		arch.Error = err.Error()
		// still record the partial state when ctx is what stopped us
		if wErr := svc.writeSectionArchive(context.WithoutCancel(ctx), &arch); wErr != nil {
			svc.logger.Error("writing partial section archive", wErr, actor)
		}
		res.Archive = arch
		svc.logger.Error(fmt.Sprintf("archiving section %s stopped after %d of %d students", id, res.Deleted, res.Total), err, actor)
		svc.notify("Section archival failed",
			fmt.Sprintf("%s: %d of %d students archived before the error: %v", sec.Name, res.Deleted, res.Total, err),
			core.NoticeError)
		return res, err
	}

	for _, s := range members {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		name := s.DisplayName()
		reporter.Report(core.Progress{Current: res.Deleted, Total: res.Total, Label: name})

		idx := arch.studentIndex(s.ID)
		if idx < 0 {
			results, enrichment := svc.quizResults(ctx, s.ID)
			arch.Students = append(arch.Students, ArchivedStudentEntry{
				Student:     s.Document(),
				SectionID:   id,
				SectionName: sec.Name,
				ArchivedAt:  nowFunc().UTC(),
				ArchivedBy:  actor,
				Reason:      ReasonSectionDeletion,
				QuizResults: results,
				Enrichment:  enrichment,
			})
			idx = len(arch.Students) - 1

			// checkpoint before any delete: an interruption leaves a duplicate rather than a loss
			arch.Incomplete = true
			if err := svc.writeSectionArchive(ctx, &arch); err != nil {
				arch.Students = arch.Students[:idx]
				return fail(err)
			}
		}

		// once checkpointed, the entry stays: a failed delete leaves the student both live and embedded
		if err := svc.removeStudent(ctx, s.ID, arch.Students[idx].Enrichment); err != nil {
			return fail(err)
		}
		res.Deleted++
		reporter.Report(core.Progress{Current: res.Deleted, Total: res.Total, Label: name})
	}

	arch.Incomplete = false
	arch.Error = ""
	if err := svc.writeSectionArchive(ctx, &arch); err != nil {
		return fail(err)
	}
	res.Archive = arch

	if err := deleteSection(ctx, svc.deleters, id, func(attempt int, err error) {
		svc.logger.Warn(fmt.Sprintf("section delete attempt %d failed", attempt+1), err,
			map[string]interface{}{"sectionId": id})
	}); err != nil {
		svc.notify("Section archival failed", fmt.Sprintf("%s: students archived, section not deleted: %v", sec.Name, err), core.NoticeError)
		return res, errors.Wrap(err, "deleting section")
	}

	svc.logger.Info(fmt.Sprintf("section %s archived", id), actor, map[string]interface{}{"students": arch.StudentCount})
	svc.notify("Section archived", fmt.Sprintf("%s has been archived with %d students.", sec.Name, arch.StudentCount), core.NoticeSuccess)
	return res, nil
}

// RestoreStudent recreates a live student and its quiz results from `archivedStudents/arch_<id>`,
// then deletes the archive. id may be the original student id or the archive key.
func (svc *Service) RestoreStudent(ctx context.Context, id string) (student.Student, error) {
	key := Key(id)
	var arch ArchivedStudent
	if err := svc.store.Get(ctx, core.ArchivedStudentsCollection, key, &arch); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return student.Student{}, ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student archive")
	}

	if err := svc.students.Restore(ctx, arch.Student); err != nil {
		return student.Student{}, err
	}
	for _, r := range arch.QuizResults {
		if err := svc.students.SetQuizResult(ctx, arch.OriginalID, r.ID, r.Data); err != nil {
			return student.Student{}, err
		}
	}
	if err := svc.store.Delete(ctx, core.ArchivedStudentsCollection, key); err != nil {
		return student.Student{}, errors.Wrap(err, "deleting student archive")
	}

	svc.notify("Student restored", fmt.Sprintf("%s (%s) has been restored.", arch.Student.DisplayName(), arch.OriginalID), core.NoticeSuccess)
	return arch.Student.Record(), nil
}

func (svc *Service) GetArchivedStudent(ctx context.Context, id string) (ArchivedStudent, error) {
	var arch ArchivedStudent
	if err := svc.store.Get(ctx, core.ArchivedStudentsCollection, Key(id), &arch); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return ArchivedStudent{}, ErrNotFound
		}
		return ArchivedStudent{}, errors.Wrap(err, "getting student archive")
	}
	return arch, nil
}

func (svc *Service) GetArchivedSection(ctx context.Context, id string) (ArchivedSection, error) {
	arch, found, err := svc.getSectionArchive(ctx, Key(id))
	if err != nil {
		return ArchivedSection{}, err
	}
	if !found {
		return ArchivedSection{}, ErrNotFound
	}
	return arch, nil
}

func (svc *Service) ListArchivedStudents(ctx context.Context) ([]ArchivedStudent, error) {
	docs, err := svc.store.List(ctx, core.ArchivedStudentsCollection)
	if err != nil {
		return nil, errors.Wrap(err, "listing student archives")
	}
	res := make([]ArchivedStudent, 0, len(docs))
	for _, d := range docs {
		var arch ArchivedStudent
		if err := d.Decode(&arch); err != nil {
			return nil, err
		}
		res = append(res, arch)
	}
	return res, nil
}

func (svc *Service) ListArchivedSections(ctx context.Context) ([]ArchivedSection, error) {
	docs, err := svc.store.List(ctx, core.ArchivedSectionsCollection)
	if err != nil {
		return nil, errors.Wrap(err, "listing section archives")
	}
	res := make([]ArchivedSection, 0, len(docs))
	for _, d := range docs {
		var arch ArchivedSection
		if err := d.Decode(&arch); err != nil {
			return nil, err
		}
		res = append(res, arch)
	}
	return res, nil
}
