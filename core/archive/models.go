package archive

import (
	"encoding/json"
	"time"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
)

const (
	KeyPrefix = core.ArchiveKeyPrefix

	// UnassignedSection is the section name recorded for students without a live section.
	UnassignedSection = "Unassigned"

	ReasonStudentDeletion = "Student Deletion"
	ReasonSectionDeletion = "Section Deletion"
)

// Enrichment statuses
const (
	EnrichmentPresent = "present"
	EnrichmentAbsent  = "absent"
	EnrichmentFailed  = "failed"
)

// Key returns the archive document key of an original id, see core.ArchiveKey.
func Key(id string) string { return core.ArchiveKey(id) }

type (
	// EmbeddedDoc is an auxiliary document (eg. a quiz result) copied into an archive.
	EmbeddedDoc struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}

	// Enrichment is the outcome of a best-effort fetch of auxiliary documents.
	Enrichment struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
		Error  string `json:"error,omitempty"`
	}

	// ArchivedStudent is a student removed on its own, stored at `archivedStudents/arch_<id>`.
	ArchivedStudent struct {
		ID          string           `json:"id"`
		OriginalID  string           `json:"originalId"`
		Student     student.Document `json:"student"`
		SectionID   string           `json:"sectionId"`
		SectionName string           `json:"sectionName"`
		ArchivedAt  time.Time        `json:"archivedAt"` // UTC
		ArchivedBy  core.Actor       `json:"archivedBy"`
		Reason      string           `json:"reason"`
		QuizResults []EmbeddedDoc    `json:"quizResults"`
		Enrichment  Enrichment       `json:"quizResultsEnrichment"`
	}

	// ArchivedStudentEntry is a student embedded in the archive of its section.
	ArchivedStudentEntry struct {
		Student     student.Document `json:"student"`
		SectionID   string           `json:"sectionId"`
		SectionName string           `json:"sectionName"`
		ArchivedAt  time.Time        `json:"archivedAt"` // UTC
		ArchivedBy  core.Actor       `json:"archivedBy"`
		Reason      string           `json:"reason"`
		QuizResults []EmbeddedDoc    `json:"quizResults"`
		Enrichment  Enrichment       `json:"quizResultsEnrichment"`
	}

	// ArchivedSection is a section removed with all of its students, stored at `archivedSections/arch_<id>`.
	// StudentCount always equals len(Students). Incomplete marks a cascade that stopped early.
	ArchivedSection struct {
		ID                   string                 `json:"id"`
		OriginalID           string                 `json:"originalId"`
		Section              section.Section        `json:"section"`
		ArchivedAt           time.Time              `json:"archivedAt"` // UTC
		ArchivedBy           core.Actor             `json:"archivedBy"`
		Reason               string                 `json:"reason"`
		ExpectedStudentCount int                    `json:"expectedStudentCount"`
		StudentCount         int                    `json:"studentCount"`
		Students             []ArchivedStudentEntry `json:"students"`
		Incomplete           bool                   `json:"incomplete"`
		Error                string                 `json:"error,omitempty"`
	}
)

func (e Enrichment) Ok() bool {
	return e.Status == EnrichmentPresent || e.Status == EnrichmentAbsent
}

// studentIndex returns the position of the embedded student, -1 if absent.
func (a ArchivedSection) studentIndex(id string) int {
	for i, e := range a.Students {
		if e.Student.ID == id {
			return i
		}
	}
	return -1
}
