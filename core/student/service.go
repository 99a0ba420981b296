package student

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

var (
	// errors
	ErrNotFound   = errors.New("student not found")
	ErrIDExists   = errors.New("a student with this id already exists")
	ErrLRNExists  = errors.New("a student with this LRN already exists")
	ErrIDArchived = errors.New("an archived student already holds this id")
)

var nowFunc = time.Now // mockable

// IsDuplicate reports whether err is a uniqueness violation (id or LRN).
func IsDuplicate(err error) bool {
	cause := errors.Cause(err)
	if vErr, ok := cause.(*core.ValidationError); ok {
		cause = vErr.Err
	}
	return cause == ErrIDExists || cause == ErrLRNExists || cause == ErrIDArchived
}

// QuizResultsPath is the collection holding the quiz results of a student.
func QuizResultsPath(id string) string {
	return core.Path(core.StudentsCollection, id, core.QuizResultsCollection)
}

type Service struct {
	store core.DocumentStore
}

func NewService(store core.DocumentStore) *Service {
	return &Service{store: store}
}

// Roster returns a point-in-time snapshot of all the live students, ordered by id.
func (svc *Service) Roster(ctx context.Context) ([]Student, error) {
	docs, err := svc.store.List(ctx, core.StudentsCollection)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	students := make([]Student, 0, len(docs))
	for _, d := range docs {
		var doc Document
		if err := d.Decode(&doc); err != nil {
			return nil, err
		}
		students = append(students, doc.Record())
	}
	return students, nil
}

// NewAllocator returns a counter allocator seeded with the current roster and floored above every archived id,
// so an archived student's id is never handed out again.
func (svc *Service) NewAllocator(ctx context.Context) (IDAllocator, error) {
	roster, err := svc.Roster(ctx)
	if err != nil {
		return nil, err
	}
	archived, err := svc.archivedMaxSequence(ctx)
	if err != nil {
		return nil, err
	}
	alloc := NewCounterAllocator(svc.store, roster)
	alloc.Observe(archived)
	return alloc, nil
}

// archivedMaxSequence returns the highest sequence number among the archived students, standalone or
// embedded in a section archive.
func (svc *Service) archivedMaxSequence(ctx context.Context) (int64, error) {
	var max int64
	observe := func(id string) {
		if n, ok := ParseID(id); ok && n > max {
			max = n
		}
	}

	docs, err := svc.store.List(ctx, core.ArchivedStudentsCollection)
	if err != nil {
		return 0, errors.Wrap(err, "listing student archives")
	}
	for _, d := range docs {
		observe(strings.TrimPrefix(d.ID, core.ArchiveKeyPrefix))
	}

	docs, err = svc.store.List(ctx, core.ArchivedSectionsCollection)
	if err != nil {
		return 0, errors.Wrap(err, "listing section archives")
	}
	for _, d := range docs {
		var arch struct {
			Students []struct {
				Student struct {
					ID string `json:"id"`
				} `json:"student"`
			} `json:"students"`
		}
		if err := d.Decode(&arch); err != nil {
			return 0, err
		}
		for _, e := range arch.Students {
			observe(e.Student.ID)
		}
	}
	return max, nil
}

// checkArchived rejects ids still held by a standalone student archive.
func (svc *Service) checkArchived(ctx context.Context, id string) error {
	var raw json.RawMessage
	err := svc.store.Get(ctx, core.ArchivedStudentsCollection, core.ArchiveKey(id), &raw)
	switch {
	case err == nil:
		return core.NewValidationError(ErrIDArchived, core.FieldError{Field: "id", Error: ErrIDArchived.Error()})
	case errors.Cause(err) == core.ErrDocNotFound:
		return nil
	default:
		return errors.Wrap(err, "checking student archives")
	}
}

func (svc *Service) checkLRN(ctx context.Context, lrn string, exclID string) error {
	roster, err := svc.Roster(ctx)
	if err != nil {
		return err
	}
	for _, s := range roster {
		if s.ID != exclID && strings.EqualFold(s.LRN, lrn) {
			return core.NewValidationError(ErrLRNExists, core.FieldError{Field: "lrn", Error: ErrLRNExists.Error()})
		}
	}
	return nil
}

// Create stores a new student. ns must be cleaned & validated.
// An empty ns.ID draws the next id from the store counter.
// Duplicate ids and LRNs are reported as *core.ValidationError wrapping ErrIDExists, ErrIDArchived or ErrLRNExists.
func (svc *Service) Create(ctx context.Context, ns NewStudent, actor core.Actor) (Student, error) {
	if err := svc.checkLRN(ctx, ns.LRN, ""); err != nil {
		return Student{}, err
	}
	if ns.ID == "" {
		alloc, err := svc.NewAllocator(ctx)
		if err != nil {
			return Student{}, err
		}
		if ns.ID, err = alloc.Next(ctx); err != nil {
			return Student{}, err
		}
	}
	if err := svc.checkArchived(ctx, ns.ID); err != nil {
		return Student{}, err
	}

	now := nowFunc().UTC()
	s := Student{
		ID:                   ns.ID,
		LRN:                  ns.LRN,
		FirstName:            ns.FirstName,
		MiddleName:           ns.MiddleName,
		LastName:             ns.LastName,
		Suffix:               ns.Suffix,
		Gender:               ns.Gender,
		Birthdate:            ns.Birthdate,
		Email:                ns.Email,
		ContactNumber:        ns.ContactNumber,
		Address:              ns.Address,
		GuardianName:         ns.GuardianName,
		GuardianContact:      ns.GuardianContact,
		GuardianRelationship: ns.GuardianRelationship,
		GradeLevel:           ns.GradeLevel,
		SchoolYear:           ns.SchoolYear,
		EnrollmentDate:       ns.EnrollmentDate,
		SectionID:            ns.SectionID,
		Status:               ns.Status,
		Avatar:               AvatarFor(ns.Gender),
		Username:             ns.Username,
		CreatedAt:            now,
		CreatedBy:            actor,
		UpdatedAt:            now,
	}
	if s.Username == "" {
		s.Username = strings.ToLower(s.ID)
	}
	if err := s.SetPassword(ns.Password); err != nil {
		return Student{}, err
	}

	if err := svc.store.Create(ctx, core.StudentsCollection, s.ID, s.Document()); err != nil {
		if errors.Cause(err) == core.ErrDocExists {
			return Student{}, core.NewValidationError(ErrIDExists, core.FieldError{Field: "id", Error: ErrIDExists.Error()})
		}
		return Student{}, errors.Wrap(err, "creating student")
	}
	return s, nil
}

// Restore recreates a live student from its stored form, keeping every field as is.
func (svc *Service) Restore(ctx context.Context, doc Document) error {
	if err := svc.store.Create(ctx, core.StudentsCollection, doc.ID, doc); err != nil {
		if errors.Cause(err) == core.ErrDocExists {
			return ErrIDExists
		}
		return errors.Wrap(err, "restoring student")
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	var doc Document
	if err := svc.store.Get(ctx, core.StudentsCollection, id, &doc); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Student{}, ErrNotFound
		}
		return Student{}, errors.Wrap(err, "getting student")
	}
	return doc.Record(), nil
}

// Query filters the roster, ordering by last name then first name unless orderings are given.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings []core.Ordering) ([]Student, error) {
	roster, err := svc.Roster(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]Student, 0, len(roster))
	for _, s := range roster {
		if filter.match(s) {
			res = append(res, s)
		}
	}
	if len(orderings) == 0 {
		orderings = []core.Ordering{{Field: "lastName", Ascending: true}, {Field: "firstName", Ascending: true}}
	}
	sort.SliceStable(res, func(i, j int) bool {
		for _, ord := range orderings {
			a, b := sortKey(res[i], ord.Field), sortKey(res[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return false
	})
	return res, nil
}

func sortKey(s Student, field string) string {
	switch field {
	case "id":
		return s.ID
	case "lrn":
		return s.LRN
	case "firstName":
		return strings.ToLower(s.FirstName)
	case "gradeLevel":
		return s.GradeLevel
	case "enrollmentDate":
		return s.EnrollmentDate
	case "createdAt":
		return s.CreatedAt.Format(time.RFC3339Nano)
	default:
		return strings.ToLower(s.LastName)
	}
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	s, err := svc.Get(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.LRN != nil && !strings.EqualFold(core.CleanString(*us.LRN), s.LRN) {
		if err := svc.checkLRN(ctx, core.CleanString(*us.LRN), id); err != nil {
			return Student{}, err
		}
	}
	us.apply(&s)
	if us.Password != "" {
		if err := s.SetPassword(us.Password); err != nil {
			return Student{}, err
		}
	}
	s.UpdatedAt = nowFunc().UTC()
	if err := svc.store.Set(ctx, core.StudentsCollection, id, s.Document()); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	return s, nil
}

// QuizResults returns the quiz result documents of a student.
func (svc *Service) QuizResults(ctx context.Context, id string) ([]core.Document, error) {
	docs, err := svc.store.List(ctx, QuizResultsPath(id))
	return docs, errors.Wrap(err, "listing quiz results")
}

func (svc *Service) SetQuizResult(ctx context.Context, id, resultID string, data interface{}) error {
	return errors.Wrap(svc.store.Set(ctx, QuizResultsPath(id), resultID, data), "saving quiz result")
}

// Delete deletes the live student document only, leaving its quiz results in place.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return errors.Wrapf(svc.store.Delete(ctx, core.StudentsCollection, id), "deleting student %s", id)
}

// Remove deletes the quiz results of a student, then the live student document.
// The student document goes last, so a failure always leaves the student live.
// Callers must have archived the student first.
func (svc *Service) Remove(ctx context.Context, id string) error {
	results, err := svc.store.List(ctx, QuizResultsPath(id))
	if err != nil {
		return errors.Wrapf(err, "listing quiz results of %s", id)
	}
	for _, r := range results {
		if err := svc.store.Delete(ctx, QuizResultsPath(id), r.ID); err != nil {
			return errors.Wrapf(err, "deleting quiz result %s of %s", r.ID, id)
		}
	}
	return svc.Delete(ctx, id)
}
