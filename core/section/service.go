package section

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

var (
	// errors
	ErrNotFound   = errors.New("section not found")
	ErrNameExists = errors.New("a section with this name already exists")
)

var nowFunc = time.Now // mockable

type Service struct {
	store core.DocumentStore
}

func NewService(store core.DocumentStore) *Service {
	return &Service{store: store}
}

// checkNameUniqueness compares names case-insensitively, ignoring the sections in excl.
func (svc *Service) checkNameUniqueness(ctx context.Context, name string, excl ...string) error {
	sections, err := svc.List(ctx)
	if err != nil {
		return err
	}
	lname := strings.ToLower(name)
	for _, s := range sections {
		skip := false
		for _, id := range excl {
			skip = skip || s.ID == id
		}
		if !skip && strings.ToLower(s.Name) == lname {
			return core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewSection, actor core.Actor) (Section, error) {
	if err := svc.checkNameUniqueness(ctx, ns.Name); err != nil {
		return Section{}, err
	}
	now := nowFunc().UTC()
	sec := Section{
		ID:          uuid.New().String(),
		Name:        ns.Name,
		Description: ns.Description,
		GradeLevel:  ns.GradeLevel,
		Adviser:     ns.Adviser,
		CreatedAt:   now,
		CreatedBy:   actor,
		UpdatedAt:   now,
	}
	if err := svc.store.Create(ctx, core.SectionsCollection, sec.ID, sec); err != nil {
		return Section{}, errors.Wrap(err, "creating section")
	}
	return sec, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Section, error) {
	var sec Section
	if err := svc.store.Get(ctx, core.SectionsCollection, id, &sec); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Section{}, ErrNotFound
		}
		return Section{}, errors.Wrap(err, "getting section")
	}
	return sec, nil
}

// List returns all the live sections ordered by name.
func (svc *Service) List(ctx context.Context) ([]Section, error) {
	docs, err := svc.store.List(ctx, core.SectionsCollection)
	if err != nil {
		return nil, errors.Wrap(err, "listing sections")
	}
	sections := make([]Section, 0, len(docs))
	for _, d := range docs {
		var sec Section
		if err := d.Decode(&sec); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return strings.ToLower(sections[i].Name) < strings.ToLower(sections[j].Name)
	})
	return sections, nil
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateSection) (Section, error) {
	sec, err := svc.Get(ctx, id)
	if err != nil {
		return Section{}, err
	}
	if us.Name != "" && !strings.EqualFold(us.Name, sec.Name) {
		if err := svc.checkNameUniqueness(ctx, us.Name, id); err != nil {
			return Section{}, err
		}
	}

	fields := make(map[string]interface{})
	if us.Name != "" {
		sec.Name = us.Name
		fields["name"] = sec.Name
	}
	if us.Description != nil {
		sec.Description = core.CleanString(*us.Description)
		fields["description"] = sec.Description
	}
	if us.GradeLevel != nil {
		sec.GradeLevel = core.CleanString(*us.GradeLevel)
		fields["gradeLevel"] = sec.GradeLevel
	}
	if us.Adviser != nil {
		sec.Adviser = core.CleanString(*us.Adviser)
		fields["adviser"] = sec.Adviser
	}
	sec.UpdatedAt = nowFunc().UTC()
	fields["updatedAt"] = sec.UpdatedAt

	if err := svc.store.Update(ctx, core.SectionsCollection, id, fields); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Section{}, ErrNotFound
		}
		return Section{}, errors.Wrap(err, "updating section")
	}
	return sec, nil
}

// SyncStudentCount recounts the live students of the section and stores the count.
func (svc *Service) SyncStudentCount(ctx context.Context, id string) (int, error) {
	docs, err := svc.store.List(ctx, core.StudentsCollection)
	if err != nil {
		return 0, errors.Wrap(err, "listing students")
	}
	var count int
	for _, d := range docs {
		var ref struct {
			SectionID string `json:"sectionId"`
		}
		if err := d.Decode(&ref); err != nil {
			return 0, err
		}
		if ref.SectionID == id {
			count++
		}
	}
	err = svc.store.Update(ctx, core.SectionsCollection, id, map[string]interface{}{"studentCount": count})
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return 0, ErrNotFound
		}
		return 0, errors.Wrap(err, "updating student count")
	}
	return count, nil
}

// Purge deletes the live section document. It is only meant for the archival cascade.
func (svc *Service) Purge(ctx context.Context, id string) error {
	return errors.Wrap(svc.store.Delete(ctx, core.SectionsCollection, id), "purging section")
}
