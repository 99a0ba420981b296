package section

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
)

// Section is a class group students are enrolled in.
type Section struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	GradeLevel   string     `json:"gradeLevel"`
	Adviser      string     `json:"adviser"`
	StudentCount int        `json:"studentCount"` // denormalized, see Service.SyncStudentCount
	CreatedAt    time.Time  `json:"createdAt"`    // UTC
	CreatedBy    core.Actor `json:"createdBy"`
	UpdatedAt    time.Time  `json:"updatedAt"` // UTC
}

// NewSection contains information needed to create a new Section.
type NewSection struct {
	Name        string `json:"name" validate:"required,sectionname,max=64"`
	Description string `json:"description" validate:"max=512"`
	GradeLevel  string `json:"gradeLevel" validate:"max=32"`
	Adviser     string `json:"adviser" validate:"max=128"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	ns.GradeLevel = core.CleanString(ns.GradeLevel)
	ns.Adviser = core.CleanString(ns.Adviser)
	return validate.Struct(ns)
}

// UpdateSection defines what information may be provided to modify an existing Section.
// Empty fields keep their current value.
type UpdateSection struct {
	Name        string  `json:"name" validate:"omitempty,sectionname,max=64"`
	Description *string `json:"description" validate:"omitempty,max=512"`
	GradeLevel  *string `json:"gradeLevel" validate:"omitempty,max=32"`
	Adviser     *string `json:"adviser" validate:"omitempty,max=128"`
}

func (us *UpdateSection) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	return validate.Struct(us)
}
