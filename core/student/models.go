package student

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/registrar/core"
)

// Statuses
const (
	StatusRegular    = "Regular Student"
	StatusIrregular  = "Irregular Student"
	StatusTransferee = "Transferee"
	StatusReturnee   = "Returnee"
)

var Statuses = []string{StatusRegular, StatusIrregular, StatusTransferee, StatusReturnee}

// Avatars
const (
	AvatarMale    = "avatar-male"
	AvatarFemale  = "avatar-female"
	AvatarNeutral = "avatar-neutral"
)

// DateLayout is the layout of birth & enrollment dates.
const DateLayout = "2006-01-02"

type Student struct {
	ID                   string     `json:"id"`
	LRN                  string     `json:"lrn"`
	FirstName            string     `json:"firstName"`
	MiddleName           string     `json:"middleName"`
	LastName             string     `json:"lastName"`
	Suffix               string     `json:"suffix"`
	Gender               string     `json:"gender"`
	Birthdate            string     `json:"birthdate"`
	Email                string     `json:"email"`
	ContactNumber        string     `json:"contactNumber"`
	Address              string     `json:"address"`
	GuardianName         string     `json:"guardianName"`
	GuardianContact      string     `json:"guardianContact"`
	GuardianRelationship string     `json:"guardianRelationship"`
	GradeLevel           string     `json:"gradeLevel"`
	SchoolYear           string     `json:"schoolYear"`
	EnrollmentDate       string     `json:"enrollmentDate"`
	SectionID            string     `json:"sectionId"` // empty: unassigned
	Status               string     `json:"status"`
	Avatar               string     `json:"avatar"`
	Username             string     `json:"username"`
	PasswordHash         []byte     `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"` // UTC
	CreatedBy            core.Actor `json:"createdBy"`
	UpdatedAt            time.Time  `json:"updatedAt"` // UTC
}

// Document is the stored form of a Student, password hash included.
// Archives embed it so a restore reproduces the exact field set.
type Document struct {
	Student
	PasswordHash []byte `json:"passwordHash"`
}

func (s Student) Document() Document {
	return Document{Student: s, PasswordHash: s.PasswordHash}
}

func (d Document) Record() Student {
	s := d.Student
	s.PasswordHash = d.PasswordHash
	return s
}

func (s *Student) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s *Student) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

// DisplayName returns "First M. Last Suffix".
func (s Student) DisplayName() string {
	parts := make([]string, 0, 4)
	if s.FirstName != "" {
		parts = append(parts, s.FirstName)
	}
	if m := []rune(strings.TrimSpace(s.MiddleName)); len(m) > 0 {
		parts = append(parts, strings.ToUpper(string(m[0]))+".")
	}
	if s.LastName != "" {
		parts = append(parts, s.LastName)
	}
	if s.Suffix != "" {
		parts = append(parts, s.Suffix)
	}
	if len(parts) == 0 {
		return s.ID
	}
	return strings.Join(parts, " ")
}

// AvatarFor selects the avatar from a free-form gender value.
func AvatarFor(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "m", "male", "boy":
		return AvatarMale
	case "f", "female", "girl":
		return AvatarFemale
	default:
		return AvatarNeutral
	}
}

// NewStudent contains information needed to create a new Student.
// ID may be left empty to get the next sequential id.
type NewStudent struct {
	ID                   string `json:"id"`
	LRN                  string `json:"lrn" validate:"required,notblank"`
	FirstName            string `json:"firstName" validate:"required,notblank"`
	MiddleName           string `json:"middleName"`
	LastName             string `json:"lastName" validate:"required,notblank"`
	Suffix               string `json:"suffix"`
	Gender               string `json:"gender"`
	Birthdate            string `json:"birthdate"`
	Email                string `json:"email"`
	ContactNumber        string `json:"contactNumber"`
	Address              string `json:"address"`
	GuardianName         string `json:"guardianName"`
	GuardianContact      string `json:"guardianContact"`
	GuardianRelationship string `json:"guardianRelationship"`
	GradeLevel           string `json:"gradeLevel"`
	SchoolYear           string `json:"schoolYear"`
	EnrollmentDate       string `json:"enrollmentDate"`
	SectionID            string `json:"sectionId"`
	Status               string `json:"status" validate:"omitempty,studentstatus"`
	Username             string `json:"username"`
	Password             string `json:"password" validate:"required,notblank"`
}

// Clean trims every field and applies the defaults: status, avatar and today's enrollment date.
func (ns *NewStudent) Clean() {
	for _, f := range []*string{
		&ns.ID, &ns.LRN, &ns.FirstName, &ns.MiddleName, &ns.LastName, &ns.Suffix, &ns.Gender, &ns.Birthdate,
		&ns.Email, &ns.ContactNumber, &ns.Address, &ns.GuardianName, &ns.GuardianContact,
		&ns.GuardianRelationship, &ns.GradeLevel, &ns.SchoolYear, &ns.EnrollmentDate, &ns.SectionID,
		&ns.Status, &ns.Username,
	} {
		*f = core.CleanString(*f)
	}
	ns.Email = strings.ToLower(ns.Email)
	if ns.Status == "" {
		ns.Status = StatusRegular
	}
	if ns.EnrollmentDate == "" {
		ns.EnrollmentDate = nowFunc().Format(DateLayout)
	}
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// nil fields keep their current value.
type UpdateStudent struct {
	LRN                  *string `json:"lrn" validate:"omitempty,notblank"`
	FirstName            *string `json:"firstName" validate:"omitempty,notblank"`
	MiddleName           *string `json:"middleName"`
	LastName             *string `json:"lastName" validate:"omitempty,notblank"`
	Suffix               *string `json:"suffix"`
	Gender               *string `json:"gender"`
	Birthdate            *string `json:"birthdate"`
	Email                *string `json:"email"`
	ContactNumber        *string `json:"contactNumber"`
	Address              *string `json:"address"`
	GuardianName         *string `json:"guardianName"`
	GuardianContact      *string `json:"guardianContact"`
	GuardianRelationship *string `json:"guardianRelationship"`
	GradeLevel           *string `json:"gradeLevel"`
	SchoolYear           *string `json:"schoolYear"`
	SectionID            *string `json:"sectionId"`
	Status               *string `json:"status" validate:"omitempty,studentstatus"`
	Password             string  `json:"password"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

// apply copies the set fields onto s.
func (us UpdateStudent) apply(s *Student) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	set(&s.LRN, us.LRN)
	set(&s.FirstName, us.FirstName)
	set(&s.MiddleName, us.MiddleName)
	set(&s.LastName, us.LastName)
	set(&s.Suffix, us.Suffix)
	set(&s.Gender, us.Gender)
	set(&s.Birthdate, us.Birthdate)
	set(&s.Email, us.Email)
	set(&s.ContactNumber, us.ContactNumber)
	set(&s.Address, us.Address)
	set(&s.GuardianName, us.GuardianName)
	set(&s.GuardianContact, us.GuardianContact)
	set(&s.GuardianRelationship, us.GuardianRelationship)
	set(&s.GradeLevel, us.GradeLevel)
	set(&s.SchoolYear, us.SchoolYear)
	set(&s.SectionID, us.SectionID)
	set(&s.Status, us.Status)
	if us.Gender != nil {
		s.Avatar = AvatarFor(s.Gender)
	}
}

type QueryFilter struct {
	SectionID *string `query:"sectionId"` // "" selects unassigned students
	Search    string  `query:"search"`
	Status    string  `query:"status"`
}

func (qf QueryFilter) match(s Student) bool {
	if qf.SectionID != nil && s.SectionID != *qf.SectionID {
		return false
	}
	if qf.Status != "" && s.Status != qf.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(qf.Search)); q != "" {
		hay := strings.ToLower(strings.Join([]string{s.ID, s.LRN, s.FirstName, s.MiddleName, s.LastName, s.Username}, " "))
		return strings.Contains(hay, q)
	}
	return true
}
