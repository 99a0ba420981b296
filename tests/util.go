package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	logsvc "github.com/trezcool/registrar/services/logger"
)

var Actor = core.Actor{ID: "u-registrar", Username: "registrar", Email: "registrar@school.test"}

// NewLogger returns a disabled rollbar logger writing to a discarded logrus logger.
func NewLogger() core.Logger {
	std, _ := test.NewNullLogger()
	logger := logsvc.NewRollbarLogger(std.WithField("component", "TEST"), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every package's validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	section.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	return validate, translator
}

// Notice is a recorded core.Notifier call.
type Notice struct {
	Title, Message, Kind string
}

// Notices records notices, for tests.
type Notices struct {
	mu   sync.Mutex
	list []Notice
}

func (n *Notices) Notify(title, message, kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, Notice{Title: title, Message: message, Kind: kind})
}

func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.list...)
}

// Last returns the latest notice, or a zero Notice.
func (n *Notices) Last() Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.list) == 0 {
		return Notice{}
	}
	return n.list[len(n.list)-1]
}

// Progress records progress updates, for tests.
type Progress struct {
	mu      sync.Mutex
	Updates []core.Progress
}

func (p *Progress) Report(pr core.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Updates = append(p.Updates, pr)
}

func CreateUser(
	t *testing.T,
	svc *user.Service,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := svc.UpdateOrCreate(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateSection(t *testing.T, svc *section.Service, name string) section.Section {
	sec, err := svc.Create(context.Background(), section.NewSection{Name: name, GradeLevel: "Grade 7"}, Actor)
	if err != nil {
		t.Fatalf("createSection() failed: %v", err)
	}
	return sec
}

func CreateStudent(t *testing.T, svc *student.Service, id, lrn, first, last, sectionID string) student.Student {
	ns := student.NewStudent{
		ID:             id,
		LRN:            lrn,
		FirstName:      first,
		LastName:       last,
		Gender:         "M",
		Birthdate:      "2012-03-04",
		GuardianName:   "Guardian of " + first,
		GradeLevel:     "Grade 7",
		SchoolYear:     "2026-2027",
		EnrollmentDate: "2026-06-15",
		SectionID:      sectionID,
		Password:       "pass-" + lrn,
	}
	ns.Clean()
	s, err := svc.Create(context.Background(), ns, Actor)
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return s
}
