package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/importer"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	emailsvc "github.com/trezcool/registrar/services/email"
	memstore "github.com/trezcool/registrar/storage/docstore/memory"
	testutil "github.com/trezcool/registrar/tests"
)

const (
	testPwd      = "Xk9#mQ2v!z"
	testPurgeKey = "purge-key"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	conf     *core.Config
	store    *memstore.Store
	users    *user.Service
	sections *section.Service
	students *student.Service
	archives *archive.Service
	mailer   *emailsvc.ConsoleServiceMock
	notices  *testutil.Notices
	srv      *Server

	admin   user.User
	teacher user.User
	nobody  user.User
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *testEnv {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Archive.PurgeKey = testPurgeKey
	for _, c := range configure {
		c(conf)
	}

	store := memstore.Open()
	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()
	env := &testEnv{
		conf:     conf,
		store:    store,
		users:    user.NewService(store),
		sections: section.NewService(store),
		students: student.NewService(store),
		notices:  new(testutil.Notices),
		mailer:   emailsvc.NewConsoleServiceMock(conf),
	}
	env.archives = archive.NewService(archive.Deps{
		Store:    store,
		Students: env.students,
		Sections: env.sections,
		Logger:   logger,
		Notifier: env.notices,
	})
	imp := importer.New(importer.Deps{
		Students:   env.students,
		Sections:   env.sections,
		Validate:   validate,
		Translator: translator,
		Logger:     logger,
		Notifier:   env.notices,
	})

	env.srv = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        env.users,
		Resetter:       user.NewPasswordResetter(env.users, env.mailer, conf),
		SectionSvc:     env.sections,
		StudentSvc:     env.students,
		ArchiveSvc:     env.archives,
		Importer:       imp,
		DisableReqLogs: true,
	})

	env.admin = testutil.CreateUser(t, env.users, "Admin", "admin", "admin@school.test", testPwd, []string{user.RoleAdminRegistrar}, true)
	env.teacher = testutil.CreateUser(t, env.users, "Teacher", "teacher", "teacher@school.test", testPwd, []string{user.RoleTeacher}, true)
	env.nobody = testutil.CreateUser(t, env.users, "Nobody", "nobody", "nobody@school.test", testPwd, nil, true)
	return env
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := env.srv.auth.generateToken(env.srv.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	env.srv.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

// runTests runs tests against the server. check, when given, runs on successful responses matching the test.
func (env *testEnv) runTests(t *testing.T, tests []httpTest, check func(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder)) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := env.do(newAuthRequest(method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
			if check != nil && !t.Failed() && rec.Code < http.StatusMultipleChoices {
				check(t, tt, rec)
			}
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the response to tt. A nil wantData skips the body comparison.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
