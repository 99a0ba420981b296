package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core/archive"
	testutil "github.com/trezcool/registrar/tests"
)

func Test_archiveApi_sections(t *testing.T) {
	env := setup(t)
	adminToken := env.token(t, env.admin)
	rizal := testutil.CreateSection(t, env.sections, "Rizal")
	testutil.CreateStudent(t, env.students, "STU0001", "1001", "Ana", "Cruz", rizal.ID)
	testutil.CreateStudent(t, env.students, "STU0002", "1002", "Ben", "Abad", rizal.ID)
	_, err := env.archives.ArchiveSection(context.Background(), rizal.ID, env.admin.Actor(), nil)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/archives/sections", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", path: "/v1/archives/sections", token: env.token(t, env.teacher), wantCode: http.StatusForbidden},
		{name: "list", path: "/v1/archives/sections", token: adminToken, wantCode: http.StatusOK, extra: 1},
		{name: "get", path: "/v1/archives/sections/" + rizal.ID, token: adminToken, wantCode: http.StatusOK},
		{
			name: "get unknown", path: "/v1/archives/sections/nope", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: archive.ErrNotFound.Error()}),
		},
	}
	env.runTests(t, tests, func(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
		if n, ok := tt.extra.(int); ok {
			var archs []archive.ArchivedSection
			unmarshal(t, rec, &archs)
			assert.Len(t, archs, n)
			return
		}
		var arch archive.ArchivedSection
		unmarshal(t, rec, &arch)
		assert.Equal(t, rizal.ID, arch.OriginalID)
		assert.Equal(t, "Rizal", arch.Section.Name)
		assert.Equal(t, 2, arch.StudentCount)
		assert.Len(t, arch.Students, 2)
		assert.Equal(t, archive.ReasonSectionDeletion, arch.Students[0].Reason)
	})
}
