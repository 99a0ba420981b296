package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	memstore "github.com/trezcool/registrar/storage/docstore/memory"
)

const testPwd = "Xk9#mQ2v!z"

func setup(t *testing.T) *Service {
	t.Helper()
	return NewService(memstore.Open())
}

func createUser(t *testing.T, svc *Service, name, uname, email string, roles ...string) User {
	t.Helper()
	usr, err := svc.Create(context.Background(), NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        testPwd,
		PasswordConfirm: testPwd,
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	usr := createUser(t, svc, "Maria Santos", "msantos", "msantos@school.test", RoleAdminRegistrar)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(testPwd))

	tests := []struct {
		name      string
		nu        NewUser
		wantField string
	}{
		{name: "username taken", nu: NewUser{Name: "X", Username: "msantos", Password: testPwd}, wantField: "username"},
		{name: "email taken", nu: NewUser{Name: "X", Email: "msantos@school.test", Password: testPwd}, wantField: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.nu)
			require.Error(t, err)
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, "expected *core.ValidationError, got %T", err)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_Getters(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	usr := createUser(t, svc, "Jose Rizal", "jrizal", "jrizal@school.test")

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.Username, got.Username)
	assert.Equal(t, usr.PasswordHash, got.PasswordHash)

	for _, uname := range []string{"jrizal", " JRizal ", "jrizal@school.test"} {
		got, err = svc.GetByUsernameOrEmail(ctx, uname)
		require.NoError(t, err, uname)
		assert.Equal(t, usr.ID, got.ID)
	}

	_, err = svc.GetByID(ctx, "nope")
	assert.Equal(t, ErrNotFound, err)
	_, err = svc.GetByUsernameOrEmail(ctx, "nope")
	assert.Equal(t, ErrNotFound, err)
	_, err = svc.GetByUsernameOrEmail(ctx, "")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	bPtr := func(b bool) *bool { return &b }

	admin := createUser(t, svc, "Admin", "admin", "admin@school.test", RoleAdmin)
	teacher := createUser(t, svc, "Teacher", "teacher", "teacher@school.test", RoleTeacher)
	owner := createUser(t, svc, "Boss", "owner", "boss@school.test", RoleAdminOwner)
	inactive, err := svc.Update(ctx, teacher.ID, UpdateUser{Name: "Zed", Username: "zed", Email: "zed@school.test", IsActive: bPtr(false)})
	require.NoError(t, err)

	ids := func(users []User) []string {
		res := make([]string, 0, len(users))
		for _, u := range users {
			res = append(res, u.ID)
		}
		return res
	}

	tests := []struct {
		name   string
		filter QueryFilter
		ords   []core.Ordering
		want   []string
	}{
		{name: "all by name", want: []string{admin.ID, owner.ID, inactive.ID}},
		{name: "by username desc", ords: core.ParseOrderings("-username"), want: []string{inactive.ID, owner.ID, admin.ID}},
		{name: "search", filter: QueryFilter{Search: "BOSS"}, want: []string{owner.ID}},
		{name: "roles", filter: QueryFilter{Roles: []string{RoleAdmin, RoleAdminOwner}}, want: []string{admin.ID, owner.ID}},
		{name: "inactive", filter: QueryFilter{IsActive: bPtr(false)}, want: []string{inactive.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := svc.Query(ctx, tt.filter, tt.ords)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(users))
		})
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	usr := createUser(t, svc, "Jose Rizal", "jrizal", "jrizal@school.test")
	other := createUser(t, svc, "Andres", "andres", "andres@school.test")

	_, err := svc.Update(ctx, usr.ID, UpdateUser{Name: "J", Username: other.Username, Email: usr.Email})
	assert.True(t, core.IsValidationError(err))

	updated, err := svc.Update(ctx, usr.ID, UpdateUser{Name: "Pepe", Username: usr.Username, Email: usr.Email, Password: "N3w#Secret!"})
	require.NoError(t, err)
	assert.Equal(t, "Pepe", updated.Name)
	assert.NoError(t, updated.CheckPassword("N3w#Secret!"))

	_, err = svc.Update(ctx, "nope", UpdateUser{})
	assert.Equal(t, ErrNotFound, err)
}

func TestService_SetPasswordAndLastLogin(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	usr := createUser(t, svc, "Jose Rizal", "jrizal", "jrizal@school.test")

	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	_, err := svc.SetPassword(ctx, "jrizal@school.test", "An0ther#Pwd")
	require.NoError(t, err)
	_, err = svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("An0ther#Pwd"))
	assert.True(t, now.Equal(got.LastLogin))

	_, err = svc.SetPassword(ctx, "nope", "An0ther#Pwd")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_UpdateOrCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	usr, err := svc.UpdateOrCreate(ctx, User{Username: "root", IsActive: true, Roles: AllRoles})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.False(t, usr.CreatedAt.IsZero())

	require.NoError(t, svc.Delete(ctx, usr.ID))
	_, err = svc.GetByID(ctx, usr.ID)
	assert.Equal(t, ErrNotFound, err)
}

func TestUser_Actor(t *testing.T) {
	usr := User{ID: "u1", Username: "jrizal", Email: "jrizal@school.test", Roles: []string{RoleAdminPrincipal}}
	assert.Equal(t, core.Actor{ID: "u1", Username: "jrizal", Email: "jrizal@school.test"}, usr.Actor())
	assert.True(t, usr.IsAdmin())
	assert.False(t, usr.IsTeacher())
	assert.Equal(t, 29, MaxRolePriority(usr.Roles))
}
