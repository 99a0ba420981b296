package section

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	memstore "github.com/trezcool/registrar/storage/docstore/memory"
)

var actor = core.Actor{ID: "u1", Username: "registrar"}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memstore.Open())

	sec, err := svc.Create(ctx, NewSection{Name: "Rizal", GradeLevel: "Grade 7"}, actor)
	require.NoError(t, err)
	assert.NotEmpty(t, sec.ID)
	assert.Equal(t, actor, sec.CreatedBy)

	_, err = svc.Create(ctx, NewSection{Name: "rIZAL"}, actor)
	require.True(t, core.IsValidationError(err))
	assert.Equal(t, ErrNameExists, err.(*core.ValidationError).Err)

	got, err := svc.Get(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, sec.Name, got.Name)

	_, err = svc.Get(ctx, "nope")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memstore.Open())
	for _, name := range []string{"mabini", "Bonifacio", "Aguinaldo"} {
		_, err := svc.Create(ctx, NewSection{Name: name}, actor)
		require.NoError(t, err)
	}

	sections, err := svc.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, s := range sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Aguinaldo", "Bonifacio", "mabini"}, names)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memstore.Open())
	sec, err := svc.Create(ctx, NewSection{Name: "Rizal"}, actor)
	require.NoError(t, err)
	_, err = svc.Create(ctx, NewSection{Name: "Mabini"}, actor)
	require.NoError(t, err)
	sPtr := func(s string) *string { return &s }

	tests := []struct {
		name     string
		us       UpdateSection
		wantErr  bool
		wantName string
		wantAdv  string
	}{
		{name: "taken name", us: UpdateSection{Name: "MABINI"}, wantErr: true},
		{name: "same name other case", us: UpdateSection{Name: "RIZAL"}, wantName: "RIZAL"},
		{name: "adviser only", us: UpdateSection{Adviser: sPtr(" Ms. Cruz ")}, wantName: "RIZAL", wantAdv: "Ms. Cruz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := svc.Update(ctx, sec.ID, tt.us)
			if tt.wantErr {
				assert.True(t, core.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			got, err := svc.Get(ctx, sec.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantAdv, got.Adviser)
			assert.Equal(t, updated.Name, got.Name)
		})
	}

	_, err = svc.Update(ctx, "nope", UpdateSection{Name: "X1"})
	assert.Equal(t, ErrNotFound, err)
}

func TestService_SyncStudentCountAndPurge(t *testing.T) {
	ctx := context.Background()
	store := memstore.Open()
	svc := NewService(store)
	sec, err := svc.Create(ctx, NewSection{Name: "Rizal"}, actor)
	require.NoError(t, err)

	for id, secID := range map[string]string{"STU0001": sec.ID, "STU0002": sec.ID, "STU0003": "other", "STU0004": ""} {
		require.NoError(t, store.Set(ctx, core.StudentsCollection, id, map[string]string{"id": id, "sectionId": secID}))
	}

	count, err := svc.SyncStudentCount(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	got, err := svc.Get(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StudentCount)

	_, err = svc.SyncStudentCount(ctx, "nope")
	assert.Equal(t, ErrNotFound, err)

	require.NoError(t, svc.Purge(ctx, sec.ID))
	_, err = svc.Get(ctx, sec.ID)
	assert.Equal(t, ErrNotFound, err)
}

func TestNewSection_Validate(t *testing.T) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	InitValidators(validate, translator)

	tests := []struct {
		name    string
		ns      NewSection
		wantErr map[string]string
	}{
		{name: "valid", ns: NewSection{Name: " Rizal "}},
		{name: "missing", ns: NewSection{}, wantErr: map[string]string{"name": "this field is required"}},
		{name: "too short", ns: NewSection{Name: " R "}, wantErr: map[string]string{"name": nameText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ns.Validate(validate)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.Equal(t, "Rizal", tt.ns.Name)
				return
			}
			got := make(map[string]string)
			for _, fe := range core.FieldErrors(err, translator) {
				got[fe.Field] = fe.Error
			}
			assert.Equal(t, tt.wantErr, got)
		})
	}
}
