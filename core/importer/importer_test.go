package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	memstore "github.com/trezcool/registrar/storage/docstore/memory"
	testutil "github.com/trezcool/registrar/tests"
)

type fixture struct {
	store    *memstore.Store
	students *student.Service
	sections *section.Service
	notices  *testutil.Notices
	imp      *Importer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memstore.Open()
	validate, translator := testutil.NewValidator()
	f := &fixture{
		store:    store,
		students: student.NewService(store),
		sections: section.NewService(store),
		notices:  new(testutil.Notices),
	}
	f.imp = New(Deps{
		Students:   f.students,
		Sections:   f.sections,
		Validate:   validate,
		Translator: translator,
		Logger:     testutil.NewLogger(),
		Notifier:   f.notices,
	})
	return f
}

func row(first, last, lrn, pwd string) Row {
	return Row{"First Name": first, "Last Name": last, "LRN": lrn, "Password": pwd, "Gender": "female"}
}

func assertTotals(t *testing.T, res Result) {
	t.Helper()
	assert.Equal(t, res.Total, res.Imported+res.Duplicate+res.Skipped)
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sec := testutil.CreateSection(t, f.sections, "Rizal")
	testutil.CreateStudent(t, f.students, "STU0003", "900", "Old", "Timer", "")

	rows := []Row{
		row("Ana", "Reyes", "1001", "pw1"),
		row("Ben", "Cruz", "", "pw2"),
		row("Carla", "Santos", "1003", "pw3"),
	}
	progress := new(testutil.Progress)
	res, err := f.imp.Import(ctx, rows, Options{SectionID: sec.ID, Actor: testutil.Actor, Reporter: progress})
	require.NoError(t, err)
	assertTotals(t, res)
	assert.Equal(t, core.Tally{Imported: 2, Duplicate: 0, Skipped: 1}, res.Tally)
	require.Len(t, res.Errors.Lines, 1)
	assert.Equal(t, "Row 2: missing required fields: LRN", res.Errors.Lines[0])
	assert.Equal(t, []string{"STU0004", "STU0005"}, res.Created)

	require.Len(t, progress.Updates, 3)
	for i, p := range progress.Updates {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, fmt.Sprintf("Row %d", i+1), p.Label)
	}
	assert.Equal(t, core.Tally{Imported: 1, Skipped: 1}, progress.Updates[1].Tally)

	s, err := f.students.Get(ctx, "STU0004")
	require.NoError(t, err)
	assert.Equal(t, sec.ID, s.SectionID)
	assert.Equal(t, student.AvatarFemale, s.Avatar)
	assert.Equal(t, student.StatusRegular, s.Status)
	assert.Equal(t, "stu0004", s.Username)
	assert.NotEmpty(t, s.EnrollmentDate)
	assert.NoError(t, s.CheckPassword("pw1"))

	got, err := f.sections.Get(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StudentCount)

	last := f.notices.Last()
	assert.Equal(t, "Student import", last.Title)
	assert.Equal(t, core.NoticeInfo, last.Kind)
	assert.Contains(t, last.Message, "Imported 2 of 3 rows")
}

func TestImporter_Import_UsernameIDs(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateStudent(t, f.students, "STU0002", "900", "Old", "Timer", "")

	withUsername := func(r Row, u string) Row {
		r["Username"] = u
		return r
	}
	rows := []Row{
		row("Ana", "Reyes", "1001", "pw"),
		withUsername(row("Ben", "Cruz", "1002", "pw"), "STU-0010"),
		row("Carla", "Santos", "1003", "pw"),
		withUsername(row("Dan", "Lim", "1004", "pw"), "ben.cruz"),
	}
	res, err := f.imp.Import(ctx, rows, Options{Actor: testutil.Actor})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)
	assert.Equal(t, []string{"STU0003", "STU0010", "STU0011", "STU0012"}, res.Created)

	s, err := f.students.Get(ctx, "STU0010")
	require.NoError(t, err)
	assert.Equal(t, "STU-0010", s.Username)
	s, err = f.students.Get(ctx, "STU0012")
	require.NoError(t, err)
	assert.Equal(t, "ben.cruz", s.Username)
	assert.Equal(t, "", s.SectionID)
}

func TestImporter_Import_SkippedUsernameRows(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	require.NoError(t, f.store.Set(ctx, core.ArchivedStudentsCollection, core.ArchiveKey("STU0007"),
		map[string]interface{}{"originalId": "STU0007"}))

	invalid := row("", "Reyes", "1001", "pw")
	invalid["Username"] = "STU-0050"
	archived := row("Gio", "Tan", "1003", "pw")
	archived["Username"] = "stu7"
	rows := []Row{invalid, row("Ben", "Cruz", "1002", "pw"), archived}

	res, err := f.imp.Import(ctx, rows, Options{Actor: testutil.Actor})
	require.NoError(t, err)
	assertTotals(t, res)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Duplicate)
	// the invalid row did not raise the floor, the archived id did
	assert.Equal(t, []string{"STU0008"}, res.Created)
	require.Len(t, res.Duplicates.Lines, 1)
	assert.Contains(t, res.Duplicates.Lines[0], "Row 3: STU0007")
}

func TestImporter_Import_Duplicates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateStudent(t, f.students, "STU0001", "1001", "Ana", "Reyes", "")

	var rows []Row
	for i := 0; i < 5; i++ {
		rows = append(rows, row("Ana", fmt.Sprintf("Copy%d", i), "1001", "pw"))
	}
	rows = append(rows, row("Ben", "Cruz", "1002", "pw"))
	// duplicate within the batch
	rows = append(rows, row("Ben", "Again", "1002", "pw"))
	// taken id
	rows = append(rows, Row{"Username": "stu1", "First Name": "X", "Last Name": "Y", "LRN": "1003", "Password": "pw"})

	res, err := f.imp.Import(ctx, rows, Options{Actor: testutil.Actor})
	require.NoError(t, err)
	assertTotals(t, res)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 7, res.Duplicate)
	assert.Len(t, res.Duplicates.Lines, 3)
	assert.Equal(t, 4, res.Duplicates.More)
	assert.Contains(t, res.Duplicates.Lines[0], "Row 1:")
	assert.Contains(t, res.Duplicates.Lines[0], "LRN 1001")
	assert.Contains(t, res.Summary(), "...and 4 more")
	assert.Empty(t, res.Errors.Lines)
}

func TestImporter_Import_ErrorCap(t *testing.T) {
	f := setup(t)
	var rows []Row
	for i := 0; i < 7; i++ {
		rows = append(rows, row("", "Reyes", fmt.Sprint(1000+i), ""))
	}
	rows = append(rows, Row{"First Name": "Ana", "Last Name": "Reyes", "LRN": "2000", "Password": "pw", "Status": "Graduated"})

	res, err := f.imp.Import(context.Background(), rows, Options{})
	require.NoError(t, err)
	assertTotals(t, res)
	assert.Equal(t, 8, res.Skipped)
	assert.Len(t, res.Errors.Lines, 5)
	assert.Equal(t, 3, res.Errors.More)
	assert.Equal(t, "Row 1: missing required fields: First Name, Password", res.Errors.Lines[0])
	assert.Equal(t, core.NoticeWarning, res.Kind())
	assert.Equal(t, 0, f.store.Len(core.StudentsCollection))
}

func TestImporter_Import_InvalidStatus(t *testing.T) {
	f := setup(t)
	rows := []Row{{"First Name": "Ana", "Last Name": "Reyes", "LRN": "2000", "Password": "pw", "Status": "Graduated"}}
	res, err := f.imp.Import(context.Background(), rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors.Lines, 1)
	assert.True(t, strings.HasPrefix(res.Errors.Lines[0], "Row 1: status: invalid status"), res.Errors.Lines[0])
}

func TestImporter_Import_StoreFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.store.FailFunc = func(op, collection, id string) error {
		if op == memstore.OpCreate && collection == core.StudentsCollection && id == "STU0002" {
			return errors.New("quota exceeded")
		}
		return nil
	}
	rows := []Row{
		row("Ana", "Reyes", "1001", "pw"),
		row("Ben", "Cruz", "1002", "pw"),
		row("Carla", "Santos", "1003", "pw"),
	}
	res, err := f.imp.Import(ctx, rows, Options{})
	require.NoError(t, err)
	assertTotals(t, res)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors.Lines, 1)
	assert.Contains(t, res.Errors.Lines[0], "quota exceeded")
	assert.Equal(t, []string{"STU0001", "STU0003"}, res.Created)
}

func TestImporter_Import_Cancel(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := core.ProgressFunc(func(p core.Progress) {
		if p.Current == 1 {
			cancel()
		}
	})
	rows := []Row{
		row("Ana", "Reyes", "1001", "pw"),
		row("Ben", "Cruz", "1002", "pw"),
		row("Carla", "Santos", "1003", "pw"),
	}
	res, err := f.imp.Import(ctx, rows, Options{Reporter: reporter})
	require.NoError(t, err)
	assertTotals(t, res)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []string{"Import cancelled: 2 remaining rows skipped"}, res.Errors.Lines)
	assert.Equal(t, 1, f.store.Len(core.StudentsCollection))
}

func TestImporter_Import_Aborts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.imp.Import(ctx, nil, Options{})
	assert.Equal(t, ErrNoRows, err)

	_, err = f.imp.Import(ctx, []Row{row("Ana", "Reyes", "1001", "pw")}, Options{SectionID: "missing"})
	assert.Equal(t, section.ErrNotFound, err)

	_, err = f.imp.ImportFile(ctx, strings.NewReader("First Name\n"), "roster.csv", Options{})
	assert.Equal(t, ErrNoRows, err)

	f.store.FailFunc = func(op, collection, id string) error {
		if op == memstore.OpList && collection == core.StudentsCollection {
			return errors.New("offline")
		}
		return nil
	}
	_, err = f.imp.Import(ctx, []Row{row("Ana", "Reyes", "1001", "pw")}, Options{})
	assert.Error(t, err)
	f.store.FailFunc = nil
	assert.Equal(t, 0, f.store.Len(core.StudentsCollection))
}

func TestImporter_Import_OneRunAtATime(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	rows := []Row{row("Ana", "Reyes", "1001", "pw")}

	require.True(t, f.imp.running.TryAcquire(1))
	_, err := f.imp.Import(ctx, rows, Options{})
	assert.Equal(t, ErrImportRunning, err)
	f.imp.running.Release(1)

	res, err := f.imp.Import(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
}

func TestImporter_ConcurrentRunsNeverShareIDs(t *testing.T) {
	ctx := context.Background()
	store := memstore.Open()
	validate, translator := testutil.NewValidator()
	students := student.NewService(store)
	newImporter := func() *Importer {
		return New(Deps{
			Students:   students,
			Sections:   section.NewService(store),
			Validate:   validate,
			Translator: translator,
			Logger:     testutil.NewLogger(),
		})
	}

	// two processes importing from the same base state
	var (
		wg      sync.WaitGroup
		results [2]Result
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var rows []Row
			for j := 0; j < 3; j++ {
				rows = append(rows, row("Run", fmt.Sprint(i), fmt.Sprintf("%d%03d", i+1, j), "pw"))
			}
			res, err := newImporter().Import(ctx, rows, Options{})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, res := range results {
		assert.Equal(t, 3, res.Imported)
		for _, id := range res.Created {
			assert.False(t, seen[id], id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 6)
}
