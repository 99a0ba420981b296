package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	memstore "github.com/trezcool/registrar/storage/docstore/memory"
	testutil "github.com/trezcool/registrar/tests"
)

const testPwd = "Xk9#mQ2v!z"

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	out := new(bytes.Buffer)
	cli := newCommandLine(core.NewTestConfig(), memstore.Open(), testutil.NewLogger())
	cli.out = out
	return cli, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runTests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	// no database
	err := cli.run([]string{"admin", "migrate", "up"})
	assert.Equal(t, errNoDatabase, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	cli.db = db

	migrateFunc = func(ctx context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	runTests(t, cli, tests, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	ctx := context.Background()

	readPasswordFunc = func(fd int) ([]byte, error) { return nil, nil }
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "no username nor email", args: []string{"adduser", "-name", "Reg"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Reg", "-username", "registrar"}, wantErr: errHelp},
	}
	runTests(t, cli, tests, nil)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("password"), nil }
	err := cli.run([]string{"admin", "adduser", "-name", "Reg", "-username", "registrar"})
	assert.Error(t, err, "weak passwords are rejected")

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(testPwd), nil }
	require.NoError(t, cli.run([]string{"admin", "adduser", "-name", "Reg", "-username", "registrar", "-email", "reg@school.test", "-admin"}))
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "registrar")
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword(testPwd))

	// running it again updates the same user
	require.NoError(t, cli.run([]string{"admin", "adduser", "-name", "Registrar", "-email", "REG@school.test"}))
	again, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "reg@school.test")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, again.ID)
	assert.Equal(t, "Registrar", again.Name)
	assert.Equal(t, usr.Roles, again.Roles)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, cli.usrSvc, "User", "awesome", "awe@test.cd", testPwd, nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "Lm@0-lol-9x"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "Nw!pass-2026"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "Zq7&tiger#lake"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := cli.usrSvc.GetByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_importExport(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	dir := t.TempDir()
	sec := testutil.CreateSection(t, cli.sections, "Rizal")

	csvPath := filepath.Join(dir, "roster.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"First Name,Last Name,LRN,Password,Gender\n"+
			"Ana,Reyes,1001,pw1,F\n"+
			"Ben,Cruz,,pw2,M\n"+
			"Carla,Santos,1003,pw3,F\n"), 0o600))

	tests := []cliTest{
		{name: "import: no file", args: []string{"import"}, wantErr: errHelp},
		{name: "export: no file", args: []string{"export"}, wantErr: errHelp},
		{name: "import: unknown actor", args: []string{"import", "-file", csvPath, "-actor", "nobody"}, wantErr: user.ErrNotFound},
	}
	runTests(t, cli, tests, nil)

	require.NoError(t, cli.run([]string{"admin", "import", "-file", csvPath, "-section", sec.ID}))
	assert.Contains(t, out.String(), "[3/3] Row 3")
	assert.Contains(t, out.String(), "Imported 2 of 3 rows (0 duplicates, 1 skipped).")
	assert.Contains(t, out.String(), "Row 2: missing required fields: LRN")

	roster, err := cli.students.Roster(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, sec.ID, roster[0].SectionID)
	assert.Equal(t, cliActor, roster[0].CreatedBy)

	xlsxPath := filepath.Join(dir, "export.xlsx")
	require.NoError(t, cli.run([]string{"admin", "export", "-file", xlsxPath, "-section", sec.ID}))
	assert.Contains(t, out.String(), "2 students exported")
	fi, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.NotZero(t, fi.Size())

	err = cli.run([]string{"admin", "import", "-file", filepath.Join(dir, "missing.csv")})
	assert.Error(t, err)
}

func Test_commandLine_archive(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, cli.usrSvc, "Registrar", "registrar", "reg@school.test", testPwd, user.AdminRoles, true)
	sec := testutil.CreateSection(t, cli.sections, "Rizal")
	testutil.CreateStudent(t, cli.students, "STU0001", "1001", "Ana", "Reyes", sec.ID)
	testutil.CreateStudent(t, cli.students, "STU0002", "1002", "Ben", "Cruz", sec.ID)
	testutil.CreateStudent(t, cli.students, "STU0003", "1003", "Carla", "Santos", "")

	tests := []cliTest{
		{name: "archive-student: no id", args: []string{"archive-student"}, wantErr: errHelp},
		{name: "archive-section: no id", args: []string{"archive-section"}, wantErr: errHelp},
		{name: "restore-student: no id", args: []string{"restore-student"}, wantErr: errHelp},
		{name: "archive-student: not found", args: []string{"archive-student", "-id", "STU0404"}, wantErr: student.ErrNotFound},
		{name: "restore-student: not found", args: []string{"restore-student", "-id", "STU0404"}, wantErr: archive.ErrNotFound},
	}
	runTests(t, cli, tests, nil)

	require.NoError(t, cli.run([]string{"admin", "archive-student", "-id", "STU0003", "-reason", "Graduated", "-actor", "registrar"}))
	arch, err := cli.archives.GetArchivedStudent(ctx, "STU0003")
	require.NoError(t, err)
	assert.Equal(t, "Graduated", arch.Reason)
	assert.Equal(t, usr.Actor(), arch.ArchivedBy)
	assert.Equal(t, archive.UnassignedSection, arch.SectionName)

	require.NoError(t, cli.run([]string{"admin", "archive-section", "-id", sec.ID}))
	assert.Contains(t, out.String(), "[2/2] Ben Cruz")
	assert.Contains(t, out.String(), "with 2 students")
	secArch, err := cli.archives.GetArchivedSection(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, secArch.StudentCount)
	assert.Equal(t, cliActor, secArch.ArchivedBy)

	require.NoError(t, cli.run([]string{"admin", "restore-student", "-id", "arch_STU0003"}))
	s, err := cli.students.Get(ctx, "STU0003")
	require.NoError(t, err)
	assert.Equal(t, "Carla", s.FirstName)
}
