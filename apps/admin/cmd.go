package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/archive"
	"github.com/trezcool/registrar/core/importer"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// cliActor performs the operations run from the command line, unless -actor names a user.
	cliActor = core.Actor{ID: "admin-cli", Username: "admin-cli"}
)

type commandLine struct {
	out      io.Writer
	db       *sql.DB // nil unless the postgres store is used
	validate *validator.Validate
	usrSvc   *user.Service
	students *student.Service
	sections *section.Service
	archives *archive.Service
	importer *importer.Importer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  adduser -name NAME -username USERNAME -email EMAIL [-admin] - create or update a user\n")
	cli.printf("  resetpassword -username USERNAME|EMAIL - reset user's password\n")
	cli.printf("  migrate COMMAND [ARGS...] - run database migrations (up, down, status, version...)\n")
	cli.printf("  import -file PATH [-section ID] [-actor USERNAME] - import students from an .xlsx or .csv file\n")
	cli.printf("  export -file PATH [-section ID] - export students to an .xlsx file\n")
	cli.printf("  archive-student -id ID [-reason REASON] [-actor USERNAME] - archive a student\n")
	cli.printf("  archive-section -id ID [-actor USERNAME] - archive a section with all its students\n")
	cli.printf("  restore-student -id ID - restore an archived student\n")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// actor resolves the -actor flag.
func (cli *commandLine) actor(ctx context.Context, uname string) (core.Actor, error) {
	if uname == "" {
		return cliActor, nil
	}
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return core.Actor{}, err
	}
	return usr.Actor(), nil
}

// progress prints progress updates, one line each.
func (cli *commandLine) progress() core.ProgressReporter {
	return core.ProgressFunc(func(p core.Progress) {
		cli.printf("[%d/%d] %s\n", p.Current, p.Total, p.Label)
	})
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	// long runs stop cleanly on ^C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Give the user all the roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importFile := importCmd.String("file", "", "The .xlsx or .csv file to import.")
	importSection := importCmd.String("section", "", "The section to enroll the students in.")
	importActor := importCmd.String("actor", "", "The username of the user performing the import.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportFile := exportCmd.String("file", "", "The .xlsx file to write.")
	exportSection := exportCmd.String("section", "", "Only export the students of this section.")

	archiveStudentCmd := flag.NewFlagSet("archive-student", flag.ContinueOnError)
	archiveStudentID := archiveStudentCmd.String("id", "", "The student id, eg. STU0001.")
	archiveStudentReason := archiveStudentCmd.String("reason", "", "Why the student is archived.")
	archiveStudentActor := archiveStudentCmd.String("actor", "", "The username of the user performing the archival.")

	archiveSectionCmd := flag.NewFlagSet("archive-section", flag.ContinueOnError)
	archiveSectionID := archiveSectionCmd.String("id", "", "The section id.")
	archiveSectionActor := archiveSectionCmd.String("actor", "", "The username of the user performing the archival.")

	restoreStudentCmd := flag.NewFlagSet("restore-student", flag.ContinueOnError)
	restoreStudentID := restoreStudentCmd.String("id", "", "The archived student id, eg. STU0001 or arch_STU0001.")

	for _, fs := range []*flag.FlagSet{
		addUserCmd, resetPasswordCmd, importCmd, exportCmd, archiveStudentCmd, archiveSectionCmd, restoreStudentCmd,
	} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importStudents(ctx, *importFile, *importSection, *importActor)

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *exportFile == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportStudents(ctx, *exportFile, *exportSection)

	case "archive-student":
		if err := archiveStudentCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *archiveStudentID == "" {
			archiveStudentCmd.Usage()
			return errHelp
		}
		return cli.archiveStudent(ctx, *archiveStudentID, *archiveStudentReason, *archiveStudentActor)

	case "archive-section":
		if err := archiveSectionCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *archiveSectionID == "" {
			archiveSectionCmd.Usage()
			return errHelp
		}
		return cli.archiveSection(ctx, *archiveSectionID, *archiveSectionActor)

	case "restore-student":
		if err := restoreStudentCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *restoreStudentID == "" {
			restoreStudentCmd.Usage()
			return errHelp
		}
		return cli.restoreStudent(ctx, *restoreStudentID)

	default:
		cli.printUsage()
		return errHelp
	}
}
