package importer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
)

var (
	// errors
	ErrImportRunning = errors.New("another import is already running, try again once it is done")
)

const (
	defaultMaxErrors     = 5
	defaultMaxDuplicates = 3
)

type (
	Deps struct {
		Students   *student.Service
		Sections   *section.Service
		Validate   *validator.Validate
		Translator ut.Translator
		Logger     core.Logger
		Notifier   core.Notifier

		MaxErrors     int // generic error lines kept in a Result
		MaxDuplicates int // duplicate lines kept in a Result
		RowDelay      time.Duration
	}

	// Options describe the destination of an import run.
	Options struct {
		SectionID string // empty: students are unassigned
		Actor     core.Actor
		Reporter  core.ProgressReporter
	}

	// Importer creates students from spreadsheet rows, one row at a time.
	// A single run is allowed at a time per Importer.
	Importer struct {
		students   *student.Service
		sections   *section.Service
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		notifier   core.Notifier
		running    *semaphore.Weighted

		maxErrors     int
		maxDuplicates int
		rowDelay      time.Duration
	}

	outcome int
)

const (
	imported outcome = iota
	duplicate
	skipped
)

func New(deps Deps) *Importer {
	imp := &Importer{
		students:      deps.Students,
		sections:      deps.Sections,
		validate:      deps.Validate,
		translator:    deps.Translator,
		logger:        deps.Logger,
		notifier:      deps.Notifier,
		running:       semaphore.NewWeighted(1),
		maxErrors:     deps.MaxErrors,
		maxDuplicates: deps.MaxDuplicates,
		rowDelay:      deps.RowDelay,
	}
	if imp.maxErrors <= 0 {
		imp.maxErrors = defaultMaxErrors
	}
	if imp.maxDuplicates <= 0 {
		imp.maxDuplicates = defaultMaxDuplicates
	}
	return imp
}

// ImportFile reads rows from an .xlsx or .csv file, then imports them.
// Unreadable or empty files fail before anything is written.
func (imp *Importer) ImportFile(ctx context.Context, r io.Reader, filename string, opts Options) (Result, error) {
	rows, err := ReadRows(r, filename)
	if err != nil {
		return Result{}, err
	}
	return imp.Import(ctx, rows, opts)
}

// Import creates a student per row, in order. Row failures are tallied, never returned:
// only a missing destination, an empty batch, a concurrent run or a store failure before the first row fail the run.
// A cancelled ctx stops the run before the next row; the remaining rows are counted as skipped.
func (imp *Importer) Import(ctx context.Context, rows []Row, opts Options) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrNoRows
	}
	if !imp.running.TryAcquire(1) {
		return Result{}, ErrImportRunning
	}
	defer imp.running.Release(1)

	if opts.SectionID != "" {
		if _, err := imp.sections.Get(ctx, opts.SectionID); err != nil {
			return Result{}, err
		}
	}
	alloc, err := imp.students.NewAllocator(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "seeding id allocator")
	}
	reporter := core.ReporterOrNop(opts.Reporter)

	res := newResult(len(rows), imp.maxErrors, imp.maxDuplicates)
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			remaining := len(rows) - i
			res.Skipped += remaining
			res.Cancelled = true
			res.Errors.add(fmt.Sprintf("Import cancelled: %d remaining rows skipped", remaining))
			break
		}

		n := i + 1
		switch imp.importRow(ctx, alloc, n, row, opts, &res) {
		case imported:
			res.Imported++
		case duplicate:
			res.Duplicate++
		default:
			res.Skipped++
		}
		reporter.Report(core.Progress{Current: n, Total: res.Total, Label: fmt.Sprintf("Row %d", n), Tally: res.Tally})

		if imp.rowDelay > 0 && n < len(rows) {
			select {
			case <-ctx.Done():
			case <-time.After(imp.rowDelay):
			}
		}
	}

	if opts.SectionID != "" && res.Imported > 0 {
		if _, err := imp.sections.SyncStudentCount(context.WithoutCancel(ctx), opts.SectionID); err != nil {
			imp.logger.Warn("syncing section student count", err, map[string]interface{}{"sectionId": opts.SectionID})
		}
	}

	imp.logger.Info(fmt.Sprintf("imported %d of %d rows", res.Imported, res.Total), opts.Actor, map[string]interface{}{
		"duplicate": res.Duplicate,
		"skipped":   res.Skipped,
		"cancelled": res.Cancelled,
		"sectionId": opts.SectionID,
	})
	if imp.notifier != nil {
		imp.notifier.Notify("Student import", res.Summary(), res.Kind())
	}
	return res, nil
}

func (imp *Importer) importRow(ctx context.Context, alloc student.IDAllocator, n int, row Row, opts Options, res *Result) outcome {
	ns := row.NewStudent()
	ns.SectionID = opts.SectionID
	id, seq, fromUsername := student.IDFromUsername(ns.Username)
	if fromUsername {
		ns.ID = id
	}

	if err := ns.Validate(imp.validate); err != nil {
		res.Errors.add(fmt.Sprintf("Row %d: %s", n, imp.reason(err)))
		return skipped
	}
	// a skipped row must not move the allocator floor
	if fromUsername {
		alloc.Observe(seq)
	}

	// ids are only drawn for valid rows, so skipped rows leave no gaps
	if ns.ID == "" {
		id, err := alloc.Next(ctx)
		if err != nil {
			res.Errors.add(fmt.Sprintf("Row %d: %v", n, err))
			return skipped
		}
		ns.ID = id
	}

	s, err := imp.students.Create(ctx, ns, opts.Actor)
	switch {
	case err == nil:
		res.Created = append(res.Created, s.ID)
		return imported
	case student.IsDuplicate(err):
		res.Duplicates.add(fmt.Sprintf("Row %d: %s (LRN %s): %v", n, ns.ID, ns.LRN, err))
		return duplicate
	default:
		imp.logger.Error(fmt.Sprintf("importing row %d", n), err, opts.Actor)
		res.Errors.add(fmt.Sprintf("Row %d: %v", n, err))
		return skipped
	}
}

// reason turns a validation error into a one-line skip reason naming the fields.
func (imp *Importer) reason(err error) string {
	if missing := student.MissingFields(err); len(missing) > 0 {
		return "missing required fields: " + strings.Join(missing, ", ")
	}
	if flds := core.FieldErrors(err, imp.translator); len(flds) > 0 {
		msgs := make([]string, 0, len(flds))
		for _, f := range flds {
			msgs = append(msgs, f.Field+": "+f.Error)
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}
