package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/importer"
	"github.com/trezcool/registrar/core/student"
)

func (cli *commandLine) importStudents(ctx context.Context, path, sectionID, actorName string) error {
	actor, err := cli.actor(ctx, actorName)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening import file")
	}
	defer f.Close()

	res, err := cli.importer.ImportFile(ctx, f, path, importer.Options{
		SectionID: sectionID,
		Actor:     actor,
		Reporter:  cli.progress(),
	})
	if err != nil {
		return err
	}
	cli.printf("%s\n", res.Summary())
	return nil
}

func (cli *commandLine) exportStudents(ctx context.Context, path, sectionID string) error {
	filter := student.QueryFilter{}
	if sectionID != "" {
		if _, err := cli.sections.Get(ctx, sectionID); err != nil {
			return err
		}
		filter.SectionID = &sectionID
	}
	students, err := cli.students.Query(ctx, filter, nil)
	if err != nil {
		return err
	}
	sections, err := cli.sections.List(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(sections))
	for _, s := range sections {
		names[s.ID] = s.Name
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	if err := importer.Export(f, students, names); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing export file")
	}
	cli.printf("%d students exported to %s\n", len(students), path)
	return nil
}

func (cli *commandLine) archiveStudent(ctx context.Context, id, reason, actorName string) error {
	actor, err := cli.actor(ctx, actorName)
	if err != nil {
		return err
	}
	arch, err := cli.archives.ArchiveStudent(ctx, id, actor, reason)
	if err != nil {
		return err
	}
	cli.printf("student %s archived as %s (section: %s, quiz results: %s)\n",
		arch.OriginalID, arch.ID, arch.SectionName, arch.Enrichment.Status)
	return nil
}

func (cli *commandLine) archiveSection(ctx context.Context, id, actorName string) error {
	actor, err := cli.actor(ctx, actorName)
	if err != nil {
		return err
	}
	res, err := cli.archives.ArchiveSection(ctx, id, actor, cli.progress())
	if err != nil {
		if res.Archive.ID != "" {
			cli.printf("%d of %d students archived into %s before the error, run the command again to resume\n",
				res.Deleted, res.Total, res.Archive.ID)
		}
		return err
	}
	cli.printf("section %s archived as %s with %d students\n", id, res.Archive.ID, res.Archive.StudentCount)
	return nil
}

func (cli *commandLine) restoreStudent(ctx context.Context, id string) error {
	s, err := cli.archives.RestoreStudent(ctx, id)
	if err != nil {
		return err
	}
	cli.printf("student %s restored\n", s.ID)
	return nil
}
