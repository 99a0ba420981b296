package importer

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/registrar/core/student"
)

const exportSheet = "Students"

// ExportHeaders are the columns written by Export. Apart from ID & Section, they are import headers,
// so an export can be re-imported once the Password column is filled in.
var ExportHeaders = []string{
	"ID", "LRN", "First Name", "Middle Name", "Last Name", "Suffix", "Gender", "Birthdate", "Email",
	"Contact Number", "Address", "Guardian Name", "Guardian Contact", "Guardian Relationship",
	"Grade Level", "School Year", "Enrollment Date", "Status", "Section", "Username", "Password",
}

func exportRow(s student.Student, sectionName string) []interface{} {
	return []interface{}{
		s.ID, s.LRN, s.FirstName, s.MiddleName, s.LastName, s.Suffix, s.Gender, s.Birthdate, s.Email,
		s.ContactNumber, s.Address, s.GuardianName, s.GuardianContact, s.GuardianRelationship,
		s.GradeLevel, s.SchoolYear, s.EnrollmentDate, s.Status, sectionName, s.Username, "",
	}
}

// Export writes the students as an .xlsx workbook. sectionNames maps section ids to names.
func Export(w io.Writer, students []student.Student, sectionNames map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	header := make([]interface{}, len(ExportHeaders))
	for i, h := range ExportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	last, err := excelize.CoordinatesToCellName(len(ExportHeaders), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, bold); err != nil {
		return errors.Wrap(err, "styling header")
	}

	for i, s := range students {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(s, sectionNames[s.SectionID])
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return errors.Wrapf(err, "writing %s", s.ID)
		}
	}
	_, err = f.WriteTo(w)
	return errors.Wrap(err, "writing workbook")
}
