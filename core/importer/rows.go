package importer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/trezcool/registrar/core/student"
)

// Row is one spreadsheet row: column header -> cell value.
type Row map[string]string

// columns maps normalized headers to student fields.
var columns = map[string]string{
	"lrn":                    "lrn",
	"learnerreferencenumber": "lrn",
	"learnerreferenceno":     "lrn",
	"firstname":              "firstName",
	"first":                  "firstName",
	"givenname":              "firstName",
	"middlename":             "middleName",
	"middle":                 "middleName",
	"mi":                     "middleName",
	"lastname":               "lastName",
	"last":                   "lastName",
	"surname":                "lastName",
	"familyname":             "lastName",
	"suffix":                 "suffix",
	"nameextension":          "suffix",
	"extension":              "suffix",
	"gender":                 "gender",
	"sex":                    "gender",
	"birthdate":              "birthdate",
	"birthday":               "birthdate",
	"dateofbirth":            "birthdate",
	"dob":                    "birthdate",
	"email":                  "email",
	"emailaddress":           "email",
	"contactnumber":          "contactNumber",
	"contact":                "contactNumber",
	"contactno":              "contactNumber",
	"phone":                  "contactNumber",
	"phonenumber":            "contactNumber",
	"mobile":                 "contactNumber",
	"address":                "address",
	"homeaddress":            "address",
	"guardianname":           "guardianName",
	"guardian":               "guardianName",
	"parentguardian":         "guardianName",
	"guardiancontact":        "guardianContact",
	"guardiancontactnumber":  "guardianContact",
	"guardiancontactno":      "guardianContact",
	"guardianphone":          "guardianContact",
	"guardianrelationship":   "guardianRelationship",
	"relationship":           "guardianRelationship",
	"gradelevel":             "gradeLevel",
	"grade":                  "gradeLevel",
	"schoolyear":             "schoolYear",
	"sy":                     "schoolYear",
	"enrollmentdate":         "enrollmentDate",
	"dateenrolled":           "enrollmentDate",
	"status":                 "status",
	"studentstatus":          "status",
	"username":               "username",
	"user":                   "username",
	"password":               "password",
}

// statuses accepts the short forms teachers type in spreadsheets.
var statuses = map[string]string{
	"regular":          student.StatusRegular,
	"regularstudent":   student.StatusRegular,
	"irregular":        student.StatusIrregular,
	"irregularstudent": student.StatusIrregular,
	"transferee":       student.StatusTransferee,
	"transfer":         student.StatusTransferee,
	"returnee":         student.StatusReturnee,
	"returning":        student.StatusReturnee,
	"returningstudent": student.StatusReturnee,
}

// normalizeHeader lowercases h and drops everything but letters & digits: "First Name" -> "firstname".
func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, h)
}

// Field returns the cell of a student field ("firstName"...), whatever the header spelling.
// When several filled headers map to the field, the canonical one wins, then the first in sorted order.
func (r Row) Field(name string) string {
	canonical := strings.ToLower(name)
	var headers []string
	for h, v := range r {
		if columns[normalizeHeader(h)] == name && strings.TrimSpace(v) != "" {
			headers = append(headers, h)
		}
	}
	if len(headers) == 0 {
		return ""
	}
	sort.Strings(headers)
	for _, h := range headers {
		if normalizeHeader(h) == canonical {
			return r[h]
		}
	}
	return r[headers[0]]
}

// IsBlank reports whether every cell is empty.
func (r Row) IsBlank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NewStudent maps the row onto a cleaned student.NewStudent. Unknown columns are ignored.
func (r Row) NewStudent() student.NewStudent {
	var ns student.NewStudent
	fields := map[string]*string{
		"lrn":                  &ns.LRN,
		"firstName":            &ns.FirstName,
		"middleName":           &ns.MiddleName,
		"lastName":             &ns.LastName,
		"suffix":               &ns.Suffix,
		"gender":               &ns.Gender,
		"birthdate":            &ns.Birthdate,
		"email":                &ns.Email,
		"contactNumber":        &ns.ContactNumber,
		"address":              &ns.Address,
		"guardianName":         &ns.GuardianName,
		"guardianContact":      &ns.GuardianContact,
		"guardianRelationship": &ns.GuardianRelationship,
		"gradeLevel":           &ns.GradeLevel,
		"schoolYear":           &ns.SchoolYear,
		"enrollmentDate":       &ns.EnrollmentDate,
		"status":               &ns.Status,
		"username":             &ns.Username,
		"password":             &ns.Password,
	}
	for name, p := range fields {
		*p = r.Field(name)
	}
	if s, ok := statuses[normalizeHeader(ns.Status)]; ok {
		ns.Status = s
	}
	ns.Clean()
	return ns
}
