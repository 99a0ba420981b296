package student

import (
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
)

var (
	statusTag  = "studentstatus"
	statusText = "invalid status, expected one of: " + strings.Join(Statuses, ", ")

	// FieldLabels are the human readable names of the required fields, as shown in import reports.
	FieldLabels = map[string]string{
		"lrn":       "LRN",
		"firstName": "First Name",
		"lastName":  "Last Name",
		"password":  "Password",
	}
)

// InitValidators registers the student validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func statusValidation(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// MissingFields returns the labels of the required fields reported by a validation error, in form order.
func MissingFields(err error) []string {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	order := map[string]int{"firstName": 0, "lastName": 1, "password": 2, "lrn": 3}
	seen := make(map[string]bool)
	var fields []string
	for _, fe := range vErrs {
		if _, ok := FieldLabels[fe.Field()]; !ok || seen[fe.Field()] {
			continue
		}
		if fe.Tag() != "required" && fe.Tag() != "notblank" {
			continue
		}
		seen[fe.Field()] = true
		fields = append(fields, fe.Field())
	}
	sort.Slice(fields, func(i, j int) bool { return order[fields[i]] < order[fields[j]] })
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		labels = append(labels, FieldLabels[f])
	}
	return labels
}
