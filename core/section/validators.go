package section

import (
	"strings"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
)

var (
	nameMinLen = 2
	nameTag    = "sectionname"
	nameText   = "section name must contain at least 2 characters"
)

// InitValidators registers the section validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(nameTag, nameValidation)
	core.RegisterCustomTranslation(validate, translator, nameTag, nameText)
}

// nameValidation requires at least nameMinLen characters once trimmed.
func nameValidation(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= nameMinLen
}
