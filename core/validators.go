package core

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	validatorsInit sync.Once

	// custom validation tags & texts
	identTag   = "ident"
	identText  = "{0} must be a plain SQL identifier"
	identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	queryOpTag  = "queryop"
	queryOpText = "{0} must be one of eq, neq, is-null, not-null"
	queryOps    = map[string]bool{"eq": true, "neq": true, "is-null": true, "not-null": true}

	requiredTag  = "required"
	requiredText = "{0} is required"
)

func init() {
	validatorsInit.Do(func() {
		_en := en.New()
		uni := ut.New(_en, _en)
		Translator, _ = uni.GetTranslator("en")
		Validate = validator.New()
		InitValidators(Validate, Translator)
	})
}

// IsIdent reports whether s is usable as a table or column name.
func IsIdent(s string) bool {
	return identRegex.MatchString(s)
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use flag-ish names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("name"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(identTag, identValidation)
	RegisterCustomTranslation(validate, translator, identTag, identText)

	_ = validate.RegisterValidation(queryOpTag, queryOpValidation)
	RegisterCustomTranslation(validate, translator, queryOpTag, queryOpText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// identValidation only allows SQL identifiers (letters, digits, underscores; no leading digit).
func identValidation(fl validator.FieldLevel) bool {
	return IsIdent(fl.Field().String())
}

func queryOpValidation(fl validator.FieldLevel) bool {
	return queryOps[fl.Field().String()]
}
