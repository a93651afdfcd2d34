package character

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationError is a user-displayable problem with a record.
type ValidationError struct {
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
	validatorErr  error
)

func newValidator() (*validator.Validate, ut.Translator, error) {
	v := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	custom := []struct {
		tag     string
		fn      validator.Func
		message string
	}{
		{tag: "skill", fn: isSkill, message: "{0} is not a known skill"},
		{tag: "ability", fn: isAbility, message: "{0} is not a known ability"},
	}
	for _, c := range custom {
		if err := v.RegisterValidation(c.tag, c.fn); err != nil {
			return nil, nil, fmt.Errorf("failed to register %s validation: %w", c.tag, err)
		}
		if err := v.RegisterTranslation(c.tag, trans, func(ut ut.Translator) error {
			return ut.Add(c.tag, c.message, true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fieldPath(fe))
			return t
		}); err != nil {
			return nil, nil, fmt.Errorf("failed to register %s translation: %w", c.tag, err)
		}
	}

	return v, trans, nil
}

func isSkill(fl validator.FieldLevel) bool {
	return slices.Contains(Skills, Skill(fl.Field().String()))
}

func isAbility(fl validator.FieldLevel) bool {
	return slices.Contains(Abilities, Ability(fl.Field().String()))
}

func fieldPath(fe validator.FieldError) string {
	return strings.TrimPrefix(fe.Namespace(), "Character.")
}

// Validate checks a record and returns every problem found. An empty result
// means the record is valid.
func Validate(c Character) []ValidationError {
	validatorOnce.Do(func() {
		validate, translator, validatorErr = newValidator()
	})
	if validatorErr != nil {
		return []ValidationError{{Message: validatorErr.Error()}}
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		message := fe.Translate(translator)
		if path := fieldPath(fe); path != fe.Field() {
			message = path + ": " + message
		}
		out = append(out, ValidationError{Message: message})
	}
	return out
}
