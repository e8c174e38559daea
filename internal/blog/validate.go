package blog

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateStruct runs struct tag validation and converts failures to a ValidationError
func validateStruct(s interface{}) error {
	return translate(validate.Struct(s), "")
}

// validateField validates a single value under the given field name
func validateField(field string, value interface{}, tag string) error {
	return translate(validate.Var(value, tag), field)
}

// collect merges several ValidationErrors into one
func collect(errs ...error) error {
	fields := map[string]string{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var e *Error
		if !errors.As(err, &e) || e.Kind != KindValidation {
			return err
		}
		for k, v := range e.Fields {
			if _, seen := fields[k]; !seen {
				fields[k] = v
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return ValidationError("The given data was invalid.", fields)
}

func translate(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := field
		if name == "" {
			name = fieldPath(fe)
		}
		if _, seen := fields[name]; !seen {
			fields[name] = message(fe)
		}
	}
	return ValidationError("The given data was invalid.", fields)
}

// fieldPath drops the top-level struct name from the namespace: "ArticleInput.tags[0]" -> "tags[0]"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("may not have more than %s items", fe.Param())
		}
		return fmt.Sprintf("may not be greater than %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return "confirmation does not match"
	case "username":
		return "may only contain letters, numbers, dots, dashes and underscores"
	default:
		return fmt.Sprintf("is invalid (%s)", fe.Tag())
	}
}
