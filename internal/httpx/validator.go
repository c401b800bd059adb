package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = newValidator()

	isbn10Re = regexp.MustCompile(`^\d{9}[\dX]$`)
	isbn13Re = regexp.MustCompile(`^\d{13}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names in error details.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("isbn", validateISBN)
	return v
}

// validateISBN accepts ISBN-10 or ISBN-13, ignoring dashes and spaces.
func validateISBN(fl validator.FieldLevel) bool {
	isbn := strings.NewReplacer("-", "", " ", "").Replace(fl.Field().String())
	switch len(isbn) {
	case 10:
		return isbn10Re.MatchString(isbn)
	case 13:
		return isbn13Re.MatchString(isbn)
	}
	return false
}

// ValidateStruct returns one detail per failed field, or nil.
func ValidateStruct(s any) []ErrorDetail {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ErrorDetail{{Field: "", Message: err.Error()}}
	}

	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "isbn":
			message = fmt.Sprintf("%s must be a valid ISBN (10 or 13 digits)", field)
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid id", field)
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}
		details = append(details, ErrorDetail{Field: field, Message: message})
	}
	return details
}
