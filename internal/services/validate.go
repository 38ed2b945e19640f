package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct-tag validation and converts the first failure
// into a BadRequest.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.BadRequest("invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.BadRequest("Missing required fields: " + missingFields(verrs))
	case "email":
		return apperr.BadRequest(fmt.Sprintf("%s must be a valid email address", fe.Field()))
	case "oneof":
		return apperr.BadRequest(fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
	case "url":
		return apperr.BadRequest(fmt.Sprintf("%s must contain absolute URLs", fe.Field()))
	case "max":
		return apperr.BadRequest(fmt.Sprintf("%s is too long", fe.Field()))
	case "latitude", "longitude":
		return apperr.BadRequest(fmt.Sprintf("%s is out of range", fe.Field()))
	default:
		return apperr.BadRequest(fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

func missingFields(verrs validator.ValidationErrors) string {
	var names []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			names = append(names, fe.Field())
		}
	}
	return strings.Join(names, ", ")
}
