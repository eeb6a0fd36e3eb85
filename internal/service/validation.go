package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator"

	"github.com/sakif/job-portal/internal/apperror"
)

// newValidator returns a validator that reports fields by their JSON names, so
// messages match what the client sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct validation and converts the first failure into a
// ValidationFailed error.
func (s *UserService) validateInput(in interface{}) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("service/user: validating input: %w", err)
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, field+" is required")
	case "email":
		return apperror.ValidationFailed(field, field+" must be a valid email address")
	case "numeric":
		return apperror.ValidationFailed(field, field+" must contain only digits")
	case "max":
		return apperror.ValidationFailed(field, field+" is too long")
	case "min":
		return apperror.ValidationFailed(field, field+" is too short")
	default:
		return apperror.ValidationFailed(field, field+" is invalid")
	}
}

// ParseSkills splits comma-separated input into a trimmed list, dropping
// empty entries. Order is preserved.
func ParseSkills(raw string) []string {
	parts := strings.Split(raw, ",")
	skills := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			skills = append(skills, p)
		}
	}
	return skills
}
